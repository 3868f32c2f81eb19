// Package capture is the recording and streaming core of a media-capture
// application.
//
// It coordinates asynchronous capture sources (screen, cameras, an avatar
// texture, microphone and other audio inputs), composes them into a single
// video stream with multi-track audio, writes that stream to a local container
// and optionally re-encodes it for live publishing over RTMP.
//
// # Architecture
//
//	RecordingSession
//	  -> SourceRegistry   (concurrent start, readiness under one timeout)
//	  -> AudioRouter      (per-source conversion to 48 kHz / stereo / S16)
//	  -> Compositor       (screen or standard canvas + corner overlays)
//	  -> RecordingEncoder (local ContainerWriter + optional LiveStreamer)
//	       LiveStreamer -> VideoEncoder/AudioEncoder -> FLV tags -> Publisher
//
// The FLV muxer (CreateHeader, CreateTag, VideoTagPayload, AudioTagPayload,
// AVCDecoderConfigurationRecord, BuildAudioSpecificConfig, CreateMetadata) is
// pure and byte-exact; everything else is built around it.
//
// # Timestamps
//
// Capture timestamps are nanoseconds on the process monotonic clock
// (MonotonicNow). Devices, the frame driver and remote feeds all stamp frames
// on that clock so audio and video can share one session base.
//
// # Native Libraries
//
// H.264 and AAC encoding load libmedia_h264 and libmedia_aac through purego.
// Set MEDIA_SDK_LIB_PATH to the directory containing these libraries. When a
// library is missing the corresponding codec is simply not registered; the
// local and live sinks report ErrProviderNotFound when they need it.
//
// # Build Tags
//
//   - noh264, noaac: disable specific codecs
package capture
