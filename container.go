package capture

import (
	"context"
	"time"
)

// ContainerOptions describes a local recording.
type ContainerOptions struct {
	Path         string // Output file path
	Title        string
	VideoEnabled bool
	FPS          int
	VideoBitrate int // bps
	AudioBitrate int // bps, per track
}

// ContainerWriter is a local container session. Tracks are added before
// StartSession; adding a track afterwards fails with ErrInvalidState.
type ContainerWriter interface {
	AddVideoTrack() (VideoWriterTrack, error)
	AddAudioTrack(id string) (AudioWriterTrack, error)

	// StartSession opens the session clock. at is the host-clock time that
	// maps to zero in the output.
	StartSession(at time.Duration) error

	// Finish drains and finalizes the output. It returns the writer's
	// terminal failure, if any.
	Finish(ctx context.Context) error

	// Cancel abandons the session and removes partial output.
	Cancel() error

	// Err returns the terminal failure, if one has occurred.
	Err() error
}

// VideoWriterTrack accepts frames for one video track. Append must not
// block; callers check ReadyForMoreData first and drop when it is false.
type VideoWriterTrack interface {
	ReadyForMoreData() bool
	Append(frame *VideoFrame, pts time.Duration) error
	MarkFinished()
}

// AudioWriterTrack accepts converted samples for one audio track.
type AudioWriterTrack interface {
	ReadyForMoreData() bool
	Append(samples *AudioSamples, pts time.Duration) error
	MarkFinished()
}

// ContainerFactory creates a writer for a recording.
type ContainerFactory func(opts ContainerOptions) (ContainerWriter, error)
