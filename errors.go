package capture

import "errors"

// Common errors
var (
	ErrBufferTooSmall    = errors.New("buffer too small")
	ErrProviderNotFound  = errors.New("provider not available")
	ErrCodecNotSupported = errors.New("codec not supported by provider")
	ErrNotSupported      = errors.New("operation not supported")
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Session and sink errors
var (
	ErrNoInputEnabled   = errors.New("no input source enabled")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidState     = errors.New("invalid session state")
	ErrNoSourcesReady   = errors.New("no required source became ready")
	ErrSourceTimeout    = errors.New("source did not become ready before timeout")
	ErrAudioStartFailed = errors.New("audio source failed to start")
	ErrWriterFailed     = errors.New("container writer failed")
	ErrNotRecording     = errors.New("not recording")
	ErrStreamingActive  = errors.New("live stream already active")
	ErrNotStreaming     = errors.New("not streaming")
	ErrTrackNotFound    = errors.New("track not found")
)

// Sequence header errors
var (
	ErrMissingParameterSets = errors.New("missing SPS or PPS")
	ErrMissingAudioConfig   = errors.New("missing audio specific config")
)
