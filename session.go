package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionState is the recording session lifecycle state.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionStarting
	SessionRecording
	SessionPaused
	SessionStopping
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionStarting:
		return "starting"
	case SessionRecording:
		return "recording"
	case SessionPaused:
		return "paused"
	case SessionStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// SessionInputs are the user-selected input toggles.
type SessionInputs struct {
	Desktop     bool
	ScreenAudio bool // record system audio alongside the desktop
	Camera      bool
	CameraIDs   []string // empty: every camera ListCameras reports
	Avatar      bool
	Microphone  bool
}

// RemoteSourceInfo describes a camera fed over the network.
type RemoteSourceInfo struct {
	ID       string
	Label    string
	HasAudio bool
}

// SessionConfig configures a RecordingSession.
type SessionConfig struct {
	Logger  zerolog.Logger
	Metrics *Metrics

	Devices     DeviceProvider
	Permissions PermissionProvider // default: AllowAllPermissions

	Containers ContainerFactory // default: FLV container
	Live       LiveStreamConfig
	Compositor CompositorConfig

	ReadyTimeout   time.Duration // default: DefaultReadyTimeout
	FPS            int           // default: 30
	VideoBitrate   int
	AudioBitrate   int
	OutputDir      string // used when a recording has no URL
	PrimaryAudioID string // live audio source (default: microphone)
}

// DefaultSessionConfig returns defaults for everything but Devices.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Permissions:  AllowAllPermissions{},
		Compositor:   DefaultCompositorConfig(),
		Live:         DefaultLiveStreamConfig(),
		ReadyTimeout: DefaultReadyTimeout,
		FPS:          30,
		VideoBitrate: 4_500_000,
		AudioBitrate: 128_000,
		OutputDir:    ".",
	}
}

// RecordingRequest starts a recording.
type RecordingRequest struct {
	URL   string // output path; empty picks <OutputDir>/recording-<id>.flv
	Title string
}

// SessionStatus is a snapshot of a session.
type SessionStatus struct {
	State          SessionState
	RecordingID    string
	URL            string
	Mode           string
	StartedAt      time.Time
	Duration       time.Duration // excludes paused time
	ReadySources   []string
	FailedSources  map[string]string
	AudioTracks    []string
	RemoteSources  []string
	Streaming      bool
	Live           LiveStats
	PreviewRunning bool
}

// RecordingSession orchestrates one recording at a time: it derives the
// sources from the input toggles, starts them through a SourceRegistry,
// routes audio through an AudioRouter, composes frames and feeds the
// RecordingEncoder.
type RecordingSession struct {
	cfg SessionConfig
	log zerolog.Logger

	registry   *SourceRegistry
	router     *AudioRouter
	encoder    *RecordingEncoder
	compositor *Compositor
	frames     *FrameStore

	opMu sync.Mutex // serializes start/stop/pause/resume/preview

	mu          sync.Mutex
	state       SessionState
	inputs      SessionInputs
	texture     TextureProvider
	mode        RecordingInputMode
	recordingID string
	url         string
	startedAt   time.Time
	ready       ReadyResult
	screen      *DeviceVideoSource
	cameras     []*DeviceVideoSource
	cameraIDs   []string
	avatar      *AvatarSource
	driver      *frameDriver

	remoteOrder []string
	remote      map[string]RemoteSourceInfo
	remoteAudio map[string]*RemoteAudioSource

	recording   atomic.Bool
	driven      atomic.Bool // frame driver owns timing
	previewOnly atomic.Bool
	preview     atomic.Pointer[VideoFrameCallback]
	previewSrc  *DeviceVideoSource
}

// NewRecordingSession creates an idle session.
func NewRecordingSession(cfg SessionConfig) (*RecordingSession, error) {
	if cfg.Devices == nil {
		return nil, errors.New("session: no device provider")
	}
	d := DefaultSessionConfig()
	if cfg.Permissions == nil {
		cfg.Permissions = d.Permissions
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = d.ReadyTimeout
	}
	if cfg.FPS <= 0 {
		cfg.FPS = d.FPS
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = d.OutputDir
	}
	if cfg.Containers == nil {
		fc := DefaultFLVContainerConfig()
		fc.Logger = cfg.Logger
		cfg.Containers = NewFLVContainerFactory(fc)
	}
	if cfg.Live.Width == 0 {
		cfg.Live.Width, cfg.Live.Height = cfg.Compositor.Width, cfg.Compositor.Height
	}

	s := &RecordingSession{
		cfg:         cfg,
		log:         cfg.Logger,
		registry:    NewSourceRegistry(cfg.Logger, cfg.Metrics),
		router:      NewAudioRouter(cfg.Logger, cfg.Metrics),
		compositor:  NewCompositor(cfg.Compositor),
		frames:      NewFrameStore(),
		remote:      make(map[string]RemoteSourceInfo),
		remoteAudio: make(map[string]*RemoteAudioSource),
	}
	s.encoder = NewRecordingEncoder(RecordingEncoderConfig{
		Logger:         cfg.Logger,
		Metrics:        cfg.Metrics,
		Containers:     cfg.Containers,
		Live:           cfg.Live,
		PrimaryAudioID: cfg.PrimaryAudioID,
	})
	s.router.SetSink(func(id string, samples *AudioSamples) {
		s.encoder.EncodeAudioSample(samples, id)
	})
	return s, nil
}

// SetInputs replaces the input toggles used by the next recording.
func (s *RecordingSession) SetInputs(in SessionInputs) {
	s.mu.Lock()
	s.inputs = in
	s.inputs.CameraIDs = append([]string(nil), in.CameraIDs...)
	s.mu.Unlock()
}

// Inputs returns the current input toggles.
func (s *RecordingSession) Inputs() SessionInputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs
}

// SetTextureProvider sets the avatar texture provider. Without one the
// avatar input is ignored.
func (s *RecordingSession) SetTextureProvider(p TextureProvider) {
	s.mu.Lock()
	s.texture = p
	s.mu.Unlock()
}

// SetPreviewHandler sets the callback receiving screen frames in
// preview-only mode.
func (s *RecordingSession) SetPreviewHandler(cb VideoFrameCallback) {
	if cb == nil {
		s.preview.Store(nil)
		return
	}
	s.preview.Store(&cb)
}

// State returns the lifecycle state.
func (s *RecordingSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *RecordingSession) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *RecordingSession) inputMode() RecordingInputMode {
	return RecordingInputMode{
		Desktop:    s.inputs.Desktop,
		Camera:     s.inputs.Camera,
		Avatar:     s.inputs.Avatar && s.texture != nil,
		Microphone: s.inputs.Microphone,
	}
}

// StartRecording starts a recording with the current inputs and returns
// its id. Sources that fail to become ready are logged and skipped; the
// recording is aborted only when every video source of a video recording
// failed.
func (s *RecordingSession) StartRecording(ctx context.Context, req RecordingRequest) (string, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != SessionIdle {
		st := s.state
		s.mu.Unlock()
		return "", fmt.Errorf("%w: session is %s", ErrInvalidState, st)
	}
	inputs := s.inputs
	texture := s.texture
	mode := s.inputMode()
	s.mu.Unlock()

	if !mode.Any() {
		return "", ErrNoInputEnabled
	}
	for _, kind := range mode.PermissionKinds() {
		granted, err := s.cfg.Permissions.RequestAccess(ctx, kind)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrPermissionDenied, kind, err)
		}
		if !granted {
			return "", fmt.Errorf("%w: %s", ErrPermissionDenied, kind)
		}
	}
	if s.previewOnly.Load() {
		s.stopPreviewLocked()
	}

	id := uuid.NewString()
	url := req.URL
	if url == "" {
		url = filepath.Join(s.cfg.OutputDir, "recording-"+id+".flv")
	}
	log := s.log.With().Str("recording_id", id).Str("mode", mode.String()).Logger()

	s.mu.Lock()
	s.state = SessionStarting
	s.mode = mode
	s.mu.Unlock()

	// Sources implied by the mode.
	s.registry.Clear()
	var (
		screen  *DeviceVideoSource
		cameras []*DeviceVideoSource
		avatar  *AvatarSource
	)
	if mode.Desktop {
		screen = NewScreenSource(s.cfg.Devices)
		screen.SetFrameHandler(s.onScreenFrame)
		s.registry.Register(RegisteredSourceFor(screen))
	}
	cameraIDs := inputs.CameraIDs
	if mode.Camera && len(cameraIDs) == 0 {
		devs, err := s.cfg.Devices.ListCameras(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("list cameras")
		}
		for _, d := range devs {
			cameraIDs = append(cameraIDs, d.DeviceID)
		}
	}
	if mode.Camera {
		for _, camID := range cameraIDs {
			camID := camID
			cam := NewCameraSource(s.cfg.Devices, camID)
			cam.SetFrameHandler(func(f *VideoFrame) { s.frames.Put(camID, f) })
			s.frames.ClaimLocal(camID)
			s.registry.Register(RegisteredSourceFor(cam))
			cameras = append(cameras, cam)
		}
	} else {
		cameraIDs = nil
	}
	if mode.Avatar {
		avatar = NewAvatarSource(texture)
		s.registry.Register(RegisteredSourceFor(avatar))
	}

	// Audio sources are registered now and started only once recording.
	s.router.Clear()
	if mode.Microphone {
		s.router.AddSource(NewMicrophoneSource(s.cfg.Devices))
	}
	if mode.Desktop && inputs.ScreenAudio {
		s.router.AddSource(NewScreenAudioSource(s.cfg.Devices))
	}
	s.mu.Lock()
	for _, rid := range s.remoteOrder {
		if ra, ok := s.remoteAudio[rid]; ok {
			s.router.AddSource(ra)
		}
	}
	s.screen, s.cameras, s.cameraIDs, s.avatar = screen, cameras, cameraIDs, avatar
	s.mu.Unlock()

	// The track set is frozen here, before any source is waited on.
	audioIDs := s.router.SourceIDs()
	err := s.encoder.StartRecording(RecordingOptions{
		URL:          url,
		Title:        req.Title,
		FPS:          s.cfg.FPS,
		VideoBitrate: s.cfg.VideoBitrate,
		AudioBitrate: s.cfg.AudioBitrate,
	}, audioIDs, mode.HasVideo())
	if err != nil {
		s.resetLocked()
		return "", fmt.Errorf("start encoder: %w", err)
	}

	ready := s.registry.StartAllAndWaitForReady(ctx, s.cfg.ReadyTimeout)
	for _, fid := range ready.FailedIDs() {
		log.Warn().Err(ready.Failures[fid]).Str("source_id", fid).Msg("continuing without source")
	}
	if mode.HasVideo() && !anyVideoReady(ready, s.registry.Sources()) {
		s.abortStartLocked(ctx)
		return "", fmt.Errorf("%w: %v", ErrNoSourcesReady, ready.FailedIDs())
	}

	// A desktop recording whose screen failed is driven from the cameras or
	// the avatar like a non-desktop one.
	driven := mode.NeedsFrameDriver()
	if mode.Desktop && !slices.Contains(ready.Ready, ScreenSourceID) {
		log.Warn().Msg("screen unavailable, driving frames from remaining sources")
		driven = true
	}
	s.driven.Store(driven)

	s.mu.Lock()
	s.recordingID, s.url, s.ready = id, url, ready
	s.startedAt = time.Now()
	s.state = SessionRecording
	s.mu.Unlock()
	s.recording.Store(true)
	s.cfg.Metrics.setRecording(true)

	if err := s.router.StartAll(ctx); err != nil {
		s.abortStartLocked(ctx)
		return "", err
	}

	if driven {
		d := newFrameDriver(s.cfg.FPS, s.driveFrame)
		s.mu.Lock()
		s.driver = d
		s.mu.Unlock()
		d.Start()
	}

	log.Info().
		Str("url", url).
		Strs("ready", ready.Ready).
		Strs("audio_tracks", audioIDs).
		Msg("recording started")
	return id, nil
}

func anyVideoReady(res ReadyResult, sources []RegisteredSource) bool {
	video := make(map[string]bool, len(sources))
	for _, src := range sources {
		if src.Type.IsVideo() {
			video[src.ID] = true
		}
	}
	for _, id := range res.Ready {
		if video[id] {
			return true
		}
	}
	return false
}

// abortStartLocked undoes a partially started recording. opMu is held.
func (s *RecordingSession) abortStartLocked(ctx context.Context) {
	s.recording.Store(false)
	s.stopVideoSources()
	if err := s.router.StopAll(); err != nil {
		s.log.Debug().Err(err).Msg("stop audio during abort")
	}
	if _, err := s.encoder.FinishRecording(ctx); err != nil {
		s.log.Warn().Err(err).Msg("discard aborted recording")
	}
	s.cfg.Metrics.setRecording(false)
	s.resetLocked()
}

func (s *RecordingSession) resetLocked() {
	s.driven.Store(false)
	s.frames.Reset()
	s.registry.Clear()
	s.router.Clear()
	s.mu.Lock()
	s.state = SessionIdle
	s.screen, s.cameras, s.cameraIDs, s.avatar, s.driver = nil, nil, nil, nil, nil
	s.mode = RecordingInputMode{}
	s.ready = ReadyResult{}
	s.mu.Unlock()
}

func (s *RecordingSession) stopVideoSources() {
	s.mu.Lock()
	driver, screen, cameras, avatar := s.driver, s.screen, s.cameras, s.avatar
	s.mu.Unlock()

	if driver != nil {
		driver.Stop()
	}
	var srcs []CaptureSource
	if screen != nil {
		srcs = append(srcs, screen)
	}
	for _, c := range cameras {
		srcs = append(srcs, c)
	}
	if avatar != nil {
		srcs = append(srcs, avatar)
	}
	for _, src := range srcs {
		if err := src.Stop(); err != nil {
			s.log.Warn().Err(err).Str("source_id", src.ID()).Msg("video source stop failed")
		}
		s.frames.ReleaseLocal(src.ID())
	}
}

// StopRecording stops every source, finalizes the output and returns it.
func (s *RecordingSession) StopRecording(ctx context.Context) (RecordingResult, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != SessionRecording && s.state != SessionPaused {
		s.mu.Unlock()
		return RecordingResult{}, ErrNotRecording
	}
	s.state = SessionStopping
	id := s.recordingID
	s.mu.Unlock()

	s.recording.Store(false)
	s.stopVideoSources()
	if err := s.router.StopAll(); err != nil {
		s.log.Warn().Err(err).Msg("some audio sources failed to stop")
	}
	res, err := s.encoder.FinishRecording(ctx)
	s.cfg.Metrics.setRecording(false)
	s.resetLocked()

	s.mu.Lock()
	s.recordingID, s.url = "", ""
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("recording_id", id).Msg("recording failed to finalize")
		return res, err
	}
	s.log.Info().Str("recording_id", id).Str("url", res.URL).Dur("duration", res.Duration).
		Bool("cancelled", res.Cancelled).Msg("recording stopped")
	return res, nil
}

// Pause pauses the recording; paused time is excluded from the output.
func (s *RecordingSession) Pause() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.State() != SessionRecording {
		return fmt.Errorf("%w: not recording", ErrInvalidState)
	}
	if err := s.encoder.Pause(); err != nil {
		return err
	}
	s.setState(SessionPaused)
	return nil
}

// Resume resumes a paused recording.
func (s *RecordingSession) Resume() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.State() != SessionPaused {
		return fmt.Errorf("%w: not paused", ErrInvalidState)
	}
	if err := s.encoder.Resume(); err != nil {
		return err
	}
	s.setState(SessionRecording)
	return nil
}

// overlayIDs returns the ordered overlay identifiers: cameras, avatar, then
// remote sources. exclude is left out (the primary layer in driver mode).
func (s *RecordingSession) overlayIDs(exclude string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.cameraIDs)+1+len(s.remoteOrder))
	for _, id := range s.cameraIDs {
		if _, failed := s.ready.Failures[id]; id != exclude && !failed {
			ids = append(ids, id)
		}
	}
	if s.avatar != nil && exclude != AvatarSourceID {
		ids = append(ids, AvatarSourceID)
	}
	for _, id := range s.remoteOrder {
		if id != exclude && !s.frames.IsLocal(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *RecordingSession) overlays(ids []string, canvasW, canvasH int) []Overlay {
	s.mu.Lock()
	avatar := s.avatar
	s.mu.Unlock()

	out := make([]Overlay, 0, len(ids))
	for i, id := range ids {
		var f *VideoFrame
		if id == AvatarSourceID && avatar != nil {
			r := s.compositor.Config().Placement.OverlayRect(canvasW, canvasH, 1, 1, i, len(ids))
			f = avatar.Frame(r.W, r.H)
		} else if lf, ok := s.frames.Latest(id); ok {
			f = lf
		}
		if f != nil {
			out = append(out, Overlay{ID: id, Frame: f, Index: i})
		}
	}
	return out
}

// onScreenFrame composes a desktop frame. In preview-only mode it goes to
// the preview handler and never reaches the encoder.
func (s *RecordingSession) onScreenFrame(f *VideoFrame) {
	if s.previewOnly.Load() {
		if cb := s.preview.Load(); cb != nil {
			(*cb)(f)
		}
		return
	}
	if !s.recording.Load() || s.driven.Load() {
		return
	}
	ids := s.overlayIDs("")
	composed, err := s.compositor.Compose(f, s.overlays(ids, f.Width, f.Height), len(ids))
	if err != nil {
		s.log.Debug().Err(err).Msg("dropping screen frame")
		return
	}
	s.encoder.EncodeVideoFrame(composed, f.PTS())
}

// driveFrame builds a canvas when no screen source drives timing: the
// first ready camera (or the avatar) is the primary layer.
func (s *RecordingSession) driveFrame(ts time.Duration) {
	if !s.recording.Load() {
		return
	}
	s.mu.Lock()
	primaryID := s.primaryLayerLocked()
	avatar := s.avatar
	s.mu.Unlock()
	if primaryID == "" {
		return
	}

	cc := s.compositor.Config()
	var primary *VideoFrame
	if primaryID == AvatarSourceID {
		primary = avatar.Frame(cc.Width, cc.Height)
	} else if f, ok := s.frames.Latest(primaryID); ok {
		primary = f
	}
	if primary == nil {
		return
	}

	ids := s.overlayIDs(primaryID)
	canvas, err := s.compositor.Canvas(primary, s.overlays(ids, cc.Width, cc.Height), len(ids))
	if err != nil {
		s.log.Debug().Err(err).Msg("dropping driven frame")
		return
	}
	canvas.Timestamp = int64(ts)
	s.encoder.EncodeVideoFrame(canvas, ts)
}

// primaryLayerLocked returns the first camera that became ready, else the
// avatar, else "". mu is held.
func (s *RecordingSession) primaryLayerLocked() string {
	for _, id := range s.cameraIDs {
		if slices.Contains(s.ready.Ready, id) {
			return id
		}
	}
	if s.avatar != nil && slices.Contains(s.ready.Ready, AvatarSourceID) {
		return AvatarSourceID
	}
	return ""
}

// StartScreenPreview runs the screen source in preview-only mode: frames go
// to the preview handler and are never encoded.
func (s *RecordingSession) StartScreenPreview(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.State() != SessionIdle {
		return fmt.Errorf("%w: preview needs an idle session", ErrInvalidState)
	}
	if s.previewSrc != nil {
		return nil
	}
	granted, err := s.cfg.Permissions.RequestAccess(ctx, DeviceKindScreen)
	if err != nil || !granted {
		return fmt.Errorf("%w: screen", ErrPermissionDenied)
	}
	src := NewScreenSource(s.cfg.Devices)
	src.SetFrameHandler(s.onScreenFrame)
	s.previewOnly.Store(true)
	if err := src.Start(ctx); err != nil {
		s.previewOnly.Store(false)
		return fmt.Errorf("screen preview: %w", err)
	}
	s.previewSrc = src
	return nil
}

// StopScreenPreview stops preview-only mode.
func (s *RecordingSession) StopScreenPreview() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopPreviewLocked()
}

func (s *RecordingSession) stopPreviewLocked() error {
	src := s.previewSrc
	s.previewSrc = nil
	s.previewOnly.Store(false)
	if src == nil {
		return nil
	}
	return src.Stop()
}

// RegisterRemoteSource adds or replaces a remote camera. Its frames join the
// overlays after the local cameras. Remote audio gets a track only in
// recordings started after registration.
func (s *RecordingSession) RegisterRemoteSource(info RemoteSourceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.remote[info.ID]; !ok {
		s.remoteOrder = append(s.remoteOrder, info.ID)
	}
	s.remote[info.ID] = info
	s.frames.AddRemote(info.ID)
	if info.HasAudio {
		if _, ok := s.remoteAudio[info.ID]; !ok {
			s.remoteAudio[info.ID] = NewRemoteAudioSource(info.ID)
		}
	}
	s.log.Info().Str("source_id", info.ID).Str("label", info.Label).Msg("remote source registered")
}

// UnregisterRemoteSource removes a remote camera and its buffered frame,
// unless a local capture owns the same id.
func (s *RecordingSession) UnregisterRemoteSource(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregisterRemoteLocked(id)
}

func (s *RecordingSession) unregisterRemoteLocked(id string) {
	if _, ok := s.remote[id]; !ok {
		return
	}
	delete(s.remote, id)
	for i, v := range s.remoteOrder {
		if v == id {
			s.remoteOrder = append(s.remoteOrder[:i], s.remoteOrder[i+1:]...)
			break
		}
	}
	s.frames.RemoveRemote(id)
	if ra, ok := s.remoteAudio[id]; ok {
		delete(s.remoteAudio, id)
		ra.Stop()
		s.router.RemoveSource(id)
	}
	s.log.Info().Str("source_id", id).Msg("remote source unregistered")
}

// SetRemoteSources replaces the remote source set.
func (s *RecordingSession) SetRemoteSources(infos []RemoteSourceInfo) {
	keep := make(map[string]bool, len(infos))
	for _, info := range infos {
		keep[info.ID] = true
	}
	s.mu.Lock()
	for _, id := range append([]string(nil), s.remoteOrder...) {
		if !keep[id] {
			s.unregisterRemoteLocked(id)
		}
	}
	s.frames.PruneRemote(keep)
	s.mu.Unlock()

	for _, info := range infos {
		s.RegisterRemoteSource(info)
	}
}

// RemoteSources returns the registered remote ids in registration order.
func (s *RecordingSession) RemoteSources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.remoteOrder...)
}

// DeliverRemoteFrame stores the latest frame of a registered remote source.
func (s *RecordingSession) DeliverRemoteFrame(id string, frame *VideoFrame) {
	s.mu.Lock()
	_, ok := s.remote[id]
	s.mu.Unlock()
	if !ok || frame == nil {
		return
	}
	s.frames.Put(id, frame)
}

// DeliverRemoteAudio forwards samples of a registered remote source with
// audio.
func (s *RecordingSession) DeliverRemoteAudio(id string, samples *AudioSamples) {
	s.mu.Lock()
	ra := s.remoteAudio[id]
	s.mu.Unlock()
	if ra != nil {
		ra.Deliver(samples)
	}
}

// StartStreaming starts the live sink. It runs independently of the local
// recording; frames flow to it while a recording is composing.
func (s *RecordingSession) StartStreaming(ctx context.Context, destination, streamKey string) error {
	return s.encoder.StartStreaming(ctx, destination, streamKey)
}

// StopStreaming stops the live sink.
func (s *RecordingSession) StopStreaming() error {
	return s.encoder.StopStreaming()
}

// Status returns a snapshot of the session.
func (s *RecordingSession) Status() SessionStatus {
	s.mu.Lock()
	st := SessionStatus{
		State:          s.state,
		RecordingID:    s.recordingID,
		URL:            s.url,
		StartedAt:      s.startedAt,
		ReadySources:   append([]string(nil), s.ready.Ready...),
		RemoteSources:  append([]string(nil), s.remoteOrder...),
		PreviewRunning: s.previewOnly.Load(),
	}
	if s.state != SessionIdle {
		st.Mode = s.mode.String()
	}
	if len(s.ready.Failures) > 0 {
		st.FailedSources = make(map[string]string, len(s.ready.Failures))
		for id, err := range s.ready.Failures {
			st.FailedSources[id] = err.Error()
		}
	}
	s.mu.Unlock()

	if st.State == SessionRecording || st.State == SessionPaused {
		st.AudioTracks = s.router.SourceIDs()
	}
	st.Duration = s.encoder.Duration()
	st.Streaming = s.encoder.IsStreaming()
	st.Live = s.encoder.LiveStats()
	return st
}
