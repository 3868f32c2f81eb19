package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// fakeContainer records everything a RecordingEncoder does to it.
type fakeContainer struct {
	opts      ContainerOptions
	finishErr error

	mu        sync.Mutex
	started   bool
	startAt   time.Duration
	startErr  error
	finished  bool
	cancelled bool
	video     *fakeVideoTrack
	audio     map[string]*fakeAudioTrack
	order     []string
}

func newFakeContainer(opts ContainerOptions) *fakeContainer {
	return &fakeContainer{opts: opts, audio: make(map[string]*fakeAudioTrack)}
}

// factory returns a ContainerFactory that always hands out c.
func (c *fakeContainer) factory() ContainerFactory {
	return func(opts ContainerOptions) (ContainerWriter, error) {
		c.mu.Lock()
		c.opts = opts
		c.mu.Unlock()
		return c, nil
	}
}

func (c *fakeContainer) AddVideoTrack() (VideoWriterTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil, ErrInvalidState
	}
	c.video = &fakeVideoTrack{ready: true}
	return c.video, nil
}

func (c *fakeContainer) AddAudioTrack(id string) (AudioWriterTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil, ErrInvalidState
	}
	t := &fakeAudioTrack{ready: true}
	c.audio[id] = t
	c.order = append(c.order, id)
	return t, nil
}

func (c *fakeContainer) StartSession(at time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	if c.started {
		return ErrInvalidState
	}
	c.started, c.startAt = true, at
	return nil
}

func (c *fakeContainer) Finish(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = true
	return c.finishErr
}

func (c *fakeContainer) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	return nil
}

func (c *fakeContainer) Err() error { return nil }

func (c *fakeContainer) state() (started bool, at time.Duration, finished, cancelled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started, c.startAt, c.finished, c.cancelled
}

type fakeVideoTrack struct {
	mu       sync.Mutex
	ready    bool
	pts      []time.Duration
	finished bool
}

func (t *fakeVideoTrack) ReadyForMoreData() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready && !t.finished
}

func (t *fakeVideoTrack) Append(_ *VideoFrame, pts time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pts = append(t.pts, pts)
	return nil
}

func (t *fakeVideoTrack) MarkFinished() {
	t.mu.Lock()
	t.finished = true
	t.mu.Unlock()
}

func (t *fakeVideoTrack) appended() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.pts...)
}

type fakeAudioTrack struct {
	mu       sync.Mutex
	ready    bool
	pts      []time.Duration
	finished bool
}

func (t *fakeAudioTrack) ReadyForMoreData() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready && !t.finished
}

func (t *fakeAudioTrack) Append(_ *AudioSamples, pts time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pts = append(t.pts, pts)
	return nil
}

func (t *fakeAudioTrack) MarkFinished() {
	t.mu.Lock()
	t.finished = true
	t.mu.Unlock()
}

func (t *fakeAudioTrack) appended() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.pts...)
}

// fakeVideoEncoder emits an IDR access unit with in-band parameter sets for
// the first frame and whenever a keyframe was requested, P slices otherwise.
type fakeVideoEncoder struct {
	cfg       VideoEncoderConfig
	noParams  bool // ParameterSets returns nil
	failAfter int  // Encode fails from this frame on (0 = never)

	mu       sync.Mutex
	frames   int
	forceKey bool
	closed   bool
}

func newFakeVideoEncoders() (VideoEncoderFactory, *[]*fakeVideoEncoder) {
	var (
		mu   sync.Mutex
		made []*fakeVideoEncoder
	)
	return func(cfg VideoEncoderConfig) (VideoEncoder, error) {
		mu.Lock()
		defer mu.Unlock()
		e := &fakeVideoEncoder{cfg: cfg}
		made = append(made, e)
		return e, nil
	}, &made
}

func (e *fakeVideoEncoder) Encode(frame *VideoFrame) (*EncodedFrame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if frame == nil {
		return nil, errors.New("nil frame")
	}
	e.frames++
	if e.failAfter > 0 && e.frames >= e.failAfter {
		return nil, errors.New("encoder exploded")
	}
	ts := uint32(frame.PTS() * 90000 / time.Second)
	if e.frames == 1 || e.forceKey {
		e.forceKey = false
		return &EncodedFrame{Data: annexB(testSPS, testPPS, testIDR), FrameType: FrameTypeKey, Timestamp: ts}, nil
	}
	return &EncodedFrame{Data: annexB(testP), FrameType: FrameTypeDelta, Timestamp: ts}, nil
}

func (e *fakeVideoEncoder) RequestKeyframe() {
	e.mu.Lock()
	e.forceKey = true
	e.mu.Unlock()
}

func (e *fakeVideoEncoder) ParameterSets() (sps, pps []byte) {
	if e.noParams {
		return nil, nil
	}
	return testSPS, testPPS
}

func (e *fakeVideoEncoder) Provider() Provider         { return ProviderAuto }
func (e *fakeVideoEncoder) Config() VideoEncoderConfig { return e.cfg }
func (e *fakeVideoEncoder) Stats() EncoderStats        { return EncoderStats{} }

func (e *fakeVideoEncoder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// fakeAudioEncoder produces one access unit per 1024 buffered sample
// frames, like a real AAC encoder.
type fakeAudioEncoder struct {
	cfg    AudioEncoderConfig
	cookie []byte

	mu       sync.Mutex
	buffered int
	emitted  uint32
	closed   bool
}

var fakeAACFrame = []byte{0x21, 0x10, 0x04, 0x60, 0x8C, 0x1C}

func newFakeAudioEncoders() AudioEncoderFactory {
	return func(cfg AudioEncoderConfig) (AudioEncoder, error) {
		return &fakeAudioEncoder{cfg: cfg, cookie: []byte{0x11, 0x90}}, nil
	}
}

func (e *fakeAudioEncoder) Encode(samples *AudioSamples) (*EncodedAudio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if samples != nil {
		e.buffered += samples.SampleCount
	}
	if e.buffered < 1024 {
		return nil, nil
	}
	e.buffered -= 1024
	au := &EncodedAudio{Data: fakeAACFrame, Timestamp: e.emitted * 1024, Duration: 1024}
	e.emitted++
	return au, nil
}

func (e *fakeAudioEncoder) MagicCookie() []byte { return e.cookie }

func (e *fakeAudioEncoder) StreamDescription() *AudioStreamDescription {
	return &AudioStreamDescription{SampleRate: TargetSampleRate, Channels: TargetChannels}
}

func (e *fakeAudioEncoder) Provider() Provider         { return ProviderAuto }
func (e *fakeAudioEncoder) Config() AudioEncoderConfig { return e.cfg }
func (e *fakeAudioEncoder) Stats() AudioEncoderStats   { return AudioEncoderStats{} }

func (e *fakeAudioEncoder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

type sentTag struct {
	header  bool
	typ     TagType
	payload []byte
	ts      uint32
}

// fakePublisher captures every tag a LiveStreamer sends.
type fakePublisher struct {
	connectErr error
	sendErr    error

	mu          sync.Mutex
	connected   bool
	destination string
	streamKey   string
	metadata    [][]byte
	tags        []sentTag
	connects    int
}

func (p *fakePublisher) Connect(_ context.Context, destination, streamKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connected, p.destination, p.streamKey = true, destination, streamKey
	p.connects++
	return nil
}

func (p *fakePublisher) SendMetadata(meta []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metadata = append(p.metadata, append([]byte(nil), meta...))
	return nil
}

func (p *fakePublisher) send(header bool, t TagType, payload []byte, ts uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrPublisherNotConnected
	}
	if p.sendErr != nil {
		return p.sendErr
	}
	p.tags = append(p.tags, sentTag{header: header, typ: t, payload: append([]byte(nil), payload...), ts: ts})
	return nil
}

func (p *fakePublisher) SendSequenceHeader(t TagType, payload []byte, ts uint32) error {
	return p.send(true, t, payload, ts)
}

func (p *fakePublisher) SendFrame(t TagType, payload []byte, ts uint32) error {
	return p.send(false, t, payload, ts)
}

func (p *fakePublisher) Disconnect() error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) Stats() PublisherStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PublisherStats{Connected: p.connected, Destination: p.destination, FramesSent: uint64(len(p.tags))}
}

func (p *fakePublisher) sent() []sentTag {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentTag(nil), p.tags...)
}

func (p *fakePublisher) newPublisher(string, zerolog.Logger) (Publisher, error) {
	return p, nil
}

// waitFor polls cond until it holds or a second passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func testFrame(ts time.Duration) *VideoFrame {
	f := NewI420Frame(64, 48)
	f.Fill(16, 128, 128)
	f.Timestamp = int64(ts)
	return f
}

func testAudio(ts time.Duration, frames int) *AudioSamples {
	return &AudioSamples{
		Data:        make([]byte, frames*4),
		SampleRate:  TargetSampleRate,
		Channels:    TargetChannels,
		SampleCount: frames,
		Format:      AudioFormatS16,
		Timestamp:   int64(ts),
	}
}
