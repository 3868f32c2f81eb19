package capture

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type fakeAudioSource struct {
	id       string
	startErr error
	stopErr  error

	mu      sync.Mutex
	handler AudioSamplesCallback
	started int
	stopped int
}

func (s *fakeAudioSource) ID() string       { return s.id }
func (s *fakeAudioSource) Type() SourceType { return SourceTypeMicrophone }
func (s *fakeAudioSource) IsActive() bool   { return s.started > s.stopped }

func (s *fakeAudioSource) SetSampleHandler(cb AudioSamplesCallback) {
	s.mu.Lock()
	s.handler = cb
	s.mu.Unlock()
}

func (s *fakeAudioSource) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	return s.startErr
}

func (s *fakeAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	return s.stopErr
}

func (s *fakeAudioSource) emit(samples *AudioSamples) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(samples)
	}
}

type sinkRecorder struct {
	mu  sync.Mutex
	ids []string
	got []*AudioSamples
}

func (r *sinkRecorder) sink(id string, s *AudioSamples) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.got = append(r.got, s)
	r.mu.Unlock()
}

func TestAudioRouter_ConvertsAndTags(t *testing.T) {
	router := NewAudioRouter(zerolog.Nop(), nil)
	var rec sinkRecorder
	router.SetSink(rec.sink)

	mic := &fakeAudioSource{id: "mic"}
	sys := &fakeAudioSource{id: "sys"}
	router.AddSource(mic)
	router.AddSource(sys)

	mic.emit(s16Samples(44100, 1, make([]int16, 441)...))
	sys.emit(s16Samples(48000, 2, 1, 2, 3, 4))

	if !slices.Equal(rec.ids, []string{"mic", "sys"}) {
		t.Fatalf("sink ids = %v", rec.ids)
	}
	for _, s := range rec.got {
		assertTargetFormat(t, s)
	}
}

func TestAudioRouter_ConversionFailureDropped(t *testing.T) {
	router := NewAudioRouter(zerolog.Nop(), nil)
	var rec sinkRecorder
	router.SetSink(rec.sink)
	src := &fakeAudioSource{id: "bad"}
	router.AddSource(src)

	src.emit(&AudioSamples{SampleRate: 0, Channels: 2, Data: make([]byte, 8)})
	src.emit(s16Samples(48000, 2, 1, 2))

	if len(rec.got) != 1 {
		t.Errorf("sink got %d buffers, want 1", len(rec.got))
	}
}

func TestAudioRouter_NoSinkDrops(t *testing.T) {
	router := NewAudioRouter(zerolog.Nop(), nil)
	src := &fakeAudioSource{id: "mic"}
	router.AddSource(src)
	src.emit(s16Samples(48000, 2, 1, 2)) // must not panic
}

func TestAudioRouter_RegistrationOrder(t *testing.T) {
	router := NewAudioRouter(zerolog.Nop(), nil)
	a, b, c := &fakeAudioSource{id: "a"}, &fakeAudioSource{id: "b"}, &fakeAudioSource{id: "c"}
	router.AddSource(a)
	router.AddSource(b)
	router.AddSource(c)
	router.AddSource(&fakeAudioSource{id: "a"}) // replacement keeps position

	if got := router.SourceIDs(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("SourceIDs() = %v", got)
	}
	if a.handler != nil {
		t.Error("replaced source still has a handler")
	}

	router.RemoveSource("b")
	if got := router.SourceIDs(); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("after remove = %v", got)
	}
	if b.handler != nil {
		t.Error("removed source still has a handler")
	}
	if _, ok := router.Source("b"); ok {
		t.Error("Source(b) found after removal")
	}

	router.Clear()
	if len(router.SourceIDs()) != 0 {
		t.Error("Clear left sources")
	}
}

func TestAudioRouter_StartAllStopsAtFirstFailure(t *testing.T) {
	router := NewAudioRouter(zerolog.Nop(), nil)
	boom := errors.New("device busy")
	a := &fakeAudioSource{id: "a"}
	b := &fakeAudioSource{id: "b", startErr: boom}
	c := &fakeAudioSource{id: "c"}
	router.AddSource(a)
	router.AddSource(b)
	router.AddSource(c)

	err := router.StartAll(context.Background())
	if !errors.Is(err, ErrAudioStartFailed) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want ErrAudioStartFailed wrapping cause", err)
	}
	if a.started != 1 || b.started != 1 || c.started != 0 {
		t.Errorf("started = %d,%d,%d, want 1,1,0", a.started, b.started, c.started)
	}
}

func TestAudioRouter_StopAllBestEffort(t *testing.T) {
	router := NewAudioRouter(zerolog.Nop(), nil)
	e1, e2 := errors.New("one"), errors.New("two")
	a := &fakeAudioSource{id: "a", stopErr: e1}
	b := &fakeAudioSource{id: "b"}
	c := &fakeAudioSource{id: "c", stopErr: e2}
	router.AddSource(a)
	router.AddSource(b)
	router.AddSource(c)

	err := router.StopAll()
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Errorf("err = %v, want both failures joined", err)
	}
	if a.stopped != 1 || b.stopped != 1 || c.stopped != 1 {
		t.Error("not every source was stopped")
	}
}

func TestAudioRouter_RemoteAudioSource(t *testing.T) {
	router := NewAudioRouter(zerolog.Nop(), nil)
	var rec sinkRecorder
	router.SetSink(rec.sink)
	ra := NewRemoteAudioSource("remote-1")
	router.AddSource(ra)

	ra.Deliver(s16Samples(48000, 2, 1, 2))
	if len(rec.got) != 0 {
		t.Fatal("samples delivered before Start reached the sink")
	}
	if err := router.StartAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	ra.Deliver(s16Samples(48000, 2, 1, 2))
	if !slices.Equal(rec.ids, []string{"remote-1"}) {
		t.Errorf("sink ids = %v", rec.ids)
	}
}
