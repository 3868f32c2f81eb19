package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FLVContainerConfig configures FLV recording output.
type FLVContainerConfig struct {
	Logger zerolog.Logger

	VideoEncoders VideoEncoderFactory // default: NewVideoEncoder
	AudioEncoders AudioEncoderFactory // default: NewAudioEncoder
	VideoProfile  H264Profile

	VideoQueueDepth int // frames buffered per video track (default: 8)
	AudioQueueDepth int // sample buffers per audio track (default: 64)
}

// DefaultFLVContainerConfig returns a default configuration.
func DefaultFLVContainerConfig() FLVContainerConfig {
	return FLVContainerConfig{
		VideoEncoders:   NewVideoEncoder,
		AudioEncoders:   NewAudioEncoder,
		VideoProfile:    H264ProfileMain,
		VideoQueueDepth: 8,
		AudioQueueDepth: 64,
	}
}

// NewFLVContainerFactory returns a ContainerFactory producing FLVContainers.
func NewFLVContainerFactory(cfg FLVContainerConfig) ContainerFactory {
	return func(opts ContainerOptions) (ContainerWriter, error) {
		return NewFLVContainer(opts, cfg)
	}
}

// FLVContainer writes H.264 video and the first AAC audio track to an FLV
// file. Further audio tracks go to ADTS sidecars named <base>.<track>.aac.
// Each track encodes on its own goroutine fed by a bounded queue.
type FLVContainer struct {
	opts ContainerOptions
	cfg  FLVContainerConfig

	mu        sync.Mutex
	started   bool
	video     *flvVideoTrack
	audio     []*flvAudioTrack
	base      time.Duration
	wg        sync.WaitGroup
	cancelled atomic.Bool

	err    atomic.Pointer[error]
	closed bool

	wmu        sync.Mutex // guards the fields below
	file       *os.File
	w          *bufio.Writer
	metaOffset int64
	lastTS     uint32
	width      int
	height     int
	paths      []string
}

// NewFLVContainer creates a container for opts.Path. Nothing is written
// until StartSession.
func NewFLVContainer(opts ContainerOptions, cfg FLVContainerConfig) (*FLVContainer, error) {
	if opts.Path == "" {
		return nil, errors.New("flv container: empty path")
	}
	d := DefaultFLVContainerConfig()
	if cfg.VideoEncoders == nil {
		cfg.VideoEncoders = d.VideoEncoders
	}
	if cfg.AudioEncoders == nil {
		cfg.AudioEncoders = d.AudioEncoders
	}
	if cfg.VideoQueueDepth <= 0 {
		cfg.VideoQueueDepth = d.VideoQueueDepth
	}
	if cfg.AudioQueueDepth <= 0 {
		cfg.AudioQueueDepth = d.AudioQueueDepth
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	return &FLVContainer{opts: opts, cfg: cfg}, nil
}

// AddVideoTrack implements ContainerWriter.
func (c *FLVContainer) AddVideoTrack() (VideoWriterTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil, fmt.Errorf("%w: track added after session start", ErrInvalidState)
	}
	if c.video != nil {
		return nil, fmt.Errorf("%w: video track already added", ErrInvalidState)
	}
	c.video = &flvVideoTrack{c: c, queue: make(chan videoItem, c.cfg.VideoQueueDepth)}
	return c.video, nil
}

// AddAudioTrack implements ContainerWriter.
func (c *FLVContainer) AddAudioTrack(id string) (AudioWriterTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil, fmt.Errorf("%w: track added after session start", ErrInvalidState)
	}
	for _, t := range c.audio {
		if t.id == id {
			return nil, fmt.Errorf("%w: audio track %q already added", ErrInvalidState, id)
		}
	}
	t := &flvAudioTrack{c: c, id: id, primary: len(c.audio) == 0, queue: make(chan audioItem, c.cfg.AudioQueueDepth)}
	c.audio = append(c.audio, t)
	return t, nil
}

// Paths returns the files this container writes: the .flv first, then any
// sidecars.
func (c *FLVContainer) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := []string{c.opts.Path}
	for _, t := range c.audio[min(1, len(c.audio)):] {
		paths = append(paths, c.sidecarPath(t.id))
	}
	return paths
}

func (c *FLVContainer) sidecarPath(id string) string {
	base := strings.TrimSuffix(c.opts.Path, filepath.Ext(c.opts.Path))
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r == ' ' {
			return '_'
		}
		return r
	}, id)
	return base + "." + safe + ".aac"
}

// StartSession implements ContainerWriter.
func (c *FLVContainer) StartSession(at time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("%w: session already started", ErrInvalidState)
	}

	if err := os.MkdirAll(filepath.Dir(c.opts.Path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(c.opts.Path)
	if err != nil {
		return fmt.Errorf("create %s: %w", c.opts.Path, err)
	}
	c.file = f
	c.w = bufio.NewWriterSize(f, 256<<10)
	c.paths = []string{c.opts.Path}

	md := StreamMetadata{
		FrameRate:       float64(c.opts.FPS),
		VideoDataRate:   float64(c.opts.VideoBitrate) / 1000,
		AudioDataRate:   float64(c.opts.AudioBitrate) / 1000,
		AudioSampleRate: TargetSampleRate,
		AudioSampleSize: TargetBitDepth,
		Stereo:          true,
		Encoder:         "arkavo-capture",
	}
	if c.opts.Title != "" {
		md.Custom = append(md.Custom, MetadataField{Name: "title", Value: c.opts.Title})
	}
	c.w.Write(CreateHeader())
	c.w.Write(CreateTag(TagTypeScriptData, CreateMetadata(md), 0))
	c.metaOffset = FLVHeaderSize + FLVTagHeaderSize

	for i, t := range c.audio {
		if i == 0 {
			continue
		}
		sf, err := os.Create(c.sidecarPath(t.id))
		if err != nil {
			c.closeFilesLocked()
			return fmt.Errorf("create sidecar for %s: %w", t.id, err)
		}
		t.file = sf
		t.w = bufio.NewWriter(sf)
		c.paths = append(c.paths, sf.Name())
	}

	c.base = at
	c.started = true
	if c.video != nil {
		c.wg.Add(1)
		go c.video.run()
	}
	for _, t := range c.audio {
		c.wg.Add(1)
		go t.run()
	}
	return nil
}

// Err implements ContainerWriter.
func (c *FLVContainer) Err() error {
	if p := c.err.Load(); p != nil {
		return *p
	}
	return nil
}

func (c *FLVContainer) fail(err error) {
	if c.err.CompareAndSwap(nil, &err) {
		c.cfg.Logger.Error().Err(err).Str("path", c.opts.Path).Msg("flv container failed")
	}
}

func (c *FLVContainer) failed() bool {
	return c.err.Load() != nil || c.cancelled.Load()
}

func (c *FLVContainer) ms(pts time.Duration) uint32 {
	d := pts - c.base
	if d < 0 {
		return 0
	}
	return uint32(d / time.Millisecond)
}

func (c *FLVContainer) writeTag(t TagType, payload []byte, ts uint32) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(CreateTag(t, payload, ts)); err != nil {
		c.fail(fmt.Errorf("write %s tag: %w", t, err))
		return
	}
	if ts > c.lastTS {
		c.lastTS = ts
	}
}

func (c *FLVContainer) setDimensions(w, h int) {
	c.wmu.Lock()
	c.width, c.height = w, h
	c.wmu.Unlock()
}

func (c *FLVContainer) finishTracks() {
	if c.video != nil {
		c.video.MarkFinished()
	}
	for _, t := range c.audio {
		t.MarkFinished()
	}
}

// Finish implements ContainerWriter.
func (c *FLVContainer) Finish(ctx context.Context) error {
	c.mu.Lock()
	if !c.started || c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: session not started", ErrInvalidState)
	}
	c.closed = true
	c.mu.Unlock()

	c.finishTracks()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.fail(fmt.Errorf("finish: %w", ctx.Err()))
		return c.Err()
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.w.Flush(); err != nil {
		c.fail(fmt.Errorf("flush: %w", err))
	}
	for _, t := range c.audio {
		if t.w != nil {
			if err := t.w.Flush(); err != nil {
				c.fail(fmt.Errorf("flush sidecar %s: %w", t.id, err))
			}
		}
	}
	if c.Err() == nil {
		c.patchMetadataLocked()
	}
	c.closeFilesLocked()
	return c.Err()
}

// patchMetadataLocked rewrites the numeric onMetaData fields that are only
// known once the recording is complete.
func (c *FLVContainer) patchMetadataLocked() {
	info, err := c.file.Stat()
	if err != nil {
		return
	}
	head := make([]byte, 512)
	n, _ := c.file.ReadAt(head, c.metaOffset)
	head = head[:n]

	patch := map[string]float64{
		"duration": float64(c.lastTS) / 1000,
		"filesize": float64(info.Size()),
	}
	if c.width > 0 {
		patch["width"] = float64(c.width)
		patch["height"] = float64(c.height)
	}
	for key, v := range patch {
		off := metadataNumberOffset(head, key)
		if off < 0 {
			continue
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
		if _, err := c.file.WriteAt(b[:], c.metaOffset+int64(off)); err != nil {
			c.cfg.Logger.Warn().Err(err).Str("key", key).Msg("patch metadata")
		}
	}
}

// metadataNumberOffset returns the offset of the float64 value of a numeric
// onMetaData property, or -1.
func metadataNumberOffset(meta []byte, key string) int {
	needle := make([]byte, 0, 3+len(key))
	needle = binary.BigEndian.AppendUint16(needle, uint16(len(key)))
	needle = append(needle, key...)
	needle = append(needle, amf0Number)
	i := bytes.Index(meta, needle)
	if i < 0 || i+len(needle)+8 > len(meta) {
		return -1
	}
	return i + len(needle)
}

func (c *FLVContainer) closeFilesLocked() {
	if c.file != nil {
		c.file.Close()
	}
	for _, t := range c.audio {
		if t.file != nil {
			t.file.Close()
		}
	}
}

// Cancel implements ContainerWriter.
func (c *FLVContainer) Cancel() error {
	c.mu.Lock()
	started, closed := c.started, c.closed
	c.closed = true
	c.mu.Unlock()

	c.cancelled.Store(true)
	c.finishTracks()
	if !started || closed {
		return nil
	}
	c.wg.Wait()

	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.closeFilesLocked()
	var errs []error
	for _, p := range c.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type videoItem struct {
	frame *VideoFrame
	pts   time.Duration
}

type flvVideoTrack struct {
	c     *FLVContainer
	queue chan videoItem

	mu     sync.Mutex
	closed bool
}

func (t *flvVideoTrack) ReadyForMoreData() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && !t.c.failed() && len(t.queue) < cap(t.queue)
}

func (t *flvVideoTrack) Append(frame *VideoFrame, pts time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("%w: video track finished", ErrInvalidState)
	}
	select {
	case t.queue <- videoItem{frame: frame.Clone(), pts: pts}:
		return nil
	default:
		return fmt.Errorf("%w: video queue full", ErrBufferTooSmall)
	}
}

func (t *flvVideoTrack) MarkFinished() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
}

func (t *flvVideoTrack) run() {
	c := t.c
	defer c.wg.Done()

	var enc VideoEncoder
	defer func() {
		if enc != nil {
			enc.Close()
		}
	}()
	headerSent := false

	for item := range t.queue {
		if c.failed() {
			continue
		}
		frame, err := ToI420(item.frame)
		if err != nil {
			c.fail(fmt.Errorf("video frame: %w", err))
			continue
		}
		if enc == nil {
			cfg := DefaultVideoEncoderConfig(VideoCodecH264, frame.Width, frame.Height)
			cfg.FPS = c.opts.FPS
			cfg.H264Profile = c.cfg.VideoProfile
			if c.opts.VideoBitrate > 0 {
				cfg.BitrateBps = c.opts.VideoBitrate
			}
			if enc, err = c.cfg.VideoEncoders(cfg); err != nil {
				enc = nil
				c.fail(fmt.Errorf("create video encoder: %w", err))
				continue
			}
			c.setDimensions(frame.Width, frame.Height)
		}

		out, err := enc.Encode(frame)
		if err != nil {
			c.fail(fmt.Errorf("encode video: %w", err))
			continue
		}
		if out == nil || len(out.Data) == 0 {
			continue
		}

		ts := c.ms(item.pts)
		key := out.IsKeyframe() || IsKeyframeAnnexB(out.Data)
		if !headerSent {
			if !key {
				enc.RequestKeyframe()
				continue
			}
			sps, pps := enc.ParameterSets()
			if sps == nil || pps == nil {
				sps, pps = ExtractParameterSets(out.Data)
			}
			rec, err := AVCDecoderConfigurationRecord(sps, pps)
			if err != nil {
				c.cfg.Logger.Warn().Err(err).Msg("video sequence header unavailable")
				enc.RequestKeyframe()
				continue
			}
			c.writeTag(TagTypeVideo, VideoTagPayload(true, AVCPacketSequenceHeader, rec), ts)
			headerSent = true
		}
		c.writeTag(TagTypeVideo, VideoTagPayload(key, AVCPacketNALU, AnnexBToAVCC(out.Data)), ts)
	}
}

type audioItem struct {
	samples *AudioSamples
	pts     time.Duration
}

type flvAudioTrack struct {
	c       *FLVContainer
	id      string
	primary bool // muxed into the .flv; others write ADTS sidecars
	queue   chan audioItem

	file *os.File
	w    *bufio.Writer

	mu     sync.Mutex
	closed bool
}

func (t *flvAudioTrack) ReadyForMoreData() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && !t.c.failed() && len(t.queue) < cap(t.queue)
}

func (t *flvAudioTrack) Append(samples *AudioSamples, pts time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("%w: audio track %s finished", ErrInvalidState, t.id)
	}
	select {
	case t.queue <- audioItem{samples: samples.Clone(), pts: pts}:
		return nil
	default:
		return fmt.Errorf("%w: audio queue full", ErrBufferTooSmall)
	}
}

func (t *flvAudioTrack) MarkFinished() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
}

func (t *flvAudioTrack) run() {
	c := t.c
	defer c.wg.Done()

	var (
		enc      AudioEncoder
		asc      AudioSpecificConfig
		haveASC  bool
		firstPts time.Duration
		started  bool
	)
	defer func() {
		if enc != nil {
			enc.Close()
		}
	}()

	for item := range t.queue {
		if c.failed() {
			continue
		}
		if enc == nil {
			cfg := DefaultAudioEncoderConfig(AudioCodecAAC)
			if c.opts.AudioBitrate > 0 {
				cfg.BitrateBps = c.opts.AudioBitrate
			}
			var err error
			if enc, err = c.cfg.AudioEncoders(cfg); err != nil {
				enc = nil
				c.fail(fmt.Errorf("create audio encoder for %s: %w", t.id, err))
				continue
			}
		}
		if !started {
			firstPts, started = item.pts, true
		}

		au, err := enc.Encode(item.samples)
		for ; err == nil && au != nil; au, err = enc.Encode(nil) {
			ts := c.ms(firstPts + time.Duration(au.Timestamp)*time.Second/TargetSampleRate)
			if !haveASC {
				b := BuildAudioSpecificConfig(enc.MagicCookie(), enc.StreamDescription())
				asc, _ = ParseAudioSpecificConfig(b)
				haveASC = true
				if t.primary {
					c.writeTag(TagTypeAudio, AudioTagPayload(AACPacketSequenceHeader, b), ts)
				}
			}
			if t.primary {
				c.writeTag(TagTypeAudio, AudioTagPayload(AACPacketRaw, au.Data), ts)
				continue
			}
			c.wmu.Lock()
			t.w.Write(ADTSHeader(asc, len(au.Data)))
			_, werr := t.w.Write(au.Data)
			c.wmu.Unlock()
			if werr != nil {
				c.fail(fmt.Errorf("write sidecar %s: %w", t.id, werr))
				break
			}
		}
		if err != nil {
			c.fail(fmt.Errorf("encode audio %s: %w", t.id, err))
		}
	}
}
