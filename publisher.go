package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PublisherStats is a snapshot of a publisher's counters.
type PublisherStats struct {
	Connected   bool
	Destination string
	ConnectedAt time.Time
	HeadersSent uint64 // sequence headers and metadata
	FramesSent  uint64
	BytesSent   uint64
	Failures    uint64
}

// Publisher delivers FLV tag bodies to a live destination. Payloads are the
// output of VideoTagPayload, AudioTagPayload and CreateMetadata; timestamps
// are milliseconds on the stream's own clock.
type Publisher interface {
	Connect(ctx context.Context, destination, streamKey string) error

	// SendMetadata sends an onMetaData script payload as built by
	// CreateMetadata.
	SendMetadata(meta []byte) error
	SendSequenceHeader(t TagType, payload []byte, timestampMs uint32) error
	SendFrame(t TagType, payload []byte, timestampMs uint32) error

	Disconnect() error
	Stats() PublisherStats
}

// ErrPublisherNotConnected is returned by Send* before Connect succeeds or
// after Disconnect.
var ErrPublisherNotConnected = errors.New("publisher not connected")

// NewPublisher picks a Publisher for destination: rtmp:// and rtmps:// URLs
// publish over RTMP, file:// URLs and plain paths write an FLV file into
// that directory.
func NewPublisher(destination string, logger zerolog.Logger) (Publisher, error) {
	switch {
	case strings.HasPrefix(destination, "rtmp://"), strings.HasPrefix(destination, "rtmps://"):
		return NewRTMPPublisher(logger), nil
	case strings.HasPrefix(destination, "file://"), !strings.Contains(destination, "://"):
		return NewFLVFilePublisher(logger), nil
	default:
		return nil, fmt.Errorf("%w: destination %q", ErrNotSupported, destination)
	}
}

type publisherCounters struct {
	headers  atomic.Uint64
	frames   atomic.Uint64
	bytes    atomic.Uint64
	failures atomic.Uint64
}

func (c *publisherCounters) count(header bool, n int, err error) error {
	if err != nil {
		c.failures.Add(1)
		return err
	}
	if header {
		c.headers.Add(1)
	} else {
		c.frames.Add(1)
	}
	c.bytes.Add(uint64(n))
	return nil
}

func (c *publisherCounters) fill(s *PublisherStats) {
	s.HeadersSent = c.headers.Load()
	s.FramesSent = c.frames.Load()
	s.BytesSent = c.bytes.Load()
	s.Failures = c.failures.Load()
}

// FLVFilePublisher "publishes" by writing the live tag stream to
// <dir>/<streamKey>.flv. It is useful for inspecting exactly what a live
// destination would receive.
type FLVFilePublisher struct {
	logger zerolog.Logger
	publisherCounters

	mu          sync.Mutex
	file        *os.File
	w           *bufio.Writer
	path        string
	connectedAt time.Time
}

// NewFLVFilePublisher creates a disconnected file publisher.
func NewFLVFilePublisher(logger zerolog.Logger) *FLVFilePublisher {
	return &FLVFilePublisher{logger: logger}
}

// Connect creates the output file and writes the FLV header.
func (p *FLVFilePublisher) Connect(ctx context.Context, destination, streamKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if streamKey == "" {
		return errors.New("flv publisher: empty stream key")
	}
	dir := strings.TrimPrefix(destination, "file://")
	if dir == "" {
		dir = "."
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		return fmt.Errorf("%w: already connected", ErrInvalidState)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("flv publisher: %w", err)
	}
	path := filepath.Join(dir, streamKey+".flv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("flv publisher: %w", err)
	}
	p.file, p.w, p.path = f, bufio.NewWriter(f), path
	p.connectedAt = time.Now()
	if _, err := p.w.Write(CreateHeader()); err != nil {
		p.closeLocked()
		return fmt.Errorf("flv publisher: %w", err)
	}
	p.logger.Info().Str("destination", path).Msg("file publisher connected")
	return nil
}

func (p *FLVFilePublisher) write(header bool, t TagType, payload []byte, ts uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == nil {
		return ErrPublisherNotConnected
	}
	n, err := p.w.Write(CreateTag(t, payload, ts))
	return p.count(header, n, err)
}

func (p *FLVFilePublisher) SendMetadata(meta []byte) error {
	return p.write(true, TagTypeScriptData, meta, 0)
}

func (p *FLVFilePublisher) SendSequenceHeader(t TagType, payload []byte, timestampMs uint32) error {
	return p.write(true, t, payload, timestampMs)
}

func (p *FLVFilePublisher) SendFrame(t TagType, payload []byte, timestampMs uint32) error {
	return p.write(false, t, payload, timestampMs)
}

// Disconnect flushes and closes the file.
func (p *FLVFilePublisher) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	return p.closeLocked()
}

func (p *FLVFilePublisher) closeLocked() error {
	err := p.w.Flush()
	if cerr := p.file.Close(); err == nil {
		err = cerr
	}
	p.file, p.w = nil, nil
	return err
}

// Path returns the file written by the current or last connection.
func (p *FLVFilePublisher) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

func (p *FLVFilePublisher) Stats() PublisherStats {
	p.mu.Lock()
	s := PublisherStats{Connected: p.file != nil, Destination: p.path, ConnectedAt: p.connectedAt}
	p.mu.Unlock()
	p.fill(&s)
	return s
}

// splitRTMPURL returns the dial address, application name and tcUrl for an
// rtmp:// destination.
func splitRTMPURL(destination string) (addr, app, tcURL string, err error) {
	u, err := url.Parse(destination)
	if err != nil {
		return "", "", "", fmt.Errorf("parse destination: %w", err)
	}
	if u.Host == "" {
		return "", "", "", fmt.Errorf("destination %q has no host", destination)
	}
	addr = u.Host
	if u.Port() == "" {
		addr += ":1935"
	}
	app = strings.Trim(u.Path, "/")
	tcURL = u.Scheme + "://" + u.Host + "/" + app
	return addr, app, tcURL, nil
}
