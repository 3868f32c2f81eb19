package capture

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

// Chunk stream ids used for published messages.
const (
	rtmpAudioChunkStream = 4
	rtmpDataChunkStream  = 5
	rtmpVideoChunkStream = 6

	rtmpChunkSize = 4096
)

// RTMPPublisher publishes a live stream to an RTMP ingest server.
type RTMPPublisher struct {
	logger zerolog.Logger
	publisherCounters

	mu          sync.Mutex
	client      *rtmp.ClientConn
	stream      *rtmp.Stream
	destination string
	connectedAt time.Time
}

// NewRTMPPublisher creates a disconnected RTMP publisher.
func NewRTMPPublisher(logger zerolog.Logger) *RTMPPublisher {
	return &RTMPPublisher{logger: logger}
}

// RTMPLogger routes go-rtmp's logrus output into logger at warn level and
// above. Use it for client and server connections alike.
func RTMPLogger(logger zerolog.Logger) logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(logger.With().Str("component", "rtmp").Logger())
	l.SetLevel(logrus.WarnLevel)
	return l
}

// Connect dials destination (rtmp://host[:port]/app), then connects,
// creates a stream and publishes streamKey in live mode.
func (p *RTMPPublisher) Connect(ctx context.Context, destination, streamKey string) error {
	addr, app, tcURL, err := splitRTMPURL(destination)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return fmt.Errorf("%w: already connected", ErrInvalidState)
	}

	type dialed struct {
		client *rtmp.ClientConn
		stream *rtmp.Stream
		err    error
	}
	done := make(chan dialed, 1)
	go func() {
		client, stream, err := p.dial(addr, app, tcURL, streamKey)
		done <- dialed{client, stream, err}
	}()

	select {
	case d := <-done:
		if d.err != nil {
			return fmt.Errorf("rtmp connect %s: %w", destination, d.err)
		}
		p.client, p.stream = d.client, d.stream
	case <-ctx.Done():
		go func() {
			if d := <-done; d.client != nil {
				d.client.Close()
			}
		}()
		return fmt.Errorf("rtmp connect %s: %w", destination, ctx.Err())
	}

	p.destination = destination
	p.connectedAt = time.Now()
	p.logger.Info().Str("destination", destination).Str("app", app).Msg("rtmp publisher connected")
	return nil
}

func (p *RTMPPublisher) dial(addr, app, tcURL, key string) (*rtmp.ClientConn, *rtmp.Stream, error) {
	client, err := rtmp.Dial("rtmp", addr, &rtmp.ConnConfig{Logger: RTMPLogger(p.logger)})
	if err != nil {
		return nil, nil, err
	}
	err = client.Connect(&rtmpmsg.NetConnectionConnect{
		Command: rtmpmsg.NetConnectionConnectCommand{
			App:      app,
			Type:     "nonprivate",
			FlashVer: "FMLE/3.0 (compatible; arkavo-capture)",
			TCURL:    tcURL,
		},
	})
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	stream, err := client.CreateStream(nil, rtmpChunkSize)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("create stream: %w", err)
	}
	if err := stream.Publish(&rtmpmsg.NetStreamPublish{PublishingName: key, PublishingType: "live"}); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("publish: %w", err)
	}
	return client, stream, nil
}

func (p *RTMPPublisher) write(header bool, csid int, ts uint32, n int, msg rtmpmsg.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return ErrPublisherNotConnected
	}
	return p.count(header, n, p.stream.Write(csid, ts, msg))
}

// SendMetadata sends meta as an @setDataFrame data message.
func (p *RTMPPublisher) SendMetadata(meta []byte) error {
	body := metadataBody(meta)
	return p.write(true, rtmpDataChunkStream, 0, len(body), &rtmpmsg.DataMessage{
		Name:     "@setDataFrame",
		Encoding: rtmpmsg.EncodingTypeAMF0,
		Body:     bytes.NewReader(body),
	})
}

// SendSequenceHeader implements Publisher.
func (p *RTMPPublisher) SendSequenceHeader(t TagType, payload []byte, timestampMs uint32) error {
	return p.send(true, t, payload, timestampMs)
}

// SendFrame implements Publisher.
func (p *RTMPPublisher) SendFrame(t TagType, payload []byte, timestampMs uint32) error {
	return p.send(false, t, payload, timestampMs)
}

func (p *RTMPPublisher) send(header bool, t TagType, payload []byte, ts uint32) error {
	switch t {
	case TagTypeVideo:
		return p.write(header, rtmpVideoChunkStream, ts, len(payload), &rtmpmsg.VideoMessage{Payload: bytes.NewReader(payload)})
	case TagTypeAudio:
		return p.write(header, rtmpAudioChunkStream, ts, len(payload), &rtmpmsg.AudioMessage{Payload: bytes.NewReader(payload)})
	default:
		return fmt.Errorf("%w: rtmp tag type %s", ErrNotSupported, t)
	}
}

// Disconnect closes the connection.
func (p *RTMPPublisher) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client, p.stream = nil, nil
	p.logger.Info().Str("destination", p.destination).Msg("rtmp publisher disconnected")
	return err
}

// Stats implements Publisher.
func (p *RTMPPublisher) Stats() PublisherStats {
	p.mu.Lock()
	s := PublisherStats{Connected: p.client != nil, Destination: p.destination, ConnectedAt: p.connectedAt}
	p.mu.Unlock()
	p.fill(&s)
	return s
}
