package capture

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// H264Depacketizer reassembles Annex-B access units from RTP packets.
// Payload parsing (single NAL, STAP-A, FU-A) is done by pion's H264Packet;
// this type groups NAL units into access units by RTP timestamp and marker.
type H264Depacketizer struct {
	packet    codecs.H264Packet
	frameData []byte // current access unit, Annex-B
	timestamp uint32
	started   bool
	keyframe  bool
	mu        sync.Mutex
}

// NewH264Depacketizer creates a new H.264 RTP depacketizer.
func NewH264Depacketizer() *H264Depacketizer {
	return &H264Depacketizer{}
}

// Depacketize processes one RTP packet and returns a complete access unit
// when the packet carries the marker bit. A timestamp change without a marker
// discards the partial access unit.
func (d *H264Depacketizer) Depacketize(pkt *rtp.Packet) (*EncodedFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(pkt.Payload) == 0 {
		return nil, nil
	}

	if d.started && d.timestamp != pkt.Timestamp {
		d.reset()
	}
	d.timestamp = pkt.Timestamp
	d.started = true

	nal, err := d.packet.Unmarshal(pkt.Payload)
	if err != nil {
		d.reset()
		return nil, fmt.Errorf("depacketize h264: %w", err)
	}
	if len(nal) > 0 {
		if IsKeyframeAnnexB(nal) {
			d.keyframe = true
		}
		d.frameData = append(d.frameData, nal...)
	}

	if !pkt.Marker || len(d.frameData) == 0 {
		return nil, nil
	}

	frame := &EncodedFrame{
		Data:      append([]byte(nil), d.frameData...),
		FrameType: FrameTypeDelta,
		Timestamp: d.timestamp,
	}
	if d.keyframe {
		frame.FrameType = FrameTypeKey
	}
	d.reset()
	return frame, nil
}

func (d *H264Depacketizer) reset() {
	d.frameData = d.frameData[:0]
	d.keyframe = false
}

// Reset clears any buffered partial access unit.
func (d *H264Depacketizer) Reset() {
	d.mu.Lock()
	d.reset()
	d.started = false
	d.timestamp = 0
	d.mu.Unlock()
}
