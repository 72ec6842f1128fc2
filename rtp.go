package codec2

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// DefaultMTU is the RTP packet size ceiling used when none is given
// (UDP safe).
const DefaultMTU = 1200

// rtpHeaderSize is reserved out of the MTU for the fixed RTP header.
const rtpHeaderSize = 12

// WorkPacketizer segments the output of completed work items into RTP
// packets. One work item is one access unit: its buffers share a
// timestamp derived from the item's ordinal, and the marker bit is set
// on the item's last packet.
type WorkPacketizer struct {
	mu          sync.Mutex
	ssrc        uint32
	payloadType uint8
	mtu         int
	clockRate   uint32
	sequencer   rtp.Sequencer
	payloader   rtp.Payloader
}

// NewWorkPacketizer creates a packetizer for the given MIME type. The
// clock rate converts ordinal timestamps to RTP timestamp units.
func NewWorkPacketizer(mime string, ssrc uint32, payloadType uint8, clockRate uint32, mtu int) (*WorkPacketizer, error) {
	payloader, err := payloaderFor(mime)
	if err != nil {
		return nil, err
	}
	if clockRate == 0 {
		return nil, fmt.Errorf("clock rate is required")
	}
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &WorkPacketizer{
		ssrc:        ssrc,
		payloadType: payloadType,
		mtu:         mtu,
		clockRate:   clockRate,
		sequencer:   rtp.NewRandomSequencer(),
		payloader:   payloader,
	}, nil
}

func payloaderFor(mime string) (rtp.Payloader, error) {
	switch strings.ToLower(mime) {
	case "video/vp8":
		return &codecs.VP8Payloader{}, nil
	case "video/vp9":
		return &codecs.VP9Payloader{}, nil
	case "video/av1":
		return &codecs.AV1Payloader{}, nil
	case "video/h264", "video/avc":
		return &codecs.H264Payloader{}, nil
	case "audio/opus":
		return &codecs.OpusPayloader{}, nil
	case "audio/pcmu", "audio/pcma", "audio/l8", MimeAudioRaw:
		return &codecs.G711Payloader{}, nil
	default:
		return nil, fmt.Errorf("no RTP payloader for %q", mime)
	}
}

// Packetize converts one completed work item to RTP packets. Items
// without output data produce no packets.
func (p *WorkPacketizer) Packetize(w *Work) ([]*rtp.Packet, error) {
	if w.Result != nil {
		return nil, fmt.Errorf("item failed: %w", w.Result)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	timestamp := p.rtpTimestamp(w.Output.Ordinal.Timestamp)

	var packets []*rtp.Packet
	for _, buf := range w.Output.Buffers {
		if len(buf) == 0 {
			continue
		}
		payloads := p.payloader.Payload(uint16(p.mtu-rtpHeaderSize), buf)
		for _, payload := range payloads {
			packets = append(packets, &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    p.payloadType,
					SequenceNumber: p.sequencer.NextSequenceNumber(),
					Timestamp:      timestamp,
					SSRC:           p.ssrc,
				},
				Payload: payload,
			})
		}
	}
	if len(packets) > 0 {
		packets[len(packets)-1].Header.Marker = true
	}
	return packets, nil
}

// PacketizeToBytes converts one completed work item to raw RTP packet
// bytes.
func (p *WorkPacketizer) PacketizeToBytes(w *Work) ([][]byte, error) {
	packets, err := p.Packetize(w)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(packets))
	for i, pkt := range packets {
		data, err := pkt.Marshal()
		if err != nil {
			return nil, fmt.Errorf("marshal packet: %w", err)
		}
		out[i] = data
	}
	return out, nil
}

func (p *WorkPacketizer) rtpTimestamp(ts time.Duration) uint32 {
	return uint32(int64(ts) * int64(p.clockRate) / int64(time.Second))
}

func (p *WorkPacketizer) SetSSRC(ssrc uint32)     { p.mu.Lock(); p.ssrc = ssrc; p.mu.Unlock() }
func (p *WorkPacketizer) SSRC() uint32            { p.mu.Lock(); defer p.mu.Unlock(); return p.ssrc }
func (p *WorkPacketizer) PayloadType() uint8      { p.mu.Lock(); defer p.mu.Unlock(); return p.payloadType }
func (p *WorkPacketizer) SetPayloadType(pt uint8) { p.mu.Lock(); p.payloadType = pt; p.mu.Unlock() }
func (p *WorkPacketizer) MTU() int                { p.mu.Lock(); defer p.mu.Unlock(); return p.mtu }
func (p *WorkPacketizer) SetMTU(mtu int)          { p.mu.Lock(); p.mtu = mtu; p.mu.Unlock() }
