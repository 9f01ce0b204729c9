package rtcbridge

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3/pkg/media"
)

// OpusPayloadType is the dynamic payload type browsers offer for Opus.
const OpusPayloadType = 111

const loopbackMTU = 1200

// Loopback packetizes written samples into RTP and hands them back to the
// reader, standing in for a peer connection. It is both a SampleWriter and
// a PacketReader.
type Loopback struct {
	mu         sync.Mutex
	packetizer rtp.Packetizer

	packets   chan *rtp.Packet
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoopback creates a loopback holding up to buffer packets.
func NewLoopback(buffer int) *Loopback {
	return &Loopback{
		packetizer: rtp.NewPacketizer(loopbackMTU, OpusPayloadType, rand.Uint32(),
			&codecs.OpusPayloader{}, rtp.NewRandomSequencer(), OpusClockRate),
		packets: make(chan *rtp.Packet, max(buffer, 1)),
		done:    make(chan struct{}),
	}
}

// WriteSample packetizes s. It blocks while the buffer is full and returns
// io.ErrClosedPipe after Close.
func (l *Loopback) WriteSample(s media.Sample) error {
	samples := uint32(s.Duration * OpusClockRate / time.Second)

	l.mu.Lock()
	pkts := l.packetizer.Packetize(s.Data, samples)
	l.mu.Unlock()

	for _, pkt := range pkts {
		select {
		case <-l.done:
			return io.ErrClosedPipe
		case l.packets <- pkt:
		}
	}
	return nil
}

// ReadPacket returns the next packet, or io.EOF after Close.
func (l *Loopback) ReadPacket() (*rtp.Packet, error) {
	select {
	case <-l.done:
		return nil, io.EOF
	case pkt := <-l.packets:
		return pkt, nil
	}
}

// Close ends the loopback. It is safe to call more than once.
func (l *Loopback) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}
