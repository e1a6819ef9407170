package video

import (
	"github.com/pion/rtp"
)

// Depacketizer extracts codec data from an RTP payload.
// *codecs.H264Packet satisfies it.
type Depacketizer interface {
	Unmarshal(payload []byte) ([]byte, error)
}

// EncodedFrame is one access unit reassembled from RTP packets.
type EncodedFrame struct {
	RTPTime uint32
	Data    []byte
	Packets int
}

// Assembler groups RTP packets that share a timestamp into frames. A frame
// ends at the marker bit. Frames with missing packets are dropped.
type Assembler struct {
	depacketizer Depacketizer

	started bool
	lastSeq uint16

	cur     EncodedFrame
	active  bool
	corrupt bool

	dropped int
}

// NewAssembler creates an assembler. A nil depacketizer keeps raw payloads.
func NewAssembler(d Depacketizer) *Assembler {
	return &Assembler{depacketizer: d}
}

// Dropped returns the number of frames discarded for packet loss.
func (a *Assembler) Dropped() int {
	return a.dropped
}

// Push adds a packet and returns a frame when one completes.
func (a *Assembler) Push(pkt *rtp.Packet) *EncodedFrame {
	gap := a.started && pkt.SequenceNumber != a.lastSeq+1
	a.started = true
	a.lastSeq = pkt.SequenceNumber

	if a.active && pkt.Timestamp != a.cur.RTPTime {
		// previous frame never saw its marker
		a.dropped++
		a.reset()
	}
	if !a.active {
		a.active = true
		a.cur.RTPTime = pkt.Timestamp
	}
	if gap {
		a.corrupt = true
	}

	payload := pkt.Payload
	if a.depacketizer != nil {
		var err error
		if payload, err = a.depacketizer.Unmarshal(pkt.Payload); err != nil {
			a.corrupt = true
		}
	}
	a.cur.Data = append(a.cur.Data, payload...)
	a.cur.Packets++

	if !pkt.Marker {
		return nil
	}
	defer a.reset()
	if a.corrupt {
		a.dropped++
		return nil
	}
	f := a.cur
	return &f
}

func (a *Assembler) reset() {
	a.cur = EncodedFrame{}
	a.active = false
	a.corrupt = false
}
