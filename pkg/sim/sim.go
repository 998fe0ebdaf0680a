// Package sim is a reference interpreter for streams. It produces the exact
// frames a transmission engine is expected to send for each packet
// instance, which makes the mutation contract testable without hardware.
package sim

import (
	"github.com/takehaya/natperf/pkg/fieldvar"
	"github.com/takehaya/natperf/pkg/packet"
	"github.com/takehaya/natperf/pkg/stream"
	"github.com/takehaya/natperf/pkg/vm"
)

// Interpreter renders the packet instances of one stream. It only reads the
// stream and is safe for concurrent use.
type Interpreter struct {
	base   []byte
	vars   []*fieldvar.Variable
	writes []vm.Write
	fixups []vm.FixChecksum
	ipOff  int
	enum   fieldvar.Enumerator
}

type Option func(*Interpreter)

// WithEnumerator replaces the default fieldvar.CyclicWalk.
func WithEnumerator(e fieldvar.Enumerator) Option {
	return func(it *Interpreter) {
		if e != nil {
			it.enum = e
		}
	}
}

func New(s *stream.Stream, opts ...Option) *Interpreter {
	tpl := s.Template()
	it := &Interpreter{
		base:   tpl.Bytes(),
		vars:   s.Variables(),
		writes: s.Writes(),
		fixups: s.Fixups(),
		enum:   fieldvar.CyclicWalk{},
	}
	if info, ok := tpl.Layer(packet.LayerIPv4); ok {
		it.ipOff = info.Offset
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// Flows returns the number of distinct packet instances: the product of
// the flow counts of all variables, saturating at the maximum uint64.
func (it *Interpreter) Flows() uint64 {
	n := uint64(1)
	for _, v := range it.vars {
		f := v.Flows()
		if n > ^uint64(0)/f {
			return ^uint64(0)
		}
		n *= f
	}
	return n
}

// Packet returns the frame of packet instance seq: the template with every
// write applied and every declared checksum recomputed. ok is false when
// the enumerator has stopped.
//
// seq is split into one mixed-radix digit per variable, first variable
// fastest. The last variable gets the remaining quotient unreduced so the
// enumerator decides whether the whole stream wraps or stops.
func (it *Interpreter) Packet(seq uint64) ([]byte, bool) {
	values := make(map[string][]uint64, len(it.vars))
	idx := seq
	for i, v := range it.vars {
		digit := idx
		if i < len(it.vars)-1 {
			f := v.Flows()
			digit = idx % f
			idx /= f
		}
		tuple, ok := it.enum.Tuple(v, digit)
		if !ok {
			return nil, false
		}
		values[v.Name()] = tuple
	}

	frame := make([]byte, len(it.base))
	copy(frame, it.base)

	for _, w := range it.writes {
		putUint(frame[w.Offset:w.Offset+w.Width], values[w.Var][w.Component])
	}
	for _, f := range it.fixups {
		switch f.Layer {
		case packet.LayerIPv4:
			packet.FixIPv4Checksum(frame, f.Offset)
		case packet.LayerUDP:
			packet.FixUDPChecksum(frame, it.ipOff, f.Offset)
		}
	}
	return frame, true
}

// putUint stores v big-endian in len(b) bytes.
func putUint(b []byte, v uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
