package fieldvar

// Enumerator maps a packet instance sequence number to the component
// values of a variable. ok is false once the enumeration has stopped.
type Enumerator interface {
	Tuple(v *Variable, seq uint64) (values []uint64, ok bool)
}

// CyclicWalk walks the first Flows() tuples in mixed-radix order with the
// first component varying fastest, then starts over.
type CyclicWalk struct{}

func (CyclicWalk) Tuple(v *Variable, seq uint64) ([]uint64, bool) {
	return walk(v, seq%v.Flows()), true
}

// HaltingWalk walks the same order as CyclicWalk but stops after Flows()
// tuples.
type HaltingWalk struct{}

func (HaltingWalk) Tuple(v *Variable, seq uint64) ([]uint64, bool) {
	if seq >= v.Flows() {
		return nil, false
	}
	return walk(v, seq), true
}

// walk decodes idx < Capacity() into component values.
func walk(v *Variable, idx uint64) []uint64 {
	values := make([]uint64, len(v.components))
	for i, c := range v.components {
		size := c.Range.Size()
		values[i] = c.Range.Min + idx%size
		idx /= size
	}
	return values
}
