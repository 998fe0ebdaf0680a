package stream

import (
	"errors"
	"fmt"
	"math"
)

var ErrUnsupportedTxMode = errors.New("unsupported transmission mode")

// TxKind is the transmission policy of a stream.
type TxKind uint8

const (
	// TxContinuous sends the stream until the engine stops the run.
	TxContinuous TxKind = iota + 1
)

func (k TxKind) String() string {
	switch k {
	case TxContinuous:
		return "continuous"
	default:
		return fmt.Sprintf("txkind(%d)", uint8(k))
	}
}

// DefaultPPS is the rate of a continuous stream when none is given.
const DefaultPPS = 1

// TxMode is the transmission mode of a stream.
type TxMode struct {
	Kind TxKind
	PPS  float64
}

// Continuous returns a continuous mode at pps packets per second.
// A zero pps selects DefaultPPS.
func Continuous(pps float64) TxMode {
	if pps == 0 {
		pps = DefaultPPS
	}
	return TxMode{Kind: TxContinuous, PPS: pps}
}

func (m TxMode) Validate() error {
	if m.Kind != TxContinuous {
		return fmt.Errorf("%w: %s", ErrUnsupportedTxMode, m.Kind)
	}
	if m.PPS <= 0 || math.IsNaN(m.PPS) || math.IsInf(m.PPS, 0) {
		return fmt.Errorf("%w: rate %v pps must be positive and finite", ErrUnsupportedTxMode, m.PPS)
	}
	return nil
}
