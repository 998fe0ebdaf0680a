// Package provider defines the contract between a traffic profile and the
// host that transmits its streams, and the registry hosts discover
// profiles through.
package provider

import (
	"errors"
	"fmt"

	"github.com/takehaya/natperf/pkg/stream"
)

var ErrInvalidDirection = errors.New("invalid direction")

// Options are free-form, profile specific overrides. Values may be typed or
// plain strings as they arrive from the command line.
type Options map[string]any

// Provider hands out the streams of one traffic profile. Implementations
// are stateless: every call builds its streams from scratch and concurrent
// calls are safe.
type Provider interface {
	GetStreams(direction int, opts Options) ([]*stream.Stream, error)
}

// Func adapts a plain function to Provider.
type Func func(direction int, opts Options) ([]*stream.Stream, error)

func (f Func) GetStreams(direction int, opts Options) ([]*stream.Stream, error) {
	return f(direction, opts)
}

// ValidateDirection accepts port directions 0 and 1.
func ValidateDirection(direction int) error {
	if direction != 0 && direction != 1 {
		return fmt.Errorf("%w: %d (want 0 or 1)", ErrInvalidDirection, direction)
	}
	return nil
}
