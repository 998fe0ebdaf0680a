package stream

import (
	"fmt"

	"github.com/takehaya/natperf/pkg/packet"
)

// MissingChecksumFixupError reports a write into a checksum covered field
// without a fixup for that layer.
type MissingChecksumFixupError struct {
	Ref   string
	Field string
	Layer packet.LayerType
}

func (e *MissingChecksumFixupError) Error() string {
	return fmt.Sprintf("write %s -> %s needs a %s checksum fixup", e.Ref, e.Field, e.Layer)
}

// UnknownVariableError reports a write referencing a variable the stream
// does not declare, or one whose shape differs from the declared variable.
type UnknownVariableError struct {
	Ref    string
	Reason string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("write %s: %s", e.Ref, e.Reason)
}
