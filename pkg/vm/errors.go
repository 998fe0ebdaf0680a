package vm

import "fmt"

// FieldWidthMismatchError reports a write whose value width differs from
// the target field, or whose offset does not start a header field.
type FieldWidthMismatchError struct {
	Ref        string
	Field      string
	Offset     int
	FieldWidth int
	ValueWidth int
}

func (e *FieldWidthMismatchError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cannot bind %s (%d bytes) at offset %d: no header field starts there", e.Ref, e.ValueWidth, e.Offset)
	}
	return fmt.Sprintf("cannot bind %s (%d bytes) to %s (%d bytes at offset %d)", e.Ref, e.ValueWidth, e.Field, e.FieldWidth, e.Offset)
}

// OffsetOutOfRangeError reports a write reaching outside the template.
type OffsetOutOfRangeError struct {
	Ref    string
	Offset int
	Width  int
	Len    int
}

func (e *OffsetOutOfRangeError) Error() string {
	return fmt.Sprintf("cannot bind %s: %d bytes at offset %d are outside the %d byte template", e.Ref, e.Width, e.Offset, e.Len)
}
