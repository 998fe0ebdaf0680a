// Package vm binds field variables to template byte offsets and declares
// the checksum fixups an interpreter must run after writing them.
package vm

import (
	"errors"
	"fmt"
	"slices"

	"github.com/takehaya/natperf/pkg/fieldvar"
	"github.com/takehaya/natperf/pkg/packet"
)

var (
	ErrUnknownComponent = errors.New("unknown variable component")
	ErrUnknownField     = errors.New("unknown template field")
	ErrNoChecksum       = errors.New("layer carries no checksum")
)

// Instruction is one step of a per-packet mutation program: either a Write
// or a FixChecksum.
type Instruction interface {
	instruction()
}

// Write stores one variable component big-endian at Offset.
type Write struct {
	Var       string
	Component int
	Ref       string // "<var>.<component>"
	Offset    int
	Width     int
	Field     string
	Checksums []packet.LayerType
}

func (Write) instruction() {}

func (w Write) Equal(o Write) bool {
	return w.Var == o.Var &&
		w.Component == o.Component &&
		w.Ref == o.Ref &&
		w.Offset == o.Offset &&
		w.Width == o.Width &&
		w.Field == o.Field &&
		slices.Equal(w.Checksums, o.Checksums)
}

func (w Write) String() string {
	return fmt.Sprintf("write %s -> %s@%d/%d", w.Ref, w.Field, w.Offset, w.Width)
}

// FixChecksum declares that the checksum of Layer, located at Offset,
// must be recomputed once every Write of a packet instance is applied.
type FixChecksum struct {
	Layer  packet.LayerType
	Offset int
}

func (FixChecksum) instruction() {}

func (f FixChecksum) String() string {
	return fmt.Sprintf("fix %s checksum@%d", f.Layer, f.Offset)
}

// BindField binds component of v to the header field starting at offset.
// The field width must equal the component width.
func BindField(tpl *packet.Template, v *fieldvar.Variable, component, offset int) (Write, error) {
	if tpl == nil || v == nil {
		return Write{}, errors.New("template and variable are required")
	}
	comp, ok := v.Component(component)
	if !ok {
		return Write{}, fmt.Errorf("%w: %s has no component %d", ErrUnknownComponent, v.Name(), component)
	}
	ref := v.Ref(component)

	if offset < 0 || offset > tpl.Len()-comp.Width {
		return Write{}, &OffsetOutOfRangeError{Ref: ref, Offset: offset, Width: comp.Width, Len: tpl.Len()}
	}

	f, ok := tpl.FieldAt(offset)
	if !ok || f.Offset != offset || f.Width != comp.Width {
		return Write{}, &FieldWidthMismatchError{
			Ref:        ref,
			Field:      f.Name,
			Offset:     offset,
			FieldWidth: f.Width,
			ValueWidth: comp.Width,
		}
	}

	return Write{
		Var:       v.Name(),
		Component: component,
		Ref:       ref,
		Offset:    offset,
		Width:     comp.Width,
		Field:     f.Name,
		Checksums: f.Checksums,
	}, nil
}

// Bind resolves ref ("tuple.ip") and field ("IP.src") by name and binds
// them with BindField.
func Bind(tpl *packet.Template, v *fieldvar.Variable, ref, field string) (Write, error) {
	if tpl == nil || v == nil {
		return Write{}, errors.New("template and variable are required")
	}
	idx, ok := v.Lookup(ref)
	if !ok {
		return Write{}, fmt.Errorf("%w: %q", ErrUnknownComponent, ref)
	}
	f, ok := tpl.Field(field)
	if !ok {
		return Write{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return BindField(tpl, v, idx, f.Offset)
}

// Fix declares a checksum fixup for layer, which must be a checksum
// bearing layer of tpl.
func Fix(tpl *packet.Template, layer packet.LayerType) (FixChecksum, error) {
	if tpl == nil {
		return FixChecksum{}, errors.New("template is required")
	}
	if !slices.Contains(tpl.ChecksumLayers(), layer) {
		return FixChecksum{}, fmt.Errorf("%w: %s", ErrNoChecksum, layer)
	}
	info, _ := tpl.Layer(layer)
	return FixChecksum{Layer: layer, Offset: info.Offset}, nil
}

// FixIPv4 declares an IPv4 header checksum fixup.
func FixIPv4(tpl *packet.Template) (FixChecksum, error) {
	return Fix(tpl, packet.LayerIPv4)
}

// FixUDP declares a UDP checksum fixup; the template must carry a UDP
// checksum.
func FixUDP(tpl *packet.Template) (FixChecksum, error) {
	return Fix(tpl, packet.LayerUDP)
}
