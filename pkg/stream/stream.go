// Package stream assembles a packet template, its field variables and the
// mutation program into an immutable Stream for a transmission engine.
package stream

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/takehaya/natperf/pkg/fieldvar"
	"github.com/takehaya/natperf/pkg/packet"
	"github.com/takehaya/natperf/pkg/vm"
)

// Stream is an immutable bundle of template, variables, writes, checksum
// fixups and transmission mode.
type Stream struct {
	template  *packet.Template
	variables []*fieldvar.Variable
	writes    []vm.Write
	fixups    []vm.FixChecksum
	mode      TxMode
}

// Assemble cross-validates its inputs and builds a Stream. Writes are
// re-bound against tpl so that instructions built for another template
// are rejected. Every checksum layer covering a written field must have a
// fixup among instrs.
func Assemble(tpl *packet.Template, vars []*fieldvar.Variable, instrs []vm.Instruction, mode TxMode) (*Stream, error) {
	if tpl == nil {
		return nil, errors.New("template is required")
	}
	if err := mode.Validate(); err != nil {
		return nil, err
	}

	byName := make(map[string]*fieldvar.Variable, len(vars))
	for i, v := range vars {
		if v == nil {
			return nil, fmt.Errorf("variable %d is nil", i)
		}
		if _, dup := byName[v.Name()]; dup {
			return nil, fmt.Errorf("duplicate variable %q", v.Name())
		}
		byName[v.Name()] = v
	}

	var (
		writes []vm.Write
		fixups []vm.FixChecksum
	)
	for i, in := range instrs {
		switch in := in.(type) {
		case vm.Write:
			v, ok := byName[in.Var]
			if !ok {
				return nil, &UnknownVariableError{Ref: in.Ref, Reason: fmt.Sprintf("variable %q is not declared", in.Var)}
			}
			comp, ok := v.Component(in.Component)
			if !ok || comp.Width != in.Width || v.Ref(in.Component) != in.Ref {
				return nil, &UnknownVariableError{Ref: in.Ref, Reason: fmt.Sprintf("component does not match variable %s", v)}
			}
			bound, err := vm.BindField(tpl, v, in.Component, in.Offset)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			writes = append(writes, bound)
		case vm.FixChecksum:
			fix, err := vm.Fix(tpl, in.Layer)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			if fix.Offset != in.Offset {
				return nil, fmt.Errorf("instruction %d: %s is not at offset %d of the template", i, in, fix.Offset)
			}
			if !slices.Contains(fixups, fix) {
				fixups = append(fixups, fix)
			}
		default:
			return nil, fmt.Errorf("instruction %d: unsupported instruction %T", i, in)
		}
	}

	for _, w := range writes {
		for _, layer := range w.Checksums {
			if !slices.ContainsFunc(fixups, func(f vm.FixChecksum) bool { return f.Layer == layer }) {
				return nil, &MissingChecksumFixupError{Ref: w.Ref, Field: w.Field, Layer: layer}
			}
		}
	}

	return &Stream{
		template:  tpl,
		variables: slices.Clone(vars),
		writes:    writes,
		fixups:    fixups,
		mode:      mode,
	}, nil
}

func (s *Stream) Template() *packet.Template { return s.template }

func (s *Stream) Variables() []*fieldvar.Variable { return slices.Clone(s.variables) }

// Variable returns the declared variable called name.
func (s *Stream) Variable(name string) (*fieldvar.Variable, bool) {
	for _, v := range s.variables {
		if v.Name() == name {
			return v, true
		}
	}
	return nil, false
}

func (s *Stream) Writes() []vm.Write {
	out := make([]vm.Write, len(s.writes))
	for i, w := range s.writes {
		w.Checksums = slices.Clone(w.Checksums)
		out[i] = w
	}
	return out
}

func (s *Stream) Fixups() []vm.FixChecksum { return slices.Clone(s.fixups) }

func (s *Stream) Mode() TxMode { return s.mode }

// Equal reports value equality of two streams.
func (s *Stream) Equal(o *Stream) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.template.Equal(o.template) &&
		slices.EqualFunc(s.variables, o.variables, (*fieldvar.Variable).Equal) &&
		slices.EqualFunc(s.writes, o.writes, vm.Write.Equal) &&
		slices.Equal(s.fixups, o.fixups) &&
		s.mode == o.mode
}

func (s *Stream) String() string {
	vars := make([]string, len(s.variables))
	for i, v := range s.variables {
		vars[i] = v.String()
	}
	return fmt.Sprintf("stream{len=%d vars=[%s] writes=%d fixups=%d mode=%s@%gpps}",
		s.template.Len(), strings.Join(vars, " "), len(s.writes), len(s.fixups), s.mode.Kind, s.mode.PPS)
}
