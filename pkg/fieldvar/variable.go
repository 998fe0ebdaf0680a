// Package fieldvar declares bounded field generators. A Variable only
// describes ranges and a flow cap; producing values is left to an
// Enumerator chosen by whoever interprets the stream.
package fieldvar

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"net/netip"
	"slices"
	"strings"
)

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min uint64
	Max uint64
}

// Size returns the number of values in r, saturating at math.MaxUint64.
func (r Range) Size() uint64 {
	n := r.Max - r.Min
	if n == math.MaxUint64 {
		return n
	}
	return n + 1
}

// Component is one independently ranged dimension of a Variable.
type Component struct {
	Name  string
	Width int // bytes written per value
	Range Range
}

// Variable is a named generator over one or more components, capped at
// Limit distinct tuples.
type Variable struct {
	name       string
	components []Component
	limit      uint64
}

// IPRange is an inclusive IPv4 address range.
type IPRange struct {
	Min netip.Addr
	Max netip.Addr
}

// PortRange is an inclusive port range.
type PortRange struct {
	Min uint16
	Max uint16
}

const (
	TupleIP   = "ip"
	TuplePort = "port"
)

// DefineTuple declares an IP x port tuple variable with components
// "<name>.ip" (4 bytes) and "<name>.port" (2 bytes).
func DefineTuple(name string, ips IPRange, ports PortRange, limit uint64) (*Variable, error) {
	if !ips.Min.Is4() || !ips.Max.Is4() {
		return nil, &RangeError{Variable: name, Component: TupleIP, Reason: "bounds must be IPv4 addresses"}
	}
	ipMin, ipMax := addrToUint(ips.Min), addrToUint(ips.Max)
	if ipMin > ipMax {
		return nil, &RangeError{
			Variable:  name,
			Component: TupleIP,
			Reason:    fmt.Sprintf("min %s is above max %s", ips.Min, ips.Max),
		}
	}
	if ports.Min > ports.Max {
		return nil, &RangeError{
			Variable:  name,
			Component: TuplePort,
			Reason:    fmt.Sprintf("min %d is above max %d", ports.Min, ports.Max),
		}
	}

	return Define(name, limit,
		Component{Name: TupleIP, Width: 4, Range: Range{Min: ipMin, Max: ipMax}},
		Component{Name: TuplePort, Width: 2, Range: Range{Min: uint64(ports.Min), Max: uint64(ports.Max)}},
	)
}

// Define declares a variable over arbitrary components. Each component
// range must be ordered and fit its width.
func Define(name string, limit uint64, components ...Component) (*Variable, error) {
	if name == "" || strings.Contains(name, ".") {
		return nil, &RangeError{Variable: name, Reason: "name must be non-empty and contain no dots"}
	}
	if limit == 0 {
		return nil, &RangeError{Variable: name, Reason: "limit_flows must be positive"}
	}
	if len(components) == 0 {
		return nil, &RangeError{Variable: name, Reason: "at least one component is required"}
	}

	seen := make(map[string]struct{}, len(components))
	for _, c := range components {
		if _, dup := seen[c.Name]; dup || c.Name == "" {
			return nil, &RangeError{Variable: name, Component: c.Name, Reason: "component names must be unique and non-empty"}
		}
		seen[c.Name] = struct{}{}

		if c.Width < 1 || c.Width > 8 {
			return nil, &RangeError{Variable: name, Component: c.Name, Reason: fmt.Sprintf("width %d is not in 1-8", c.Width)}
		}
		if c.Range.Min > c.Range.Max {
			return nil, &RangeError{Variable: name, Component: c.Name, Reason: "range is empty"}
		}
		if c.Width < 8 && c.Range.Max >= 1<<(8*c.Width) {
			return nil, &RangeError{Variable: name, Component: c.Name, Reason: fmt.Sprintf("max %d does not fit %d bytes", c.Range.Max, c.Width)}
		}
	}

	return &Variable{
		name:       name,
		components: slices.Clone(components),
		limit:      limit,
	}, nil
}

func (v *Variable) Name() string { return v.name }

func (v *Variable) Limit() uint64 { return v.limit }

func (v *Variable) Components() []Component { return slices.Clone(v.components) }

// Component returns the component at index i.
func (v *Variable) Component(i int) (Component, bool) {
	if i < 0 || i >= len(v.components) {
		return Component{}, false
	}
	return v.components[i], true
}

// Lookup resolves a qualified reference such as "tuple.port" to its
// component index.
func (v *Variable) Lookup(ref string) (int, bool) {
	name, comp, ok := strings.Cut(ref, ".")
	if !ok || name != v.name {
		return 0, false
	}
	for i, c := range v.components {
		if c.Name == comp {
			return i, true
		}
	}
	return 0, false
}

// Ref returns the qualified reference of component i.
func (v *Variable) Ref(i int) string {
	return v.name + "." + v.components[i].Name
}

// Capacity returns the size of the Cartesian product of all component
// ranges, saturating at math.MaxUint64.
func (v *Variable) Capacity() uint64 {
	total := uint64(1)
	for _, c := range v.components {
		hi, lo := bits.Mul64(total, c.Range.Size())
		if hi != 0 {
			return math.MaxUint64
		}
		total = lo
	}
	return total
}

// Flows returns the number of distinct tuples the variable emits before
// repeating: Limit clamped to Capacity.
func (v *Variable) Flows() uint64 {
	return min(v.limit, v.Capacity())
}

// Exact reports whether Limit is reachable with distinct tuples.
func (v *Variable) Exact() bool {
	return v.limit <= v.Capacity()
}

func (v *Variable) Equal(o *Variable) bool {
	if v == nil || o == nil {
		return v == o
	}
	return v.name == o.name && v.limit == o.limit && slices.Equal(v.components, o.components)
}

func (v *Variable) String() string {
	parts := make([]string, len(v.components))
	for i, c := range v.components {
		parts[i] = fmt.Sprintf("%s[%s-%s]", c.Name, c.format(c.Range.Min), c.format(c.Range.Max))
	}
	return fmt.Sprintf("%s{%s limit=%d}", v.name, strings.Join(parts, " "), v.limit)
}

func (c Component) format(n uint64) string {
	if c.Width == 4 && c.Name == TupleIP {
		return UintToAddr(n).String()
	}
	return fmt.Sprint(n)
}

func addrToUint(a netip.Addr) uint64 {
	b := a.As4()
	return uint64(binary.BigEndian.Uint32(b[:]))
}

// UintToAddr converts an IPv4 component value back to an address.
func UintToAddr(n uint64) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	return netip.AddrFrom4(b)
}
