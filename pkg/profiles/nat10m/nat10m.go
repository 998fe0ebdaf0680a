// Package nat10m is the NAT stress profile: one UDP stream whose source
// address and port walk ten million distinct tuples so that a NAT device
// under test has to create that many translation entries.
package nat10m

import (
	"fmt"
	"net/netip"

	"github.com/takehaya/natperf/pkg/fieldvar"
	"github.com/takehaya/natperf/pkg/packet"
	"github.com/takehaya/natperf/pkg/provider"
	"github.com/takehaya/natperf/pkg/stream"
	"github.com/takehaya/natperf/pkg/vm"
)

// Name is the registry name of the profile.
const Name = "nat_10Ms"

// TupleName is the name of the tuple variable of the stream.
const TupleName = "tuple"

// Config holds the profile options. The defaults describe 100000 source
// addresses times 100 source ports, exactly ten million flows.
type Config struct {
	DstIP      string  `mapstructure:"dst_ip" default:"2.2.0.1"`
	DstPort    string  `mapstructure:"dst_port" default:"12"`
	IPMin      string  `mapstructure:"ip_min" default:"10.0.0.3"`
	IPMax      string  `mapstructure:"ip_max" default:"10.1.134.162"`
	PortMin    int     `mapstructure:"port_min" default:"1025"`
	PortMax    int     `mapstructure:"port_max" default:"1124"`
	LimitFlows uint64  `mapstructure:"limit_flows" default:"10000000"`
	PPS        float64 `mapstructure:"pps" default:"1"`
}

// Profile implements provider.Provider.
type Profile struct{}

// Register returns the profile provider.
func Register() provider.Provider {
	return Profile{}
}

// GetStreams returns the single NAT stream. Both directions get the same
// stream.
func (Profile) GetStreams(direction int, opts provider.Options) ([]*stream.Stream, error) {
	if err := provider.ValidateDirection(direction); err != nil {
		return nil, err
	}
	var cfg Config
	if err := opts.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	s, err := NewStream(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	return []*stream.Stream{s}, nil
}

// NewStream builds the stream described by cfg.
func NewStream(cfg Config) (*stream.Stream, error) {
	tpl, err := packet.Build(
		&packet.Ethernet{},
		&packet.IPv4{Dst: cfg.DstIP},
		&packet.UDP{DstPort: cfg.DstPort},
	)
	if err != nil {
		return nil, err
	}

	ipMin, err := netip.ParseAddr(cfg.IPMin)
	if err != nil {
		return nil, &fieldvar.RangeError{Variable: TupleName, Component: fieldvar.TupleIP, Reason: err.Error()}
	}
	ipMax, err := netip.ParseAddr(cfg.IPMax)
	if err != nil {
		return nil, &fieldvar.RangeError{Variable: TupleName, Component: fieldvar.TupleIP, Reason: err.Error()}
	}
	for _, p := range []int{cfg.PortMin, cfg.PortMax} {
		if p < 0 || p > 0xffff {
			return nil, &fieldvar.RangeError{
				Variable:  TupleName,
				Component: fieldvar.TuplePort,
				Reason:    fmt.Sprintf("port %d is not in 0-65535", p),
			}
		}
	}

	tuple, err := fieldvar.DefineTuple(TupleName,
		fieldvar.IPRange{Min: ipMin, Max: ipMax},
		fieldvar.PortRange{Min: uint16(cfg.PortMin), Max: uint16(cfg.PortMax)},
		cfg.LimitFlows,
	)
	if err != nil {
		return nil, err
	}

	srcIP, err := vm.Bind(tpl, tuple, TupleName+"."+fieldvar.TupleIP, "IP.src")
	if err != nil {
		return nil, err
	}
	fixIP, err := vm.FixIPv4(tpl)
	if err != nil {
		return nil, err
	}
	srcPort, err := vm.Bind(tpl, tuple, TupleName+"."+fieldvar.TuplePort, "UDP.sport")
	if err != nil {
		return nil, err
	}

	return stream.Assemble(tpl,
		[]*fieldvar.Variable{tuple},
		[]vm.Instruction{srcIP, fixIP, srcPort},
		stream.Continuous(cfg.PPS),
	)
}
