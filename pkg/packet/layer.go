package packet

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// LayerType identifies one header layer of a template.
type LayerType uint8

const (
	LayerEthernet LayerType = iota + 1
	LayerIPv4
	LayerUDP
	LayerPayload
)

func (t LayerType) String() string {
	switch t {
	case LayerEthernet:
		return "ethernet"
	case LayerIPv4:
		return "ipv4"
	case LayerUDP:
		return "udp"
	case LayerPayload:
		return "payload"
	default:
		return fmt.Sprintf("layer(%d)", uint8(t))
	}
}

// Layer is a header descriptor accepted by Build.
type Layer interface {
	Type() LayerType
}

// Ethernet describes the Ethernet II header. Empty addresses fall back to
// the zero MAC for Src and broadcast for Dst.
type Ethernet struct {
	Src string `yaml:"src" mapstructure:"src"`
	Dst string `yaml:"dst" mapstructure:"dst"`
}

func (*Ethernet) Type() LayerType { return LayerEthernet }

// IPv4 describes an option-less IPv4 header. Dst is required.
type IPv4 struct {
	Src string `yaml:"src" mapstructure:"src"`
	Dst string `yaml:"dst" mapstructure:"dst"`
	TTL uint8  `yaml:"ttl" mapstructure:"ttl"`
}

func (*IPv4) Type() LayerType { return LayerIPv4 }

// UDP describes the UDP header. Ports are decimal strings, DstPort is
// required. When Checksum is false the checksum field stays zero and the
// layer is not checksum-bearing.
type UDP struct {
	SrcPort  string `yaml:"src_port" mapstructure:"src_port"`
	DstPort  string `yaml:"dst_port" mapstructure:"dst_port"`
	Checksum bool   `yaml:"checksum" mapstructure:"checksum"`
}

func (*UDP) Type() LayerType { return LayerUDP }

// Payload is raw application data placed after the last header.
type Payload []byte

func (Payload) Type() LayerType { return LayerPayload }

const (
	defaultSrcMAC  = "00:00:00:00:00:00"
	defaultDstMAC  = "ff:ff:ff:ff:ff:ff"
	defaultSrcIP   = "0.0.0.0"
	defaultTTL     = 64
	defaultSrcPort = "53"
)

func parseMAC(layer LayerType, field, s, def string) (net.HardwareAddr, error) {
	if s == "" {
		s = def
	}
	mac, err := net.ParseMAC(s)
	if err != nil || len(mac) != 6 {
		return nil, &InvalidLayerError{Layer: layer, Field: field, Value: s, Reason: "not a 48-bit MAC address"}
	}
	return mac, nil
}

func parseIPv4(field, s, def string) (netip.Addr, error) {
	if s == "" {
		if def == "" {
			return netip.Addr{}, &InvalidLayerError{Layer: LayerIPv4, Field: field, Reason: "required"}
		}
		s = def
	}
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, &InvalidLayerError{Layer: LayerIPv4, Field: field, Value: s, Reason: "not an IPv4 address"}
	}
	return addr, nil
}

func parsePort(field, s, def string) (uint16, error) {
	if s == "" {
		if def == "" {
			return 0, &InvalidLayerError{Layer: LayerUDP, Field: field, Reason: "required"}
		}
		s = def
	}
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, &InvalidLayerError{Layer: LayerUDP, Field: field, Value: s, Reason: "not a decimal port in 0-65535"}
	}
	return uint16(port), nil
}
