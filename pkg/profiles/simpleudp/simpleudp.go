// Package simpleudp is a single fixed UDP flow, handy as a baseline next to
// the NAT profile.
package simpleudp

import (
	"fmt"

	"github.com/takehaya/natperf/pkg/packet"
	"github.com/takehaya/natperf/pkg/provider"
	"github.com/takehaya/natperf/pkg/stream"
	"github.com/takehaya/natperf/pkg/vm"
)

const Name = "udp_simple"

// MaxPayloadSize keeps the frame within a 1500 byte IP MTU.
const MaxPayloadSize = 1500 - 20 - 8

type Config struct {
	SrcMAC      string  `mapstructure:"src_mac"`
	DstMAC      string  `mapstructure:"dst_mac"`
	SrcIP       string  `mapstructure:"src_ip" default:"192.168.1.1"`
	DstIP       string  `mapstructure:"dst_ip" default:"192.168.1.2"`
	SrcPort     string  `mapstructure:"src_port" default:"1234"`
	DstPort     string  `mapstructure:"dst_port" default:"5678"`
	PayloadSize int     `mapstructure:"payload_size" default:"1024"`
	PPS         float64 `mapstructure:"pps" default:"1"`
}

type Profile struct{}

func Register() provider.Provider {
	return Profile{}
}

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

// NewStream builds one UDP flow with a checksummed header and a counting
// payload. It declares no variables, so every packet is identical.
func NewStream(cfg Config) (*stream.Stream, error) {
	if cfg.PayloadSize < 0 || cfg.PayloadSize > MaxPayloadSize {
		return nil, &packet.InvalidLayerError{
			Layer:  packet.LayerPayload,
			Field:  "payload_size",
			Value:  fmt.Sprint(cfg.PayloadSize),
			Reason: fmt.Sprintf("not in 0-%d", MaxPayloadSize),
		}
	}

	// ペイロードの生成（指定サイズ）
	payload := make(packet.Payload, cfg.PayloadSize)
	for i := range payload {
		payload[i] = byte(i % 256)
	}

	tpl, err := packet.Build(
		&packet.Ethernet{Src: cfg.SrcMAC, Dst: cfg.DstMAC},
		&packet.IPv4{Src: cfg.SrcIP, Dst: cfg.DstIP},
		&packet.UDP{SrcPort: cfg.SrcPort, DstPort: cfg.DstPort, Checksum: true},
		payload,
	)
	if err != nil {
		return nil, err
	}

	return stream.Assemble(tpl, nil, []vm.Instruction{}, stream.Continuous(cfg.PPS))
}
