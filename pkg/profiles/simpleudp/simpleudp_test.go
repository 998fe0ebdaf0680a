package simpleudp

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takehaya/natperf/pkg/packet"
	"github.com/takehaya/natperf/pkg/provider"
)

func TestGetStreams(t *testing.T) {
	streams, err := Register().GetStreams(1, nil)
	require.NoError(t, err)
	require.Len(t, streams, 1)

	s := streams[0]
	assert.Empty(t, s.Variables())
	assert.Empty(t, s.Writes())
	assert.Empty(t, s.Fixups())

	tpl := s.Template()
	assert.Equal(t, 14+20+8+1024, tpl.Len())
	assert.Zero(t, tpl.PadLen())

	pkt := gopacket.NewPacket(tpl.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.1", ip.SrcIP.String())
	assert.Equal(t, "192.168.1.2", ip.DstIP.String())

	udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)
	assert.Equal(t, layers.UDPPort(1234), udp.SrcPort)
	assert.Equal(t, layers.UDPPort(5678), udp.DstPort)
	assert.NotZero(t, udp.Checksum)

	require.Len(t, udp.Payload, 1024)
	assert.Equal(t, byte(255), udp.Payload[255])
	assert.Equal(t, byte(0), udp.Payload[256])
}

func TestGetStreams_Options(t *testing.T) {
	streams, err := Register().GetStreams(0, provider.Options{
		"src_ip":       "10.0.0.1",
		"dst_port":     53,
		"payload_size": "0",
		"pps":          1000,
	})
	require.NoError(t, err)

	tpl := streams[0].Template()
	assert.Equal(t, packet.MinFrameSize, tpl.Len())
	assert.Equal(t, 42, tpl.ContentLen())
	assert.Equal(t, float64(1000), streams[0].Mode().PPS)

	udpLayer, ok := tpl.Layer(packet.LayerUDP)
	require.True(t, ok)
	assert.Equal(t, 34, udpLayer.Offset)
	assert.Contains(t, tpl.ChecksumLayers(), packet.LayerUDP)
}

func TestGetStreams_Errors(t *testing.T) {
	tests := []struct {
		name string
		dir  int
		opts provider.Options
	}{
		{name: "direction", dir: 3},
		{name: "payload too large", opts: provider.Options{"payload_size": MaxPayloadSize + 1}},
		{name: "negative payload", opts: provider.Options{"payload_size": -1}},
		{name: "bad port", opts: provider.Options{"src_port": "70000"}},
		{name: "bad mac", opts: provider.Options{"dst_mac": "zz"}},
		{name: "unknown key", opts: provider.Options{"count": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Register().GetStreams(tt.dir, tt.opts)
			assert.Error(t, err)
		})
	}
}
