package sim

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"sync"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takehaya/natperf/pkg/fieldvar"
	"github.com/takehaya/natperf/pkg/packet"
	"github.com/takehaya/natperf/pkg/profiles/nat10m"
	"github.com/takehaya/natperf/pkg/provider"
	"github.com/takehaya/natperf/pkg/stream"
	"github.com/takehaya/natperf/pkg/vm"
)

func natStream(t *testing.T, opts provider.Options) *stream.Stream {
	t.Helper()
	streams, err := nat10m.Register().GetStreams(0, opts)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	return streams[0]
}

// udpStream is the NAT layout with a UDP checksum, so both checksums need
// fixing after every write.
func udpStream(t *testing.T, limit uint64) *stream.Stream {
	t.Helper()
	tpl, err := packet.Build(
		&packet.Ethernet{},
		&packet.IPv4{Dst: "2.2.0.1"},
		&packet.UDP{DstPort: "12", Checksum: true},
		packet.Payload("natperf"),
	)
	require.NoError(t, err)
	tuple, err := fieldvar.DefineTuple("tuple",
		fieldvar.IPRange{Min: netip.MustParseAddr("10.0.0.250"), Max: netip.MustParseAddr("10.0.1.4")},
		fieldvar.PortRange{Min: 1025, Max: 1027},
		limit,
	)
	require.NoError(t, err)

	ip, err := vm.Bind(tpl, tuple, "tuple.ip", "IP.src")
	require.NoError(t, err)
	port, err := vm.Bind(tpl, tuple, "tuple.port", "UDP.sport")
	require.NoError(t, err)
	fixIP, err := vm.FixIPv4(tpl)
	require.NoError(t, err)
	fixUDP, err := vm.FixUDP(tpl)
	require.NoError(t, err)

	s, err := stream.Assemble(tpl, []*fieldvar.Variable{tuple},
		[]vm.Instruction{ip, port, fixIP, fixUDP}, stream.Continuous(0))
	require.NoError(t, err)
	return s
}

func decode(t *testing.T, frame []byte) (*layers.IPv4, *layers.UDP) {
	t.Helper()
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())
	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)
	return ip, udp
}

func TestPacket_NAT(t *testing.T) {
	s := natStream(t, nil)
	it := New(s)

	tests := []struct {
		seq   uint64
		srcIP string
		sport layers.UDPPort
	}{
		{seq: 0, srcIP: "10.0.0.3", sport: 1025},
		{seq: 1, srcIP: "10.0.0.4", sport: 1025},
		{seq: 253, srcIP: "10.0.1.0", sport: 1025},
		{seq: 99_999, srcIP: "10.1.134.162", sport: 1025},
		{seq: 100_000, srcIP: "10.0.0.3", sport: 1026},
		{seq: 9_999_999, srcIP: "10.1.134.162", sport: 1124},
		{seq: 10_000_000, srcIP: "10.0.0.3", sport: 1025},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.seq), func(t *testing.T) {
			frame, ok := it.Packet(tt.seq)
			require.True(t, ok)
			require.Len(t, frame, 64)

			ip, udp := decode(t, frame)
			assert.Equal(t, tt.srcIP, ip.SrcIP.String())
			assert.Equal(t, "2.2.0.1", ip.DstIP.String())
			assert.Equal(t, tt.sport, udp.SrcPort)
			assert.Equal(t, layers.UDPPort(12), udp.DstPort)
			assert.Zero(t, udp.Checksum)

			hdr := frame[14:34]
			assert.Equal(t, packet.IPv4Checksum(hdr), binary.BigEndian.Uint16(hdr[10:12]))
			assert.Equal(t, make([]byte, 22), frame[42:])
		})
	}
}

func TestPacket_DistinctThenWrap(t *testing.T) {
	s := natStream(t, provider.Options{
		"ip_min":      "10.0.0.1",
		"ip_max":      "10.0.0.5",
		"port_min":    "1000",
		"port_max":    "1003",
		"limit_flows": "20",
	})
	it := New(s)
	require.Equal(t, uint64(20), it.Flows())

	seen := make(map[string]uint64)
	for seq := uint64(0); seq < it.Flows(); seq++ {
		frame, ok := it.Packet(seq)
		require.True(t, ok)
		ip, udp := decode(t, frame)
		key := fmt.Sprintf("%s:%d", ip.SrcIP, udp.SrcPort)
		prev, dup := seen[key]
		require.False(t, dup, "seq %d repeats the tuple of seq %d", seq, prev)
		seen[key] = seq
	}

	first, _ := it.Packet(0)
	again, ok := it.Packet(it.Flows())
	require.True(t, ok)
	assert.Equal(t, first, again)
}

func TestPacket_Halting(t *testing.T) {
	s := natStream(t, provider.Options{"limit_flows": 3})
	it := New(s, WithEnumerator(fieldvar.HaltingWalk{}))

	for seq := uint64(0); seq < 3; seq++ {
		_, ok := it.Packet(seq)
		assert.True(t, ok)
	}
	frame, ok := it.Packet(3)
	assert.False(t, ok)
	assert.Nil(t, frame)
}

// portsStream writes a 2-flow variable into UDP.sport and a 4-flow
// variable into UDP.dport.
func portsStream(t *testing.T) *stream.Stream {
	t.Helper()
	tpl, err := packet.Build(&packet.Ethernet{}, &packet.IPv4{Dst: "1.1.1.1"}, &packet.UDP{DstPort: "9"})
	require.NoError(t, err)

	sport, err := fieldvar.Define("sport", 2, fieldvar.Component{Name: "port", Width: 2, Range: fieldvar.Range{Min: 100, Max: 101}})
	require.NoError(t, err)
	dport, err := fieldvar.Define("dport", 4, fieldvar.Component{Name: "port", Width: 2, Range: fieldvar.Range{Min: 200, Max: 203}})
	require.NoError(t, err)

	ws, err := vm.Bind(tpl, sport, "sport.port", "UDP.sport")
	require.NoError(t, err)
	wd, err := vm.Bind(tpl, dport, "dport.port", "UDP.dport")
	require.NoError(t, err)

	s, err := stream.Assemble(tpl, []*fieldvar.Variable{sport, dport}, []vm.Instruction{ws, wd}, stream.Continuous(0))
	require.NoError(t, err)
	return s
}

func TestPacket_MultipleVariables(t *testing.T) {
	it := New(portsStream(t))
	require.Equal(t, uint64(8), it.Flows())

	ports := func(seq uint64) [2]uint16 {
		frame, ok := it.Packet(seq)
		require.True(t, ok)
		_, udp := decode(t, frame)
		return [2]uint16{uint16(udp.SrcPort), uint16(udp.DstPort)}
	}

	assert.Equal(t, [2]uint16{100, 200}, ports(0))
	assert.Equal(t, [2]uint16{101, 200}, ports(1))
	assert.Equal(t, [2]uint16{100, 201}, ports(2))
	assert.Equal(t, [2]uint16{101, 203}, ports(7))

	seen := make(map[[2]uint16]struct{})
	for seq := uint64(0); seq < 100; seq++ {
		seen[ports(seq)] = struct{}{}
	}
	assert.Len(t, seen, int(it.Flows()))
	assert.Equal(t, ports(3), ports(3+it.Flows()))
}

func TestPacket_MultipleVariablesHalting(t *testing.T) {
	it := New(portsStream(t), WithEnumerator(fieldvar.HaltingWalk{}))
	for seq := uint64(0); seq < 8; seq++ {
		_, ok := it.Packet(seq)
		require.True(t, ok, "seq %d", seq)
	}
	_, ok := it.Packet(8)
	assert.False(t, ok)
}

func TestPacket_MatchesFreshBuild(t *testing.T) {
	s := udpStream(t, 100)
	it := New(s)
	tuple, _ := s.Variable("tuple")

	for seq := uint64(0); seq < tuple.Flows(); seq++ {
		values, _ := fieldvar.CyclicWalk{}.Tuple(tuple, seq)
		want, err := packet.Build(
			&packet.Ethernet{},
			&packet.IPv4{Src: fieldvar.UintToAddr(values[0]).String(), Dst: "2.2.0.1"},
			&packet.UDP{SrcPort: fmt.Sprint(values[1]), DstPort: "12", Checksum: true},
			packet.Payload("natperf"),
		)
		require.NoError(t, err)

		got, ok := it.Packet(seq)
		require.True(t, ok)
		require.Equal(t, want.Bytes(), got, "seq %d", seq)
	}
}

func TestPacket_NoVariables(t *testing.T) {
	tpl, err := packet.Build(&packet.Ethernet{}, &packet.IPv4{Dst: "1.1.1.1"}, &packet.UDP{DstPort: "9"})
	require.NoError(t, err)
	s, err := stream.Assemble(tpl, nil, nil, stream.Continuous(0))
	require.NoError(t, err)

	it := New(s)
	assert.Equal(t, uint64(1), it.Flows())
	for _, seq := range []uint64{0, 1, 1 << 40} {
		frame, ok := it.Packet(seq)
		require.True(t, ok)
		assert.Equal(t, tpl.Bytes(), frame)
	}
}

func TestPacket_Concurrent(t *testing.T) {
	s := udpStream(t, 15)
	it := New(s)

	want := make([][]byte, 15)
	for i := range want {
		want[i], _ = it.Packet(uint64(i))
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range want {
				got, _ := it.Packet(uint64(i))
				assert.Equal(t, want[i], got)
			}
		}()
	}
	wg.Wait()
}

func TestPutUint(t *testing.T) {
	b := make([]byte, 4)
	putUint(b, 0x0a000003)
	assert.Equal(t, []byte{10, 0, 0, 3}, b)

	b = make([]byte, 2)
	putUint(b, 1025)
	assert.Equal(t, []byte{0x04, 0x01}, b)
}
