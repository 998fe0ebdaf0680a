package vm

import (
	"math"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/takehaya/natperf/pkg/fieldvar"
	"github.com/takehaya/natperf/pkg/packet"
)

func testTemplate(t *testing.T, udpChecksum bool) *packet.Template {
	t.Helper()
	tpl, err := packet.Build(
		&packet.Ethernet{},
		&packet.IPv4{Dst: "2.2.0.1"},
		&packet.UDP{DstPort: "12", Checksum: udpChecksum},
	)
	require.NoError(t, err)
	return tpl
}

func testTuple(t *testing.T) *fieldvar.Variable {
	t.Helper()
	v, err := fieldvar.DefineTuple("tuple",
		fieldvar.IPRange{Min: netip.MustParseAddr("10.0.0.3"), Max: netip.MustParseAddr("10.1.134.162")},
		fieldvar.PortRange{Min: 1025, Max: 1124},
		10_000_000,
	)
	require.NoError(t, err)
	return v
}

func TestBindField(t *testing.T) {
	tpl := testTemplate(t, false)
	v := testTuple(t)

	ip, err := BindField(tpl, v, 0, 26)
	require.NoError(t, err)
	require.True(t, Write{
		Var:       "tuple",
		Component: 0,
		Ref:       "tuple.ip",
		Offset:    26,
		Width:     4,
		Field:     "IP.src",
		Checksums: []packet.LayerType{packet.LayerIPv4},
	}.Equal(ip), ip.String())

	port, err := BindField(tpl, v, 1, 34)
	require.NoError(t, err)
	require.Equal(t, "UDP.sport", port.Field)
	require.Empty(t, port.Checksums)
}

func TestBindField_WidthMismatch(t *testing.T) {
	tpl := testTemplate(t, false)
	v := testTuple(t)

	tests := []struct {
		name      string
		component int
		offset    int
		wantField string
	}{
		{name: "ip into port field", component: 0, offset: 34, wantField: "UDP.sport"},
		{name: "port into ip field", component: 1, offset: 26, wantField: "IP.src"},
		{name: "ip into ttl", component: 0, offset: 22, wantField: "IP.ttl"},
		{name: "unaligned ip", component: 0, offset: 27, wantField: "IP.src"},
		{name: "ip into padding", component: 0, offset: 50, wantField: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BindField(tpl, v, tt.component, tt.offset)

			var werr *FieldWidthMismatchError
			require.ErrorAs(t, err, &werr)
			require.Equal(t, tt.wantField, werr.Field, werr.Error())
		})
	}
}

func TestBindField_OffsetOutOfRange(t *testing.T) {
	tpl := testTemplate(t, false)
	v := testTuple(t)

	for _, offset := range []int{-1, 61, 64, 1000, math.MaxInt, math.MaxInt - 2} {
		_, err := BindField(tpl, v, 0, offset)

		var oerr *OffsetOutOfRangeError
		require.ErrorAs(t, err, &oerr, "offset %d", offset)
		require.Equal(t, 64, oerr.Len)
	}
}

func TestBindField_UnknownComponent(t *testing.T) {
	tpl := testTemplate(t, false)
	v := testTuple(t)

	_, err := BindField(tpl, v, 2, 26)
	require.ErrorIs(t, err, ErrUnknownComponent)

	_, err = BindField(nil, v, 0, 26)
	require.Error(t, err)
}

func TestBind_ByName(t *testing.T) {
	tpl := testTemplate(t, true)
	v := testTuple(t)

	ip, err := Bind(tpl, v, "tuple.ip", "IP.src")
	require.NoError(t, err)
	require.Equal(t, 26, ip.Offset)
	require.Equal(t, []packet.LayerType{packet.LayerIPv4, packet.LayerUDP}, ip.Checksums)

	port, err := Bind(tpl, v, "tuple.port", "UDP.sport")
	require.NoError(t, err)
	require.Equal(t, []packet.LayerType{packet.LayerUDP}, port.Checksums)

	_, err = Bind(tpl, v, "tuple.mac", "IP.src")
	require.ErrorIs(t, err, ErrUnknownComponent)

	_, err = Bind(tpl, v, "tuple.ip", "IP.nope")
	require.ErrorIs(t, err, ErrUnknownField)

	var werr *FieldWidthMismatchError
	_, err = Bind(tpl, v, "tuple.ip", "UDP.sport")
	require.ErrorAs(t, err, &werr)
}

func TestFix(t *testing.T) {
	plain := testTemplate(t, false)

	fix, err := FixIPv4(plain)
	require.NoError(t, err)
	require.Equal(t, FixChecksum{Layer: packet.LayerIPv4, Offset: 14}, fix)

	_, err = FixUDP(plain)
	require.ErrorIs(t, err, ErrNoChecksum)

	summed := testTemplate(t, true)
	fix, err = FixUDP(summed)
	require.NoError(t, err)
	require.Equal(t, FixChecksum{Layer: packet.LayerUDP, Offset: 34}, fix)

	_, err = Fix(summed, packet.LayerEthernet)
	require.ErrorIs(t, err, ErrNoChecksum)
}
