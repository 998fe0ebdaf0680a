package packet

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// MinFrameSize is the smallest frame a template may hold, FCS excluded.
const MinFrameSize = 64

const (
	ethernetHeaderLen = 14
	ipv4HeaderLen     = 20
	udpHeaderLen      = 8

	etherTypeExperimental  = layers.EthernetType(0x88b5)
	ipProtocolExperimental = layers.IPProtocol(253)
)

// LayerInfo locates one layer inside a template.
type LayerInfo struct {
	Type   LayerType
	Offset int
	Length int
}

// Field is a named, fixed-width header field inside a template.
// Checksums lists the layers whose checksum covers the field.
type Field struct {
	Name      string
	Layer     LayerType
	Offset    int
	Width     int
	Checksums []LayerType
}

// CoveredBy reports whether the checksum of layer t covers f.
func (f Field) CoveredBy(t LayerType) bool {
	return slices.Contains(f.Checksums, t)
}

type fieldDef struct {
	name   string
	offset int
	width  int
	pseudo bool // part of the UDP pseudo header
}

var (
	ethernetFields = []fieldDef{
		{name: "Ether.dst", offset: 0, width: 6},
		{name: "Ether.src", offset: 6, width: 6},
		{name: "Ether.type", offset: 12, width: 2},
	}
	ipv4Fields = []fieldDef{
		{name: "IP.ihl", offset: 0, width: 1},
		{name: "IP.tos", offset: 1, width: 1},
		{name: "IP.len", offset: 2, width: 2},
		{name: "IP.id", offset: 4, width: 2},
		{name: "IP.frag", offset: 6, width: 2},
		{name: "IP.ttl", offset: 8, width: 1},
		{name: "IP.proto", offset: 9, width: 1, pseudo: true},
		{name: "IP.chksum", offset: 10, width: 2},
		{name: "IP.src", offset: 12, width: 4, pseudo: true},
		{name: "IP.dst", offset: 16, width: 4, pseudo: true},
	}
	udpFields = []fieldDef{
		{name: "UDP.sport", offset: 0, width: 2},
		{name: "UDP.dport", offset: 2, width: 2},
		{name: "UDP.len", offset: 4, width: 2},
		{name: "UDP.chksum", offset: 6, width: 2},
	}
)

// Template is an immutable serialized frame together with its layer and
// field tables.
type Template struct {
	data        []byte
	content     int
	udpChecksum bool
	layers      []LayerInfo
	fields      []Field
}

// Build serializes layers into a template. The stack must be ordered
// Ethernet, IPv4, UDP with an optional trailing Payload; a frame shorter
// than MinFrameSize is padded with zeros up to exactly MinFrameSize.
func Build(stack ...Layer) (*Template, error) {
	if len(stack) == 0 {
		return nil, &InvalidLayerError{Layer: LayerEthernet, Reason: "required as the first layer"}
	}

	var (
		ser    []gopacket.SerializableLayer
		infos  []LayerInfo
		eth    *layers.Ethernet
		ip4    *layers.IPv4
		udpSum bool
		prev   LayerType
		offset int
	)
	for _, l := range stack {
		if l == nil {
			// 次に来るはずのレイヤーとして報告する
			return nil, nilDescriptor(min(prev+1, LayerPayload))
		}
		t := l.Type()
		if err := checkOrder(prev, t); err != nil {
			return nil, err
		}

		var length int
		switch d := l.(type) {
		case *Ethernet:
			if d == nil {
				return nil, nilDescriptor(t)
			}
			src, err := parseMAC(t, "src", d.Src, defaultSrcMAC)
			if err != nil {
				return nil, err
			}
			dst, err := parseMAC(t, "dst", d.Dst, defaultDstMAC)
			if err != nil {
				return nil, err
			}
			eth = &layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: etherTypeExperimental}
			ser = append(ser, eth)
			length = ethernetHeaderLen
		case *IPv4:
			if d == nil {
				return nil, nilDescriptor(t)
			}
			src, err := parseIPv4("src", d.Src, defaultSrcIP)
			if err != nil {
				return nil, err
			}
			dst, err := parseIPv4("dst", d.Dst, "")
			if err != nil {
				return nil, err
			}
			ttl := d.TTL
			if ttl == 0 {
				ttl = defaultTTL
			}
			ip4 = &layers.IPv4{
				Version:  4,
				IHL:      5,
				TTL:      ttl,
				Protocol: ipProtocolExperimental,
				SrcIP:    src.AsSlice(),
				DstIP:    dst.AsSlice(),
			}
			eth.EthernetType = layers.EthernetTypeIPv4
			ser = append(ser, ip4)
			length = ipv4HeaderLen
		case *UDP:
			if d == nil {
				return nil, nilDescriptor(t)
			}
			sport, err := parsePort("src_port", d.SrcPort, defaultSrcPort)
			if err != nil {
				return nil, err
			}
			dport, err := parsePort("dst_port", d.DstPort, "")
			if err != nil {
				return nil, err
			}
			udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
			// ComputeChecksums に必要なので常に設定する
			if err := udp.SetNetworkLayerForChecksum(ip4); err != nil {
				return nil, fmt.Errorf("failed to set network layer for checksum: %w", err)
			}
			ip4.Protocol = layers.IPProtocolUDP
			udpSum = d.Checksum
			ser = append(ser, udp)
			length = udpHeaderLen
		case Payload:
			ser = append(ser, gopacket.Payload(slices.Clone(d)))
			length = len(d)
		default:
			return nil, &InvalidLayerError{Layer: t, Reason: fmt.Sprintf("unsupported descriptor %T", l)}
		}

		infos = append(infos, LayerInfo{Type: t, Offset: offset, Length: length})
		offset += length
		prev = t
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ser...); err != nil {
		return nil, fmt.Errorf("failed to serialize template: %w", err)
	}

	// gopacket may already have padded the frame to 60 bytes
	data := slices.Clone(buf.Bytes())
	if len(data) < MinFrameSize {
		data = append(data, make([]byte, MinFrameSize-len(data))...)
	}

	tpl := &Template{
		data:        data,
		content:     offset,
		udpChecksum: udpSum,
		layers:      infos,
	}
	if info, ok := tpl.Layer(LayerUDP); ok && !udpSum {
		data[info.Offset+6] = 0
		data[info.Offset+7] = 0
	}
	tpl.fields = tpl.buildFields()
	return tpl, nil
}

func nilDescriptor(t LayerType) error {
	return &InvalidLayerError{Layer: t, Reason: "nil descriptor"}
}

func checkOrder(prev, t LayerType) error {
	switch t {
	case LayerEthernet, LayerIPv4, LayerUDP:
		if t != prev+1 {
			if prev == 0 {
				return &InvalidLayerError{Layer: LayerEthernet, Reason: "required as the first layer"}
			}
			return &InvalidLayerError{Layer: t, Reason: fmt.Sprintf("cannot follow %s", prev)}
		}
	case LayerPayload:
		if prev == 0 {
			return &InvalidLayerError{Layer: LayerEthernet, Reason: "required as the first layer"}
		}
		if prev == LayerPayload {
			return &InvalidLayerError{Layer: t, Reason: "must be the last layer"}
		}
	default:
		return &InvalidLayerError{Layer: t, Reason: "unknown layer type"}
	}
	return nil
}

func (t *Template) buildFields() []Field {
	var fields []Field
	for _, info := range t.layers {
		var defs []fieldDef
		switch info.Type {
		case LayerEthernet:
			defs = ethernetFields
		case LayerIPv4:
			defs = ipv4Fields
		case LayerUDP:
			defs = udpFields
		}
		for _, d := range defs {
			var sums []LayerType
			switch info.Type {
			case LayerIPv4:
				sums = append(sums, LayerIPv4)
				if d.pseudo && t.udpChecksum {
					sums = append(sums, LayerUDP)
				}
			case LayerUDP:
				if t.udpChecksum {
					sums = append(sums, LayerUDP)
				}
			}
			fields = append(fields, Field{
				Name:      d.name,
				Layer:     info.Type,
				Offset:    info.Offset + d.offset,
				Width:     d.width,
				Checksums: sums,
			})
		}
	}
	return fields
}

// Len returns the frame length including padding.
func (t *Template) Len() int { return len(t.data) }

// ContentLen returns the length of headers plus explicit payload.
func (t *Template) ContentLen() int { return t.content }

// PadLen returns the number of zero bytes appended to reach MinFrameSize.
func (t *Template) PadLen() int { return len(t.data) - t.content }

// Bytes returns a copy of the serialized frame.
func (t *Template) Bytes() []byte { return slices.Clone(t.data) }

func (t *Template) Layers() []LayerInfo { return slices.Clone(t.layers) }

func (t *Template) Layer(typ LayerType) (LayerInfo, bool) {
	for _, info := range t.layers {
		if info.Type == typ {
			return info, true
		}
	}
	return LayerInfo{}, false
}

func (t *Template) Fields() []Field {
	out := make([]Field, len(t.fields))
	for i, f := range t.fields {
		f.Checksums = slices.Clone(f.Checksums)
		out[i] = f
	}
	return out
}

// Field looks a header field up by name, e.g. "IP.src".
func (t *Template) Field(name string) (Field, bool) {
	for _, f := range t.fields {
		if f.Name == name {
			f.Checksums = slices.Clone(f.Checksums)
			return f, true
		}
	}
	return Field{}, false
}

// FieldAt returns the header field containing offset.
func (t *Template) FieldAt(offset int) (Field, bool) {
	for _, f := range t.fields {
		if offset >= f.Offset && offset < f.Offset+f.Width {
			f.Checksums = slices.Clone(f.Checksums)
			return f, true
		}
	}
	return Field{}, false
}

// ChecksumLayers returns the layers carrying a checksum, in stack order.
func (t *Template) ChecksumLayers() []LayerType {
	var out []LayerType
	for _, info := range t.layers {
		switch {
		case info.Type == LayerIPv4:
			out = append(out, LayerIPv4)
		case info.Type == LayerUDP && t.udpChecksum:
			out = append(out, LayerUDP)
		}
	}
	return out
}

// Equal reports whether both templates hold the same frame and layout.
func (t *Template) Equal(o *Template) bool {
	if t == nil || o == nil {
		return t == o
	}
	return bytes.Equal(t.data, o.data) &&
		t.content == o.content &&
		t.udpChecksum == o.udpChecksum &&
		slices.Equal(t.layers, o.layers)
}
