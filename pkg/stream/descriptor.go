package stream

import (
	"encoding/hex"
	"fmt"

	"github.com/takehaya/natperf/pkg/fieldvar"
	"github.com/takehaya/natperf/pkg/packet"
)

// DescriptorVersion is bumped whenever the descriptor layout changes.
const DescriptorVersion = "1"

// Descriptor is the serialized form of a Stream handed to an external
// interpreter. For every packet instance the interpreter enumerates one
// tuple per variable, applies every modifier, recomputes every checksum and
// transmits the result.
type Descriptor struct {
	Version  string       `json:"version" yaml:"version"`
	Template TemplateData `json:"template" yaml:"template"`
	Mode     ModeDef      `json:"mode" yaml:"mode"`
}

// TemplateData はパケットテンプレートデータ
type TemplateData struct {
	BasePacket BasePacketDef     `json:"base_packet" yaml:"base_packet"`
	Layers     []LayerDefinition `json:"layers" yaml:"layers"`
	Variables  []VariableDef     `json:"variables" yaml:"variables"`
	Modifiers  []ModifierDef     `json:"modifiers" yaml:"modifiers"`
	Checksums  []ChecksumDef     `json:"checksums" yaml:"checksums"`
}

type BasePacketDef struct {
	Type      string `json:"type" yaml:"type"` // always "hex"
	Data      string `json:"data" yaml:"data"`
	Length    uint16 `json:"length" yaml:"length"`
	PadLength uint16 `json:"pad_length" yaml:"pad_length"`
}

type LayerDefinition struct {
	Type   string              `json:"type" yaml:"type"` // "ethernet", "ipv4", "udp", "payload"
	Offset uint16              `json:"offset" yaml:"offset"`
	Length uint16              `json:"length" yaml:"length"`
	Fields map[string]FieldDef `json:"fields,omitempty" yaml:"fields,omitempty"`
}

type FieldDef struct {
	Offset    uint16   `json:"offset" yaml:"offset"`
	Length    uint16   `json:"length" yaml:"length"`
	Checksums []string `json:"checksums,omitempty" yaml:"checksums,omitempty"`
}

// VariableDef declares a bounded generator. Tuples are walked with the
// first component varying fastest; the first Flows tuples are distinct.
type VariableDef struct {
	Name       string         `json:"name" yaml:"name"`
	Order      string         `json:"order" yaml:"order"`
	LimitFlows uint64         `json:"limit_flows" yaml:"limit_flows"`
	Flows      uint64         `json:"flows" yaml:"flows"`
	Components []ComponentDef `json:"components" yaml:"components"`
}

// ComponentDef describes one component. MinText and MaxText carry the
// dotted form of IPv4 components.
type ComponentDef struct {
	Ref     string `json:"ref" yaml:"ref"`
	Width   int    `json:"width" yaml:"width"`
	Min     uint64 `json:"min" yaml:"min"`
	Max     uint64 `json:"max" yaml:"max"`
	MinText string `json:"min_text,omitempty" yaml:"min_text,omitempty"`
	MaxText string `json:"max_text,omitempty" yaml:"max_text,omitempty"`
}

// ModifierDef はモディファイア定義
type ModifierDef struct {
	Target    ModifierTarget    `json:"target" yaml:"target"`
	Operation ModifierOperation `json:"operation" yaml:"operation"`
}

type ModifierTarget struct {
	Layer  string `json:"layer" yaml:"layer"`
	Field  string `json:"field" yaml:"field"`
	Offset uint16 `json:"offset" yaml:"offset"`
	Length uint16 `json:"length" yaml:"length"`
}

type ModifierOperation struct {
	Type     string `json:"type" yaml:"type"` // always "write"
	Variable string `json:"variable" yaml:"variable"`
	DataType string `json:"data_type" yaml:"data_type"`
	Endian   string `json:"endian" yaml:"endian"`
}

// ChecksumDef はチェックサム定義
type ChecksumDef struct {
	Layer      string `json:"layer" yaml:"layer"`
	Offset     uint16 `json:"offset" yaml:"offset"`
	AutoUpdate bool   `json:"auto_update" yaml:"auto_update"`
	Algorithm  string `json:"algorithm" yaml:"algorithm"`
}

type ModeDef struct {
	Type string  `json:"type" yaml:"type"`
	PPS  float64 `json:"pps" yaml:"pps"`
}

// Descriptor renders s for an external interpreter.
func (s *Stream) Descriptor() Descriptor {
	tpl := s.template

	layers := make([]LayerDefinition, 0, len(tpl.Layers()))
	for _, info := range tpl.Layers() {
		layers = append(layers, LayerDefinition{
			Type:   info.Type.String(),
			Offset: uint16(info.Offset),
			Length: uint16(info.Length),
		})
	}
	for _, f := range tpl.Fields() {
		for i := range layers {
			if layers[i].Type != f.Layer.String() {
				continue
			}
			if layers[i].Fields == nil {
				layers[i].Fields = make(map[string]FieldDef)
			}
			layers[i].Fields[f.Name] = FieldDef{
				Offset:    uint16(f.Offset),
				Length:    uint16(f.Width),
				Checksums: layerNames(f.Checksums),
			}
		}
	}

	vars := make([]VariableDef, 0, len(s.variables))
	for _, v := range s.variables {
		def := VariableDef{
			Name:       v.Name(),
			Order:      "first_component_fastest",
			LimitFlows: v.Limit(),
			Flows:      v.Flows(),
		}
		for i, c := range v.Components() {
			cd := ComponentDef{Ref: v.Ref(i), Width: c.Width, Min: c.Range.Min, Max: c.Range.Max}
			if c.Name == fieldvar.TupleIP && c.Width == 4 {
				cd.MinText = fieldvar.UintToAddr(c.Range.Min).String()
				cd.MaxText = fieldvar.UintToAddr(c.Range.Max).String()
			}
			def.Components = append(def.Components, cd)
		}
		vars = append(vars, def)
	}

	mods := make([]ModifierDef, 0, len(s.writes))
	for _, w := range s.writes {
		f, _ := tpl.Field(w.Field)
		mods = append(mods, ModifierDef{
			Target: ModifierTarget{
				Layer:  f.Layer.String(),
				Field:  w.Field,
				Offset: uint16(w.Offset),
				Length: uint16(w.Width),
			},
			Operation: ModifierOperation{
				Type:     "write",
				Variable: w.Ref,
				DataType: fmt.Sprintf("uint%d", w.Width*8),
				Endian:   "big",
			},
		})
	}

	sums := make([]ChecksumDef, 0, len(s.fixups))
	for _, f := range s.fixups {
		sums = append(sums, ChecksumDef{
			Layer:      f.Layer.String(),
			Offset:     uint16(f.Offset),
			AutoUpdate: true,
			Algorithm:  "rfc1071",
		})
	}

	return Descriptor{
		Version: DescriptorVersion,
		Template: TemplateData{
			BasePacket: BasePacketDef{
				Type:      "hex",
				Data:      hex.EncodeToString(tpl.Bytes()),
				Length:    uint16(tpl.Len()),
				PadLength: uint16(tpl.PadLen()),
			},
			Layers:    layers,
			Variables: vars,
			Modifiers: mods,
			Checksums: sums,
		},
		Mode: ModeDef{Type: s.mode.Kind.String(), PPS: s.mode.PPS},
	}
}

func layerNames(ts []packet.LayerType) []string {
	if len(ts) == 0 {
		return nil
	}
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}
