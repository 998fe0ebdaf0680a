package provider

import (
	"fmt"
	"strings"

	"github.com/mcuadros/go-defaults"
	"github.com/mitchellh/mapstructure"
)

// Decode fills out, a pointer to a struct, from its `default` tags and then
// from o. Keys match `mapstructure` tags, string values are converted to
// the field type, and unknown keys are rejected.
func (o Options) Decode(out any) error {
	defaults.SetDefaults(out)
	if len(o) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to create options decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(o)); err != nil {
		return fmt.Errorf("failed to decode options: %w", err)
	}
	return nil
}

// Merge returns a copy of o overlaid with other.
func (o Options) Merge(other Options) Options {
	out := make(Options, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// ParseOptions parses "key=value" pairs as given on the command line.
func ParseOptions(pairs []string) (Options, error) {
	opts := make(Options, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("option %q is not in key=value form", p)
		}
		opts[k] = strings.TrimSpace(v)
	}
	return opts, nil
}
