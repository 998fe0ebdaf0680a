package packet

import "fmt"

// InvalidLayerError reports a header descriptor that cannot be serialized.
type InvalidLayerError struct {
	Layer  LayerType
	Field  string
	Value  string
	Reason string
}

func (e *InvalidLayerError) Error() string {
	switch {
	case e.Field == "":
		return fmt.Sprintf("invalid %s layer: %s", e.Layer, e.Reason)
	case e.Value == "":
		return fmt.Sprintf("invalid %s layer: %s %s", e.Layer, e.Field, e.Reason)
	default:
		return fmt.Sprintf("invalid %s layer: %s %q is %s", e.Layer, e.Field, e.Value, e.Reason)
	}
}
