package fieldvar

import "fmt"

// RangeError reports an empty or unordered range, a non-positive flow
// limit or a malformed variable declaration.
type RangeError struct {
	Variable  string
	Component string
	Reason    string
}

func (e *RangeError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("variable %q: %s", e.Variable, e.Reason)
	}
	return fmt.Sprintf("variable %q component %q: %s", e.Variable, e.Component, e.Reason)
}
