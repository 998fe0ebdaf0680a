// Package profiles registers the built-in traffic profiles. Import it for
// its side effect:
//
//	import _ "github.com/takehaya/natperf/pkg/profiles"
package profiles

import (
	"github.com/takehaya/natperf/pkg/profiles/nat10m"
	"github.com/takehaya/natperf/pkg/profiles/simpleudp"
	"github.com/takehaya/natperf/pkg/provider"
)

func init() {
	provider.MustRegister(nat10m.Name, nat10m.Register)
	provider.MustRegister(simpleudp.Name, simpleudp.Register)
}
