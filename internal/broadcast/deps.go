package broadcast

import (
	"github.com/Mino75/broadcast-mesh/internal/channel"
	"github.com/Mino75/broadcast-mesh/internal/identity"
	"github.com/Mino75/broadcast-mesh/internal/logging"
	"github.com/Mino75/broadcast-mesh/internal/metrics"
	"github.com/Mino75/broadcast-mesh/internal/presence"
)

// Deps bundles the external collaborators spec §6 lists by interface: the
// pub/sub channel substrate, this node's identity, the presence registry,
// and a structured logger. Metrics is optional instrumentation on top of
// what the spec names; a nil Recorder is a valid, inert value.
type Deps struct {
	Bus      channel.Bus
	Self     identity.Self
	Presence presence.Registry
	Log      logging.Logger
	Metrics  *metrics.Recorder
}

func (d Deps) logger() logging.Logger {
	if d.Log == nil {
		return logging.Nop()
	}
	return d.Log
}
