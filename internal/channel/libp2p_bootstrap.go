package channel

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"

	"github.com/Mino75/broadcast-mesh/internal/logging"
)

// dialBootstrapPeers connects to every bootstrap address concurrently
// rather than one at a time, so a handful of unreachable peers don't hold
// up the ones that are reachable. Individual dial failures are logged and
// never fail the group; there is no bootstrap peer whose presence is
// required for the bus to come up.
func dialBootstrapPeers(ctx context.Context, h host.Host, addrs []string, log logging.Logger) {
	var g errgroup.Group
	for _, raw := range addrs {
		if raw == "" {
			continue
		}
		raw := raw
		g.Go(func() error {
			addr, err := ma.NewMultiaddr(raw)
			if err != nil {
				log.Warn(logging.Fields{"addr": raw, "error": err.Error()}, "skip bootstrap addr")
				return nil
			}
			info, err := peer.AddrInfoFromP2pAddr(addr)
			if err != nil {
				log.Warn(logging.Fields{"addr": raw, "error": err.Error()}, "skip bootstrap addr")
				return nil
			}
			if err := h.Connect(ctx, *info); err != nil {
				log.Warn(logging.Fields{"peer": info.ID.String(), "error": err.Error()}, "bootstrap connect failed")
				return nil
			}
			log.Trace(logging.Fields{"peer": info.ID.String()}, "connected bootstrap peer")
			return nil
		})
	}
	_ = g.Wait()
}
