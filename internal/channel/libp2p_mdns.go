package channel

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/Mino75/broadcast-mesh/internal/logging"
)

type mdnsNotifee struct {
	host host.Host
	log  logging.Logger
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if err := n.host.Connect(context.Background(), info); err != nil {
		n.log.Warn(logging.Fields{"peer": info.ID.String(), "error": err.Error()}, "mdns connect failed")
	}
}
