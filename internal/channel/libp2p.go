package channel

import (
	"context"
	"fmt"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/Mino75/broadcast-mesh/internal/logging"
	"github.com/Mino75/broadcast-mesh/internal/metrics"
)

const libp2pTransport = "libp2p"

// LibP2POptions configures the libp2p transport.
type LibP2POptions struct {
	ListenAddrs     []string
	Bootstrap       []string
	Rendezvous      string
	EnableMDNS      bool
	IdentityKeyFile string
	Metrics         *metrics.Recorder
}

// LibP2PBus provides gossip-based broadcast over libp2p. It is the Bus a
// broadcast.Listen/broadcast.Request pair runs over once conversations
// cross process boundaries; topic bookkeeping lives in a separate
// topicRegistry rather than on the bus struct itself, so joining, closing,
// and counting topics don't compete for the same lock as host/pubsub setup.
type LibP2PBus struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logging.Logger
	rec    *metrics.Recorder

	host   host.Host
	ps     *pubsub.PubSub
	topics *topicRegistry
}

func NewLibP2PBus(parent context.Context, opts LibP2POptions, log logging.Logger) (*LibP2PBus, error) {
	ctx, cancel := context.WithCancel(parent)

	listenAddrs, err := parseListenAddrs(opts.ListenAddrs)
	if err != nil {
		cancel()
		return nil, err
	}

	libp2pOpts := []libp2p.Option{libp2p.ListenAddrs(listenAddrs...)}
	if opts.IdentityKeyFile != "" {
		key, err := loadOrCreateIdentityKey(opts.IdentityKeyFile)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("load identity key: %w", err)
		}
		libp2pOpts = append(libp2pOpts, libp2p.Identity(key))
	}

	h, err := libp2p.New(libp2pOpts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	b := &LibP2PBus{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		rec:    opts.Metrics,
		host:   h,
		ps:     ps,
		topics: newTopicRegistry(ps, opts.Metrics),
	}

	if opts.EnableMDNS {
		service := mdns.NewMdnsService(h, opts.Rendezvous, &mdnsNotifee{host: h, log: log})
		if err := service.Start(); err != nil {
			log.Warn(logging.Fields{"error": err.Error()}, "mdns start failed")
		}
	}

	dialBootstrapPeers(ctx, h, opts.Bootstrap, log)

	return b, nil
}

func (b *LibP2PBus) Publish(topic string, payload []byte) error {
	t, err := b.topics.getOrJoin(topic)
	if err != nil {
		return err
	}
	if err := t.Publish(b.ctx, payload); err != nil {
		b.rec.MessageDropped(libp2pTransport)
		return err
	}
	b.rec.MessagePublished(libp2pTransport)
	return nil
}

func (b *LibP2PBus) Subscribe(topic string) (<-chan Message, func(), error) {
	t, err := b.topics.getOrJoin(topic)
	if err != nil {
		return nil, nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Message, 64)
	subCtx, subCancel := context.WithCancel(b.ctx)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(subCtx)
			if err != nil {
				return
			}
			select {
			case out <- Message{Topic: topic, Payload: append([]byte(nil), msg.Data...)}:
			default:
				b.rec.MessageDropped(libp2pTransport)
			}
		}
	}()

	cancel := func() {
		subCancel()
		sub.Cancel()
	}
	return out, cancel, nil
}

// Close tears down every joined topic and the underlying libp2p host.
func (b *LibP2PBus) Close() error {
	b.cancel()
	b.topics.closeAll()
	return b.host.Close()
}

// Hostname identifies this node for the broadcast identity.Self interface:
// the libp2p peer id is stable for the process lifetime, exactly the
// contract spec §6 asks of self.hostname().
func (b *LibP2PBus) Hostname() string {
	return b.host.ID().String()
}

func (b *LibP2PBus) ListenAddrs() []string {
	out := make([]string, 0, len(b.host.Addrs()))
	for _, addr := range b.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", addr.String(), b.host.ID().String()))
	}
	return out
}

func (b *LibP2PBus) ConnectedPeers() []string {
	peers := b.host.Network().Peers()
	out := make([]string, 0, len(peers))
	for _, pid := range peers {
		out = append(out, pid.String())
	}
	return out
}

func parseListenAddrs(raw []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid listen multiaddr %q: %w", s, err)
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		a, _ := ma.NewMultiaddr("/ip4/0.0.0.0/tcp/0")
		out = append(out, a)
	}
	return out, nil
}
