package channel

import (
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/Mino75/broadcast-mesh/internal/metrics"
)

// topicRegistry owns the set of gossipsub topics a LibP2PBus has joined,
// kept on its own lock rather than sharing the bus struct's so a slow
// Join/Close on one topic can't contend with host-level bookkeeping.
type topicRegistry struct {
	mu     sync.Mutex
	ps     *pubsub.PubSub
	byName map[string]*pubsub.Topic
	rec    *metrics.Recorder
}

func newTopicRegistry(ps *pubsub.PubSub, rec *metrics.Recorder) *topicRegistry {
	return &topicRegistry{ps: ps, byName: make(map[string]*pubsub.Topic), rec: rec}
}

func (r *topicRegistry) getOrJoin(name string) (*pubsub.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byName[name]; ok {
		return t, nil
	}
	t, err := r.ps.Join(name)
	if err != nil {
		return nil, err
	}
	r.byName[name] = t
	r.rec.TopicJoined(libp2pTransport)
	return t, nil
}

func (r *topicRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.byName {
		_ = t.Close()
		delete(r.byName, name)
	}
}
