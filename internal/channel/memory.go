package channel

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Mino75/broadcast-mesh/internal/metrics"
)

const memoryTransport = "memory"

// subscription is one subscriber's mailbox on a topic. close is idempotent
// via once so a caller invoking the cancel function it was handed more than
// once never double-closes ch.
type subscription struct {
	id   string
	ch   chan Message
	once sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// MemoryBus is a process-local Bus for conversations that never leave the
// current process (tests, or a node with no peers to reach). Topics keep an
// ordered slice of subscriptions rather than a map keyed by subscriber id,
// and every publish/drop/topic-join is optionally counted through a
// metrics.Recorder so its backpressure is observable the same way the
// libp2p transport's is.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*subscription

	metrics *metrics.Recorder
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*subscription)}
}

// WithMetrics attaches a recorder for publish/drop/topic-join accounting
// and returns the bus, so construction can stay a one-liner at call sites.
func (m *MemoryBus) WithMetrics(rec *metrics.Recorder) *MemoryBus {
	m.metrics = rec
	return m
}

func (m *MemoryBus) Publish(topic string, payload []byte) error {
	m.mu.RLock()
	subs := m.subs[topic]
	m.mu.RUnlock()

	for _, sub := range subs {
		msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
		select {
		case sub.ch <- msg:
			m.metrics.MessagePublished(memoryTransport)
		default:
			// A subscriber's mailbox is full; drop rather than block every
			// other publisher and subscriber sharing this topic.
			m.metrics.MessageDropped(memoryTransport)
		}
	}
	return nil
}

func (m *MemoryBus) Subscribe(topic string) (<-chan Message, func(), error) {
	m.mu.Lock()
	if _, ok := m.subs[topic]; !ok {
		m.metrics.TopicJoined(memoryTransport)
	}
	sub := &subscription{id: uuid.NewString(), ch: make(chan Message, 64)}
	m.subs[topic] = append(m.subs[topic], sub)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		remaining := m.subs[topic][:0]
		for _, s := range m.subs[topic] {
			if s.id != sub.id {
				remaining = append(remaining, s)
			}
		}
		if len(remaining) == 0 {
			delete(m.subs, topic)
		} else {
			m.subs[topic] = remaining
		}
		m.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel, nil
}
