package broadcast

import (
	"fmt"
	"sync"

	"github.com/Mino75/broadcast-mesh/internal/channel"
	"github.com/Mino75/broadcast-mesh/internal/frame"
	"github.com/Mino75/broadcast-mesh/internal/logging"
	"github.com/Mino75/broadcast-mesh/internal/naming"
)

// Handler is invoked once per inbound request frame, after this listener has
// already acked it. body is forwarded verbatim; the listener never
// interprets it (spec §4.1). reply is the per-request reply channel, guarded
// by its own closed flag.
type Handler func(body []byte, reply *ReplyChannel)

// Listener subscribes to one name's request channel and dispatches each
// inbound request to a Handler, the way tetrisroom.Manager.startSync
// subscribes to shared topics and dispatches decoded events.
type Listener struct {
	deps Deps
	name string

	unsubscribe func()
}

// Listen subscribes to name's request channel. The subscription is active
// by the time Listen returns without error (spec §4.1's single `listen`
// event, folded into this synchronous call).
func Listen(deps Deps, name string, handler Handler) (*Listener, error) {
	if handler == nil {
		return nil, ErrInvalidArgument
	}
	topic := naming.RequestChannel(name)
	ch, cancel, err := deps.Bus.Subscribe(topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe request channel %q: %w", topic, err)
	}

	l := &Listener{deps: deps, name: name, unsubscribe: cancel}
	go l.run(ch, handler)
	return l, nil
}

// Close unsubscribes from the request channel. It is safe to call more than
// once; the underlying channel.Bus cancel function is itself idempotent.
func (l *Listener) Close() error {
	l.unsubscribe()
	return nil
}

func (l *Listener) run(ch <-chan channel.Message, handler Handler) {
	for msg := range ch {
		l.handleRequest(msg, handler)
	}
}

func (l *Listener) handleRequest(msg channel.Message, handler Handler) {
	log := l.deps.logger()
	f, err := frame.Decode(msg.Payload)
	if err != nil {
		log.Warn(logging.Fields{"topic": msg.Topic, "error": err.Error()}, "dropping undecodable request frame")
		return
	}
	if f.Type != frame.Request {
		return
	}

	reply := newReplyChannel(l.deps.Bus, l.deps.Self.Hostname(), l.name, f.BroadcastID, log)
	ack := frame.Frame{Type: frame.Ack, Host: reply.host}
	encoded, err := frame.Encode(ack)
	if err != nil {
		log.Warn(logging.Fields{"broadcast_id": f.BroadcastID, "error": err.Error()}, "encode ack failed, dropping request")
		return
	}
	if err := l.deps.Bus.Publish(reply.topic, encoded); err != nil {
		log.Warn(logging.Fields{"broadcast_id": f.BroadcastID, "error": err.Error()}, "ack publish failed, dropping request")
		return
	}

	handler(f.Body, reply)
}

// ReplyChannel is the per-request stream a Handler uses to stream data
// frames back and signal completion. Once End has been called, Reply always
// fails with ErrAfterEnd and never publishes (spec invariants 1-2).
type ReplyChannel struct {
	mu     sync.Mutex
	closed bool

	host  string
	topic string
	bus   channel.Bus
	log   logging.Logger
}

func newReplyChannel(bus channel.Bus, host, name, broadcastID string, log logging.Logger) *ReplyChannel {
	return &ReplyChannel{
		host:  host,
		topic: naming.ReplyChannel(name, broadcastID),
		bus:   bus,
		log:   log,
	}
}

// Reply publishes one data frame. It fails with ErrAfterEnd without
// publishing anything once End has already run. The whole check-then-
// publish sequence runs under r.mu, the same lock End holds for its own
// check-then-publish, so the two can never interleave: either Reply
// observes closed==false and completes its publish before End can set
// closed, or End has already set closed and Reply never touches the bus.
func (r *ReplyChannel) Reply(body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.log.Error(logging.Fields{"host": r.host}, "reply called after end")
		return ErrAfterEnd
	}

	encoded, err := frame.Encode(frame.Frame{Type: frame.Data, Host: r.host, Body: body})
	if err != nil {
		return fmt.Errorf("encode data frame: %w", err)
	}
	if err := r.bus.Publish(r.topic, encoded); err != nil {
		return fmt.Errorf("publish data frame: %w", err)
	}
	return nil
}

// End publishes the end frame and marks the reply channel closed, both
// under r.mu so no Reply call can land on the wire after it (spec §4.1).
// It is idempotent (spec §8): a second call observes closed==true and
// returns immediately without publishing a second end frame or letting a
// caller re-trigger the requester's per-host terminal event.
func (r *ReplyChannel) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	encoded, err := frame.Encode(frame.Frame{Type: frame.End, Host: r.host})
	if err != nil {
		r.log.Warn(logging.Fields{"host": r.host, "error": err.Error()}, "encode end frame failed")
		return fmt.Errorf("encode end frame: %w", err)
	}

	if pubErr := r.bus.Publish(r.topic, encoded); pubErr != nil {
		r.log.Warn(logging.Fields{"host": r.host, "error": pubErr.Error()}, "end publish failed")
		return fmt.Errorf("publish end frame: %w", pubErr)
	}
	return nil
}

// Topic returns the reply channel name this handler's frames publish onto,
// useful for tests that need to inject frames from a synthetic host.
func (r *ReplyChannel) Topic() string {
	return r.topic
}

// Closed reports whether End has already run.
func (r *ReplyChannel) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
