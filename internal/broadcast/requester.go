package broadcast

import (
	"fmt"
	"sort"
	"time"

	"github.com/Mino75/broadcast-mesh/internal/frame"
	"github.com/Mino75/broadcast-mesh/internal/identity"
	"github.com/Mino75/broadcast-mesh/internal/logging"
	"github.com/Mino75/broadcast-mesh/internal/naming"
)

const (
	defaultConnectTimeout = 5000 * time.Millisecond
	defaultIdleTimeout    = 5000 * time.Millisecond
	tickInterval          = 10 * time.Millisecond
)

// Options configures one Request call. The On* callbacks are the typed
// sinks spec §9 recommends in place of a string-keyed emitter; each is
// optional and invoked from the conversation's own goroutine, so ordering
// (ack before data before hostEnd, per host) is preserved for free.
type Options struct {
	Expect         []string
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration

	OnAck     func(host string)
	OnData    func(host string, body []byte)
	OnHostEnd func(host string, responses [][]byte)
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = defaultIdleTimeout
	}
	return o
}

// Result is the terminal state of a conversation: either Err is set (the
// connect/idle timeout fired before any ack or data frame, or setup failed) or
// Responses holds every host's ordered reply bodies. Expecting lists hosts
// still awaited; it is nil on normal completion (every expected host ended)
// and populated on a timeout that still produced an end rather than an
// error, mirroring the source's "second argument omitted on the happy path"
// behavior (spec §4.2).
type Result struct {
	Responses map[string][][]byte
	Expecting []string
	Err       error
}

// Conversation is the event source spec §4.2 describes: it runs the
// aggregator state machine in its own goroutine and resolves to exactly one
// terminal Result.
type Conversation struct {
	done   chan struct{}
	result Result
}

// Wait blocks until the conversation reaches its terminal event and returns
// the result. Safe to call more than once or from more than one goroutine.
func (c *Conversation) Wait() Result {
	<-c.done
	return c.result
}

// Request broadcasts body on name's request channel and aggregates replies
// until every expected host has ended, a timeout fires, or setup fails. It
// returns immediately; use Conversation.Wait for the terminal Result.
func Request(deps Deps, name string, body []byte, opts Options) *Conversation {
	opts = opts.withDefaults()
	c := &Conversation{done: make(chan struct{})}
	go c.run(deps, name, body, opts)
	return c
}

func (c *Conversation) run(deps Deps, name string, body []byte, opts Options) {
	defer close(c.done)
	log := deps.logger()

	expect := opts.Expect
	if expect == nil && deps.Presence != nil {
		expect = deps.Presence.Hosts()
	}
	if len(expect) == 0 {
		// Degenerate case: no expected hosts, no subscribe, no publish.
		// Still resolved from this goroutine, so it is never inline with
		// the Request call that spawned it (spec §4.2, §8 boundary case).
		c.result = Result{Responses: map[string][][]byte{}, Expecting: []string{}}
		return
	}
	deps.Metrics.ConversationStarted()

	responses := make(map[string][][]byte)
	expecting := make(map[string]struct{}, len(expect))
	for _, h := range expect {
		expecting[h] = struct{}{}
	}
	ended := make(map[string]struct{})

	broadcastID := identity.RandomID()
	replyTopic := naming.ReplyChannel(name, broadcastID)
	replyCh, cancel, err := deps.Bus.Subscribe(replyTopic)
	if err != nil {
		c.result = Result{Err: fmt.Errorf("subscribe reply channel: %w", err), Expecting: sortedKeys(expecting)}
		deps.Metrics.ConversationEnded("error")
		return
	}

	closed := false
	tearDown := func() {
		if closed {
			return
		}
		closed = true
		cancel()
	}
	defer tearDown()

	reqEncoded, err := frame.Encode(frame.Frame{
		Type:        frame.Request,
		Host:        deps.Self.Hostname(),
		BroadcastID: broadcastID,
		Body:        body,
	})
	if err != nil {
		tearDown()
		c.result = Result{Err: fmt.Errorf("encode request frame: %w", err), Expecting: sortedKeys(expecting)}
		deps.Metrics.ConversationEnded("error")
		return
	}
	if err := deps.Bus.Publish(naming.RequestChannel(name), reqEncoded); err != nil {
		tearDown()
		c.result = Result{Err: fmt.Errorf("publish request frame: %w", err), Expecting: sortedKeys(expecting)}
		deps.Metrics.ConversationEnded("error")
		return
	}

	start := time.Now()
	var lastMessage time.Time

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-replyCh:
			if !ok {
				// The bus closed the subscription out from under us; keep
				// driving the timeout clock until it expires.
				replyCh = nil
				continue
			}
			f, err := frame.Decode(msg.Payload)
			if err != nil {
				log.Warn(logging.Fields{"topic": msg.Topic, "error": err.Error()}, "dropping undecodable reply frame")
				continue
			}

			if _, alreadyEnded := ended[f.Host]; alreadyEnded && f.Type != frame.End {
				// A host that already ended sending a late ack/data frame
				// (spec §9's Open Question): ignore it outright rather than
				// re-adding the host to expecting or recording the frame.
				log.Warn(logging.Fields{"host": f.Host, "type": string(f.Type)}, "dropping frame from host that already ended")
				continue
			}

			switch f.Type {
			case frame.Ack:
				lastMessage = time.Now()
				expecting[f.Host] = struct{}{}
				if _, ok := responses[f.Host]; !ok {
					responses[f.Host] = [][]byte{}
				}
				deps.Metrics.AckReceived()
				if opts.OnAck != nil {
					opts.OnAck(f.Host)
				}

			case frame.Data:
				lastMessage = time.Now()
				if _, ok := responses[f.Host]; !ok {
					responses[f.Host] = [][]byte{}
				}
				responses[f.Host] = append(responses[f.Host], f.Body)
				expecting[f.Host] = struct{}{}
				deps.Metrics.DataFrameReceived()
				if opts.OnData != nil {
					opts.OnData(f.Host, f.Body)
				}

			case frame.End:
				lastMessage = time.Now()
				delete(expecting, f.Host)
				ended[f.Host] = struct{}{}
				if opts.OnHostEnd != nil {
					opts.OnHostEnd(f.Host, responses[f.Host])
				}
				if len(expecting) == 0 {
					tearDown()
					c.result = Result{Responses: responses}
					deps.Metrics.ConversationEnded("end")
					return
				}

			default:
				// Unknown frame types on a reply channel are ignored (spec §4.4).
			}

		case <-ticker.C:
			now := time.Now()
			switch {
			case lastMessage.IsZero() && now.Sub(start) > opts.ConnectTimeout:
				tearDown()
				deps.Metrics.Timeout("connect")
				if len(responses) == 0 {
					c.result = Result{Err: newConnectTimeoutError(opts.ConnectTimeout.Milliseconds()), Expecting: sortedKeys(expecting)}
					deps.Metrics.ConversationEnded("error")
				} else {
					c.result = Result{Responses: responses, Expecting: sortedKeys(expecting)}
					deps.Metrics.ConversationEnded("end")
				}
				return

			case !lastMessage.IsZero() && now.Sub(lastMessage) > opts.IdleTimeout:
				tearDown()
				deps.Metrics.Timeout("idle")
				if len(responses) == 0 {
					c.result = Result{Err: newIdleTimeoutError(opts.IdleTimeout.Milliseconds()), Expecting: sortedKeys(expecting)}
					deps.Metrics.ConversationEnded("error")
				} else {
					c.result = Result{Responses: responses, Expecting: sortedKeys(expecting)}
					deps.Metrics.ConversationEnded("end")
				}
				return
			}
		}
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
