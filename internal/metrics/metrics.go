// Package metrics instruments the broadcast core with the Prometheus
// counters a node operator would want: how many conversations ran, how many
// ended in error, and how many acks/data frames arrived. dep2p-go-dep2p and
// weisyn-go-weisyn both wire prometheus.Registerer through their subsystems
// this way rather than reaching for the global default registry directly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the metrics surface the broadcast package writes to. A nil
// *Recorder is safe to call methods on: every method no-ops on a nil
// receiver, so wiring metrics is opt-in. A non-nil Recorder must come from
// NewRecorder.
type Recorder struct {
	conversationsStarted prometheus.Counter
	conversationsEnded   *prometheus.CounterVec // label "outcome": end|error
	acksReceived         prometheus.Counter
	dataFramesReceived   prometheus.Counter
	timeouts             *prometheus.CounterVec // label "kind": connect|idle
	activeConversations  prometheus.Gauge

	busMessagesPublished *prometheus.CounterVec // label "transport": memory|libp2p
	busMessagesDropped   *prometheus.CounterVec // label "transport": memory|libp2p
	busTopicsJoined      *prometheus.CounterVec // label "transport": memory|libp2p
}

// NewRecorder registers the broadcast collectors against reg and returns a
// Recorder wired to them. Pass a fresh prometheus.NewRegistry() in tests to
// avoid colliding with other packages' collectors on the default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		conversationsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_conversations_started_total",
			Help: "Requester conversations started.",
		}),
		conversationsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_conversations_ended_total",
			Help: "Requester conversations that reached a terminal event, by outcome.",
		}, []string{"outcome"}),
		acksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_acks_received_total",
			Help: "Ack frames received across all conversations.",
		}),
		dataFramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_data_frames_received_total",
			Help: "Data frames received across all conversations.",
		}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_timeouts_total",
			Help: "Timeout driver firings, by kind.",
		}, []string{"kind"}),
		activeConversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "broadcast_active_conversations",
			Help: "Requester conversations currently awaiting completion.",
		}),
		busMessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_bus_messages_published_total",
			Help: "Messages successfully handed to a bus transport, by transport.",
		}, []string{"transport"}),
		busMessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_bus_messages_dropped_total",
			Help: "Messages dropped by a bus transport's backpressure policy, by transport.",
		}, []string{"transport"}),
		busTopicsJoined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_bus_topics_joined_total",
			Help: "Distinct topic joins performed by a bus transport, by transport.",
		}, []string{"transport"}),
	}
	if reg != nil {
		reg.MustRegister(
			r.conversationsStarted,
			r.conversationsEnded,
			r.acksReceived,
			r.dataFramesReceived,
			r.timeouts,
			r.activeConversations,
			r.busMessagesPublished,
			r.busMessagesDropped,
			r.busTopicsJoined,
		)
	}
	return r
}

func (r *Recorder) ConversationStarted() {
	if r == nil {
		return
	}
	r.conversationsStarted.Inc()
	r.activeConversations.Inc()
}

func (r *Recorder) ConversationEnded(outcome string) {
	if r == nil {
		return
	}
	r.conversationsEnded.WithLabelValues(outcome).Inc()
	r.activeConversations.Dec()
}

func (r *Recorder) AckReceived() {
	if r == nil {
		return
	}
	r.acksReceived.Inc()
}

func (r *Recorder) DataFrameReceived() {
	if r == nil {
		return
	}
	r.dataFramesReceived.Inc()
}

func (r *Recorder) Timeout(kind string) {
	if r == nil {
		return
	}
	r.timeouts.WithLabelValues(kind).Inc()
}

// MessagePublished records a message a bus transport successfully handed
// off to at least an attempt at delivery (memory: enqueued to subscriber
// channels; libp2p: handed to the gossipsub topic).
func (r *Recorder) MessagePublished(transport string) {
	if r == nil {
		return
	}
	r.busMessagesPublished.WithLabelValues(transport).Inc()
}

// MessageDropped records a message a bus transport's backpressure policy
// discarded rather than delivered (e.g. a full subscriber channel).
func (r *Recorder) MessageDropped(transport string) {
	if r == nil {
		return
	}
	r.busMessagesDropped.WithLabelValues(transport).Inc()
}

// TopicJoined records a bus transport joining a topic it does not currently
// hold (memory: the first subscription on a topic with no live subscribers;
// libp2p: the first Join of a topic name).
func (r *Recorder) TopicJoined(transport string) {
	if r == nil {
		return
	}
	r.busTopicsJoined.WithLabelValues(transport).Inc()
}
