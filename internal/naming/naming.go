// Package naming derives the pub/sub channel names shared by requesters and
// listeners, the way tetrisroom.topicForRoom derived per-room topics from a
// room id.
package naming

// RequestChannel is the channel every listener bound to name subscribes to.
func RequestChannel(name string) string {
	return "broadcast:request:" + name
}

// ReplyChannel is the channel unique to one conversation. Only the requester
// that generated broadcastID subscribes to it; listeners publish acks, data,
// and end frames onto it.
func ReplyChannel(name, broadcastID string) string {
	return "broadcast:reply:" + name + ":" + broadcastID
}
