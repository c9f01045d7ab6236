// Package frame implements the tagged-union wire format shared by every
// broadcast conversation: requests, acks, data frames, and ends. Bodies are
// carried as opaque bytes, never inspected by the codec itself, the same
// way tetrisroom.Event carries an opaque Meta map[string]any without
// interpreting it.
package frame

import (
	"encoding/json"
	"fmt"
)

// Type discriminates the frame variants in the wire format.
type Type string

const (
	Request Type = "request"
	Ack     Type = "ack"
	Data    Type = "data"
	End     Type = "end"
)

// Frame is one message on a request or reply channel. Host is stamped by
// the sender on every outgoing frame; BroadcastID is only populated on
// Request frames, where it seeds the conversation id listeners must echo
// back on their reply channel. Body is opaque: encoding/json carries a []byte
// field as base64, so callers never need it to be valid JSON or any other
// particular shape.
type Frame struct {
	Type        Type   `json:"type"`
	Host        string `json:"host"`
	BroadcastID string `json:"broadcast_id,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Encode marshals f to its wire representation.
func Encode(f Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return b, nil
}

// Decode unmarshals a wire frame. Callers that only accept a subset of
// variants (the requester ignores unknown types, §4.4) check f.Type
// themselves after Decode succeeds.
func Decode(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}
