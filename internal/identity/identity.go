// Package identity supplies the process-local identity and id-generation
// collaborators spec §6 calls self.hostname() and id.random().
package identity

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Self is a stable hostname source for the process lifetime.
type Self interface {
	Hostname() string
}

// Static is a Self backed by a fixed string, useful for tests and for
// transports (like channel.LibP2PBus) that already hand out a stable id.
type Static string

func (s Static) Hostname() string { return string(s) }

// FromOS builds a Self from the OS hostname, suffixed with a short random
// tag so two nodes on the same machine (common in local dev, the way
// tetrisroom_test.go runs nodeA/nodeB in-process) don't collide.
func FromOS() (Self, error) {
	h, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("read os hostname: %w", err)
	}
	return Static(fmt.Sprintf("%s-%s", h, uuid.NewString()[:8])), nil
}

// RandomID generates a fresh opaque broadcast id (spec §6 id.random()).
func RandomID() string {
	return uuid.NewString()
}
