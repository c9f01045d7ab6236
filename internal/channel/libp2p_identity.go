package channel

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
)

var errIdentityKeyNotEd25519 = errors.New("broadcast: persisted identity key is not ed25519")

// loadOrCreateIdentityKey reads a persisted libp2p identity key from path,
// rejecting anything that isn't ed25519 (the only key type this bus ever
// writes), or generates and persists a fresh ed25519 key if none exists
// yet. Keeping the peer id stable across restarts matters to this bus
// specifically because Hostname() feeds identity.Self.
func loadOrCreateIdentityKey(path string) (crypto.PrivKey, error) {
	if raw, err := os.ReadFile(path); err == nil && len(raw) > 0 {
		key, err := crypto.UnmarshalPrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("unmarshal private key: %w", err)
		}
		if key.Type() != crypto.Ed25519 {
			return nil, errIdentityKeyNotEd25519
		}
		return key, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir key dir: %w", err)
	}
	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	raw, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	return key, nil
}
