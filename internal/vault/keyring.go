package vault

import (
	"errors"

	"github.com/andrej220/fleetup/internal/registry"
)

// PasswordStore supplies encrypted password blobs per host id.
type PasswordStore interface {
	HostPassword(hostID int64) ([]byte, error)
}

// Keyring resolves plaintext passwords on demand: encrypted blob from the
// store, decrypted through an unlocked session. Resolution happens per
// connection attempt; nothing is cached.
type Keyring struct {
	store PasswordStore
	sess  *Session
}

func NewKeyring(store PasswordStore, sess *Session) *Keyring {
	return &Keyring{store: store, sess: sess}
}

// Password returns the plaintext credential for a host, or ok=false when
// none is stored.
func (k *Keyring) Password(hostID int64) (string, bool, error) {
	blob, err := k.store.HostPassword(hostID)
	if errors.Is(err, registry.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(blob) == 0 {
		return "", false, nil
	}
	if k.sess == nil {
		return "", false, ErrLocked
	}
	plain, err := k.sess.Decrypt(blob)
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}
