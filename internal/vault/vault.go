// Package vault encrypts stored SSH passwords with a key derived from a
// user-supplied master passphrase. Unlocking yields an explicit Session;
// there is no package-level unlock state.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltFile     = "vault.salt"
	verifierFile = "vault.verify"

	kdfIterations = 200_000
	keyLen        = 32
	saltLen       = 16
)

// challenge is the known plaintext used to verify the passphrase on
// subsequent unlocks.
var challenge = []byte("fleetup-keystore-v1")

var (
	ErrLocked          = errors.New("vault is locked")
	ErrWrongPassphrase = errors.New("wrong master passphrase")
)

// Session is an unlocked vault. It is safe for concurrent use and holds
// no plaintext beyond the derived key.
type Session struct {
	aead cipher.AEAD
}

// Exists reports whether a keystore was already initialized under dir.
func Exists(dir string) bool {
	_, serr := os.Stat(filepath.Join(dir, saltFile))
	_, verr := os.Stat(filepath.Join(dir, verifierFile))
	return serr == nil && verr == nil
}

// Unlock derives the key from passphrase and verifies it against the
// keystore under dir, creating the keystore on first use.
func Unlock(dir, passphrase string) (*Session, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("vault dir: %w", err)
	}
	salt, err := loadOrCreateSalt(filepath.Join(dir, saltFile))
	if err != nil {
		return nil, err
	}

	key := pbkdf2.Key([]byte(passphrase), salt, kdfIterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	s := &Session{aead: aead}

	verifierPath := filepath.Join(dir, verifierFile)
	token, err := os.ReadFile(verifierPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// first run: seal the challenge so later unlocks can verify
		sealed, serr := s.seal(challenge)
		if serr != nil {
			return nil, serr
		}
		if werr := os.WriteFile(verifierPath, sealed, 0600); werr != nil {
			return nil, fmt.Errorf("write verifier: %w", werr)
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read verifier: %w", err)
	}

	plain, derr := s.open(token)
	if derr != nil || subtle.ConstantTimeCompare(plain, challenge) != 1 {
		return nil, ErrWrongPassphrase
	}
	return s, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == saltLen {
		return salt, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}
	return salt, nil
}

func (s *Session) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Session) open(blob []byte) ([]byte, error) {
	if len(blob) < s.aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ct := blob[:s.aead.NonceSize()], blob[s.aead.NonceSize():]
	return s.aead.Open(nil, nonce, ct, nil)
}

// Encrypt seals a plaintext password for storage.
func (s *Session) Encrypt(plaintext string) ([]byte, error) {
	if s == nil {
		return nil, ErrLocked
	}
	return s.seal([]byte(plaintext))
}

// Decrypt opens a stored blob. A failed decryption usually means the
// blob was written under a different master passphrase.
func (s *Session) Decrypt(blob []byte) (string, error) {
	if s == nil {
		return "", ErrLocked
	}
	plain, err := s.open(blob)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return string(plain), nil
}
