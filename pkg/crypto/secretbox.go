// Package crypto seals and opens provider credentials with AES-256-GCM under
// a process-wide master key. Ciphertext is nonce-prefixed raw bytes; callers
// persist it as-is and never see key material in error text.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"sync"
)

var (
	// ErrCryptoNotReady is returned when no master key has been configured.
	ErrCryptoNotReady = errors.New("encryption key not configured")
	// ErrCryptoTamper is returned when ciphertext fails authentication.
	ErrCryptoTamper = errors.New("ciphertext failed authentication")
)

var (
	keyMu     sync.RWMutex
	masterKey []byte
)

// SetMasterKey installs the process master key. The key material is padded or
// truncated to 32 bytes (AES-256). An empty key clears the configuration.
func SetMasterKey(key string) {
	keyMu.Lock()
	defer keyMu.Unlock()

	if key == "" {
		masterKey = nil
		return
	}
	final := make([]byte, 32)
	copy(final, []byte(key))
	masterKey = final
}

// Ready reports whether a master key is configured.
func Ready() bool {
	keyMu.RLock()
	defer keyMu.RUnlock()
	return len(masterKey) > 0
}

// Seal encrypts plaintext and returns nonce-prefixed ciphertext.
func Seal(plaintext string) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open decrypts nonce-prefixed ciphertext produced by Seal. Tampered or
// truncated input returns ErrCryptoTamper; the plaintext is never part of
// any returned error.
func Open(ciphertext []byte) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return "", ErrCryptoTamper
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrCryptoTamper
	}
	return string(plaintext), nil
}

func newGCM() (cipher.AEAD, error) {
	keyMu.RLock()
	key := masterKey
	keyMu.RUnlock()

	if len(key) == 0 {
		return nil, ErrCryptoNotReady
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
