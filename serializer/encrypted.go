package serializer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/auth-platform/rescache/cacheerr"
)

// Encrypted wraps another Serializer with AES-GCM, so an L2 value is
// encrypted at rest under whatever key the caller provisions. It is
// not one of the two auto-registered built-ins (only the
// pickle-equivalent and json-equivalent serializers are registered by
// default); a caller opts in by passing a pre-built *Encrypted
// instance directly as CacheFactoryConfig.SerializerInstance.
type Encrypted struct {
	inner Serializer
	gcm   cipher.AEAD
}

// NewEncrypted builds an encrypting wrapper around inner, keyed by
// key (16, 24, or 32 bytes for AES-128/192/256).
func NewEncrypted(inner Serializer, key []byte) (*Encrypted, error) {
	if inner == nil {
		return nil, cacheerr.ConfigError("encrypted serializer requires an inner serializer")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cacheerr.ConfigError("invalid AES key: " + err.Error())
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, cacheerr.ConfigError("failed to initialize AES-GCM: " + err.Error())
	}
	return &Encrypted{inner: inner, gcm: gcm}, nil
}

// Serialize encodes value with the inner serializer, then seals the
// result under a fresh random nonce prefixed to the ciphertext.
func (e *Encrypted) Serialize(value any) ([]byte, error) {
	plaintext, err := e.inner.Serialize(value)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, cacheerr.SerializationError("failed to generate nonce", err)
	}

	return e.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Deserialize strips the nonce, opens the ciphertext, and hands the
// recovered plaintext to the inner serializer.
func (e *Encrypted) Deserialize(data []byte) (any, error) {
	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, cacheerr.SerializationError("ciphertext shorter than nonce", nil)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, cacheerr.SerializationError("AES-GCM decryption failed", err)
	}

	return e.inner.Deserialize(plaintext)
}
