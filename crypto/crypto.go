// Package crypto provides the at-rest encryption used for stored upstream
// credential tokens and OIDC client secrets. It wraps nacl/secretbox with a
// key supplied by the operator and a round-trip law: anything this package
// did not encrypt decrypts back out unchanged rather than failing closed,
// since older rows may predate encryption being turned on.
package crypto

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/nacl/secretbox"
)

const keySize = 32

// Box encrypts and decrypts using a fixed 32-byte key.
type Box struct {
	key    [keySize]byte
	log    *zap.Logger
	warned bool
}

// NewBox decodes a url-safe base64 ENCRYPTION_KEY into a Box. The key must
// decode to exactly 32 bytes.
func NewBox(encodedKey string, log *zap.Logger) (*Box, error) {
	raw, err := base64.URLEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, errors.Wrap(err, "decoding ENCRYPTION_KEY")
	}
	if len(raw) != keySize {
		return nil, errors.Errorf("ENCRYPTION_KEY must decode to %d bytes, got %d", keySize, len(raw))
	}
	b := &Box{log: log}
	copy(b.key[:], raw)
	return b, nil
}

// Seal encrypts plaintext, returning a base64-encoded nonce||ciphertext.
func (b *Box) Seal(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", errors.Wrap(err, "generating nonce")
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal. If the value does not look like
// one of ours (too short, or fails to authenticate) it is returned
// unchanged on the assumption it is legacy cleartext, and a one-time
// warning is logged.
func (b *Box) Open(stored string) string {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || len(raw) < 24 {
		b.warnOnce()
		return stored
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		b.warnOnce()
		return stored
	}
	return string(plain)
}

func (b *Box) warnOnce() {
	if b.warned || b.log == nil {
		return
	}
	b.warned = true
	b.log.Warn("encountered a stored value that did not decrypt; treating it as legacy cleartext")
}
