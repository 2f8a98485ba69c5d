// Package sealed encodes order intents so only the decryption oracle can read them.
// Payloads are anonymous NaCl boxes addressed to the oracle's Curve25519 key.
package sealed

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	payloadVersion = 1
	plaintextSize  = 1 + 8 + 8
)

var ErrMalformedPayload = errors.New("malformed sealed payload")

// Key is a Curve25519 key.
type Key = [32]byte

// KeyPair is the oracle's sealing identity.
type KeyPair struct {
	Public  *Key
	Private *Key
}

// GenerateKeyPair creates a fresh oracle key pair from r, or crypto/rand when r is nil.
func GenerateKeyPair(r io.Reader) (*KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	pub, priv, err := box.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// KeyPairFromPrivate rebuilds a key pair from its private half.
func KeyPairFromPrivate(priv *Key) (*KeyPair, error) {
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	var k Key
	copy(k[:], pub)
	p := *priv
	return &KeyPair{Public: &k, Private: &p}, nil
}

// ParseKey decodes a hex-encoded 32-byte key.
func ParseKey(s string) (*Key, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != len(Key{}) {
		return nil, fmt.Errorf("key must be %d bytes, got %d", len(Key{}), len(raw))
	}
	var k Key
	copy(k[:], raw)
	return &k, nil
}

// EncodeKey renders a key as hex.
func EncodeKey(k *Key) string {
	return hex.EncodeToString(k[:])
}

// Seal encrypts price and quantity for the holder of recipient's private key.
func Seal(recipient *Key, price, quantity int64) ([]byte, error) {
	if price < 0 || quantity < 0 {
		return nil, fmt.Errorf("price and quantity must be non-negative")
	}
	var msg [plaintextSize]byte
	msg[0] = payloadVersion
	binary.BigEndian.PutUint64(msg[1:9], uint64(price))
	binary.BigEndian.PutUint64(msg[9:], uint64(quantity))

	out, err := box.SealAnonymous(nil, msg[:], recipient, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return out, nil
}

// Open decrypts a payload produced by Seal.
func Open(kp *KeyPair, payload []byte) (price, quantity int64, err error) {
	msg, ok := box.OpenAnonymous(nil, payload, kp.Public, kp.Private)
	if !ok {
		return 0, 0, fmt.Errorf("%w: decryption failed", ErrMalformedPayload)
	}
	if len(msg) != plaintextSize || msg[0] != payloadVersion {
		return 0, 0, fmt.Errorf("%w: unexpected plaintext layout", ErrMalformedPayload)
	}
	p := binary.BigEndian.Uint64(msg[1:9])
	q := binary.BigEndian.Uint64(msg[9:])
	if int64(p) < 0 || int64(q) < 0 {
		return 0, 0, fmt.Errorf("%w: value out of range", ErrMalformedPayload)
	}
	return int64(p), int64(q), nil
}
