// Package pagination provides opaque continuation tokens for listing
// operations. Tokens carry the next cursor position and a keyed MAC so a
// caller cannot forge or misinterpret them; they stay stable for identical
// listings within one engine instance.
package pagination

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// macSize is the truncated MAC length appended to each token.
const macSize = 16

// ErrInvalidToken indicates a malformed or tampered continuation token.
var ErrInvalidToken = errors.New("invalid continuation token")

// Cursor is the position a listing resumes from.
type Cursor struct {
	// Key is the next object key to visit.
	Key string `json:"k"`

	// Seq is the entry sequence to resume below on the key, for version
	// listings. Zero means start at the key's greatest sequence.
	Seq int64 `json:"s,omitempty"`
}

// Codec encodes and decodes signed continuation tokens.
type Codec struct {
	key []byte
}

// NewCodec creates a token codec with the given MAC key.
// An empty key is replaced by a random one, which is sufficient because
// tokens only need to stay valid within one engine instance.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate token key: %w", err)
		}
	}
	if len(key) > 64 {
		key = key[:64]
	}
	return &Codec{key: key}, nil
}

// Encode serializes and signs a cursor into an opaque URL-safe token.
func (c *Codec) Encode(cur Cursor) (string, error) {
	payload, err := json.Marshal(cur)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	mac, err := c.mac(payload)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(append(payload, mac...)), nil
}

// Decode verifies and deserializes a token produced by Encode.
func (c *Codec) Decode(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) <= macSize {
		return Cursor{}, ErrInvalidToken
	}

	payload, got := raw[:len(raw)-macSize], raw[len(raw)-macSize:]
	want, err := c.mac(payload)
	if err != nil {
		return Cursor{}, err
	}
	if subtleCompare(got, want) != 1 {
		return Cursor{}, ErrInvalidToken
	}

	var cur Cursor
	if err := json.Unmarshal(payload, &cur); err != nil {
		return Cursor{}, ErrInvalidToken
	}
	return cur, nil
}

// mac computes the keyed BLAKE2b MAC over a payload.
func (c *Codec) mac(payload []byte) ([]byte, error) {
	h, err := blake2b.New(macSize, c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to init token MAC: %w", err)
	}
	h.Write(payload)
	return h.Sum(nil), nil
}

// subtleCompare is a constant-time equality check returning 1 on match.
func subtleCompare(a, b []byte) int {
	if len(a) != len(b) {
		return 0
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	if v == 0 {
		return 1
	}
	return 0
}
