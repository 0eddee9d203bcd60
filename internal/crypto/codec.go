// Package crypto implements the envelope codec: it turns plaintext into
// opaque encrypted envelopes for the wire and back, and mints the
// correlation tokens that tie an optimistic local record to its eventual
// server acknowledgment. The synchronization layer treats everything in
// here as an opaque collaborator.
package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ZRosserMcIntosh/railgun-sub001/internal/store"
)

// ErrDecrypt marks a per-envelope decryption failure. Callers drop the
// envelope and move on; one corrupt message must never stall ingestion.
var ErrDecrypt = errors.New("envelope decrypt failed")

// Codec seals and opens conversation envelopes using keys derived from a
// 32-byte master secret, one leaf key per conversation.
type Codec struct {
	master []byte

	mu   sync.Mutex
	keys map[string]*[32]byte
}

// NewCodec creates a codec over the given master secret.
func NewCodec(master []byte) (*Codec, error) {
	if len(master) != 32 {
		return nil, fmt.Errorf("master secret must be 32 bytes, got %d", len(master))
	}
	key := make([]byte, 32)
	copy(key, master)
	return &Codec{master: key, keys: make(map[string]*[32]byte)}, nil
}

func (c *Codec) keyFor(target store.ConversationKey) (*[32]byte, error) {
	id := target.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if key, ok := c.keys[id]; ok {
		return key, nil
	}
	key, err := conversationKey(c.master, id)
	if err != nil {
		return nil, fmt.Errorf("derive conversation key: %w", err)
	}
	c.keys[id] = key
	return key, nil
}

// PrepareEnvelope seals plaintext for the target conversation and mints
// the correlation token for the resulting send.
func (c *Codec) PrepareEnvelope(plaintext string, target store.ConversationKey) (envelope string, localID string, err error) {
	if !target.Valid() {
		return "", "", fmt.Errorf("invalid conversation key")
	}
	key, err := c.keyFor(target)
	if err != nil {
		return "", "", err
	}
	sealed, err := Seal([]byte(plaintext), key)
	if err != nil {
		return "", "", fmt.Errorf("seal envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), uuid.NewString(), nil
}

// Decrypt opens an envelope received for the target conversation.
func (c *Codec) Decrypt(envelope string, target store.ConversationKey) (string, error) {
	key, err := c.keyFor(target)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plaintext, err := Open(raw, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}
