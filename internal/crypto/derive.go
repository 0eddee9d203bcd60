package crypto

import (
	"crypto/hmac"
	"crypto/sha512"
)

// deriveUsage namespaces the key tree so envelope keys can never collide
// with keys derived for other purposes from the same master secret.
const deriveUsage = "Railgun Envelope"

// DeriveKey derives a 32-byte key from the master secret using an
// HMAC-SHA512 key tree: a usage-scoped root followed by one child
// derivation per path element.
func DeriveKey(master []byte, usage string, path []string) ([]byte, error) {
	key, chain, err := deriveTreeRoot(master, usage)
	if err != nil {
		return nil, err
	}
	for _, index := range path {
		key, chain, err = deriveTreeChild(chain, index)
		if err != nil {
			return nil, err
		}
	}
	return key, nil
}

func deriveTreeRoot(seed []byte, usage string) ([]byte, []byte, error) {
	h := hmac.New(sha512.New, []byte(usage+" Master Seed"))
	if _, err := h.Write(seed); err != nil {
		return nil, nil, err
	}
	sum := h.Sum(nil)
	return sum[:32], sum[32:], nil
}

func deriveTreeChild(chainCode []byte, index string) ([]byte, []byte, error) {
	data := append([]byte{0x00}, []byte(index)...)
	h := hmac.New(sha512.New, chainCode)
	if _, err := h.Write(data); err != nil {
		return nil, nil, err
	}
	sum := h.Sum(nil)
	return sum[:32], sum[32:], nil
}

// conversationKey derives the envelope key for one conversation. Each
// conversation gets its own leaf so one leaked key exposes one timeline.
func conversationKey(master []byte, conversationID string) (*[32]byte, error) {
	seed, err := DeriveKey(master, deriveUsage, []string{conversationID})
	if err != nil {
		return nil, err
	}
	var key [32]byte
	copy(key[:], seed)
	return &key, nil
}
