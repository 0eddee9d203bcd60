package wire

import (
	"encoding/json"
	"fmt"
)

// Cipher extracts the ciphertext string from the event's envelope field,
// accepting every shape we have observed on the wire. It returns
// ok=false when no envelope is present at all.
func (e MessageEvent) Cipher() (cipher string, ok bool, err error) {
	raw := e.Envelope
	if len(raw) == 0 || string(raw) == "null" {
		return "", false, nil
	}

	// Case 1: ciphertext directly as a JSON string.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", true, fmt.Errorf("ciphertext is empty")
		}
		return s, true, nil
	}

	// Case 2: object with a "c" field, optionally tagged {"t":"encrypted"}.
	var obj struct {
		T string `json:"t"`
		C string `json:"c"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false, fmt.Errorf("unsupported envelope shape: %w", err)
	}
	if obj.C == "" {
		return "", false, fmt.Errorf("unsupported envelope shape: missing ciphertext")
	}
	if obj.T != "" && obj.T != "encrypted" {
		return "", false, fmt.Errorf("unsupported envelope type %q", obj.T)
	}
	return obj.C, true, nil
}
