// Package codec turns an issue's private fields into the opaque string that is
// persisted on the ledger, and back.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/starford/parkwatch/internal/apperr"
)

// Payload holds the private, caller-supplied fields of an issue
// (description, location, ...).
type Payload map[string]string

// Codec is a reversible transform over payloads. Callers must not assume
// anything about the ciphertext beyond "non-empty means present".
type Codec interface {
	Encode(p Payload) (string, error)
	Decode(ciphertext string) (Payload, error)
}

func marshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		p = Payload{}
	}
	return json.Marshal(p)
}

func unmarshalPayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("codec: payload json: %v: %w", err, apperr.ErrDecode)
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}
