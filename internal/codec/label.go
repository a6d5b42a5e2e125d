package codec

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/starford/parkwatch/internal/apperr"
)

// DefaultLabel is the prefix the original web client stamped on its payloads.
const DefaultLabel = "FHE-"

// Label is a labelling transform: prefix + base64(JSON). It provides no
// confidentiality and exists for compatibility with ledgers written by the
// web client.
type Label struct {
	prefix string
}

// NewLabel returns a Label codec. An empty prefix selects DefaultLabel.
func NewLabel(prefix string) *Label {
	if prefix == "" {
		prefix = DefaultLabel
	}
	return &Label{prefix: prefix}
}

func (l *Label) Encode(p Payload) (string, error) {
	raw, err := marshalPayload(p)
	if err != nil {
		return "", fmt.Errorf("codec: encode: %w", err)
	}
	return l.prefix + base64.StdEncoding.EncodeToString(raw), nil
}

func (l *Label) Decode(ciphertext string) (Payload, error) {
	body, ok := strings.CutPrefix(ciphertext, l.prefix)
	if !ok {
		return nil, fmt.Errorf("codec: missing %q prefix: %w", l.prefix, apperr.ErrDecode)
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("codec: base64: %v: %w", err, apperr.ErrDecode)
	}
	return unmarshalPayload(raw)
}

var _ Codec = (*Label)(nil)
