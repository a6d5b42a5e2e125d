package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"

	"github.com/starford/parkwatch/internal/apperr"
)

// AgeLabel prefixes ciphertexts produced by the Age codec.
const AgeLabel = "AGE-"

// Age encrypts payloads to an x25519 recipient with filippo.io/age.
// Ciphertext is AgeLabel + base64(age file). Without an identity the codec is
// encode-only and Decode fails with apperr.ErrUnsupported.
type Age struct {
	recipient *age.X25519Recipient
	identity  *age.X25519Identity
}

// PublicKey returns the age1... recipient string payloads are encrypted to.
func (a *Age) PublicKey() string { return a.recipient.String() }

// NewAge builds an Age codec from an AGE-SECRET-KEY-1... identity string.
func NewAge(identity string) (*Age, error) {
	id, err := age.ParseX25519Identity(strings.TrimSpace(identity))
	if err != nil {
		return nil, fmt.Errorf("codec: parse age identity: %w", err)
	}
	return &Age{recipient: id.Recipient(), identity: id}, nil
}

// NewAgeRecipient builds an encode-only Age codec from an age1... public key.
func NewAgeRecipient(publicKey string) (*Age, error) {
	r, err := age.ParseX25519Recipient(strings.TrimSpace(publicKey))
	if err != nil {
		return nil, fmt.Errorf("codec: parse age recipient: %w", err)
	}
	return &Age{recipient: r}, nil
}

// LoadAgeIdentity reads the first identity line from an age key file
// (as written by age-keygen); comment lines are skipped.
func LoadAgeIdentity(path string) (*Age, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("codec: read identity file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return NewAge(line)
	}
	return nil, fmt.Errorf("codec: no identity in %s", path)
}

// GenerateAge creates a codec with a fresh identity and returns the identity
// string alongside it.
func GenerateAge() (*Age, string, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, "", fmt.Errorf("codec: generate age identity: %w", err)
	}
	return &Age{recipient: id.Recipient(), identity: id}, id.String(), nil
}

func (a *Age) Encode(p Payload) (string, error) {
	raw, err := marshalPayload(p)
	if err != nil {
		return "", fmt.Errorf("codec: encode: %w", err)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, a.recipient)
	if err != nil {
		return "", fmt.Errorf("codec: age encryptor: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return "", fmt.Errorf("codec: age write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("codec: age finalize: %w", err)
	}
	return AgeLabel + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (a *Age) Decode(ciphertext string) (Payload, error) {
	if a.identity == nil {
		return nil, fmt.Errorf("codec: age decode without identity: %w", apperr.ErrUnsupported)
	}
	body, ok := strings.CutPrefix(ciphertext, AgeLabel)
	if !ok {
		return nil, fmt.Errorf("codec: missing %q prefix: %w", AgeLabel, apperr.ErrDecode)
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("codec: base64: %v: %w", err, apperr.ErrDecode)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), a.identity)
	if err != nil {
		return nil, fmt.Errorf("codec: age decrypt: %v: %w", err, apperr.ErrDecode)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codec: age read: %v: %w", err, apperr.ErrDecode)
	}
	return unmarshalPayload(plain)
}

var _ Codec = (*Age)(nil)
