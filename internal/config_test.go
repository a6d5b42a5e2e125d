package internal

import (
	"strings"
	"testing"

	"github.com/starford/parkwatch/internal/codec"
	"github.com/starford/parkwatch/internal/kv"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestLedgerConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LedgerConfig
		wantErr bool
	}{
		{"memory without path", LedgerConfig{Driver: kv.DriverMemory}, false},
		{"badger in-memory", LedgerConfig{Driver: kv.DriverBadger}, false},
		{"fs needs path", LedgerConfig{Driver: kv.DriverFS}, true},
		{"sqlite needs path", LedgerConfig{Driver: kv.DriverSQLite}, true},
		{"unknown driver", LedgerConfig{Driver: "etcd", Path: "x"}, true},
		{"empty driver", LedgerConfig{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCodecConfig_AgeNeedsKey(t *testing.T) {
	cfg := CodecConfig{Kind: CodecAge}
	if err := cfg.Validate(); err == nil {
		t.Fatal("age codec without key material should fail")
	}
	cfg.Recipient = "age1xyz"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("age codec with recipient: %v", err)
	}
}

func TestConfig_CASRejectsFSDriver(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Ledger = LedgerConfig{Driver: kv.DriverFS, Path: t.TempDir()}
	cfg.Store.Consistency = "cas"
	if err := cfg.Validate(); err == nil {
		t.Fatal("cas over fs should fail validation")
	}
	cfg.Ledger = LedgerConfig{Driver: kv.DriverSQLite, Path: "x.db"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("cas over sqlite: %v", err)
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestNewCodec(t *testing.T) {
	c, err := newCodec(CodecConfig{Kind: CodecLabel, Label: "X-"})
	if err != nil {
		t.Fatal(err)
	}
	enc, err := c.Encode(codec.Payload{"description": "d"})
	if err != nil || !strings.HasPrefix(enc, "X-") {
		t.Errorf("label encode = %q, %v", enc, err)
	}

	gen, _, err := codec.GenerateAge()
	if err != nil {
		t.Fatal(err)
	}
	c, err = newCodec(CodecConfig{Kind: CodecAge, Recipient: gen.PublicKey()})
	if err != nil {
		t.Fatalf("age recipient codec: %v", err)
	}
	enc, err = c.Encode(codec.Payload{"description": "d"})
	if err != nil || !strings.HasPrefix(enc, codec.AgeLabel) {
		t.Errorf("age encode = %q, %v", enc, err)
	}
}
