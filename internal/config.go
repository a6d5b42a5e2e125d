package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/parkwatch/internal/kv"
	"github.com/starford/parkwatch/internal/recordstore"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Codec kinds.
const (
	CodecLabel = "label"
	CodecAge   = "age"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Ledger LedgerConfig      `yaml:"ledger"`
	Codec  CodecConfig       `yaml:"codec"`
	Store  StoreConfig       `yaml:"store"`
	Events EventsConfig      `yaml:"events"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := c.Codec.Validate(); err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if c.Store.Consistency == recordstore.ModeCAS && c.Ledger.Driver == kv.DriverFS {
		return fmt.Errorf("store: consistency %q needs a driver with compare-and-set, %q has none",
			recordstore.ModeCAS, kv.DriverFS)
	}
	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// LedgerConfig selects the key/value backend.
//
// Account is the signing capability. Empty means a read-only client: reads
// work, every write is rejected.
type LedgerConfig struct {
	Driver  string `yaml:"driver"`
	Path    string `yaml:"path"`
	Account string `yaml:"account"`
}

// Validate validates the ledger configuration.
func (c *LedgerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(anySlice(kv.Drivers)...)),
		validation.Field(&c.Path, validation.When(
			c.Driver == kv.DriverFS || c.Driver == kv.DriverSQLite, validation.Required)),
	)
}

// CodecConfig selects how issue payloads are encoded.
//
//   - "label": prefix + base64(JSON), readable by anyone.
//   - "age": encrypted to an x25519 recipient. IdentityFile enables decoding;
//     Recipient alone gives an encode-only service.
type CodecConfig struct {
	Kind         string `yaml:"kind"`
	Label        string `yaml:"label"`
	IdentityFile string `yaml:"identity_file"`
	Recipient    string `yaml:"recipient"`
}

// Validate validates the codec configuration.
func (c *CodecConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Kind, validation.Required, validation.In(CodecLabel, CodecAge)),
	); err != nil {
		return err
	}
	if c.Kind == CodecAge && c.IdentityFile == "" && c.Recipient == "" {
		return errors.New("age codec needs identity_file or recipient")
	}
	return nil
}

// StoreConfig holds record store consistency settings.
type StoreConfig struct {
	Consistency string `yaml:"consistency"`
	MaxRetries  int    `yaml:"max_retries"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Consistency, validation.In(recordstore.ModeLWW, recordstore.ModeCAS)),
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(100)),
	)
}

// EventsConfig tunes the SSE broker and the ledger watcher.
type EventsConfig struct {
	StatsThrottle time.Duration `yaml:"stats_throttle"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StatsThrottle, validation.Min(time.Duration(0))),
		validation.Field(&c.WatchDebounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//
// PublicReads leaves listing, detail and event routes open in token mode.
type AuthConfig struct {
	Mode        string `yaml:"mode"`
	Token       string `yaml:"token"`
	PublicReads bool   `yaml:"public_reads"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Ledger: LedgerConfig{
			Driver: kv.DriverSQLite,
			Path:   "./parkwatch.db",
		},
		Codec: CodecConfig{
			Kind: CodecLabel,
		},
		Store: StoreConfig{
			Consistency: recordstore.ModeLWW,
			MaxRetries:  recordstore.DefaultMaxRetries,
		},
		Events: EventsConfig{
			StatsThrottle: 2 * time.Second,
			WatchDebounce: 150 * time.Millisecond,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
