package internal

import (
	"io"

	"github.com/starford/parkwatch/internal/kv"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logOutput io.Writer
	backend   kv.Backend
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput redirects the JSON log stream. The MCP command uses it to keep
// stdout free for the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithBackend supplies an already opened ledger backend instead of opening
// the configured driver. The caller keeps ownership of it.
func WithBackend(b kv.Backend) Option {
	return func(a *application) {
		a.backend = b
	}
}
