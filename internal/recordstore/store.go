// Package recordstore turns a flat key/value backend into an enumerable
// collection of issue records.
//
// Layout on the backend:
//
//	issue_keys   JSON array of every known issue id (the index)
//	issue_{id}   JSON object {data, timestamp, category, votes, status}
//
// The backend has no listing, locking or multi-key transactions. Creation
// writes the record before appending to the index, so a crash between the two
// leaves an invisible orphan record rather than an index entry pointing at
// nothing. Every read-modify-write races with other writers; in
// LastWriterWins mode a concurrent index append or vote can be lost. The
// CompareAndSet mode closes that window on backends that implement
// kv.Swapper.
package recordstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/starford/parkwatch/internal/apperr"
	"github.com/starford/parkwatch/internal/kv"
)

// Consistency selects how read-modify-write cycles are committed.
type Consistency int

const (
	// LastWriterWins reads, mutates and overwrites. Concurrent writers on the
	// same key can silently drop each other's update.
	LastWriterWins Consistency = iota
	// CompareAndSet commits only if the key still holds what was read and
	// retries otherwise. Requires a kv.Swapper backend.
	CompareAndSet
)

// Consistency mode names as used in configuration.
const (
	ModeLWW = "lww"
	ModeCAS = "cas"
)

func (c Consistency) String() string {
	if c == CompareAndSet {
		return ModeCAS
	}
	return ModeLWW
}

// ParseConsistency maps a configuration value to a Consistency.
func ParseConsistency(s string) (Consistency, error) {
	switch strings.ToLower(s) {
	case "", ModeLWW:
		return LastWriterWins, nil
	case ModeCAS:
		return CompareAndSet, nil
	}
	return 0, fmt.Errorf("recordstore: unknown consistency %q: %w", s, apperr.ErrValidation)
}

// DefaultMaxRetries bounds compare-and-set attempts per operation.
const DefaultMaxRetries = 8

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for corruption and retry reports.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConsistency selects the commit mode.
func WithConsistency(c Consistency) Option {
	return func(s *Store) { s.mode = c }
}

// WithMaxRetries bounds compare-and-set retries. Values below 1 are ignored.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// Store maps issue ids to records on a kv.Backend and keeps the index.
// It holds no in-process locks; concurrent callers race exactly like
// independent processes would.
type Store struct {
	backend    kv.Backend
	swapper    kv.Swapper
	mode       Consistency
	maxRetries int
	logger     *slog.Logger

	conflicts atomic.Uint64
}

// New builds a Store. CompareAndSet mode fails with apperr.ErrUnsupported when
// the backend cannot compare-and-set.
func New(backend kv.Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend:    backend,
		maxRetries: DefaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mode == CompareAndSet {
		sw, ok := kv.SwapperOf(backend)
		if !ok {
			return nil, fmt.Errorf("recordstore: %s mode needs a compare-and-set backend: %w", ModeCAS, apperr.ErrUnsupported)
		}
		s.swapper = sw
	}
	return s, nil
}

// Mode reports the configured commit mode.
func (s *Store) Mode() Consistency { return s.mode }

// Conflicts counts compare-and-set attempts that lost a race and had to be
// retried.
func (s *Store) Conflicts() uint64 { return s.conflicts.Load() }

// Available probes the backend.
func (s *Store) Available(ctx context.Context) bool {
	return s.backend.Available(ctx)
}
