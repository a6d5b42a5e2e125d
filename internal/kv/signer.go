package kv

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/parkwatch/internal/apperr"
)

// Signer wraps a Backend with a write capability. Reads always pass
// through; writes are rejected until an account is set. The account is
// refreshed by whoever owns the session (wallet connect/disconnect).
type Signer struct {
	inner Backend

	mu      sync.RWMutex
	account string
}

// NewSigner wraps inner. account may be empty, in which case the signer starts
// read-only.
func NewSigner(inner Backend, account string) *Signer {
	return &Signer{inner: inner, account: account}
}

// SetAccount replaces the write capability. An empty account makes the
// signer read-only.
func (s *Signer) SetAccount(account string) {
	s.mu.Lock()
	s.account = account
	s.mu.Unlock()
}

// Account returns the current account, empty when read-only.
func (s *Signer) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Unwrap returns the wrapped backend.
func (s *Signer) Unwrap() Backend { return s.inner }

func (s *Signer) Get(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Get(ctx, key)
}

func (s *Signer) Set(ctx context.Context, key string, value []byte) error {
	if s.Account() == "" {
		return fmt.Errorf("kv: set %s: no account connected: %w", key, apperr.ErrWriteRejected)
	}
	return s.inner.Set(ctx, key, value)
}

func (s *Signer) CompareAndSet(ctx context.Context, key string, old, value []byte) (bool, error) {
	if s.Account() == "" {
		return false, fmt.Errorf("kv: cas %s: no account connected: %w", key, apperr.ErrWriteRejected)
	}
	sw, ok := s.inner.(Swapper)
	if !ok {
		return false, fmt.Errorf("kv: cas %s: %w", key, apperr.ErrUnsupported)
	}
	return sw.CompareAndSet(ctx, key, old, value)
}

func (s *Signer) Available(ctx context.Context) bool {
	return s.inner.Available(ctx)
}

// SwapperOf returns b as a Swapper when compare-and-set is genuinely
// supported, looking through wrappers that expose Unwrap.
func SwapperOf(b Backend) (Swapper, bool) {
	if w, ok := b.(interface{ Unwrap() Backend }); ok {
		if _, ok := SwapperOf(w.Unwrap()); !ok {
			return nil, false
		}
	}
	sw, ok := b.(Swapper)
	return sw, ok
}
