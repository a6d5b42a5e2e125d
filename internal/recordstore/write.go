package recordstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/starford/parkwatch/internal/apperr"
	"github.com/starford/parkwatch/internal/models"
)

// MutateFunc transforms a record. It must be pure: under CompareAndSet it
// may run more than once.
type MutateFunc func(models.Issue) models.Issue

// CreateRecord writes the record and then appends its id to the index.
//
// If the index write fails the record is left as an orphan: stored but not
// listed. The index never references a record that was not written first.
func (s *Store) CreateRecord(ctx context.Context, issue models.Issue) error {
	if !ValidID(issue.ID) {
		return fmt.Errorf("recordstore: invalid id %q: %w", issue.ID, apperr.ErrValidation)
	}
	if issue.Status == "" {
		issue.Status = models.StatusPending
	}
	if err := checkIssue(issue); err != nil {
		return err
	}
	raw, err := encodeRecord(issue)
	if err != nil {
		return fmt.Errorf("recordstore: encode %s: %w", issue.ID, err)
	}

	key := DeriveKey(issue.ID)
	if s.mode == CompareAndSet {
		ok, err := s.swapper.CompareAndSet(ctx, key, nil, raw)
		if err != nil {
			return writeErr(key, err)
		}
		if !ok {
			return fmt.Errorf("recordstore: %s already exists: %w", issue.ID, apperr.ErrConflict)
		}
	} else if err := s.backend.Set(ctx, key, raw); err != nil {
		return writeErr(key, err)
	}

	if err := s.appendIndex(ctx, issue.ID); err != nil {
		s.logger.Warn("recordstore: record written but not indexed",
			slog.String("id", issue.ID), slog.String("error", err.Error()))
		return err
	}
	return nil
}

// appendIndex adds id to the index with a full rewrite of the index blob.
func (s *Store) appendIndex(ctx context.Context, id string) error {
	if s.mode == LastWriterWins {
		ids, _, err := s.readIndex(ctx)
		if err != nil {
			return err
		}
		if slices.Contains(ids, id) {
			return nil
		}
		raw, err := encodeIndex(append(ids, id))
		if err != nil {
			return err
		}
		if err := s.backend.Set(ctx, IndexKey, raw); err != nil {
			return writeErr(IndexKey, err)
		}
		return nil
	}

	return s.retry(ctx, IndexKey, func() (bool, error) {
		ids, old, err := s.readIndex(ctx)
		if err != nil {
			return false, err
		}
		if slices.Contains(ids, id) {
			return true, nil
		}
		raw, err := encodeIndex(append(ids, id))
		if err != nil {
			return false, err
		}
		return s.swap(ctx, IndexKey, old, raw)
	})
}

// UpdateRecord reads the record for id, applies mutate and writes the full
// record back. The id and timestamp are immutable and restored after mutate.
// Keys the record does not own are carried over unchanged. An absent or
// malformed record fails with apperr.ErrRecordNotFound before any write.
func (s *Store) UpdateRecord(ctx context.Context, id string, mutate MutateFunc) (*models.Issue, error) {
	var updated models.Issue
	step := func() (bool, error) {
		cur, old, err := s.readRecord(ctx, id)
		if err != nil {
			return false, err
		}
		next := mutate(*cur)
		next.ID = cur.ID
		next.Timestamp = cur.Timestamp
		if err := checkIssue(next); err != nil {
			return false, err
		}
		raw, err := encodeRecordOver(old, next)
		if err != nil {
			return false, fmt.Errorf("recordstore: encode %s: %w", id, err)
		}
		updated = next
		if s.mode == LastWriterWins {
			if err := s.backend.Set(ctx, DeriveKey(id), raw); err != nil {
				return false, writeErr(DeriveKey(id), err)
			}
			return true, nil
		}
		return s.swap(ctx, DeriveKey(id), old, raw)
	}

	if s.mode == LastWriterWins {
		if _, err := step(); err != nil {
			return nil, err
		}
	} else if err := s.retry(ctx, DeriveKey(id), step); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) swap(ctx context.Context, key string, old, value []byte) (bool, error) {
	ok, err := s.swapper.CompareAndSet(ctx, key, old, value)
	if err != nil {
		return false, writeErr(key, err)
	}
	return ok, nil
}

// retry runs attempt until it commits, fails, or the retry budget is spent.
func (s *Store) retry(ctx context.Context, key string, attempt func() (bool, error)) error {
	for n := 0; n <= s.maxRetries; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := attempt()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		s.conflicts.Add(1)
		s.logger.Debug("recordstore: compare-and-set lost, retrying",
			slog.String("key", key), slog.Int("attempt", n+1))
	}
	return fmt.Errorf("recordstore: %s: gave up after %d attempts: %w", key, s.maxRetries+1, apperr.ErrConflict)
}

func checkIssue(issue models.Issue) error {
	if !issue.Status.Valid() {
		return fmt.Errorf("recordstore: unknown status %q: %w", issue.Status, apperr.ErrValidation)
	}
	if issue.Votes < 0 {
		return fmt.Errorf("recordstore: negative votes: %w", apperr.ErrValidation)
	}
	return nil
}

// writeErr classifies a failed backend write as unavailable unless the
// backend already said why.
func writeErr(key string, err error) error {
	if errors.Is(err, apperr.ErrBackendUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("recordstore: write %s: %w", key, err)
	}
	return fmt.Errorf("recordstore: write %s: %w: %w", key, apperr.ErrWriteRejected, err)
}
