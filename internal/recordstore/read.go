package recordstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/parkwatch/internal/apperr"
	"github.com/starford/parkwatch/internal/models"
)

// readIndex returns the raw index bytes alongside the ids they hold. A
// malformed index is logged and yields no ids; raw is still returned so a
// compare-and-set can replace it.
func (s *Store) readIndex(ctx context.Context) (ids []string, raw []byte, err error) {
	raw, err = s.backend.Get(ctx, IndexKey)
	if err != nil {
		return nil, nil, fmt.Errorf("recordstore: read index: %w", err)
	}
	if len(raw) == 0 {
		return nil, raw, nil
	}
	ids, err = decodeIndex(raw)
	if err != nil {
		s.logger.Warn("recordstore: index malformed, treating as empty",
			slog.String("error", err.Error()))
		return nil, raw, nil
	}
	return ids, raw, nil
}

// ListIDs returns every id in the index, first occurrence order, without
// duplicates. An absent or malformed index yields an empty slice.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	ids, _, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// readRecord returns the parsed record together with its raw bytes.
func (s *Store) readRecord(ctx context.Context, id string) (*models.Issue, []byte, error) {
	raw, err := s.backend.Get(ctx, DeriveKey(id))
	if err != nil {
		return nil, nil, fmt.Errorf("recordstore: read %s: %w", id, err)
	}
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("recordstore: %s: %w", id, apperr.ErrRecordNotFound)
	}
	issue, err := decodeRecord(id, raw)
	if err != nil {
		// Malformed reads as absent; ErrDecode stays matchable.
		return nil, raw, fmt.Errorf("recordstore: %s: %w: %w", id, apperr.ErrRecordNotFound, err)
	}
	return issue, raw, nil
}

// ReadRecord loads one issue. It fails with apperr.ErrRecordNotFound when the
// key is empty or the stored bytes are malformed; the latter also matches
// apperr.ErrDecode.
func (s *Store) ReadRecord(ctx context.Context, id string) (*models.Issue, error) {
	issue, _, err := s.readRecord(ctx, id)
	return issue, err
}

// ReadAll loads every indexed issue, newest first. Records that are missing,
// malformed or unreadable are logged and skipped.
func (s *Store) ReadAll(ctx context.Context) ([]models.Issue, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Issue, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		issue, err := s.ReadRecord(ctx, id)
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, apperr.ErrRecordNotFound) && !errors.Is(err, apperr.ErrDecode) {
				level = slog.LevelDebug
			}
			s.logger.Log(ctx, level, "recordstore: skipping record",
				slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		out = append(out, *issue)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out, nil
}
