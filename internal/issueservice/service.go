// Package issueservice implements the issue operations offered to
// presentation layers: submit, vote, list and the pure aggregations over a
// listing.
package issueservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/parkwatch/internal/apperr"
	"github.com/starford/parkwatch/internal/codec"
	"github.com/starford/parkwatch/internal/models"
	"github.com/starford/parkwatch/internal/recordstore"
)

// Event kinds passed to an EventCallback.
const (
	EventCreated = "created"
	EventVoted   = "voted"
)

// EventCallback is called after a successful mutation.
type EventCallback func(kind string, id string)

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEventCallback registers cb to be told about created and voted issues.
func WithEventCallback(cb EventCallback) Option {
	return func(s *Service) { s.onEvent = cb }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service coordinates the codec and the record store. It keeps no copy of
// the issues: every listing is re-derived from the backend.
type Service struct {
	store   *recordstore.Store
	codec   codec.Codec
	now     func() time.Time
	onEvent EventCallback
	logger  *slog.Logger
}

// NewService creates a new issue service.
func NewService(store *recordstore.Store, c codec.Codec, opts ...Option) *Service {
	s := &Service{
		store:  store,
		codec:  c,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitInput is the caller-supplied part of a new issue.
type SubmitInput struct {
	Category string
	Payload  codec.Payload
}

// Validate checks the input before any I/O happens.
func (in SubmitInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Category, validation.Required.Error("category is required")),
		validation.Field(&in.Payload, validation.Required.Error("payload is required"),
			validation.By(hasContent)),
	)
}

func hasContent(v any) error {
	p, _ := v.(codec.Payload)
	for _, val := range p {
		if strings.TrimSpace(val) != "" {
			return nil
		}
	}
	return errors.New("payload has no content")
}

// Submit encodes the payload and stores a new pending issue with zero votes.
func (s *Service) Submit(ctx context.Context, category string, payload codec.Payload) (string, error) {
	in := SubmitInput{Category: strings.TrimSpace(category), Payload: payload}
	if err := in.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	data, err := s.codec.Encode(in.Payload)
	if err != nil {
		return "", fmt.Errorf("issueservice: encode payload: %w", err)
	}

	now := s.now()
	issue := models.Issue{
		ID:        newID(now),
		Data:      data,
		Category:  in.Category,
		Timestamp: now.Unix(),
		Votes:     0,
		Status:    models.StatusPending,
	}
	if err := s.store.CreateRecord(ctx, issue); err != nil {
		return "", err
	}
	s.logger.Info("issue submitted", slog.String("id", issue.ID), slog.String("category", issue.Category))
	s.emit(EventCreated, issue.ID)
	return issue.ID, nil
}

// Vote adds one vote to the issue.
func (s *Service) Vote(ctx context.Context, id string) error {
	if !recordstore.ValidID(id) {
		return fmt.Errorf("issueservice: %q: %w", id, apperr.ErrRecordNotFound)
	}
	updated, err := s.store.UpdateRecord(ctx, id, func(is models.Issue) models.Issue {
		is.Votes++
		return is
	})
	if err != nil {
		return err
	}
	s.logger.Debug("issue voted", slog.String("id", id), slog.Int("votes", updated.Votes))
	s.emit(EventVoted, id)
	return nil
}

// ListSorted returns every visible issue, newest first.
func (s *Service) ListSorted(ctx context.Context) ([]models.Issue, error) {
	if !s.store.Available(ctx) {
		return nil, fmt.Errorf("issueservice: list: %w", apperr.ErrBackendUnavailable)
	}
	return s.store.ReadAll(ctx)
}

// Get returns a single issue.
func (s *Service) Get(ctx context.Context, id string) (*models.Issue, error) {
	if !recordstore.ValidID(id) {
		return nil, fmt.Errorf("issueservice: %q: %w", id, apperr.ErrRecordNotFound)
	}
	return s.store.ReadRecord(ctx, id)
}

// Reveal decodes the private payload of an issue. It fails with
// apperr.ErrUnsupported when the codec cannot decode (encode-only keys).
func (s *Service) Reveal(ctx context.Context, id string) (codec.Payload, error) {
	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.codec.Decode(issue.Data)
}

// Available reports whether the ledger can be reached.
func (s *Service) Available(ctx context.Context) bool {
	return s.store.Available(ctx)
}

func (s *Service) emit(kind, id string) {
	if s.onEvent != nil {
		s.onEvent(kind, id)
	}
}

// newID builds "<unix millis>-<random suffix>".
func newID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}
