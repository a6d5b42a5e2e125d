package recordstore

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/starford/parkwatch/internal/apperr"
	"github.com/starford/parkwatch/internal/models"
)

// record is the on-ledger shape of an issue. The id lives in the key.
type record struct {
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Category  string `json:"category"`
	Votes     int    `json:"votes"`
	Status    string `json:"status"`
}

func encodeRecord(issue models.Issue) ([]byte, error) {
	return json.Marshal(record{
		Data:      issue.Data,
		Timestamp: issue.Timestamp,
		Category:  issue.Category,
		Votes:     issue.Votes,
		Status:    string(issue.Status),
	})
}

// recordFields are the keys owned by record. Anything else in a stored object
// belongs to another writer.
var recordFields = []string{"data", "timestamp", "category", "votes", "status"}

// encodeRecordOver encodes issue on top of prev, keeping keys of prev that
// record does not own.
func encodeRecordOver(prev []byte, issue models.Issue) ([]byte, error) {
	raw, err := encodeRecord(issue)
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(prev, &merged); err != nil {
		return raw, nil
	}
	for _, f := range recordFields {
		delete(merged, f)
	}
	if len(merged) == 0 {
		return raw, nil
	}
	var own map[string]json.RawMessage
	if err := json.Unmarshal(raw, &own); err != nil {
		return nil, err
	}
	maps.Copy(merged, own)
	return json.Marshal(merged)
}

// decodeRecord parses a stored record. Missing votes and status default to 0
// and pending; anything else out of range is malformed.
func decodeRecord(id string, raw []byte) (*models.Issue, error) {
	var rec *record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("recordstore: record %s: %v: %w", id, err, apperr.ErrDecode)
	}
	if rec == nil {
		return nil, fmt.Errorf("recordstore: record %s is null: %w", id, apperr.ErrDecode)
	}
	status := models.Status(rec.Status)
	if status == "" {
		status = models.StatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("recordstore: record %s: unknown status %q: %w", id, rec.Status, apperr.ErrDecode)
	}
	if rec.Votes < 0 {
		return nil, fmt.Errorf("recordstore: record %s: negative votes: %w", id, apperr.ErrDecode)
	}
	return &models.Issue{
		ID:        id,
		Data:      rec.Data,
		Category:  rec.Category,
		Timestamp: rec.Timestamp,
		Votes:     rec.Votes,
		Status:    status,
	}, nil
}

func encodeIndex(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(ids)
}

func decodeIndex(raw []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("recordstore: index: %v: %w", err, apperr.ErrDecode)
	}
	return ids, nil
}
