package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	commands "control-cloud/internal/commands/domain"
)

// CommandRepository is an in-memory command record store. Each update runs
// under the repository lock, so guards behave like a single SQL UPDATE.
type CommandRepository struct {
	mu   sync.RWMutex
	data map[string]commands.CommandRecord
	now  func() time.Time
}

// NewCommandRepository constructs a repository.
func NewCommandRepository() *CommandRepository {
	return &CommandRepository{
		data: make(map[string]commands.CommandRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a record; request ids must be unique.
func (r *CommandRepository) Create(ctx context.Context, rec *commands.CommandRecord) error {
	_ = ctx
	if rec == nil || rec.RequestID == "" {
		return errors.New("command repo: missing request id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[rec.RequestID]; exists {
		return errors.New("command repo: duplicate request id")
	}
	r.data[rec.RequestID] = *rec
	return nil
}

// UpdateStatus merges the patch when its guard admits the stored record.
func (r *CommandRepository) UpdateStatus(ctx context.Context, requestID string, patch commands.StatusPatch) (bool, error) {
	_ = ctx
	if patch.IsEmpty() {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.data[requestID]
	if !ok || !patch.Allows(rec) {
		return false, nil
	}
	patch.ApplyTo(&rec)
	rec.UpdatedAt = r.now()
	r.data[requestID] = rec
	return true, nil
}

// GetByID returns a copy of the record or nil.
func (r *CommandRepository) GetByID(ctx context.Context, requestID string) (*commands.CommandRecord, error) {
	_ = ctx
	r.mu.RLock()
	rec, ok := r.data[requestID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Query filters and pages records, newest first.
func (r *CommandRepository) Query(ctx context.Context, filter commands.ListFilter, offset, limit int) ([]commands.CommandRecord, int, error) {
	_ = ctx
	r.mu.RLock()
	var matched []commands.CommandRecord
	for _, rec := range r.data {
		if filter.Matches(rec) {
			matched = append(matched, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].RequestedAt.Equal(matched[j].RequestedAt) {
			return matched[i].RequestID > matched[j].RequestID
		}
		return matched[i].RequestedAt.After(matched[j].RequestedAt)
	})
	total := len(matched)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

// MarkTimeoutBefore finalizes stale records that never got a result.
func (r *CommandRepository) MarkTimeoutBefore(ctx context.Context, before time.Time) (int, error) {
	_ = ctx
	patch := commands.TimeoutPatch()
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, rec := range r.data {
		if !rec.RequestedAt.Before(before) || rec.FinalStatus != commands.FinalPending || !patch.Allows(rec) {
			continue
		}
		patch.ApplyTo(&rec)
		rec.UpdatedAt = r.now()
		r.data[id] = rec
		count++
	}
	return count, nil
}
