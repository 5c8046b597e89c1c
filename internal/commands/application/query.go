package application

import (
	"context"
	"errors"
	"strings"
	"time"

	commands "control-cloud/internal/commands/domain"
	"control-cloud/internal/observability/metrics"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

// ListResult is one page of the command log.
type ListResult struct {
	Rows  []commands.CommandRecord `json:"rows"`
	Total int                      `json:"total"`
	Page  int                      `json:"page"`
	Limit int                      `json:"limit"`
}

// QueryService serves read-only command log queries.
type QueryService struct {
	store CommandStore
}

// NewQueryService constructs a query service.
func NewQueryService(store CommandStore) (*QueryService, error) {
	if store == nil {
		return nil, errors.New("commands query: nil store")
	}
	return &QueryService{store: store}, nil
}

// ListCommands returns a page of records matching filter, newest first.
// page is 1-based; limit defaults to 20 and is capped at 200.
func (s *QueryService) ListCommands(ctx context.Context, filter commands.ListFilter, page, limit int) (ListResult, error) {
	start := time.Now()
	if filter.FinalStatus != "" && !filter.FinalStatus.Valid() {
		metrics.ObserveQuery(metrics.ResultError, time.Since(start))
		return ListResult{}, errors.New("commands query: invalid final_status")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		metrics.ObserveQuery(metrics.ResultError, time.Since(start))
		return ListResult{}, errors.New("commands query: from must be before to")
	}
	page, limit = NormalizePage(page, limit)

	rows, total, err := s.store.Query(ctx, filter, (page-1)*limit, limit)
	if err != nil {
		metrics.ObserveQuery(metrics.ResultError, time.Since(start))
		return ListResult{}, err
	}
	if rows == nil {
		rows = []commands.CommandRecord{}
	}
	metrics.ObserveQuery(metrics.ResultSuccess, time.Since(start))
	return ListResult{Rows: rows, Total: total, Page: page, Limit: limit}, nil
}

// GetCommand returns a single record or commands.ErrNotFound.
func (s *QueryService) GetCommand(ctx context.Context, requestID string) (*commands.CommandRecord, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, errors.New("commands query: request_id required")
	}
	rec, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, commands.ErrNotFound
	}
	return rec, nil
}

// NormalizePage applies paging defaults and bounds.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}
