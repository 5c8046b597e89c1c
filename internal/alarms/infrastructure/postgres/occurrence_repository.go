package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alarms "control-cloud/internal/alarms/domain"
)

// OccurrenceRepository reads alarm occurrences raised by the alarm engine.
type OccurrenceRepository struct {
	db *sql.DB
}

// NewOccurrenceRepository constructs a repository.
func NewOccurrenceRepository(db *sql.DB) *OccurrenceRepository {
	return &OccurrenceRepository{db: db}
}

// ListByPointSince lists occurrences for a point raised at or after since,
// oldest first.
func (r *OccurrenceRepository) ListByPointSince(ctx context.Context, pointID string, since time.Time) ([]alarms.Occurrence, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm occurrence repo: nil db")
	}
	if pointID == "" {
		return nil, errors.New("alarm occurrence repo: empty point id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, rule_id, tenant_id, point_id, occurrence_time, severity, state, alarm_message, trigger_value
FROM alarm_occurrences
WHERE point_id = $1 AND occurrence_time >= $2
ORDER BY occurrence_time ASC, id ASC
LIMIT 100`, pointID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Occurrence
	for rows.Next() {
		occ, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *occ)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type occurrenceScanner interface {
	Scan(dest ...any) error
}

func scanOccurrence(row occurrenceScanner) (*alarms.Occurrence, error) {
	var occ alarms.Occurrence
	var tenantID, severity, state, message, trigger sql.NullString
	if err := row.Scan(
		&occ.ID,
		&occ.RuleID,
		&tenantID,
		&occ.PointID,
		&occ.OccurredAt,
		&severity,
		&state,
		&message,
		&trigger,
	); err != nil {
		return nil, err
	}
	occ.TenantID = tenantID.String
	occ.Severity = severity.String
	occ.State = state.String
	occ.Message = message.String
	occ.TriggerValue = trigger.String
	occ.OccurredAt = occ.OccurredAt.UTC()
	return &occ, nil
}
