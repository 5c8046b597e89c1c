package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	telemetry "control-cloud/internal/telemetry/domain"
)

const defaultCurrentValuesTable = "current_values"

// CurrentValueReader reads point snapshots from the current_values table.
type CurrentValueReader struct {
	db    *sql.DB
	table string
}

// ReaderOption configures the reader.
type ReaderOption func(*CurrentValueReader)

// WithTable overrides the snapshot table name.
func WithTable(table string) ReaderOption {
	return func(r *CurrentValueReader) {
		if table != "" {
			r.table = table
		}
	}
}

// NewCurrentValueReader constructs a reader.
func NewCurrentValueReader(db *sql.DB, opts ...ReaderOption) *CurrentValueReader {
	reader := &CurrentValueReader{db: db, table: defaultCurrentValuesTable}
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

// ReadCurrentValue returns the snapshot for a point; ok is false when the
// point has no row.
func (r *CurrentValueReader) ReadCurrentValue(ctx context.Context, pointID string) (telemetry.CurrentValue, bool, error) {
	if r == nil || r.db == nil {
		return telemetry.CurrentValue{}, false, errors.New("current value reader: nil db")
	}
	if pointID == "" {
		return telemetry.CurrentValue{}, false, errors.New("current value reader: empty point id")
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT current_value, quality, value_timestamp
FROM %s
WHERE point_id = $1
LIMIT 1`, r.table), pointID)

	var value, quality sql.NullString
	var ts sql.NullTime
	if err := row.Scan(&value, &quality, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return telemetry.CurrentValue{}, false, nil
		}
		return telemetry.CurrentValue{}, false, err
	}
	if !value.Valid {
		return telemetry.CurrentValue{}, false, nil
	}
	current := telemetry.CurrentValue{
		PointID: pointID,
		Value:   value.String,
		Quality: quality.String,
		Source:  "postgres",
	}
	if ts.Valid {
		current.Timestamp = ts.Time.UTC()
	}
	return current, true, nil
}
