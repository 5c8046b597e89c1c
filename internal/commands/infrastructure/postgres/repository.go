package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	commands "control-cloud/internal/commands/domain"
)

const commandColumns = `request_id, tenant_id, site_id, user_id, username,
	device_id, device_name, protocol_type, point_id, point_name, address, collector_id,
	old_value, requested_value,
	delivery_status, execution_result, verification_result, final_status,
	subscriber_count, requested_at, delivered_at, executed_at, duration_ms, execution_error,
	verified_value, verified_at, linked_alarm_id, alarm_matched_at, updated_at`

// CommandRepository is a Postgres store for command records.
type CommandRepository struct {
	db *sql.DB
}

// NewCommandRepository constructs a repository.
func NewCommandRepository(db *sql.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Create inserts a command record.
func (r *CommandRepository) Create(ctx context.Context, rec *commands.CommandRecord) error {
	if r == nil || r.db == nil {
		return errors.New("command repo: nil db")
	}
	if rec == nil || rec.RequestID == "" {
		return errors.New("command repo: missing request id")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO control_command_logs (
	request_id, tenant_id, site_id, user_id, username,
	device_id, device_name, protocol_type, point_id, point_name, address, collector_id,
	old_value, requested_value,
	delivery_status, execution_result, verification_result, final_status,
	requested_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8, $9, $10, $11, $12,
	$13, $14,
	$15, $16, $17, $18,
	$19, $20
)`,
		rec.RequestID, rec.TenantID, rec.SiteID, rec.UserID, rec.Username,
		rec.DeviceID, rec.DeviceName, rec.ProtocolType, rec.PointID, rec.PointName, rec.Address, rec.CollectorID,
		nullableString(rec.OldValue), rec.RequestedValue,
		string(rec.DeliveryStatus), string(rec.ExecutionResult), string(rec.VerificationResult), string(rec.FinalStatus),
		rec.RequestedAt, rec.RequestedAt,
	)
	return err
}

// UpdateStatus applies a partial update. It reports false when the record
// does not exist or the patch guard rejected it.
func (r *CommandRepository) UpdateStatus(ctx context.Context, requestID string, patch commands.StatusPatch) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("command repo: nil db")
	}
	if requestID == "" {
		return false, errors.New("command repo: missing request id")
	}
	sets, args := buildSet(patch)
	if len(sets) == 0 {
		return false, nil
	}
	args = append(args, requestID)
	query := "UPDATE control_command_logs SET " + strings.Join(sets, ", ") + ", updated_at = NOW()" +
		fmt.Sprintf(" WHERE request_id = $%d", len(args)) + guardClause(patch.Guard)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByID fetches a record; it returns nil, nil when absent.
func (r *CommandRepository) GetByID(ctx context.Context, requestID string) (*commands.CommandRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+commandColumns+`
FROM control_command_logs
WHERE request_id = $1
LIMIT 1`, requestID)
	return scanCommand(row)
}

// Query lists records matching the filter, newest first, with the total
// count of matching rows.
func (r *CommandRepository) Query(ctx context.Context, filter commands.ListFilter, offset, limit int) ([]commands.CommandRecord, int, error) {
	if r == nil || r.db == nil {
		return nil, 0, errors.New("command repo: nil db")
	}
	where, args := buildWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM control_command_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	pageArgs := append(append([]any(nil), args...), limit, offset)
	query := "SELECT " + commandColumns + " FROM control_command_logs" + where +
		fmt.Sprintf(" ORDER BY requested_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []commands.CommandRecord
	for rows.Next() {
		rec, err := scanCommand(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// MarkTimeoutBefore finalizes records requested before the cutoff that
// never received an execution result.
func (r *CommandRepository) MarkTimeoutBefore(ctx context.Context, before time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("command repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE control_command_logs
SET execution_result = $1, verification_result = $2, final_status = $3, updated_at = NOW()
WHERE execution_result = $4 AND final_status = $5 AND requested_at < $6`,
		string(commands.ExecutionTimeout), string(commands.VerificationSkipped), string(commands.FinalTimeout),
		string(commands.ExecutionPending), string(commands.FinalPending), before)
	if err != nil {
		return 0, err
	}
	count, _ := result.RowsAffected()
	return int(count), nil
}

func buildSet(patch commands.StatusPatch) ([]string, []any) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.DeliveryStatus != "" {
		add("delivery_status", string(patch.DeliveryStatus))
	}
	if patch.ExecutionResult != "" {
		add("execution_result", string(patch.ExecutionResult))
	}
	if patch.VerificationResult != "" {
		add("verification_result", string(patch.VerificationResult))
	}
	if patch.FinalStatus != "" {
		add("final_status", string(patch.FinalStatus))
	}
	if patch.SubscriberCount != nil {
		add("subscriber_count", *patch.SubscriberCount)
	}
	if !patch.DeliveredAt.IsZero() {
		add("delivered_at", patch.DeliveredAt.UTC())
	}
	if !patch.ExecutedAt.IsZero() {
		add("executed_at", patch.ExecutedAt.UTC())
	}
	if patch.DurationMS != nil {
		add("duration_ms", *patch.DurationMS)
	}
	if patch.ExecutionError != "" {
		add("execution_error", patch.ExecutionError)
	}
	if patch.VerifiedValue != nil {
		add("verified_value", *patch.VerifiedValue)
	}
	if !patch.VerifiedAt.IsZero() {
		add("verified_at", patch.VerifiedAt.UTC())
	}
	if patch.LinkedAlarmID != "" {
		add("linked_alarm_id", patch.LinkedAlarmID)
	}
	if !patch.AlarmMatchedAt.IsZero() {
		add("alarm_matched_at", patch.AlarmMatchedAt.UTC())
	}
	return sets, args
}

func guardClause(guard commands.Guard) string {
	switch guard {
	case commands.GuardExecutionPending:
		return " AND execution_result = 'pending'"
	case commands.GuardFinalPending:
		return " AND final_status = 'pending'"
	case commands.GuardNotExecuted:
		return " AND executed_at IS NULL"
	}
	return ""
}

func buildWhere(filter commands.ListFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.TenantID != "" {
		add("tenant_id = $%d", filter.TenantID)
	}
	if filter.SiteID != "" {
		add("site_id = $%d", filter.SiteID)
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.DeviceID != "" {
		add("device_id = $%d", filter.DeviceID)
	}
	if filter.PointID != "" {
		add("point_id = $%d", filter.PointID)
	}
	if filter.ProtocolType != "" {
		add("protocol_type = $%d", filter.ProtocolType)
	}
	if filter.FinalStatus != "" {
		add("final_status = $%d", string(filter.FinalStatus))
	}
	if !filter.From.IsZero() {
		add("requested_at >= $%d", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		add("requested_at < $%d", filter.To.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (*commands.CommandRecord, error) {
	var rec commands.CommandRecord
	var (
		deliveryStatus, executionResult, verificationResult, finalStatus string
		oldValue, executionError, verifiedValue, linkedAlarmID           sql.NullString
		deliveredAt, executedAt, verifiedAt, alarmMatchedAt              sql.NullTime
		durationMS                                                       sql.NullInt64
	)
	if err := row.Scan(
		&rec.RequestID,
		&rec.TenantID,
		&rec.SiteID,
		&rec.UserID,
		&rec.Username,
		&rec.DeviceID,
		&rec.DeviceName,
		&rec.ProtocolType,
		&rec.PointID,
		&rec.PointName,
		&rec.Address,
		&rec.CollectorID,
		&oldValue,
		&rec.RequestedValue,
		&deliveryStatus,
		&executionResult,
		&verificationResult,
		&finalStatus,
		&rec.SubscriberCount,
		&rec.RequestedAt,
		&deliveredAt,
		&executedAt,
		&durationMS,
		&executionError,
		&verifiedValue,
		&verifiedAt,
		&linkedAlarmID,
		&alarmMatchedAt,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.DeliveryStatus = commands.DeliveryStatus(deliveryStatus)
	rec.ExecutionResult = commands.ExecutionResult(executionResult)
	rec.VerificationResult = commands.VerificationResult(verificationResult)
	rec.FinalStatus = commands.FinalStatus(finalStatus)
	rec.OldValue = oldValue.String
	rec.ExecutionError = executionError.String
	rec.VerifiedValue = verifiedValue.String
	rec.LinkedAlarmID = linkedAlarmID.String
	if durationMS.Valid {
		rec.DurationMS = durationMS.Int64
	}
	if deliveredAt.Valid {
		rec.DeliveredAt = deliveredAt.Time.UTC()
	}
	if executedAt.Valid {
		rec.ExecutedAt = executedAt.Time.UTC()
	}
	if verifiedAt.Valid {
		rec.VerifiedAt = verifiedAt.Time.UTC()
	}
	if alarmMatchedAt.Valid {
		rec.AlarmMatchedAt = alarmMatchedAt.Time.UTC()
	}
	rec.RequestedAt = rec.RequestedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
