package alarms

import "time"

const (
	StateActive       = "active"
	StateAcknowledged = "acknowledged"
	StateCleared      = "cleared"
)

// Occurrence is one raise of an alarm rule against a point.
type Occurrence struct {
	ID           string    `json:"id"`
	RuleID       string    `json:"rule_id"`
	TenantID     string    `json:"tenant_id"`
	PointID      string    `json:"point_id"`
	OccurredAt   time.Time `json:"occurred_at"`
	Severity     string    `json:"severity"`
	State        string    `json:"state"`
	Message      string    `json:"message"`
	TriggerValue string    `json:"trigger_value,omitempty"`
}

// EarliestSince returns the first occurrence at or after since. The input
// does not need to be ordered.
func EarliestSince(occurrences []Occurrence, since time.Time) (Occurrence, bool) {
	var (
		best  Occurrence
		found bool
	)
	for _, occ := range occurrences {
		if occ.OccurredAt.Before(since) {
			continue
		}
		if !found || occ.OccurredAt.Before(best.OccurredAt) {
			best = occ
			found = true
		}
	}
	return best, found
}
