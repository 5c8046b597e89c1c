package telemetry

import (
	"strings"
	"time"
)

const (
	QualityGood        = "good"
	QualityBad         = "bad"
	QualityCommFailure = "comm_failure"
)

// CurrentValue is the latest known value of a point as refreshed by the
// collector pipeline. Values are kept as text.
type CurrentValue struct {
	PointID   string    `json:"point_id"`
	Value     string    `json:"value"`
	Quality   string    `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Usable reports whether the value can be compared against a request.
func (v CurrentValue) Usable() bool {
	switch strings.ToLower(v.Quality) {
	case QualityBad, QualityCommFailure:
		return false
	}
	return strings.TrimSpace(v.Value) != ""
}
