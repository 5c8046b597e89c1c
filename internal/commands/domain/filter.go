package commands

import "time"

// ListFilter narrows command record queries. Empty fields match everything;
// the time range is [From, To) over requested_at.
type ListFilter struct {
	TenantID     string
	SiteID       string
	UserID       string
	DeviceID     string
	PointID      string
	ProtocolType string
	FinalStatus  FinalStatus
	From         time.Time
	To           time.Time
}

// Matches reports whether rec satisfies the filter.
func (f ListFilter) Matches(rec CommandRecord) bool {
	if f.TenantID != "" && rec.TenantID != f.TenantID {
		return false
	}
	if f.SiteID != "" && rec.SiteID != f.SiteID {
		return false
	}
	if f.UserID != "" && rec.UserID != f.UserID {
		return false
	}
	if f.DeviceID != "" && rec.DeviceID != f.DeviceID {
		return false
	}
	if f.PointID != "" && rec.PointID != f.PointID {
		return false
	}
	if f.ProtocolType != "" && rec.ProtocolType != f.ProtocolType {
		return false
	}
	if f.FinalStatus != "" && rec.FinalStatus != f.FinalStatus {
		return false
	}
	if !f.From.IsZero() && rec.RequestedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !rec.RequestedAt.Before(f.To) {
		return false
	}
	return true
}
