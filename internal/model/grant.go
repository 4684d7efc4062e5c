package model

import (
	"time"
)

// Access grant durations
const (
	DurationOneDay    = "1-day"
	DurationSevenDays = "7-days"
	DurationThirtyDay = "30-days"
	DurationPermanent = "permanent"
)

var durationLengths = map[string]time.Duration{
	DurationOneDay:    24 * time.Hour,
	DurationSevenDays: 7 * 24 * time.Hour,
	DurationThirtyDay: 30 * 24 * time.Hour,
}

// AccessGrant allows a doctor to see a subset of a patient's records for a
// bounded time. RecordIDs is never empty: deleting the last referenced
// record deletes the grant itself. Expiry is computed from CreatedAt and
// Duration, never stored.
type AccessGrant struct {
	ID             int64     `json:"id"`
	PatientAddress string    `json:"patient_address"`
	DoctorAddress  string    `json:"doctor_address"`
	RecordIDs      []int64   `json:"record_ids"`
	Duration       string    `json:"duration"`
	CreatedAt      time.Time `json:"created_at"`
}

// ExpiresAt returns the computed expiry time. The second return is false
// for permanent grants, which never expire.
func (g *AccessGrant) ExpiresAt() (time.Time, bool) {
	d, ok := durationLengths[g.Duration]
	if !ok {
		return time.Time{}, false
	}
	return g.CreatedAt.Add(d), true
}

// Active reports whether the grant still authorizes access at the given
// instant. Expiry is enforced here, not just computed for display.
func (g *AccessGrant) Active(now time.Time) bool {
	expiry, expires := g.ExpiresAt()
	if !expires {
		return true
	}
	return now.Before(expiry)
}

// ContainsRecord reports whether the grant references the given record id.
func (g *AccessGrant) ContainsRecord(id int64) bool {
	for _, rid := range g.RecordIDs {
		if rid == id {
			return true
		}
	}
	return false
}

type CreateGrantRequest struct {
	PatientAddress string  `json:"patientAddress" binding:"required,walletaddr"`
	DoctorAddress  string  `json:"doctorAddress" binding:"required,walletaddr"`
	RecordIDs      []int64 `json:"recordIds" binding:"required,min=1,dive,gt=0"`
	AccessDuration string  `json:"accessDuration" binding:"required,oneof=1-day 7-days 30-days permanent"`
}

// GrantView decorates a grant with its computed expiry for listings.
type GrantView struct {
	*AccessGrant
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `json:"active"`
}

// NewGrantView computes the display fields for a grant.
func NewGrantView(g *AccessGrant, now time.Time) *GrantView {
	view := &GrantView{AccessGrant: g, Active: g.Active(now)}
	if expiry, expires := g.ExpiresAt(); expires {
		view.ExpiresAt = &expiry
	}
	return view
}

// DoctorAccessView bundles the grants for a doctor with the records of the
// patients those grants reference. Callers intersect with each grant's
// RecordIDs when rendering or authorizing a specific record.
type DoctorAccessView struct {
	Grants  []*GrantView     `json:"grants"`
	Records []*MedicalRecord `json:"records"`
}
