package domain

import "time"

// Default quota values applied when the remote service reports nothing
// usable. They mirror the free plan.
const (
	DefaultQuotaLimit = 50
	DefaultQuotaPlan  = "free"
)

// QuotaSnapshot is a locally cached summary of remaining usage against the
// generation service. Confirmed marks snapshots that came straight from a
// successful remote response (or an authoritative license record); only a
// confirmed snapshot may block generation.
type QuotaSnapshot struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Plan      string    `json:"plan"`
	ResetAt   time.Time `json:"reset_at"`
	FetchedAt time.Time `json:"fetched_at"`
	Confirmed bool      `json:"confirmed"`
}

// NewQuotaSnapshot builds a normalized snapshot. It enforces the invariants
// Remaining == max(0, Limit-Used), a positive Limit, and a ResetAt in the
// future (rolled forward to the first of next month when absent or stale).
// Callers with a remaining-only payload derive Used as Limit-Remaining first.
func NewQuotaSnapshot(used, limit int, plan string, resetAt time.Time, now time.Time) QuotaSnapshot {
	if used < 0 {
		used = 0
	}
	if limit <= 0 {
		limit = DefaultQuotaLimit
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	if plan == "" {
		plan = DefaultQuotaPlan
	}
	if !resetAt.After(now) {
		resetAt = NextQuotaReset(now)
	}

	return QuotaSnapshot{
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		Plan:      plan,
		ResetAt:   resetAt,
		FetchedAt: now,
	}
}

// Exhausted reports whether the snapshot shows no remaining quota.
func (s QuotaSnapshot) Exhausted() bool {
	return s.Remaining <= 0
}

// Fresh reports whether the snapshot was fetched within maxAge of now.
func (s QuotaSnapshot) Fresh(now time.Time, maxAge time.Duration) bool {
	return !s.FetchedAt.IsZero() && now.Sub(s.FetchedAt) <= maxAge
}

// NextQuotaReset returns midnight UTC on the first day of the month after t.
// Used as the fallback reset date when the service does not report one.
func NextQuotaReset(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
