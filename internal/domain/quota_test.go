package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewQuotaSnapshot(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	future := now.Add(72 * time.Hour)

	tests := []struct {
		name          string
		used, limit   int
		plan          string
		resetAt       time.Time
		wantUsed      int
		wantLimit     int
		wantRemaining int
		wantPlan      string
		wantResetAt   time.Time
	}{
		{
			name: "normal", used: 10, limit: 50, plan: "pro", resetAt: future,
			wantUsed: 10, wantLimit: 50, wantRemaining: 40, wantPlan: "pro", wantResetAt: future,
		},
		{
			name: "exhausted", used: 50, limit: 50, plan: "free", resetAt: future,
			wantUsed: 50, wantLimit: 50, wantRemaining: 0, wantPlan: "free", wantResetAt: future,
		},
		{
			name: "overrun_clamps_remaining_to_zero", used: 80, limit: 50, plan: "free", resetAt: future,
			wantUsed: 80, wantLimit: 50, wantRemaining: 0, wantPlan: "free", wantResetAt: future,
		},
		{
			name: "negative_used_clamped", used: -7, limit: 50, plan: "free", resetAt: future,
			wantUsed: 0, wantLimit: 50, wantRemaining: 50, wantPlan: "free", wantResetAt: future,
		},
		{
			name: "zero_limit_defaults", used: 5, limit: 0, plan: "", resetAt: future,
			wantUsed: 5, wantLimit: DefaultQuotaLimit, wantRemaining: 45,
			wantPlan: DefaultQuotaPlan, wantResetAt: future,
		},
		{
			name: "stale_reset_rolled_forward", used: 1, limit: 50, plan: "free",
			resetAt:  now.Add(-time.Hour),
			wantUsed: 1, wantLimit: 50, wantRemaining: 49, wantPlan: "free",
			wantResetAt: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "zero_reset_rolled_forward", used: 0, limit: 50, plan: "free",
			wantUsed: 0, wantLimit: 50, wantRemaining: 50, wantPlan: "free",
			wantResetAt: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewQuotaSnapshot(tt.used, tt.limit, tt.plan, tt.resetAt, now)

			assert.Equal(t, tt.wantUsed, s.Used)
			assert.Equal(t, tt.wantLimit, s.Limit)
			assert.Equal(t, tt.wantRemaining, s.Remaining)
			assert.Equal(t, tt.wantPlan, s.Plan)
			assert.Equal(t, tt.wantResetAt, s.ResetAt)
			assert.Equal(t, now, s.FetchedAt)
			assert.False(t, s.Confirmed, "confirmation is the reconciler's call, not the constructor's")

			// Invariants hold for every produced snapshot.
			want := s.Limit - s.Used
			if want < 0 {
				want = 0
			}
			assert.Equal(t, want, s.Remaining)
			assert.True(t, s.ResetAt.After(now))
		})
	}
}

func TestQuotaSnapshotExhausted(t *testing.T) {
	now := time.Now().UTC()
	assert.True(t, NewQuotaSnapshot(50, 50, "free", time.Time{}, now).Exhausted())
	assert.False(t, NewQuotaSnapshot(49, 50, "free", time.Time{}, now).Exhausted())
}

func TestQuotaSnapshotFresh(t *testing.T) {
	now := time.Now().UTC()
	s := NewQuotaSnapshot(0, 50, "free", time.Time{}, now)

	assert.True(t, s.Fresh(now.Add(time.Minute), 5*time.Minute))
	assert.False(t, s.Fresh(now.Add(10*time.Minute), 5*time.Minute))
	assert.False(t, QuotaSnapshot{}.Fresh(now, 5*time.Minute))
}

func TestNextQuotaReset(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC), time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NextQuotaReset(tt.in))
	}
}
