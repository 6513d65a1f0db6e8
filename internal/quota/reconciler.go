// Package quota reconciles the locally cached view of generation quota with
// the remote service. Its one hard rule is benefit of the doubt: only a
// fresh, confirmed snapshot showing zero remaining may block generation;
// every ambiguous state (fetch failure, stale cache, unparseable payload)
// resolves to "allow" and lets the service be the final arbiter.
package quota

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/beepbeepai/alttext-api/internal/domain"
	"github.com/beepbeepai/alttext-api/internal/platform/cache"
	"github.com/beepbeepai/alttext-api/internal/store"
)

const (
	// snapshotKey is the cache key for the persisted usage snapshot.
	snapshotKey = "usage_snapshot"

	// snapshotTTL bounds how long a cached snapshot is served without a
	// remote refresh.
	snapshotTTL = cache.DefaultTTL

	// licensePlan is the plan label applied to organization licenses that
	// do not report one.
	licensePlan = "agency"
)

// RemoteUsage is the wire shape of the service's usage report. Remaining is
// a pointer so an explicit zero (exhausted) is distinguishable from the
// field being absent.
type RemoteUsage struct {
	Used      int    `json:"used"`
	Remaining *int   `json:"remaining"`
	Limit     int    `json:"limit"`
	Plan      string `json:"plan"`
	ResetDate string `json:"resetDate"`
}

// UsageFetcher retrieves the current usage report from the remote service.
type UsageFetcher interface {
	FetchUsage(ctx context.Context) (*RemoteUsage, error)
}

// licensePayload is the subset of the stored license record the reconciler
// reads. The full payload is persisted raw; unknown fields pass through.
type licensePayload struct {
	TokenLimit      int    `json:"tokenLimit"`
	TokensRemaining int    `json:"tokensRemaining"`
	Plan            string `json:"plan"`
	ResetDate       string `json:"resetDate"`
}

// Reconciler serves quota snapshots from the license record, the cache, or
// the remote service, in that priority order.
type Reconciler struct {
	logger  *slog.Logger
	creds   store.CredentialStore
	fetcher UsageFetcher
	cache   cache.Cache
	now     func() time.Time
}

// NewReconciler creates a Reconciler. All dependencies are required.
func NewReconciler(
	logger *slog.Logger,
	creds store.CredentialStore,
	fetcher UsageFetcher,
	c cache.Cache,
) *Reconciler {
	return &Reconciler{
		logger:  logger,
		creds:   creds,
		fetcher: fetcher,
		cache:   c,
		now:     time.Now,
	}
}

// Usage returns the current quota snapshot. An active organization license
// overrides the personal pool entirely. Otherwise the cached snapshot is
// served while live; forceRefresh discards it first. A failed remote fetch
// with nothing cached yields the default free snapshot flagged unconfirmed,
// never an error: quota reporting must not break callers.
func (r *Reconciler) Usage(ctx context.Context, forceRefresh bool) (domain.QuotaSnapshot, error) {
	now := r.now().UTC()

	creds, err := r.creds.Get(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to load credentials for quota check", "error", err)
		creds = &store.Credentials{}
	}

	if creds.HasActiveLicense() {
		if snap, ok := r.licenseSnapshot(ctx, creds, now); ok {
			return snap, nil
		}
	}

	if forceRefresh {
		if err := r.cache.Delete(ctx, snapshotKey); err != nil {
			r.logger.WarnContext(ctx, "failed to drop cached usage snapshot", "error", err)
		}
	} else if snap, ok := r.cachedSnapshot(ctx); ok {
		return snap, nil
	}

	usage, err := r.fetcher.FetchUsage(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "usage fetch failed, serving unconfirmed default",
			"error", err)
		return domain.NewQuotaSnapshot(0, domain.DefaultQuotaLimit, domain.DefaultQuotaPlan, time.Time{}, now), nil
	}

	snap := r.normalize(usage, now)
	snap.Confirmed = true
	r.storeSnapshot(ctx, snap)
	return snap, nil
}

// HasReachedLimit reports whether generation should be blocked on quota.
// License holders are never blocked locally; the backend meters them.
func (r *Reconciler) HasReachedLimit(ctx context.Context) bool {
	creds, err := r.creds.Get(ctx)
	if err == nil && creds.HasActiveLicense() {
		return false
	}

	snap, err := r.Usage(ctx, false)
	if err != nil {
		return false
	}

	return snap.Confirmed && snap.Fresh(r.now().UTC(), snapshotTTL) && snap.Exhausted()
}

// Invalidate drops the cached snapshot so the next Usage call refetches.
// The processor calls this after a drain pass so completed generations show
// up in the next stats read.
func (r *Reconciler) Invalidate(ctx context.Context) {
	if err := r.cache.Delete(ctx, snapshotKey); err != nil {
		r.logger.WarnContext(ctx, "failed to invalidate usage snapshot", "error", err)
	}
}

func (r *Reconciler) licenseSnapshot(
	ctx context.Context,
	creds *store.Credentials,
	now time.Time,
) (domain.QuotaSnapshot, bool) {
	if len(creds.LicenseData) == 0 {
		return domain.QuotaSnapshot{}, false
	}

	var payload licensePayload
	if err := json.Unmarshal(creds.LicenseData, &payload); err != nil {
		r.logger.WarnContext(ctx, "stored license payload is unreadable", "error", err)
		return domain.QuotaSnapshot{}, false
	}
	if payload.TokenLimit <= 0 {
		return domain.QuotaSnapshot{}, false
	}

	plan := payload.Plan
	if plan == "" {
		plan = licensePlan
	}

	used := payload.TokenLimit - payload.TokensRemaining
	snap := domain.NewQuotaSnapshot(used, payload.TokenLimit, plan,
		parseResetDate(payload.ResetDate), now)
	snap.Confirmed = true
	return snap, true
}

func (r *Reconciler) cachedSnapshot(ctx context.Context) (domain.QuotaSnapshot, bool) {
	data, ok, err := r.cache.Get(ctx, snapshotKey)
	if err != nil || !ok {
		return domain.QuotaSnapshot{}, false
	}

	var snap domain.QuotaSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.WarnContext(ctx, "cached usage snapshot is unreadable", "error", err)
		return domain.QuotaSnapshot{}, false
	}
	return snap, true
}

func (r *Reconciler) storeSnapshot(ctx context.Context, snap domain.QuotaSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, snapshotKey, data, snapshotTTL); err != nil {
		r.logger.WarnContext(ctx, "failed to cache usage snapshot", "error", err)
	}
}

// normalize maps the wire report onto the snapshot invariants. A present
// remaining count is authoritative: used is derived from it even when the
// report omits used, so a remaining-only exhaustion signal still counts.
func (r *Reconciler) normalize(usage *RemoteUsage, now time.Time) domain.QuotaSnapshot {
	used := usage.Used
	if usage.Remaining != nil && usage.Limit > 0 {
		used = usage.Limit - *usage.Remaining
		if used < 0 {
			used = 0
		}
	}
	return domain.NewQuotaSnapshot(used, usage.Limit, usage.Plan,
		parseResetDate(usage.ResetDate), now)
}

// parseResetDate accepts the formats the service has been seen to emit.
// Anything unparseable yields the zero time, which NewQuotaSnapshot rolls
// forward to the first of next month.
func parseResetDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
