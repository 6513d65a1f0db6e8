package alttext

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beepbeepai/alttext-api/internal/generation"
)

const (
	// tokenCheckedKey marks a recent successful validation; while it is
	// live no further auth/me calls are made.
	tokenCheckedKey = "token_checked"

	// tokenCheckTTL is how long one successful validation is trusted.
	tokenCheckTTL = 5 * time.Minute

	// tokenCheckLockKey single-flights the validation call across
	// concurrent requests. Losers proceed on last known-good state.
	tokenCheckLockKey = "token_check"

	// tokenCheckLockTTL releases a crashed winner's lock.
	tokenCheckLockTTL = 30 * time.Second
)

// ValidateAuth confirms the stored credentials are still usable. With an
// active license it is a no-op (the license key is validated server-side on
// every call). With a bearer token it checks the token's own expiry claim
// first, then at most once per tokenCheckTTL asks the service. Only an
// unambiguous rejection clears the token; network trouble and server errors
// leave it alone.
func (c *Client) ValidateAuth(ctx context.Context) error {
	creds, err := c.creds.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: loading credentials: %v", generation.ErrTransient, err)
	}

	if creds.HasActiveLicense() {
		return nil
	}
	if creds.Token == "" {
		return fmt.Errorf("%w: no credentials stored", generation.ErrAuthRequired)
	}

	if tokenExpired(creds.Token, time.Now()) {
		c.logger.InfoContext(ctx, "stored token is past its expiry claim, clearing")
		c.clearAuthState(ctx)
		return fmt.Errorf("%w: stored token expired", generation.ErrAuthRequired)
	}

	if _, ok, err := c.cache.Get(ctx, tokenCheckedKey); err == nil && ok {
		return nil
	}

	got, err := c.cache.TryLock(ctx, tokenCheckLockKey, tokenCheckLockTTL)
	if err != nil || !got {
		// Someone else is validating right now; last known-good stands.
		return nil
	}

	status, body, err := c.doRequest(ctx, c.httpClient, http.MethodGet, "auth/me", nil)
	if err != nil {
		c.logger.WarnContext(ctx, "token validation call failed, keeping token", "error", err)
		return nil
	}

	if authShaped(status, string(body)) {
		c.logger.InfoContext(ctx, "service rejected stored token, clearing", "status", status)
		c.clearAuthState(ctx)
		return fmt.Errorf("%w: token no longer valid", generation.ErrAuthRequired)
	}

	if status >= 200 && status < 300 {
		if err := c.cache.Set(ctx, tokenCheckedKey, []byte("1"), tokenCheckTTL); err != nil {
			c.logger.WarnContext(ctx, "failed to record token validation", "error", err)
		}
	}
	return nil
}

// clearAuthState removes the dead token and the validation marker so the
// next call starts from a clean slate.
func (c *Client) clearAuthState(ctx context.Context) {
	if err := c.creds.ClearToken(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to clear stored token", "error", err)
	}
	if err := c.cache.Delete(ctx, tokenCheckedKey); err != nil {
		c.logger.WarnContext(ctx, "failed to clear token validation marker", "error", err)
	}
}

// tokenExpired peeks at the token's exp claim without verifying the
// signature; verification is the server's job, this is just a fast local
// rejection of a token that cannot possibly work. Opaque tokens and tokens
// without an expiry claim pass through.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}

// authShaped reports whether a status/body pair is an authentication
// rejection rather than some other failure.
func authShaped(status int, body string) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}

	lower := strings.ToLower(body)
	for _, marker := range []string{"user not found", "session expired", "unauthorized"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
