package store

import (
	"context"
	"encoding/json"
	"time"
)

// Credentials holds the identity this installation presents to the remote
// generation service. LicenseData is the raw organization payload returned
// on license activation; it is persisted unparsed so newer backend fields
// survive round trips.
type Credentials struct {
	// SiteHash uniquely identifies this installation to the backend so
	// quotas are tracked per site rather than per account.
	SiteHash string `json:"site_hash"`

	// Token is the bearer token for a personal account, if logged in.
	Token string `json:"token,omitempty"`

	// LicenseKey is the organization license key, if activated. When both
	// are present the license takes priority.
	LicenseKey string `json:"license_key,omitempty"`

	// LicenseData is the cached license/organization payload.
	LicenseData json.RawMessage `json:"license_data,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HasActiveLicense reports whether an organization license is configured.
func (c *Credentials) HasActiveLicense() bool {
	return c != nil && c.LicenseKey != ""
}

// CredentialStore persists the single credentials record. Implementations
// return an empty Credentials value (never ErrNotFound) when nothing has
// been stored yet, so callers can treat "fresh install" and "logged out"
// identically.
type CredentialStore interface {
	Get(ctx context.Context) (*Credentials, error)
	Save(ctx context.Context, creds *Credentials) error

	// ClearToken removes the personal bearer token, keeping any license.
	ClearToken(ctx context.Context) error

	// ClearLicense removes the license key and cached license payload.
	ClearLicense(ctx context.Context) error
}
