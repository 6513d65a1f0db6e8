package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/beepbeepai/alttext-api/internal/store"
)

// credentialsRow is the fixed primary key of the single credentials record.
const credentialsRow = 1

// CredentialStore implements store.CredentialStore over a single-row table.
// The fixed-key upsert keeps concurrent saves last-writer-wins without any
// application-side locking.
type CredentialStore struct {
	db store.DBTX
}

// NewCredentialStore creates a CredentialStore on the given connection or
// transaction.
func NewCredentialStore(db store.DBTX) *CredentialStore {
	return &CredentialStore{db: db}
}

// Get returns the stored credentials, or an empty value when nothing has
// been saved yet.
func (s *CredentialStore) Get(ctx context.Context) (*store.Credentials, error) {
	query := `
		SELECT site_hash, token, license_key, license_data, updated_at
		FROM credentials
		WHERE id = $1
	`

	var (
		creds       store.Credentials
		licenseData []byte
	)
	err := s.db.QueryRowContext(ctx, query, credentialsRow).Scan(
		&creds.SiteHash,
		&creds.Token,
		&creds.LicenseKey,
		&licenseData,
		&creds.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &store.Credentials{}, nil
		}
		return nil, MapError(err)
	}

	creds.LicenseData = licenseData
	return &creds, nil
}

// Save upserts the credentials record.
func (s *CredentialStore) Save(ctx context.Context, creds *store.Credentials) error {
	query := `
		INSERT INTO credentials (id, site_hash, token, license_key, license_data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			site_hash = EXCLUDED.site_hash,
			token = EXCLUDED.token,
			license_key = EXCLUDED.license_key,
			license_data = EXCLUDED.license_data,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		credentialsRow,
		creds.SiteHash,
		creds.Token,
		creds.LicenseKey,
		[]byte(creds.LicenseData),
		time.Now().UTC(),
	)
	if err != nil {
		return MapError(err)
	}
	return nil
}

// ClearToken removes the personal bearer token, keeping any license.
func (s *CredentialStore) ClearToken(ctx context.Context) error {
	return s.clear(ctx, `UPDATE credentials SET token = '', updated_at = $2 WHERE id = $1`)
}

// ClearLicense removes the license key and cached license payload.
func (s *CredentialStore) ClearLicense(ctx context.Context) error {
	return s.clear(ctx, `UPDATE credentials SET license_key = '', license_data = NULL, updated_at = $2 WHERE id = $1`)
}

func (s *CredentialStore) clear(ctx context.Context, query string) error {
	// Zero affected rows means nothing was ever stored, which is already
	// the cleared state.
	_, err := s.db.ExecContext(ctx, query, credentialsRow, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}
	return nil
}
