package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beepbeepai/alttext-api/internal/platform/cache"
	"github.com/beepbeepai/alttext-api/internal/quota"
	"github.com/beepbeepai/alttext-api/internal/store"
)

// memCredentialStore is an in-memory store.CredentialStore for handler tests.
type memCredentialStore struct {
	creds store.Credentials
}

func (m *memCredentialStore) Get(ctx context.Context) (*store.Credentials, error) {
	c := m.creds
	return &c, nil
}

func (m *memCredentialStore) Save(ctx context.Context, creds *store.Credentials) error {
	m.creds = *creds
	return nil
}

func (m *memCredentialStore) ClearToken(ctx context.Context) error {
	m.creds.Token = ""
	return nil
}

func (m *memCredentialStore) ClearLicense(ctx context.Context) error {
	m.creds.LicenseKey = ""
	m.creds.LicenseData = nil
	return nil
}

type credentialsFixture struct {
	creds  *memCredentialStore
	cache  *cache.Memory
	router chi.Router
}

func newCredentialsFixture() *credentialsFixture {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cs := &memCredentialStore{}
	mem := cache.NewMemory()
	reconciler := quota.NewReconciler(log, cs, fixedFetcher{
		usage: quota.RemoteUsage{Used: 10, Limit: 50},
	}, mem)

	ch := NewCredentialsHandler(cs, reconciler, log)

	r := chi.NewRouter()
	r.Get("/credentials", ch.Status)
	r.Put("/credentials", ch.Save)
	r.Delete("/credentials/token", ch.ClearToken)
	r.Delete("/credentials/license", ch.ClearLicense)

	return &credentialsFixture{creds: cs, cache: mem, router: r}
}

func (f *credentialsFixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCredentialsSaveBootstrapsSiteHash(t *testing.T) {
	t.Parallel()

	f := newCredentialsFixture()

	// An empty body on a fresh install still mints the site identity.
	rec := f.do(t, http.MethodPut, "/credentials", CredentialsRequest{})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CredentialsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err := uuid.Parse(resp.SiteHash)
	assert.NoError(t, err, "site hash must be a generated uuid")
	assert.False(t, resp.HasToken)
	assert.False(t, resp.HasLicense)

	// A later save keeps the same hash.
	rec = f.do(t, http.MethodPut, "/credentials", CredentialsRequest{Token: "tok_abc"})
	require.Equal(t, http.StatusOK, rec.Code)

	var again CredentialsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, resp.SiteHash, again.SiteHash)
	assert.True(t, again.HasToken)
	assert.Equal(t, "tok_abc", f.creds.creds.Token)
}

func TestCredentialsSaveMergesWithoutClearing(t *testing.T) {
	t.Parallel()

	f := newCredentialsFixture()
	f.creds.creds = store.Credentials{SiteHash: "site", Token: "tok_old"}

	// Activating a license leaves the token untouched.
	rec := f.do(t, http.MethodPut, "/credentials", CredentialsRequest{
		LicenseKey:  "lic_123",
		LicenseData: json.RawMessage(`{"tokenLimit":1000,"tokensRemaining":900}`),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "tok_old", f.creds.creds.Token)
	assert.Equal(t, "lic_123", f.creds.creds.LicenseKey)
	assert.JSONEq(t, `{"tokenLimit":1000,"tokensRemaining":900}`, string(f.creds.creds.LicenseData))
}

func TestCredentialsSaveInvalidatesQuotaCache(t *testing.T) {
	t.Parallel()

	f := newCredentialsFixture()
	require.NoError(t, f.cache.Set(context.Background(), "usage_snapshot", []byte(`{}`), 0))

	rec := f.do(t, http.MethodPut, "/credentials", CredentialsRequest{Token: "tok"})
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok, err := f.cache.Get(context.Background(), "usage_snapshot")
	require.NoError(t, err)
	assert.False(t, ok, "saving credentials must drop the cached quota snapshot")
}

func TestCredentialsClearEndpoints(t *testing.T) {
	t.Parallel()

	f := newCredentialsFixture()
	f.creds.creds = store.Credentials{
		SiteHash:    "site",
		Token:       "tok",
		LicenseKey:  "lic",
		LicenseData: json.RawMessage(`{}`),
	}

	rec := f.do(t, http.MethodDelete, "/credentials/token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CredentialsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.HasToken)
	assert.True(t, resp.HasLicense, "logging out keeps the license")

	rec = f.do(t, http.MethodDelete, "/credentials/license", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.HasLicense)
	assert.Nil(t, f.creds.creds.LicenseData)
	assert.Equal(t, "site", f.creds.creds.SiteHash, "clearing credentials keeps the site identity")
}

func TestCredentialsStatusNeverEchoesSecrets(t *testing.T) {
	t.Parallel()

	f := newCredentialsFixture()
	f.creds.creds = store.Credentials{SiteHash: "site", Token: "tok_secret", LicenseKey: "lic_secret"}

	rec := f.do(t, http.MethodGet, "/credentials", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "tok_secret")
	assert.NotContains(t, rec.Body.String(), "lic_secret")

	var resp CredentialsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.HasToken)
	assert.True(t, resp.HasLicense)
}
