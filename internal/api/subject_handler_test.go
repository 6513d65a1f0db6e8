package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beepbeepai/alttext-api/internal/store"
)

// fakeSubjectStore is a minimal in-memory store.SubjectStore for handler tests.
type fakeSubjectStore struct {
	subjects map[int64]*store.Subject
}

func newFakeSubjectStore() *fakeSubjectStore {
	return &fakeSubjectStore{subjects: make(map[int64]*store.Subject)}
}

func (f *fakeSubjectStore) Get(ctx context.Context, id int64) (*store.Subject, error) {
	s, ok := f.subjects[id]
	if !ok {
		return nil, fmt.Errorf("%w: subject %d", store.ErrNotFound, id)
	}
	out := *s
	return &out, nil
}

func (f *fakeSubjectStore) Save(ctx context.Context, subject *store.Subject) error {
	if subject.ID <= 0 {
		return fmt.Errorf("%w: subject ID must be positive", store.ErrInvalidEntity)
	}
	existing, ok := f.subjects[subject.ID]
	saved := *subject
	if ok {
		saved.AltText = existing.AltText
	}
	f.subjects[subject.ID] = &saved
	return nil
}

func (f *fakeSubjectStore) SaveAltText(ctx context.Context, id int64, altText string) error {
	s, ok := f.subjects[id]
	if !ok {
		return fmt.Errorf("%w: subject %d", store.ErrNotFound, id)
	}
	s.AltText = altText
	return nil
}

func (f *fakeSubjectStore) HasAltText(ctx context.Context, id int64) (bool, error) {
	s, ok := f.subjects[id]
	return ok && s.AltText != "", nil
}

func newSubjectRouter(ss store.SubjectStore) chi.Router {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sh := NewSubjectHandler(ss, log)

	r := chi.NewRouter()
	r.Put("/subjects/{id}", sh.Upsert)
	r.Get("/subjects/{id}", sh.Get)
	return r
}

func doSubject(t *testing.T, router chi.Router, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubjectUpsertEndpoint(t *testing.T) {
	t.Parallel()

	ss := newFakeSubjectStore()
	router := newSubjectRouter(ss)

	rec := doSubject(t, router, http.MethodPut, "/subjects/7", SubjectRequest{
		URL:      "https://example.com/cat.jpg",
		MimeType: "image/jpeg",
		Width:    800,
		Height:   600,
		Title:    "A cat",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var saved store.Subject
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, int64(7), saved.ID)
	assert.Equal(t, "https://example.com/cat.jpg", saved.URL)

	// Re-registering a subject keeps its generated alt text.
	require.NoError(t, ss.SaveAltText(context.Background(), 7, "a sleeping tabby cat"))
	rec = doSubject(t, router, http.MethodPut, "/subjects/7", SubjectRequest{
		URL:   "https://example.com/cat-v2.jpg",
		Title: "Still a cat",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := ss.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cat-v2.jpg", got.URL)
	assert.Equal(t, "a sleeping tabby cat", got.AltText)
}

func TestSubjectUpsertRejectsBadInput(t *testing.T) {
	t.Parallel()

	router := newSubjectRouter(newFakeSubjectStore())

	tests := []struct {
		name   string
		target string
		body   any
	}{
		{name: "non_numeric_id", target: "/subjects/abc", body: SubjectRequest{URL: "https://example.com/a.jpg"}},
		{name: "zero_id", target: "/subjects/0", body: SubjectRequest{URL: "https://example.com/a.jpg"}},
		{name: "missing_url", target: "/subjects/1", body: SubjectRequest{Title: "no url"}},
		{name: "garbage_body", target: "/subjects/1", body: "not json"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doSubject(t, router, http.MethodPut, tc.target, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubjectGetEndpoint(t *testing.T) {
	t.Parallel()

	ss := newFakeSubjectStore()
	ss.subjects[3] = &store.Subject{ID: 3, URL: "https://example.com/dog.png", AltText: "a golden retriever"}
	router := newSubjectRouter(ss)

	rec := doSubject(t, router, http.MethodGet, "/subjects/3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got store.Subject
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "a golden retriever", got.AltText)

	rec = doSubject(t, router, http.MethodGet, "/subjects/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
