package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/beepbeepai/alttext-api/internal/store"
)

// SubjectStore implements store.SubjectStore on PostgreSQL.
type SubjectStore struct {
	db store.DBTX
}

// NewSubjectStore creates a SubjectStore on the given connection or
// transaction.
func NewSubjectStore(db store.DBTX) *SubjectStore {
	return &SubjectStore{db: db}
}

// Get returns a subject by ID.
func (s *SubjectStore) Get(ctx context.Context, id int64) (*store.Subject, error) {
	query := `
		SELECT id, url, mime_type, width, height, filename, title, caption, alt_text, updated_at
		FROM subjects
		WHERE id = $1
	`

	var subject store.Subject
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&subject.ID,
		&subject.URL,
		&subject.MimeType,
		&subject.Width,
		&subject.Height,
		&subject.Filename,
		&subject.Title,
		&subject.Caption,
		&subject.AltText,
		&subject.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: subject %d", store.ErrNotFound, id)
		}
		return nil, MapError(err)
	}
	return &subject, nil
}

// Save upserts a subject. The alt_text column is deliberately left out of
// the conflict update so re-registering a subject keeps its generated text.
func (s *SubjectStore) Save(ctx context.Context, subject *store.Subject) error {
	if subject.ID <= 0 {
		return fmt.Errorf("%w: subject ID must be positive", store.ErrInvalidEntity)
	}
	if subject.URL == "" {
		return fmt.Errorf("%w: subject URL is required", store.ErrInvalidEntity)
	}

	query := `
		INSERT INTO subjects (id, url, mime_type, width, height, filename, title, caption, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			mime_type = EXCLUDED.mime_type,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			filename = EXCLUDED.filename,
			title = EXCLUDED.title,
			caption = EXCLUDED.caption,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		subject.ID,
		subject.URL,
		subject.MimeType,
		subject.Width,
		subject.Height,
		subject.Filename,
		subject.Title,
		subject.Caption,
		time.Now().UTC(),
	)
	if err != nil {
		return MapError(err)
	}
	return nil
}

// SaveAltText stores generated text on a subject.
func (s *SubjectStore) SaveAltText(ctx context.Context, id int64, altText string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE subjects SET alt_text = $1, updated_at = $2 WHERE id = $3`,
		altText, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: subject %d", store.ErrNotFound, id)
	}
	return nil
}

// HasAltText reports whether the subject has non-empty generated text.
func (s *SubjectStore) HasAltText(ctx context.Context, id int64) (bool, error) {
	var has bool
	err := s.db.QueryRowContext(ctx,
		`SELECT alt_text <> '' FROM subjects WHERE id = $1`, id).Scan(&has)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, MapError(err)
	}
	return has, nil
}
