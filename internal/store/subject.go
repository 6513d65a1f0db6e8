package store

import (
	"context"
	"time"
)

// Subject is an image registered for alt-text generation: enough metadata
// to build a generation request, plus the generated text once it exists.
type Subject struct {
	ID       int64  `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Filename string `json:"filename,omitempty"`

	// Title and Caption are surrounding-page context forwarded to the
	// generation service.
	Title   string `json:"title,omitempty"`
	Caption string `json:"caption,omitempty"`

	AltText   string    `json:"alt_text,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubjectStore persists registered subjects.
type SubjectStore interface {
	// Get returns a subject, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Subject, error)

	// Save upserts a subject keyed by its ID. Saving never clears an
	// existing AltText; regeneration overwrites it through SaveAltText.
	Save(ctx context.Context, subject *Subject) error

	// SaveAltText stores generated text on a subject.
	SaveAltText(ctx context.Context, id int64, altText string) error

	// HasAltText reports whether the subject has non-empty generated text.
	// Unknown subjects report false.
	HasAltText(ctx context.Context, id int64) (bool, error)
}
