// Package subjects adapts the subject store onto the queue engine's
// boundaries: it checks for existing alt text, builds generation requests,
// and persists results.
package subjects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beepbeepai/alttext-api/internal/generation"
	"github.com/beepbeepai/alttext-api/internal/store"
)

// supportedMimePrefix is the only media class the generation service
// accepts. An empty mime type passes; the service sniffs it server-side.
const supportedMimePrefix = "image/"

// Service implements queue.SubjectChecker, queue.PayloadBuilder, and
// queue.ResultSink over the subject store.
type Service struct {
	store  store.SubjectStore
	logger *slog.Logger
}

// NewService creates a subject service.
func NewService(st store.SubjectStore, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.With("component", "subjects"),
	}
}

// HasAltText reports whether the subject already carries generated text.
func (s *Service) HasAltText(ctx context.Context, subjectID int64) (bool, error) {
	return s.store.HasAltText(ctx, subjectID)
}

// BuildRequest turns a registered subject into a generation request. An
// unknown subject or one that is not an image is a hard error; the job it
// backs cannot ever succeed.
func (s *Service) BuildRequest(
	ctx context.Context,
	subjectID int64,
	regenerate bool,
) (generation.Request, error) {
	subject, err := s.store.Get(ctx, subjectID)
	if err != nil {
		return generation.Request{}, fmt.Errorf("loading subject %d: %w", subjectID, err)
	}

	if subject.MimeType != "" && !strings.HasPrefix(subject.MimeType, supportedMimePrefix) {
		return generation.Request{}, fmt.Errorf("%w: subject %d is %s",
			generation.ErrInvalidImage, subjectID, subject.MimeType)
	}

	return generation.Request{
		SubjectID: subjectID,
		Image: generation.ImagePayload{
			URL:      subject.URL,
			Width:    subject.Width,
			Height:   subject.Height,
			MimeType: subject.MimeType,
			Filename: subject.Filename,
		},
		Context: generation.PageContext{
			Title:   subject.Title,
			Caption: subject.Caption,
		},
		Regenerate: regenerate,
	}, nil
}

// SaveAltText persists generated text back onto the subject.
func (s *Service) SaveAltText(ctx context.Context, subjectID int64, altText string) error {
	if err := s.store.SaveAltText(ctx, subjectID, altText); err != nil {
		return fmt.Errorf("saving alt text for subject %d: %w", subjectID, err)
	}
	s.logger.DebugContext(ctx, "alt text saved", "subject_id", subjectID)
	return nil
}
