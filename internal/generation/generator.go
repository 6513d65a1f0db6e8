package generation

import "context"

// ImagePayload describes the image sent to the generation service. Exactly
// one of Base64 and URL should be set; small images are inlined, large ones
// are fetched by the backend.
type ImagePayload struct {
	Base64   string `json:"base64,omitempty"`
	URL      string `json:"url,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// PageContext carries surrounding-page metadata that improves description
// fidelity.
type PageContext struct {
	Title     string `json:"title,omitempty"`
	Caption   string `json:"caption,omitempty"`
	PageTitle string `json:"pageTitle,omitempty"`
}

// Request is one generation call for a single subject.
type Request struct {
	SubjectID  int64
	Image      ImagePayload
	Context    PageContext
	Regenerate bool
}

// Result is the descriptive text produced for a subject, plus the usage
// counters the service reports alongside it.
type Result struct {
	AltText   string `json:"alt_text"`
	Used      int    `json:"used,omitempty"`
	Remaining int    `json:"remaining,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Generator is the boundary between the queue engine and the external
// generation service. Implementations own transport, retries, and auth; the
// errors they return follow the taxonomy in errors.go so callers can decide
// between retrying and failing a job with errors.Is alone.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}
