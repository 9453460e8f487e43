// Package crawler fetches the configured seed sources and produces the raw
// items the ingestion pipeline consumes.
package crawler

import "fmt"

// RawItem is one fetched page or document-file reference ready for the
// pipeline.
type RawItem struct {
	URL            string `json:"url"`
	HTML           string `json:"html,omitempty"`
	Content        string `json:"content,omitempty"`
	Title          string `json:"title,omitempty"`
	Source         string `json:"source"`
	IsDocumentFile bool   `json:"is_document_file"`
}

// FetchResult is a successful page fetch.
type FetchResult struct {
	URL        string
	Content    string
	StatusCode int
}

// FetchError describes a failed fetch. Permanent failures (HTTP 404) are
// never retried; transient failures have exhausted their retry budget.
type FetchError struct {
	URL        string
	StatusCode int
	Permanent  bool
	Attempts   int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s failure after %d attempt(s): %v", e.URL, kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s failure after %d attempt(s): status %d", e.URL, kind, e.Attempts, e.StatusCode)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}
