// Package search provides web search with bounded retries, exponential
// backoff and a one-shot fallback provider. Results feed the assistant's
// second model pass; an empty result list is a normal outcome, never an
// error.
package search

import "fmt"

// Result is a single search hit. Immutable once produced; ordering follows
// the upstream provider's ranking.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Engine  string `json:"engine"`
}

// DecodeError reports a response body that could not be decoded. It carries
// the content type and a short body preview so a misbehaving engine (HTML
// error page, captcha wall) is recognizable in logs.
type DecodeError struct {
	ContentType string
	Preview     string
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable response (content-type %q): %v", e.ContentType, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Preview length for DecodeError bodies.
const previewLen = 200

// BodyPreview truncates a response body for logging.
func BodyPreview(body []byte) string {
	if len(body) > previewLen {
		return string(body[:previewLen]) + "..."
	}
	return string(body)
}
