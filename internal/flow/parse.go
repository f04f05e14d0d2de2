package flow

import (
	"encoding/json"
	"errors"
	"strings"
)

// Payload parsing errors surfaced to the user as format guidance. A parsing
// failure never advances the state machine: the user stays in the same
// awaiting-state and may resubmit.
var (
	ErrStructuredFormat = errors.New("expected two lines: a prompt, then a JSON object")
	ErrInvalidSchema    = errors.New("second line is not a valid JSON object")
	ErrInvalidURL       = errors.New("URL must start with http:// or https://")
)

// parseStructuredInput splits a structured-output payload on the first newline
// into a prompt and a JSON object literal.
func parseStructuredInput(text string) (prompt string, schema map[string]any, err error) {
	segments := strings.SplitN(text, "\n", 2)
	if len(segments) < 2 {
		return "", nil, ErrStructuredFormat
	}
	prompt = strings.TrimSpace(segments[0])
	if jsonErr := json.Unmarshal([]byte(segments[1]), &schema); jsonErr != nil {
		return "", nil, ErrInvalidSchema
	}
	return prompt, schema, nil
}

// parseURLInput splits a URL payload into the URL and an optional prompt,
// substituting the default prompt when the second line is absent.
func parseURLInput(text string) (url, prompt string, err error) {
	segments := strings.SplitN(text, "\n", 2)
	url = strings.TrimSpace(segments[0])
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", "", ErrInvalidURL
	}
	prompt = defaultURLPrompt
	if len(segments) == 2 && strings.TrimSpace(segments[1]) != "" {
		prompt = strings.TrimSpace(segments[1])
	}
	return url, prompt, nil
}

// parseSearchInput splits a search payload into the query and an optional
// prompt, substituting the default prompt when absent. No validation.
func parseSearchInput(text string) (query, prompt string) {
	segments := strings.SplitN(text, "\n", 2)
	query = strings.TrimSpace(segments[0])
	prompt = defaultSearchPrompt
	if len(segments) == 2 && strings.TrimSpace(segments[1]) != "" {
		prompt = strings.TrimSpace(segments[1])
	}
	return query, prompt
}
