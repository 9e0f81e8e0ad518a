package client

import "github.com/loykin/ranktime"

// PushResult is the server's reply to POST {base}/events.
type PushResult struct {
	Events  int      `json:"events"`
	Skipped int      `json:"skipped"`
	Ranks   []string `json:"ranks"`
}

// Summary and Row are the payloads of the rank endpoints.
type (
	Summary = ranktime.Summary
	Row     = ranktime.Row
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
