package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/ranktime/internal/export"
)

// Sink indexes rows into OpenSearch through the _bulk HTTP endpoint.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

func (s *Sink) Send(ctx context.Context, rows []export.Row) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	action := map[string]any{"index": map[string]string{"_index": s.index}}
	for _, r := range rows {
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/_bulk", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	var res struct {
		Errors bool `json:"errors"`
	}
	b, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(b, &res); err == nil && res.Errors {
		return fmt.Errorf("opensearch bulk request reported item errors")
	}
	return nil
}

func (s *Sink) Close() error { return nil }
