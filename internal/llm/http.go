package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/joseph-ayodele/labreports/internal/common"
)

// maxErrBody bounds how much of a failed response body ends up in the error.
const maxErrBody = 512

// StatusError is returned by PostJSON when the provider answers with a non-2xx code.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Body)
}

// PostJSON marshals body, posts it to endpoint and returns the raw response.
// Provider specifics (paths, auth headers) stay with the caller.
func PostJSON(ctx context.Context, hc *http.Client, endpoint string, body any, headers map[string]string, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log := logger.With("req_id", common.RequestIDFromContext(ctx), "host", host(endpoint))
	t0 := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		log.Error("llm.http.send_failed", "err", err, "elapsed_ms", time.Since(t0).Milliseconds())
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	log.Debug("llm.http.response",
		"status", resp.StatusCode,
		"request_bytes", len(payload),
		"response_bytes", len(raw),
		"elapsed_ms", time.Since(t0).Milliseconds(),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return raw, &StatusError{Status: resp.StatusCode, Body: Truncate(string(raw), maxErrBody)}
	}
	return raw, nil
}

func host(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil {
		return u.Host
	}
	return ""
}
