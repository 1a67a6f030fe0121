package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	httpClientTimeout = 60 * time.Second
	maxLoggedBody     = 300
)

// httpBase carries what every HTTP backend shares.
type httpBase struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
}

func newHTTPBase(name, baseURL, apiKey string, client *http.Client, log *zap.Logger) httpBase {
	if client == nil {
		client = &http.Client{Timeout: httpClientTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return httpBase{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		log:     log.Named(name),
	}
}

func (b *httpBase) Name() string { return b.name }

func (b *httpBase) Available() bool { return ValidKey(b.apiKey) }

// postJSON sends body to url and decodes a 2xx response into out.
func (b *httpBase) postJSON(ctx context.Context, url string, body any, headers map[string]string, out any) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return &Error{Provider: b.name, Code: ErrCodeInvalidResponse, Message: "failed to marshal request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return &Error{Provider: b.name, Code: ErrCodeInvalidResponse, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			b.log.Debug("request timed out", zap.String("url", url), zap.Duration("elapsed", elapsed))
			return &Error{Provider: b.name, Code: ErrCodeTimeout, Message: "request timed out", Err: err}
		}
		return &Error{Provider: b.name, Code: ErrCodeServiceDown, Message: "request failed", Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			// Best-effort body close.
			_ = cerr
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Provider: b.name, Code: ErrCodeServiceDown, Message: "failed to read response", Err: err}
	}
	b.log.Debug("response received",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed),
		zap.Int("bytes", len(respBody)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Provider: b.name,
			Code:     codeForStatus(resp.StatusCode),
			Message:  fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, truncate(string(respBody), maxLoggedBody)),
		}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Provider: b.name, Code: ErrCodeInvalidResponse, Message: "failed to parse response", Err: err}
	}
	return nil
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeAPIKey
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status >= 500:
		return ErrCodeServiceDown
	default:
		return ErrCodeInvalidResponse
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
