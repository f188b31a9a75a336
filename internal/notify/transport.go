package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	sendTimeout  = 10 * time.Second
	maxErrorBody = 1024
)

// DeliveryError is a non-2xx answer from a notification endpoint.
type DeliveryError struct {
	Sender     string
	StatusCode int
	Detail     string
	// RetryAfter is the wait the endpoint asked for on 429, if any.
	RetryAfter time.Duration
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("%s: status %d", e.Sender, e.StatusCode)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// postJSON sends payload to url. detail, when non-nil, extracts a readable
// reason from an error body.
func postJSON(ctx context.Context, client *http.Client, sender, url string, payload any, detail func([]byte) string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode payload: %w", sender, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", sender, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: post: %w", sender, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	derr := &DeliveryError{Sender: sender, StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}
	if detail != nil {
		if d := detail(raw); d != "" {
			derr.Detail = d
		}
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		derr.RetryAfter = time.Duration(secs) * time.Second
	}
	return derr
}
