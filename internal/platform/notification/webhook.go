package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Headers set on every webhook delivery.
const (
	HeaderSignature = "X-Booking-Signature"
	HeaderEventType = "X-Booking-Event"
	HeaderDedupKey  = "X-Booking-Dedup-Key"
	HeaderTimestamp = "X-Booking-Timestamp"
)

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is SignPayload(payload, secret).
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

// WebhookOption configures a WebhookPublisher.
type WebhookOption func(*WebhookPublisher)

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(p *WebhookPublisher) { p.client = c }
}

// WithRetryDelays sets the waits between attempts. One delay means two
// attempts in total.
func WithRetryDelays(delays ...time.Duration) WebhookOption {
	return func(p *WebhookPublisher) { p.delays = delays }
}

// WebhookPublisher POSTs each event as signed JSON to a single endpoint
// owned by the push gateway. Network errors and 5xx responses are retried;
// 4xx responses are not.
type WebhookPublisher struct {
	url    string
	secret string
	client *http.Client
	delays []time.Duration
}

func NewWebhookPublisher(rawURL, secret string, opts ...WebhookOption) (*WebhookPublisher, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("notification: webhook url must be http(s), got %q", rawURL)
	}
	p := &WebhookPublisher{
		url:    rawURL,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		delays: []time.Duration{time.Second, 5 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type deliveryError struct {
	status int
	err    error
}

func (e *deliveryError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("non-2xx response: %d", e.status)
}

func (e *deliveryError) retryable() bool {
	return e.err != nil || e.status >= 500 || e.status == http.StatusTooManyRequests
}

func (p *WebhookPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notification: encode event: %w", err)
	}
	sig := SignPayload(payload, p.secret)

	var last *deliveryError
	for attempt := 0; ; attempt++ {
		last = p.deliver(ctx, ev, payload, sig)
		if last == nil {
			return nil
		}
		if !last.retryable() || attempt >= len(p.delays) {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("notification: webhook delivery of %s: %w", ev.ID, ctx.Err())
		case <-time.After(p.delays[attempt]):
		}
	}
	return fmt.Errorf("notification: webhook delivery of %s: %w", ev.ID, last)
}

func (p *WebhookPublisher) deliver(ctx context.Context, ev Event, payload []byte, sig string) *deliveryError {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return &deliveryError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, "sha256="+sig)
	req.Header.Set(HeaderEventType, string(ev.Type))
	req.Header.Set(HeaderTimestamp, time.Now().UTC().Format(time.RFC3339))
	if ev.DedupKey != "" {
		req.Header.Set(HeaderDedupKey, ev.DedupKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &deliveryError{err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &deliveryError{status: resp.StatusCode}
	}
	return nil
}
