package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"milkrun/internal/logger"
	"milkrun/internal/metrics"
)

var errWebhookQueueFull = errors.New("webhook queue full")

// VerifyHMAC checks an HMAC-SHA256 signature over the raw body using the shared secret.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), b)
}

// SignHMAC returns lowercase hex of HMAC-SHA256 for use in headers
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type delivery struct {
	eventType string
	body      []byte
	attempts  int
}

// WebhookPublisher posts events as JSON to one endpoint. Publish only enqueues; Run
// delivers in order and retries failures with exponential backoff.
type WebhookPublisher struct {
	URL         string
	Secret      string
	HTTP        *http.Client
	MaxAttempts int

	log     logger.Logger
	queue   chan delivery
	backoff func(attempts int) time.Duration
}

func NewWebhookPublisher(url, secret string, maxAttempts int, log logger.Logger) *WebhookPublisher {
	if maxAttempts < 1 {
		maxAttempts = 10
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &WebhookPublisher{
		URL:         url,
		Secret:      secret,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: maxAttempts,
		log:         log,
		queue:       make(chan delivery, 256),
		backoff:     nextBackoff,
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	select {
	case p.queue <- delivery{eventType: evt.Type, body: body}:
		return nil
	default:
		return errWebhookQueueFull
	}
}

// Run delivers queued events until ctx is done.
func (p *WebhookPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.queue:
			p.deliver(ctx, d)
		}
	}
}

func (p *WebhookPublisher) deliver(ctx context.Context, d delivery) {
	for {
		err := p.send(ctx, d)
		if err == nil {
			return
		}
		d.attempts++
		if d.attempts >= p.MaxAttempts {
			metrics.EventPublishErrors.WithLabelValues("webhook").Inc()
			p.log.Warnf("webhook %s dropped after %d attempts: %v", d.eventType, d.attempts, err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.backoff(d.attempts)):
		}
	}
}

func (p *WebhookPublisher) send(ctx context.Context, d delivery) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(d.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", d.eventType)
	if p.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(p.Secret, d.body))
	}
	start := time.Now()
	resp, err := p.HTTP.Do(req)
	status := "error"
	if err == nil {
		_ = resp.Body.Close()
		status = strconv.Itoa(resp.StatusCode)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err = fmt.Errorf("webhook responded %d", resp.StatusCode)
		}
	}
	metrics.WebhookDeliveries.WithLabelValues(d.eventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(d.eventType, status).Observe(float64(time.Since(start).Milliseconds()))
	return err
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
