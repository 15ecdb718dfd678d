package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultBaseURL targets the chat platform's interaction-webhook REST API.
const DefaultBaseURL = "https://discord.com/api/v10"

// Target identifies where a reply goes: the application id plus the
// interaction's callback token.
type Target struct {
	AppID string
	Token string
}

// Deliverer delivers final reply text to the requesting conversation.
type Deliverer interface {
	Deliver(ctx context.Context, target Target, text string) error
}

// ChunkError records one failed chunk attempt within a delivery batch.
type ChunkError struct {
	Index int
	Err   error
}

func (e ChunkError) Error() string { return fmt.Sprintf("chunk %d: %v", e.Index, e.Err) }
func (e ChunkError) Unwrap() error { return e.Err }

// WebhookDeliverer sends reply chunks over the platform's webhook endpoints:
// the first chunk edits the placeholder (@original) message in place, the
// rest are posted as follow-up messages.
type WebhookDeliverer struct {
	log        *slog.Logger
	client     *http.Client
	baseURL    string
	chunkLimit int
}

// Option configures WebhookDeliverer behavior.
type Option func(*WebhookDeliverer)

// WithBaseURL overrides the API base URL (tests point this at httptest).
func WithBaseURL(u string) Option {
	return func(d *WebhookDeliverer) {
		if u != "" {
			d.baseURL = u
		}
	}
}

// WithChunkLimit overrides the per-message chunk size.
func WithChunkLimit(n int) Option {
	return func(d *WebhookDeliverer) {
		if n > 0 {
			d.chunkLimit = n
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *WebhookDeliverer) {
		if c != nil {
			d.client = c
		}
	}
}

// NewWebhookDeliverer constructs a deliverer with sane defaults.
func NewWebhookDeliverer(log *slog.Logger, opts ...Option) *WebhookDeliverer {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	d := &WebhookDeliverer{
		log:        log,
		client:     &http.Client{Timeout: 10 * time.Second},
		baseURL:    DefaultBaseURL,
		chunkLimit: DefaultChunkLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Deliver splits text and sends every chunk. Each chunk attempt is
// independent: a failure is recorded and the batch continues. The returned
// error aggregates per-chunk failures; nil means every chunk landed.
func (d *WebhookDeliverer) Deliver(ctx context.Context, target Target, text string) error {
	if target.AppID == "" || target.Token == "" {
		return errors.New("delivery: incomplete target")
	}

	chunks := Split(text, d.chunkLimit)

	var failed []error
	for i, chunk := range chunks {
		var err error
		if i == 0 {
			err = d.editOriginal(ctx, target, chunk)
		} else {
			err = d.followUp(ctx, target, chunk)
		}
		if err != nil {
			d.log.Warn("delivery.chunk.fail", "chunk", i, "of", len(chunks), "err", err)
			failed = append(failed, ChunkError{Index: i, Err: err})
		}
	}

	if len(failed) > 0 {
		return errors.Join(failed...)
	}
	return nil
}

func (d *WebhookDeliverer) editOriginal(ctx context.Context, target Target, content string) error {
	url := fmt.Sprintf("%s/webhooks/%s/%s/messages/@original", d.baseURL, target.AppID, target.Token)
	return d.send(ctx, http.MethodPatch, url, content)
}

func (d *WebhookDeliverer) followUp(ctx context.Context, target Target, content string) error {
	url := fmt.Sprintf("%s/webhooks/%s/%s", d.baseURL, target.AppID, target.Token)
	return d.send(ctx, http.MethodPost, url, content)
}

func (d *WebhookDeliverer) send(ctx context.Context, method, url, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: status %d", method, resp.StatusCode)
	}
	return nil
}
