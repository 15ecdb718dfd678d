package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recordedRequest struct {
	Method  string
	Path    string
	Content string
}

type webhookRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
	failAt   map[int]bool // request index -> respond 500
}

func (r *webhookRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		var payload struct {
			Content string `json:"content"`
		}
		_ = json.Unmarshal(body, &payload)

		r.mu.Lock()
		idx := len(r.requests)
		r.requests = append(r.requests, recordedRequest{
			Method:  req.Method,
			Path:    req.URL.Path,
			Content: payload.Content,
		})
		fail := r.failAt[idx]
		r.mu.Unlock()

		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (r *webhookRecorder) recorded() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest{}, r.requests...)
}

func newTestDeliverer(t *testing.T, rec *webhookRecorder, chunkLimit int) *WebhookDeliverer {
	t.Helper()

	srv := httptest.NewServer(rec.handler())
	t.Cleanup(srv.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWebhookDeliverer(log, WithBaseURL(srv.URL), WithChunkLimit(chunkLimit))
}

func TestDeliverFirstChunkEditsOriginal(t *testing.T) {
	t.Parallel()

	rec := &webhookRecorder{}
	d := newTestDeliverer(t, rec, 1900)

	if err := d.Deliver(context.Background(), Target{AppID: "app-1", Token: "tok-1"}, "hello"); err != nil {
		t.Fatalf("Deliver() = %v", err)
	}

	got := rec.recorded()
	if len(got) != 1 {
		t.Fatalf("request count = %d, want 1", len(got))
	}
	if got[0].Method != http.MethodPatch {
		t.Fatalf("method = %s, want PATCH", got[0].Method)
	}
	if got[0].Path != "/webhooks/app-1/tok-1/messages/@original" {
		t.Fatalf("path = %s", got[0].Path)
	}
	if got[0].Content != "hello" {
		t.Fatalf("content = %q", got[0].Content)
	}
}

func TestDeliverLongTextFollowsUp(t *testing.T) {
	t.Parallel()

	rec := &webhookRecorder{}
	d := newTestDeliverer(t, rec, 100)

	text := strings.Repeat("a", 90) + "\n\n" + strings.Repeat("b", 90) + "\n\n" + strings.Repeat("c", 90)
	if err := d.Deliver(context.Background(), Target{AppID: "app-1", Token: "tok-1"}, text); err != nil {
		t.Fatalf("Deliver() = %v", err)
	}

	got := rec.recorded()
	if len(got) != 3 {
		t.Fatalf("request count = %d, want 3", len(got))
	}
	if got[0].Method != http.MethodPatch || got[0].Path != "/webhooks/app-1/tok-1/messages/@original" {
		t.Fatalf("first request = %+v, want PATCH @original", got[0])
	}
	for i := 1; i < 3; i++ {
		if got[i].Method != http.MethodPost || got[i].Path != "/webhooks/app-1/tok-1" {
			t.Fatalf("follow-up %d = %+v, want POST to the webhook root", i, got[i])
		}
	}
}

func TestDeliverToleratesChunkFailures(t *testing.T) {
	t.Parallel()

	rec := &webhookRecorder{failAt: map[int]bool{1: true}}
	d := newTestDeliverer(t, rec, 100)

	text := strings.Repeat("a", 90) + "\n\n" + strings.Repeat("b", 90) + "\n\n" + strings.Repeat("c", 90)
	err := d.Deliver(context.Background(), Target{AppID: "app-1", Token: "tok-1"}, text)
	if err == nil {
		t.Fatal("Deliver() = nil, want chunk failure")
	}

	var ce ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v does not wrap ChunkError", err)
	}
	if ce.Index != 1 {
		t.Fatalf("failed chunk index = %d, want 1", ce.Index)
	}

	// The failure must not stop the remaining chunks.
	if got := rec.recorded(); len(got) != 3 {
		t.Fatalf("request count = %d, want 3", len(got))
	}
}

func TestDeliverRejectsIncompleteTarget(t *testing.T) {
	t.Parallel()

	rec := &webhookRecorder{}
	d := newTestDeliverer(t, rec, 100)

	if err := d.Deliver(context.Background(), Target{AppID: "", Token: "tok"}, "x"); err == nil {
		t.Fatal("Deliver() accepted a target without an app id")
	}
	if err := d.Deliver(context.Background(), Target{AppID: "app", Token: ""}, "x"); err == nil {
		t.Fatal("Deliver() accepted a target without a token")
	}
	if got := rec.recorded(); len(got) != 0 {
		t.Fatalf("request count = %d, want 0", len(got))
	}
}
