package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"beacon/cmd/internal/delivery"
	"beacon/cmd/internal/relay"
	"beacon/cmd/security/token"
	v1 "beacon/shared/contracts/relay/v1"
)

const testBotKey = "test-bot-key-0123456789"

var apiTestSecret = []byte("0123456789abcdef0123456789abcdef")

type nopDeliverer struct{}

func (nopDeliverer) Deliver(context.Context, delivery.Target, string) error { return nil }

type sinkTransport struct{}

func (sinkTransport) Send(context.Context, v1.Envelope) error { return nil }
func (sinkTransport) Close(int, string) error                 { return nil }

func newTestAPI(t *testing.T) (*http.ServeMux, *relay.Registry) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := relay.NewRegistry(log, nopDeliverer{}, relay.NewMemorySessionStore(), relay.ActorConfig{})

	mux := http.NewServeMux()
	newAPIHandler(log, reg, apiTestSecret, testBotKey).Register(mux)
	return mux, reg
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(b))
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return payload.Error
}

func validAskBody() map[string]string {
	return map[string]string{
		"interactionToken": "itok-1",
		"appId":            "app-1",
		"question":         "ping?",
		"userId":           "u-1",
	}
}

func TestAskRequiresBotKey(t *testing.T) {
	t.Parallel()

	mux, _ := newTestAPI(t)

	tests := []struct {
		name  string
		authz string
	}{
		{name: "missing header", authz: ""},
		{name: "wrong key", authz: "Bot nope"},
		{name: "wrong scheme", authz: "Bearer " + testBotKey},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := doJSON(t, mux, http.MethodPost, "/v1/ask", tc.authz, validAskBody())
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestAskOfflineUserGets503(t *testing.T) {
	t.Parallel()

	mux, _ := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/ask", "Bot "+testBotKey, validAskBody())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := decodeError(t, rec); got != "APP_OFFLINE" {
		t.Fatalf("error = %q, want APP_OFFLINE", got)
	}
}

func TestAskConnectedUserIsForwarded(t *testing.T) {
	t.Parallel()

	mux, reg := newTestAPI(t)
	reg.GetOrCreate("u-1").Admit(sinkTransport{}, time.Now().UTC())

	rec := doJSON(t, mux, http.MethodPost, "/v1/ask", "Bot "+testBotKey, validAskBody())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body=%s)", rec.Code, rec.Body.String())
	}

	// Same correlation token again while the first is still pending.
	rec = doJSON(t, mux, http.MethodPost, "/v1/ask", "Bot "+testBotKey, validAskBody())
	if rec.Code != http.StatusConflict {
		t.Fatalf("repeat status = %d, want 409", rec.Code)
	}
	if got := decodeError(t, rec); got != "TOKEN_IN_FLIGHT" {
		t.Fatalf("repeat error = %q, want TOKEN_IN_FLIGHT", got)
	}
}

func TestAskValidation(t *testing.T) {
	t.Parallel()

	mux, _ := newTestAPI(t)

	tests := []struct {
		name    string
		mutate  func(m map[string]string)
		wantErr string
	}{
		{
			name:    "missing interaction token",
			mutate:  func(m map[string]string) { delete(m, "interactionToken") },
			wantErr: "MISSING_FIELDS",
		},
		{
			name:    "missing app id",
			mutate:  func(m map[string]string) { delete(m, "appId") },
			wantErr: "MISSING_FIELDS",
		},
		{
			name:    "blank question",
			mutate:  func(m map[string]string) { m["question"] = "   " },
			wantErr: "MISSING_FIELDS",
		},
		{
			name:    "missing user id",
			mutate:  func(m map[string]string) { delete(m, "userId") },
			wantErr: "MISSING_FIELDS",
		},
		{
			name:    "question too long",
			mutate:  func(m map[string]string) { m["question"] = strings.Repeat("q", relay.MaxQuestionChars+1) },
			wantErr: "QUESTION_TOO_LONG",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			body := validAskBody()
			tc.mutate(body)

			rec := doJSON(t, mux, http.MethodPost, "/v1/ask", "Bot "+testBotKey, body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeError(t, rec); got != tc.wantErr {
				t.Fatalf("error = %q, want %q", got, tc.wantErr)
			}
		})
	}
}

func TestMintIssuesVerifiableToken(t *testing.T) {
	t.Parallel()

	mux, _ := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/token", "Bot "+testBotKey, map[string]string{
		"userId":   "u-mint",
		"username": "tester",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}

	var payload struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}

	claims, err := token.Verify(payload.Token, apiTestSecret, time.Now().UTC())
	if err != nil {
		t.Fatalf("Verify() = %v", err)
	}
	if claims.UserID != "u-mint" {
		t.Fatalf("claims.UserID = %q, want u-mint", claims.UserID)
	}
	if payload.ExpiresAt != claims.ExpiresAt {
		t.Fatalf("expiresAt = %d, claims say %d", payload.ExpiresAt, claims.ExpiresAt)
	}
}

func TestMintRequiresBotKeyAndUserID(t *testing.T) {
	t.Parallel()

	mux, _ := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/token", "", map[string]string{"userId": "u-1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodPost, "/v1/token", "Bot "+testBotKey, map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user id status = %d, want 400", rec.Code)
	}
}
