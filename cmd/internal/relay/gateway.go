package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"beacon/cmd/security/token"
	v1 "beacon/shared/contracts/relay/v1"

	"github.com/coder/websocket"
)

const (
	wsSubprotocolV1 = "beacon.relay.v1"

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsDefaultAuthDeadline = 10 * time.Second

	wsMaxPingFailures = 3

	// Desktop clients are not browsers and usually send no Origin header, so
	// origin is optional by default; an allowlist still applies when present.
	wsDefaultOriginRequired = false
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

var errUnsupportedFrame = errors.New("unsupported message type")

// Gateway is the WebSocket entrypoint for desktop clients.
//
// It enforces origin policy, subprotocol selection, the auth-first handshake,
// rate limits, and heartbeats, and routes validated envelopes to the per-user
// relay actor.
type Gateway struct {
	log      *slog.Logger
	registry *Registry
	secret   []byte

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks: Accept authorizes same-host
	// origins by default, cross-origin requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	authDeadline    time.Duration

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with secure defaults.
func NewGateway(log *slog.Logger, registry *Registry, secret []byte) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &Gateway{log: log, registry: registry, secret: secret}

	g.devInsecure = envBoolWS("BEACON_WS_DEV_INSECURE", false)
	g.originRequired = envBoolWS("BEACON_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("BEACON_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("BEACON_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("BEACON_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)
	g.authDeadline = envDurationWS("BEACON_WS_AUTH_DEADLINE", wsDefaultAuthDeadline)

	g.heartbeatEvery = envDurationWS("BEACON_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("BEACON_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("BEACON_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("BEACON_WS_RATE_WINDOW", rateLimitWindow)

	return g
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the relay loop.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := NewSessionID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "session id")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	t := newWSTransport(conn, g.writeTimeout)

	actor, err := g.authenticate(ctx, conn, t, sessionID)
	if err != nil {
		// authenticate already reported and closed.
		return
	}

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			actor.Detach(t)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		tick := time.NewTicker(g.heartbeatEvery)
		defer tick.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.log.Info("ws.read.bad_json", "session_id", sessionID)
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.log.Info("ws.envelope.invalid", "session_id", sessionID, "err", err)
			continue readLoop
		}

		switch env.Type {
		case v1.TypeResponse:
			actor.Resolve(ctx, env.InteractionToken, env.Text)

		case v1.TypeDisconnect:
			actor.Disconnect(ctx)
			shutdown(websocket.StatusNormalClosure, "disconnect requested")
			break readLoop

		default:
			// auth after admission, or server-to-client types echoed back.
			g.log.Info("ws.envelope.unexpected", "session_id", sessionID, "type", env.Type)
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-heartbeatDone
}

// authenticate runs the auth-first handshake: the first envelope must be a
// valid auth message within the auth deadline. On success the transport is
// admitted to the user's actor and auth_ok is sent.
func (g *Gateway) authenticate(ctx context.Context, conn *websocket.Conn, t Transport, sessionID string) (*Actor, error) {
	authCtx, authCancel := context.WithTimeout(ctx, g.authDeadline)
	env, err := readEnvelope(authCtx, conn)
	authCancel()

	if err != nil {
		g.log.Info("ws.auth.read.fail", "session_id", sessionID, "err", err)
		_ = conn.Close(v1.CloseAuthFailed, "auth required")
		return nil, err
	}
	if env.Type != v1.TypeAuth {
		g.failAuth(ctx, conn, t, sessionID, "auth_required", "first message must be auth")
		return nil, errors.New("auth required")
	}

	claims, err := token.Verify(env.Token, g.secret, time.Now().UTC())
	if err != nil {
		g.failAuth(ctx, conn, t, sessionID, authErrCode(err), err.Error())
		return nil, err
	}

	now := time.Now().UTC()
	if err := t.Send(ctx, v1.Envelope{Type: v1.TypeAuthOK, UserID: claims.UserID}); err != nil {
		g.log.Info("ws.auth.ack.fail", "session_id", sessionID, "err", err)
		_ = conn.Close(websocket.StatusAbnormalClosure, "write failed")
		return nil, err
	}

	actor := g.registry.GetOrCreate(claims.UserID)
	actor.Admit(t, now)

	g.log.Info("ws.auth.ok", "session_id", sessionID, "user_id", claims.UserID)
	return actor, nil
}

// failAuth sends a best-effort auth_error envelope, then closes with the
// auth-failed close code. Auth failures always terminate the connection and
// are never retried server-side.
func (g *Gateway) failAuth(ctx context.Context, conn *websocket.Conn, t Transport, sessionID, code, msg string) {
	_ = t.Send(ctx, v1.Envelope{Type: v1.TypeAuthError, Code: code, Message: msg})
	_ = conn.Close(v1.CloseAuthFailed, code)
	g.log.Info("ws.auth.fail", "session_id", sessionID, "code", code)
}

func authErrCode(err error) string {
	switch {
	case errors.Is(err, token.ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, token.ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, token.ErrUnparsablePayload):
		return "unparsable_payload"
	case errors.Is(err, token.ErrExpired):
		return "token_expired"
	case errors.Is(err, token.ErrMissingSubject):
		return "missing_subject"
	default:
		return "auth_failed"
	}
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors come back from json.Unmarshal inside readEnvelope.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}
		if origin == a {
			return nil
		}
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return errors.New("origin not allowed: " + origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host.
	// Keep this strict: only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
