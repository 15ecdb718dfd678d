// Package main provides a CI-friendly smoke test for the beacon relay.
//
// It validates:
//   - handshake + subprotocol selection
//   - auth -> auth_ok session establishment
//   - intake /v1/ask -> ask arriving on the socket
//   - response frame accepted without the server dropping the connection
//
// The tool plays the desktop-app side of the protocol. It needs the same
// session secret and bot key as the server under test.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"beacon/cmd/security/token"
	v1 "beacon/shared/contracts/relay/v1"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "beacon.relay.v1"
	maxReadBytes       = 64 << 10
)

type smokeClient struct {
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		askURL  = flag.String("ask-url", "http://127.0.0.1:8080/v1/ask", "Intake URL (empty to skip the ask round-trip)")
		userID  = flag.String("user", "smoke-user-1", "User ID to authenticate as")
		secret  = flag.String("secret", os.Getenv("BEACON_SESSION_SECRET"), "Session secret for minting the token")
		botKey  = flag.String("bot-key", os.Getenv("BEACON_BOT_KEY"), "Bot key for the intake endpoint")
		appID   = flag.String("app", "smoke-app", "Application ID for the ask payload")
		text    = flag.String("text", "smoke says hi", "Response text to send back")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if strings.TrimSpace(*secret) == "" {
		fatalf("missing -secret (or BEACON_SESSION_SECRET)")
	}

	tok, err := token.Mint(*userID, "smoke", []byte(*secret), time.Now().UTC())
	if err != nil {
		fatalf("mint token: %v", err)
	}

	root := context.Background()

	c := mustConnect(root, *wsURL, *timeout)
	defer closeWS(c.conn)

	mustAuth(root, c, tok, *userID, *timeout)

	if *verbose {
		fmt.Printf("authenticated: user=%s\n", *userID)
	}

	if strings.TrimSpace(*askURL) == "" {
		fmt.Printf("OK: user=%s (auth only)\n", *userID)
		return
	}

	if strings.TrimSpace(*botKey) == "" {
		fatalf("missing -bot-key (or BEACON_BOT_KEY) for the ask round-trip")
	}

	interactionToken := fmt.Sprintf("smoke-itoken-%d", time.Now().UnixNano())
	mustPostAsk(root, *askURL, *botKey, *appID, *userID, interactionToken, *timeout)

	ask := c.mustReadUntilType(root, v1.TypeAsk, *timeout)
	if ask.InteractionToken != interactionToken {
		fatalf("ask interaction token mismatch: got=%q want=%q", ask.InteractionToken, interactionToken)
	}
	if strings.TrimSpace(ask.Question) == "" {
		fatalf("ask missing question")
	}

	mustWriteWithTimeout(root, c.conn, v1.Envelope{
		Type:             v1.TypeResponse,
		InteractionToken: ask.InteractionToken,
		Text:             *text,
	}, *timeout)

	// The reply goes out over the webhook, not back down the socket. A live
	// connection after a short grace period means the server accepted it.
	mustStayConnected(root, c, 750*time.Millisecond)

	fmt.Printf("OK: user=%s interaction_token=%s\n", *userID, interactionToken)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func mustConnect(parent context.Context, wsURL string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}

	if resp != nil {
		got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
		if got != "" && got != defaultSubprotocol {
			fatalf("subprotocol mismatch: got=%q want=%q", got, defaultSubprotocol)
		}
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan v1.Envelope, 64),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func mustAuth(parent context.Context, c *smokeClient, tok, userID string, stepTimeout time.Duration) {
	mustWriteWithTimeout(parent, c.conn, v1.Envelope{
		Type:  v1.TypeAuth,
		Token: tok,
	}, stepTimeout)

	ok := c.mustReadUntilType(parent, v1.TypeAuthOK, stepTimeout)
	if ok.UserID != userID {
		fatalf("auth_ok user mismatch: got=%q want=%q", ok.UserID, userID)
	}
}

func mustPostAsk(parent context.Context, askURL, botKey, appID, userID, interactionToken string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"interactionToken": interactionToken,
		"appId":            appID,
		"question":         "smoke: are you there?",
		"userId":           userID,
	})
	if err != nil {
		fatalf("marshal ask: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, askURL, bytes.NewReader(body))
	if err != nil {
		fatalf("build ask request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+botKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("post ask: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		fatalf("post ask: unexpected status %d", resp.StatusCode)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", wantType, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q", wantType)
			}
			fatalf("connection error while waiting for %q: %v", wantType, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q", wantType)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeAuthError {
				fatalf("auth rejected: code=%q msg=%q", env.Code, env.Message)
			}
			fatalf("unexpected envelope type: got=%q want=%q", env.Type, wantType)
		}
	}
}

func mustStayConnected(parent context.Context, c *smokeClient, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.errCh:
			fatalf("connection dropped after response: %v", err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed after response")
			}
			if env.Type == v1.TypeReplaced || env.Type == v1.TypeAuthError {
				fatalf("unexpected %s after response", env.Type)
			}
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
