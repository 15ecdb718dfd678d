package relay

import (
	"context"
	"encoding/json"
	"time"

	v1 "beacon/shared/contracts/relay/v1"

	"github.com/coder/websocket"
)

// Transport is the actor-facing view of one live desktop connection.
//
// The websocket implementation lives in the gateway; tests substitute fakes.
// Send and Close must both be safe for use under the owning actor's mutex.
type Transport interface {
	Send(ctx context.Context, env v1.Envelope) error
	Close(code int, reason string) error
}

// wsTransport adapts a coder/websocket connection to the Transport interface.
// Writes are serialized by the owning actor, so no extra locking is needed.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func newWSTransport(conn *websocket.Conn, writeTimeout time.Duration) *wsTransport {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *wsTransport) Send(parent context.Context, env v1.Envelope) error {
	ctx, cancel := context.WithTimeout(parent, t.writeTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return t.conn.Write(ctx, websocket.MessageText, b)
}

func (t *wsTransport) Close(code int, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, errUnsupportedFrame
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}
