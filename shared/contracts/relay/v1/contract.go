// Package v1 defines the Beacon Relay Protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between the relay server and the desktop client to keep the
// wire protocol authoritative.
package v1

import (
	"errors"
	"fmt"
	"strings"
)

// Type constants (wire-stable).
const (
	// TypeAuth starts a session: the desktop client presents its session token.
	TypeAuth = "auth"
	// TypeAuthOK acknowledges a successful authentication (server -> client).
	TypeAuthOK = "auth_ok"
	// TypeAuthError reports a failed authentication before the close (server -> client).
	TypeAuthError = "auth_error"

	// TypeAsk forwards a user command to the desktop client (server -> client).
	TypeAsk = "ask"
	// TypeResponse carries the desktop client's reply for an ask (client -> server).
	TypeResponse = "response"

	// TypeDisconnect asks the server to end the session and forget it (client -> server).
	TypeDisconnect = "disconnect"
	// TypeReplaced notifies a connection that a newer one took over (server -> client).
	TypeReplaced = "replaced"
)

// Close codes used to disambiguate transport termination reasons.
const (
	CloseNormal     = 1000
	CloseAuthFailed = 4001
	CloseReplaced   = 4002
	CloseExpired    = 4003
)

// Envelope is the canonical text-framed JSON wrapper for both directions.
//
// It is deliberately flat: every message type shares one struct so that the
// desktop client can decode with a single pass and switch on Type.
type Envelope struct {
	Type string `json:"type"`

	// Auth.
	Token string `json:"token,omitempty"`

	// Auth results / errors.
	UserID  string `json:"userId,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// Ask / response correlation.
	InteractionToken string `json:"interactionToken,omitempty"`
	Question         string `json:"question,omitempty"`
	Text             string `json:"text,omitempty"`

	// Requesting-context hints carried on ask.
	GuildID   string `json:"guildId,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeAuth:
		if strings.TrimSpace(e.Token) == "" {
			return errors.New("auth: missing token")
		}
	case TypeAsk:
		if strings.TrimSpace(e.InteractionToken) == "" {
			return errors.New("ask: missing interactionToken")
		}
		if strings.TrimSpace(e.Question) == "" {
			return errors.New("ask: missing question")
		}
	case TypeResponse:
		if strings.TrimSpace(e.InteractionToken) == "" {
			return errors.New("response: missing interactionToken")
		}
	case TypeAuthOK, TypeAuthError, TypeDisconnect, TypeReplaced:
		// No required payload fields.
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
	return nil
}
