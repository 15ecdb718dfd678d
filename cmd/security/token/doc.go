// Package token mints and verifies Beacon session tokens.
//
// It is the single source of truth for the session-token wire format:
//
//	base64url(header-json) "." base64url(payload-json) "." base64url(HMAC-SHA256)
//
// Design goals:
//   - Self-contained: verification needs only the shared secret, no session store.
//   - Short-lived by default (1 hour) so the compromise window stays small.
//   - Constant-time signature comparison; timing side channels are a real risk here.
//
// Environment:
//   - BEACON_SESSION_SECRET: the shared HMAC secret (min 32 bytes enforced at startup).
package token
