package relay

import "time"

// Security/performance limits for the relay gateway and actors.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// MaxQuestionChars is the maximum question text length (runes) accepted
	// for forwarding. Enforced at the HTTP intake.
	MaxQuestionChars = 4000
)

const (
	// DefaultAskTimeout bounds how long a forwarded command may await a reply.
	DefaultAskTimeout = 30 * time.Second

	// DefaultIdleWindow is the maximum total inactivity before an actor's
	// session metadata is evicted. Any activity resets the clock.
	DefaultIdleWindow = 7 * 24 * time.Hour

	// DefaultTimeoutMessage is the fixed user-visible notice delivered when a
	// forwarded command times out without a reply.
	DefaultTimeoutMessage = "The companion app took too long to answer. Please try again."

	// Heartbeat defaults (can be overridden by env in gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (envelopes per window).
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second
)
