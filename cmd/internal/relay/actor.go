package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"beacon/cmd/internal/delivery"
	v1 "beacon/shared/contracts/relay/v1"
)

const (
	// Budget for reply/timeout deliveries dispatched from timer callbacks.
	deliverTimeout = 15 * time.Second

	// Budget for best-effort session-store writes.
	storeTimeout = 3 * time.Second
)

// AskRequest is a command accepted from the chat-platform side for forwarding.
type AskRequest struct {
	InteractionToken string
	AppID            string
	Question         string
	UserID           string
	GuildID          string
	ChannelID        string
}

// ActorConfig tunes per-actor behavior. Zero values fall back to defaults.
type ActorConfig struct {
	AskTimeout     time.Duration
	IdleWindow     time.Duration
	TimeoutMessage string

	// FallbackAppID, when set, lets a reply whose correlation token is unknown
	// (e.g. after a process restart) still be delivered: the incoming token is
	// a valid callback token, only the owning app id was lost with the entry.
	FallbackAppID string
}

func (c ActorConfig) withDefaults() ActorConfig {
	if c.AskTimeout <= 0 {
		c.AskTimeout = DefaultAskTimeout
	}
	if c.IdleWindow <= 0 {
		c.IdleWindow = DefaultIdleWindow
	}
	if c.TimeoutMessage == "" {
		c.TimeoutMessage = DefaultTimeoutMessage
	}
	return c
}

type pendingRequest struct {
	target     delivery.Target
	acceptedAt time.Time
	timer      *time.Timer
}

// Actor is the per-user relay state machine.
//
// It exclusively owns its transport handle and pending-request table; all
// mutations are serialized by mu. The reply/timeout race for a correlation
// token is resolved by map-entry ownership under that mutex: whichever path
// removes the entry delivers, the loser is a no-op.
type Actor struct {
	log      *slog.Logger
	userID   string
	deliver  delivery.Deliverer
	sessions SessionStore
	cfg      ActorConfig
	onEvict  func(userID string)

	mu        sync.Mutex
	transport Transport
	subject   string
	lastSeen  time.Time
	pending   map[string]*pendingRequest
	idleTimer *time.Timer
	evicted   bool
}

func newActor(log *slog.Logger, userID string, deliver delivery.Deliverer, sessions SessionStore, cfg ActorConfig, onEvict func(string)) *Actor {
	a := &Actor{
		log:      log,
		userID:   userID,
		deliver:  deliver,
		sessions: sessions,
		cfg:      cfg.withDefaults(),
		onEvict:  onEvict,
		lastSeen: time.Now().UTC(),
		pending:  make(map[string]*pendingRequest),
	}
	a.idleTimer = time.AfterFunc(a.cfg.IdleWindow, a.idleAlarm)
	return a
}

// UserID returns the actor's immutable identity.
func (a *Actor) UserID() string { return a.userID }

// Connected reports whether a transport is currently attached.
func (a *Actor) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transport != nil
}

// Admit attaches a freshly authenticated transport. A previously attached
// transport is told it was replaced and closed with the replaced close code;
// at most one transport is attached at any instant.
func (a *Actor) Admit(t Transport, now time.Time) {
	a.mu.Lock()
	old := a.transport
	a.transport = t
	a.subject = a.userID
	a.lastSeen = now
	a.mu.Unlock()

	if old != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = old.Send(ctx, v1.Envelope{Type: v1.TypeReplaced})
		cancel()
		_ = old.Close(v1.CloseReplaced, "replaced by newer connection")
		metricConnectsReplaced.Inc()
		a.log.Info("actor.transport.replaced", "user_id", a.userID)
	}

	metricConnectsAdmitted.Inc()
	a.persistTouch(now)
}

// Detach drops t if it is still the attached transport (read loop ended).
// Pending requests are left to their individual timeouts: the desktop app may
// reconnect within a blip and still answer.
func (a *Actor) Detach(t Transport) {
	a.mu.Lock()
	if a.transport == t {
		a.transport = nil
		a.lastSeen = time.Now().UTC()
	}
	a.mu.Unlock()
}

// Forward accepts a command for relaying to the desktop client.
//
// Without an attached transport it fails immediately with ErrAppOffline so the
// caller can surface "app offline" without blocking. A correlation token that
// is still pending is rejected with ErrTokenInFlight rather than overwritten.
func (a *Actor) Forward(ctx context.Context, req AskRequest) error {
	now := time.Now().UTC()

	a.mu.Lock()
	if a.transport == nil {
		a.mu.Unlock()
		metricAsksOffline.Inc()
		return ErrAppOffline
	}
	if _, exists := a.pending[req.InteractionToken]; exists {
		a.mu.Unlock()
		return ErrTokenInFlight
	}

	tok := req.InteractionToken
	p := &pendingRequest{
		target:     delivery.Target{AppID: req.AppID, Token: tok},
		acceptedAt: now,
	}
	p.timer = time.AfterFunc(a.cfg.AskTimeout, func() { a.askTimeout(tok) })
	a.pending[tok] = p
	a.lastSeen = now

	// Sending under the actor mutex is the single-writer guarantee for the
	// transport; the websocket write has its own timeout.
	err := a.transport.Send(ctx, v1.Envelope{
		Type:             v1.TypeAsk,
		InteractionToken: tok,
		Question:         req.Question,
		UserID:           req.UserID,
		GuildID:          req.GuildID,
		ChannelID:        req.ChannelID,
	})
	if err != nil {
		p.timer.Stop()
		delete(a.pending, tok)
		a.mu.Unlock()
		a.log.Warn("actor.forward.fail", "user_id", a.userID, "err", err)
		return fmt.Errorf("%w: %v", ErrForwardFailed, err)
	}
	a.mu.Unlock()

	metricAsksForwarded.Inc()
	a.persistTouch(now)
	return nil
}

// Resolve matches a reply from the transport to its pending request and
// delivers it. A miss is an expected race outcome (timed out, already
// answered, or lost to a restart), not an error.
func (a *Actor) Resolve(ctx context.Context, interactionToken, text string) {
	now := time.Now().UTC()

	a.mu.Lock()
	p, ok := a.pending[interactionToken]
	if ok {
		delete(a.pending, interactionToken)
		p.timer.Stop()
		a.lastSeen = now
	}
	a.mu.Unlock()

	if !ok {
		if a.cfg.FallbackAppID != "" {
			a.log.Info("actor.reply.unmatched.fallback", "user_id", a.userID)
			fb := delivery.Target{AppID: a.cfg.FallbackAppID, Token: interactionToken}
			if err := a.deliver.Deliver(ctx, fb, text); err != nil {
				metricDeliveryFailures.Inc()
				a.log.Warn("actor.reply.fallback.fail", "user_id", a.userID, "err", err)
			}
			return
		}
		a.log.Info("actor.reply.unmatched.drop", "user_id", a.userID)
		return
	}

	a.persistTouch(now)
	if err := a.deliver.Deliver(ctx, p.target, text); err != nil {
		metricDeliveryFailures.Inc()
		a.log.Warn("actor.reply.deliver.fail", "user_id", a.userID, "err", err)
		return
	}
	metricRepliesDelivered.Inc()
}

// askTimeout fires when a pending request has waited the full window.
// It re-validates elapsed time so a delayed or rescheduled timer cannot expire
// an entry early.
func (a *Actor) askTimeout(tok string) {
	now := time.Now().UTC()

	a.mu.Lock()
	p, ok := a.pending[tok]
	if !ok {
		// The reply won the race.
		a.mu.Unlock()
		return
	}
	if remaining := a.cfg.AskTimeout - now.Sub(p.acceptedAt); remaining > 0 {
		p.timer = time.AfterFunc(remaining, func() { a.askTimeout(tok) })
		a.mu.Unlock()
		return
	}
	delete(a.pending, tok)
	a.mu.Unlock()

	metricTimeoutsFired.Inc()
	a.log.Info("actor.ask.timeout", "user_id", a.userID)

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if err := a.deliver.Deliver(ctx, p.target, a.cfg.TimeoutMessage); err != nil {
		metricDeliveryFailures.Inc()
		a.log.Warn("actor.timeout.deliver.fail", "user_id", a.userID, "err", err)
	}
}

// Disconnect honors an explicit client request: forget persisted session
// metadata, clear the remembered subject, and close the transport normally.
// Pending requests are untouched and remain eligible to time out.
func (a *Actor) Disconnect(ctx context.Context) {
	a.mu.Lock()
	t := a.transport
	a.transport = nil
	a.subject = ""
	a.mu.Unlock()

	if err := a.sessions.Delete(ctx, a.userID); err != nil {
		a.log.Warn("actor.disconnect.store.fail", "user_id", a.userID, "err", err)
	}
	if t != nil {
		_ = t.Close(v1.CloseNormal, "disconnect requested")
	}
	a.log.Info("actor.disconnect", "user_id", a.userID)
}

// idleAlarm is the coarse idle-expiry deadline. It re-checks elapsed
// inactivity at fire time: activity since arming re-arms for the remainder
// instead of evicting.
func (a *Actor) idleAlarm() {
	a.checkIdle(time.Now().UTC())
}

func (a *Actor) checkIdle(now time.Time) bool {
	a.mu.Lock()
	if a.evicted {
		a.mu.Unlock()
		return false
	}
	elapsed := now.Sub(a.lastSeen)
	if elapsed < a.cfg.IdleWindow {
		if a.idleTimer != nil {
			a.idleTimer.Stop()
		}
		a.idleTimer = time.AfterFunc(a.cfg.IdleWindow-elapsed, a.idleAlarm)
		a.mu.Unlock()
		return false
	}
	a.mu.Unlock()

	a.shutdown(v1.CloseExpired, "session expired")

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := a.sessions.Delete(ctx, a.userID); err != nil {
		a.log.Warn("actor.evict.store.fail", "user_id", a.userID, "err", err)
	}

	a.log.Info("actor.idle.evict", "user_id", a.userID, "idle", elapsed)
	if a.onEvict != nil {
		a.onEvict(a.userID)
	}
	return true
}

// shutdown tears the actor down (idempotent): stop timers, drop pending
// entries, close any transport with the given code.
func (a *Actor) shutdown(code int, reason string) {
	a.mu.Lock()
	if a.evicted {
		a.mu.Unlock()
		return
	}
	a.evicted = true
	t := a.transport
	a.transport = nil
	a.subject = ""
	if a.idleTimer != nil {
		a.idleTimer.Stop()
	}
	for tok, p := range a.pending {
		p.timer.Stop()
		delete(a.pending, tok)
	}
	a.mu.Unlock()

	if t != nil {
		_ = t.Close(code, reason)
	}
}

// persistTouch records activity in the durable session store. Best-effort:
// the in-memory lastSeen is authoritative for this process; the stored copy
// exists to survive suspension.
func (a *Actor) persistTouch(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := a.sessions.Touch(ctx, a.userID, now); err != nil {
		a.log.Warn("actor.touch.store.fail", "user_id", a.userID, "err", err)
	}
}
