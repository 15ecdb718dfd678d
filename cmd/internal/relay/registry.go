package relay

import (
	"log/slog"
	"sync"

	"beacon/cmd/internal/delivery"
	v1 "beacon/shared/contracts/relay/v1"
)

// Registry owns the set of live relay actors, keyed by user id.
// It is intentionally minimal: durable state lives behind SessionStore.
type Registry struct {
	log      *slog.Logger
	deliver  delivery.Deliverer
	sessions SessionStore
	cfg      ActorConfig

	mu     sync.Mutex
	actors map[string]*Actor
}

// NewRegistry constructs a Registry.
func NewRegistry(log *slog.Logger, deliver delivery.Deliverer, sessions SessionStore, cfg ActorConfig) *Registry {
	return &Registry{
		log:      log,
		deliver:  deliver,
		sessions: sessions,
		cfg:      cfg,
		actors:   make(map[string]*Actor),
	}
}

// GetOrCreate returns the actor for userID, constructing it lazily.
// Creation is single-writer per key: concurrent calls for an unseen user id
// observe exactly one instance.
func (r *Registry) GetOrCreate(userID string) *Actor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actors[userID]; ok {
		return a
	}

	a := newActor(r.log, userID, r.deliver, r.sessions, r.cfg, r.remove)
	r.actors[userID] = a
	metricLiveActors.Set(float64(len(r.actors)))
	r.log.Info("registry.actor.create", "user_id", userID)
	return a
}

// Lookup returns the actor for userID without creating one.
func (r *Registry) Lookup(userID string) (*Actor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[userID]
	return a, ok
}

// Evict force-removes an actor and shuts it down.
func (r *Registry) Evict(userID string) {
	r.mu.Lock()
	a, ok := r.actors[userID]
	delete(r.actors, userID)
	metricLiveActors.Set(float64(len(r.actors)))
	r.mu.Unlock()

	if ok {
		a.shutdown(v1.CloseExpired, "evicted")
		r.log.Info("registry.actor.evict", "user_id", userID)
	}
}

// Len reports the number of live actors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// remove is the actor self-eviction hook (idle alarm path). The actor has
// already shut itself down; only the map entry is reaped here.
func (r *Registry) remove(userID string) {
	r.mu.Lock()
	delete(r.actors, userID)
	metricLiveActors.Set(float64(len(r.actors)))
	r.mu.Unlock()
}
