package breaker

import (
	"sort"
	"sync"
	"time"
)

// KeyPrefix is prepended to provider names to form registry keys.
const KeyPrefix = "ai_provider_"

// Key returns the registry key for a provider.
func Key(provider string) string {
	return KeyPrefix + provider
}

// Registry lazily creates and holds breakers by key. It is the only state
// shared between concurrent pipeline runs.
type Registry struct {
	opts []Option

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry. opts are applied to every breaker
// it creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it with cfg on first access.
// cfg is ignored for existing breakers.
func (r *Registry) Get(key string, cfg Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b := New(key, cfg, r.opts...)
	r.breakers[key] = b
	return b
}

// Reset drops every breaker so the next Get starts closed.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = make(map[string]*Breaker)
}

// Status is a point-in-time view of one breaker.
type Status struct {
	Key       string    `json:"key"`
	State     State     `json:"state"`
	Failures  int       `json:"failures"`
	Successes int       `json:"successes"`
	ChangedAt time.Time `json:"changed_at"`
}

// Snapshot returns the status of every breaker, sorted by key.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(list))
	for _, b := range list {
		b.mu.Lock()
		b.refreshLocked()
		out = append(out, Status{
			Key:       b.name,
			State:     b.state,
			Failures:  b.failures,
			Successes: b.successes,
			ChangedAt: b.changedAt,
		})
		b.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
