// resolver.go - Confidential identity resolution.
//
// Records never embed the long-term identity behind an anonymous key. The
// mapping lives in a Registry that is handed only to the parties entitled to
// know it; everyone else sees an opaque key.

package identity

import (
	"errors"
	"sync"
)

// ErrUnknownIdentity is returned when an anonymous key has no registered
// long-term identity, or the caller is not entitled to the mapping.
var ErrUnknownIdentity = errors.New("unknown anonymous identity")

// Resolver maps a one-time anonymous identity to its long-term Party.
// Who holds a Resolver is the access-control boundary: do not pass a
// Registry to parties that must not learn the mapping.
type Resolver interface {
	Resolve(anon AnonymousParty) (Party, error)
}

// Registry is an in-memory Resolver populated by the identity owner when it
// hands out one-time keys.
type Registry struct {
	mu    sync.RWMutex
	byKey map[PubKey]Party
}

// NewRegistry creates an empty identity registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[PubKey]Party)}
}

// Register records that anon belongs to party.
func (r *Registry) Register(anon AnonymousParty, party Party) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[anon.Key] = party
}

// Resolve implements Resolver.
func (r *Registry) Resolve(anon AnonymousParty) (Party, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKey[anon.Key]
	if !ok {
		return Party{}, ErrUnknownIdentity
	}
	return p, nil
}
