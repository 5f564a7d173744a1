// command.go - Tagged commands and the registry of verification predicates.
//
// A command declares which business rule applies to a transition and whose
// signatures attest it. Rules are pure functions dispatched through a
// registry keyed by tag: given consumed state, produced state and command
// parameters they return pass or the violated constraint, with no side
// effects, so every party evaluating the identical transition reaches the
// identical verdict.

package txn

import (
	"encoding/json"
	"sync"

	"settlement/internal/identity"
)

// Tag names the business rule a command invokes.
type Tag string

// Built-in command tags.
const (
	TagObligationIssue  Tag = "obligation/issue"
	TagObligationSettle Tag = "obligation/settle"
	TagUnitIssue        Tag = "unit/issue"
	TagUnitMove         Tag = "unit/move"
)

// Command is the tagged variant attached to a transition: action tag,
// optional parameters, and the keys that must sign the transition for this
// command to be attested.
type Command struct {
	Tag     Tag               `json:"tag"`
	Params  json.RawMessage   `json:"params,omitempty"`
	Signers []identity.PubKey `json:"signers"`
}

// VerifyFunc is a pure verification predicate for one command tag.
type VerifyFunc func(t *Transition, cmd Command) error

// Registry dispatches verification predicates by command tag.
type Registry struct {
	mu    sync.RWMutex
	funcs map[Tag]VerifyFunc
}

// NewRegistry creates an empty registry. Most callers want DefaultRegistry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[Tag]VerifyFunc)}
}

// DefaultRegistry returns a registry with the built-in obligation and
// fungible unit contracts installed.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TagObligationIssue, verifyObligationIssue)
	r.Register(TagObligationSettle, verifyObligationSettle)
	r.Register(TagUnitIssue, verifyUnitIssue)
	r.Register(TagUnitMove, verifyUnitMove)
	return r
}

// Register installs the predicate for a tag.
func (r *Registry) Register(tag Tag, fn VerifyFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[tag] = fn
}

func (r *Registry) lookup(tag Tag) (VerifyFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[tag]
	return fn, ok
}

// Verify runs every declared command's predicate against the transition's
// full input and output sets. The first violated constraint aborts; a
// transition with no commands is itself a violation.
func (r *Registry) Verify(t *Transition) error {
	if len(t.Commands) == 0 {
		return violation("", "transition declares no commands")
	}
	for _, cmd := range t.Commands {
		fn, ok := r.lookup(cmd.Tag)
		if !ok {
			return violation(cmd.Tag, "no verification predicate registered")
		}
		if len(cmd.Signers) == 0 {
			return violation(cmd.Tag, "command requires at least one signer")
		}
		if err := fn(t, cmd); err != nil {
			return err
		}
	}
	return nil
}
