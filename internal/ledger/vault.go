// vault.go - Local ledger view for one participant.
//
// The vault tracks unconsumed state versions, retired references, and the
// chain of superseding transaction identifiers per linear record for audit.
// It is mutated only by commit application; queries are snapshot-consistent
// at call time.
//
// NOTE: all exported methods are safe for concurrent use.

package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"settlement/internal/identity"
)

// Vault is the participant's local ledger view.
type Vault struct {
	mu         sync.RWMutex
	keys       map[identity.PubKey]struct{}
	unconsumed map[Ref]StateAndRef
	consumed   map[Ref]TxID
	chains     map[uuid.UUID][]TxID
	applied    map[TxID]struct{}
}

// NewVault creates a vault for the party controlling the given keys. Only
// states naming one of these keys as participant are retained.
func NewVault(keys ...identity.PubKey) *Vault {
	v := &Vault{
		keys:       make(map[identity.PubKey]struct{}),
		unconsumed: make(map[Ref]StateAndRef),
		consumed:   make(map[Ref]TxID),
		chains:     make(map[uuid.UUID][]TxID),
		applied:    make(map[TxID]struct{}),
	}
	for _, k := range keys {
		v.keys[k] = struct{}{}
	}
	return v
}

// AddKey extends the set of keys this vault considers its own, e.g. when a
// fresh one-time identity is issued to the party.
func (v *Vault) AddKey(key identity.PubKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[key] = struct{}{}
}

// Add records an already-finalized state directly, bypassing commit
// application. Used to bootstrap a view from externally issued records.
func (v *Vault) Add(sr StateAndRef) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unconsumed[sr.Ref] = sr
}

func (v *Vault) relevant(s State) bool {
	for _, k := range s.ParticipantKeys() {
		if _, ok := v.keys[k]; ok {
			return true
		}
	}
	return false
}

// Query returns a snapshot of unconsumed states of the given kind that
// satisfy filter (nil filter matches everything). Results are ordered by
// reference so selection downstream is deterministic.
func (v *Vault) Query(kind string, filter func(State) bool) []StateAndRef {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []StateAndRef
	for _, sr := range v.unconsumed {
		if sr.State.Kind() != kind {
			continue
		}
		if filter != nil && !filter(sr.State) {
			continue
		}
		out = append(out, sr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Ref.String() < out[j].Ref.String()
	})
	return out
}

// Unconsumed looks up a single unconsumed reference.
func (v *Vault) Unconsumed(ref Ref) (StateAndRef, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	sr, ok := v.unconsumed[ref]
	return sr, ok
}

// Chain returns the audit chain of transaction identifiers that produced or
// superseded the linear record.
func (v *Vault) Chain(linearID uuid.UUID) []TxID {
	v.mu.RLock()
	defer v.mu.RUnlock()
	chain := make([]TxID, len(v.chains[linearID]))
	copy(chain, v.chains[linearID])
	return chain
}

// Apply records a finalized transition: retires every consumed reference and
// stores each produced state relevant to this party, stamped with the
// authority that ordered the commit. Applying the same transaction twice is
// a no-op, so replayed finality messages cannot corrupt the view.
func (v *Vault) Apply(txID TxID, consumed []Ref, produced []Envelope, notary identity.Party) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, done := v.applied[txID]; done {
		return nil
	}

	// Decode everything before mutating so a bad envelope leaves the view
	// untouched.
	states := make([]State, len(produced))
	for i, env := range produced {
		s, err := env.Unwrap()
		if err != nil {
			return fmt.Errorf("commit %s output %d: %w", txID, i, err)
		}
		states[i] = s
	}

	for _, ref := range consumed {
		if sr, ok := v.unconsumed[ref]; ok {
			if o, isLinear := sr.State.(*Obligation); isLinear {
				v.chains[o.LinearID] = append(v.chains[o.LinearID], txID)
			}
			delete(v.unconsumed, ref)
		}
		v.consumed[ref] = txID
	}
	for i, s := range states {
		if !v.relevant(s) {
			continue
		}
		ref := Ref{TxID: txID, Index: i}
		v.unconsumed[ref] = StateAndRef{Ref: ref, State: s, Notary: notary}
		if o, isLinear := s.(*Obligation); isLinear {
			v.chains[o.LinearID] = append(v.chains[o.LinearID], txID)
		}
	}
	v.applied[txID] = struct{}{}
	return nil
}
