// notary.go - Ordering authority interface and reference implementation.
//
// The authority deterministically accepts a fully-signed transition when
// none of its consumed references has been retired before, and rejects it
// with a double-spend otherwise. Check-and-retire is atomic: either every
// consumed reference is retired together with the commit, or none is.

package notary

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"settlement/internal/identity"
	"settlement/internal/ledger"
	"settlement/internal/txn"
)

// ErrDoubleSpend is returned when a consumed reference was already retired
// by a previously accepted transition.
var ErrDoubleSpend = errors.New("double spend")

// Service is the ordering authority as seen by a participant.
type Service interface {
	Submit(ctx context.Context, st *txn.SignedTransition) (*txn.Commit, error)
}

// InMemory is a single-process ordering authority, used by tests and the
// demo daemon. It totally orders accepted transitions by sequence number
// and stamps each commit with its own signature.
type InMemory struct {
	mu       sync.Mutex
	kp       *identity.KeyPair
	party    identity.Party
	consumed map[ledger.Ref]ledger.TxID
	seq      uint64
}

// NewInMemory creates an authority identified by name.
func NewInMemory(name string, kp *identity.KeyPair) *InMemory {
	return &InMemory{
		kp:       kp,
		party:    kp.Party(name),
		consumed: make(map[ledger.Ref]ledger.TxID),
	}
}

// Party returns the authority's well-known identity, referenced by
// transitions it is asked to order.
func (n *InMemory) Party() identity.Party {
	return n.party
}

// Submit implements Service.
func (n *InMemory) Submit(ctx context.Context, st *txn.SignedTransition) (*txn.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if st.Transition.Notary != n.party {
		return nil, fmt.Errorf("transition names authority %q, submitted to %q", st.Transition.Notary.Name, n.party.Name)
	}
	if err := st.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("refusing unsigned transition: %w", err)
	}
	id, err := st.Transition.ID()
	if err != nil {
		return nil, err
	}
	if id != st.ID {
		return nil, fmt.Errorf("transition id %s does not match signed id %s", id, st.ID)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ref := range st.Transition.ConsumedRefs() {
		if by, spent := n.consumed[ref]; spent {
			return nil, fmt.Errorf("%w: %s already retired by %s", ErrDoubleSpend, ref, by)
		}
	}
	for _, ref := range st.Transition.ConsumedRefs() {
		n.consumed[ref] = id
	}
	n.seq++

	digest, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("malformed transition id: %w", err)
	}
	stamp, err := n.kp.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("notary stamp failed: %w", err)
	}
	return &txn.Commit{
		Transition: st,
		TxID:       id,
		Seq:        n.seq,
		NotarySig:  stamp,
	}, nil
}
