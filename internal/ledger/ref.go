// ref.go - References to produced states.

package ledger

import (
	"fmt"

	"settlement/internal/identity"
)

// TxID is the canonical hex identifier of a committed or candidate
// transition.
type TxID string

// Ref points at the Index-th produced state of the transition TxID.
// A Ref is retired at most once by the ordering authority.
type Ref struct {
	TxID  TxID `json:"tx_id"`
	Index int  `json:"index"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.TxID, r.Index)
}

// StateAndRef pairs an unconsumed state with its reference and the ordering
// authority that finalized the transition producing it. The authority rides
// along so a later transition consuming this state can honour chain
// continuity.
type StateAndRef struct {
	Ref    Ref
	State  State
	Notary identity.Party
}
