// state.go - Shared ledger state types for the settlement protocol.
//
// A State is an immutable payload of business data plus the participant
// identities entitled to see and sign it. An Obligation carries a LinearID
// that persists across successive versions of the same logical record; a
// FungibleUnit is a quantized amount of a typed asset held by one identity.

package ledger

import (
	"math/big"

	"github.com/google/uuid"

	"settlement/internal/identity"
)

// State kinds registered with the envelope codec.
const (
	KindObligation = "obligation"
	KindFungible   = "fungible"
)

// State is a single record on the shared ledger. The participant set is
// never empty; a state version is consumed atomically, never partially.
type State interface {
	Kind() string
	ParticipantKeys() []identity.PubKey
}

// Obligation is a payment obligation from Obligor to Holder. Both roles are
// confidentiality-sensitive and therefore anonymous identities.
type Obligation struct {
	LinearID uuid.UUID               `json:"linear_id"`
	Obligor  identity.AnonymousParty `json:"obligor"`
	Holder   identity.AnonymousParty `json:"holder"`
	Asset    string                  `json:"asset"`
	Amount   *big.Int                `json:"amount"`
}

// NewObligation creates an obligation with a fresh linear identifier.
func NewObligation(obligor, holder identity.AnonymousParty, asset string, amount *big.Int) *Obligation {
	return &Obligation{
		LinearID: uuid.New(),
		Obligor:  obligor,
		Holder:   holder,
		Asset:    asset,
		Amount:   amount,
	}
}

func (o *Obligation) Kind() string { return KindObligation }

func (o *Obligation) ParticipantKeys() []identity.PubKey {
	return []identity.PubKey{o.Obligor.Key, o.Holder.Key}
}

// FungibleUnit is a quantized amount of a typed asset held by one identity.
type FungibleUnit struct {
	Asset  string                  `json:"asset"`
	Amount *big.Int                `json:"amount"`
	Holder identity.AnonymousParty `json:"holder"`
}

func (u *FungibleUnit) Kind() string { return KindFungible }

func (u *FungibleUnit) ParticipantKeys() []identity.PubKey {
	return []identity.PubKey{u.Holder.Key}
}
