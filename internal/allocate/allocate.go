// allocate.go - Fungible unit selection for outgoing payments.
//
// Given the required payout per recipient and a snapshot of the payer's
// spendable units, selects inputs and computes outputs under exact
// conservation. Selection is deterministic greedy largest-first so every
// rebuild of the same snapshot picks the same units; overlapping selections
// by concurrent transitions are resolved by the ordering authority, not by
// locks here.

package allocate

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"settlement/internal/identity"
	"settlement/internal/ledger"
)

// ErrInsufficientFunds is returned when the snapshot cannot cover the
// required amount. Raised before any network interaction; safe to retry
// once the payer holds more units.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Payment is one required payout. The recipient is a one-time identity.
type Payment struct {
	Recipient identity.AnonymousParty
	Amount    *big.Int
}

// Move is the allocation result: the consumed input units and the produced
// output units (one per recipient, plus at most one change unit).
type Move struct {
	Inputs  []ledger.StateAndRef
	Outputs []*ledger.FungibleUnit
}

// GenerateMove selects inputs from pool covering the sum of payments of the
// given asset and produces exactly one output per recipient plus, when the
// selected amount exceeds the requirement, exactly one change output back
// to payer. Conservation holds exactly: sum(inputs) == sum(outputs).
func GenerateMove(asset string, payments []Payment, pool []ledger.StateAndRef, payer identity.AnonymousParty) (*Move, error) {
	required := new(big.Int)
	for _, p := range payments {
		if p.Amount == nil || p.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("payment to %s must be positive", p.Recipient.Key)
		}
		required.Add(required, p.Amount)
	}

	// Restrict to spendable units of the right asset held by the payer.
	var candidates []ledger.StateAndRef
	for _, sr := range pool {
		u, ok := sr.State.(*ledger.FungibleUnit)
		if !ok || u.Asset != asset || u.Holder != payer {
			continue
		}
		candidates = append(candidates, sr)
	}

	// Largest first minimizes the input count; ties broken by reference so
	// selection is deterministic for a given snapshot.
	sort.Slice(candidates, func(i, j int) bool {
		a := candidates[i].State.(*ledger.FungibleUnit).Amount
		b := candidates[j].State.(*ledger.FungibleUnit).Amount
		if c := a.Cmp(b); c != 0 {
			return c > 0
		}
		return candidates[i].Ref.String() < candidates[j].Ref.String()
	})

	selected := new(big.Int)
	var inputs []ledger.StateAndRef
	for _, sr := range candidates {
		if selected.Cmp(required) >= 0 {
			break
		}
		inputs = append(inputs, sr)
		selected.Add(selected, sr.State.(*ledger.FungibleUnit).Amount)
	}
	if selected.Cmp(required) < 0 {
		return nil, fmt.Errorf("%w: need %s %s, hold %s", ErrInsufficientFunds, required, asset, selected)
	}

	outputs := make([]*ledger.FungibleUnit, 0, len(payments)+1)
	for _, p := range payments {
		outputs = append(outputs, &ledger.FungibleUnit{
			Asset:  asset,
			Amount: new(big.Int).Set(p.Amount),
			Holder: p.Recipient,
		})
	}
	if change := new(big.Int).Sub(selected, required); change.Sign() > 0 {
		outputs = append(outputs, &ledger.FungibleUnit{
			Asset:  asset,
			Amount: change,
			Holder: payer,
		})
	}
	return &Move{Inputs: inputs, Outputs: outputs}, nil
}
