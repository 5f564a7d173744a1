// contracts.go - Built-in verification predicates.
//
// Each predicate inspects the full consumed/produced sets plus the command
// and returns nil or the violated constraint. Predicates are deterministic
// and side-effect free; that purity is what makes a counterparty signature a
// meaningful independent attestation.

package txn

import (
	"math/big"

	"settlement/internal/identity"
	"settlement/internal/ledger"
)

func hasSigner(cmd Command, key identity.PubKey) bool {
	for _, k := range cmd.Signers {
		if k == key {
			return true
		}
	}
	return false
}

func hasCommand(t *Transition, tag Tag) bool {
	for _, c := range t.Commands {
		if c.Tag == tag {
			return true
		}
	}
	return false
}

// verifyObligationIssue: an issuance consumes no obligation, produces
// exactly one with a positive amount, and the obligor must sign it into
// existence.
func verifyObligationIssue(t *Transition, cmd Command) error {
	ins, err := t.InputStates()
	if err != nil {
		return violation(cmd.Tag, "undecodable inputs: %v", err)
	}
	outs, err := t.OutputStates()
	if err != nil {
		return violation(cmd.Tag, "undecodable outputs: %v", err)
	}
	for _, s := range ins {
		if s.Kind() == ledger.KindObligation {
			return violation(cmd.Tag, "issuance must not consume an obligation")
		}
	}
	var issued []*ledger.Obligation
	for _, s := range outs {
		if o, ok := s.(*ledger.Obligation); ok {
			issued = append(issued, o)
		}
	}
	if len(issued) != 1 {
		return violation(cmd.Tag, "expected exactly one obligation output, got %d", len(issued))
	}
	o := issued[0]
	if o.Amount == nil || o.Amount.Sign() <= 0 {
		return violation(cmd.Tag, "obligation amount must be positive")
	}
	if !hasSigner(cmd, o.Obligor.Key) {
		return violation(cmd.Tag, "obligor must be a required signer")
	}
	return nil
}

// verifyObligationSettle: settlement retires exactly one obligation and pays
// the holder at least the obliged amount in units of the obliged asset. All
// record participants must sign.
func verifyObligationSettle(t *Transition, cmd Command) error {
	ins, err := t.InputStates()
	if err != nil {
		return violation(cmd.Tag, "undecodable inputs: %v", err)
	}
	outs, err := t.OutputStates()
	if err != nil {
		return violation(cmd.Tag, "undecodable outputs: %v", err)
	}
	var consumed []*ledger.Obligation
	for _, s := range ins {
		if o, ok := s.(*ledger.Obligation); ok {
			consumed = append(consumed, o)
		}
	}
	if len(consumed) != 1 {
		return violation(cmd.Tag, "expected exactly one obligation input, got %d", len(consumed))
	}
	o := consumed[0]
	for _, s := range outs {
		if s.Kind() == ledger.KindObligation {
			return violation(cmd.Tag, "settlement must retire the obligation, not reissue it")
		}
	}
	paid := new(big.Int)
	for _, s := range outs {
		if u, ok := s.(*ledger.FungibleUnit); ok && u.Asset == o.Asset && u.Holder == o.Holder {
			paid.Add(paid, u.Amount)
		}
	}
	if paid.Cmp(o.Amount) < 0 {
		return violation(cmd.Tag, "holder paid %s of %s owed", paid, o.Amount)
	}
	for _, k := range o.ParticipantKeys() {
		if !hasSigner(cmd, k) {
			return violation(cmd.Tag, "participant %s must be a required signer", k)
		}
	}
	return nil
}

// verifyUnitIssue: unit issuance consumes no units and the issuer signs
// every produced unit into existence.
func verifyUnitIssue(t *Transition, cmd Command) error {
	ins, err := t.InputStates()
	if err != nil {
		return violation(cmd.Tag, "undecodable inputs: %v", err)
	}
	outs, err := t.OutputStates()
	if err != nil {
		return violation(cmd.Tag, "undecodable outputs: %v", err)
	}
	for _, s := range ins {
		if s.Kind() == ledger.KindFungible {
			return violation(cmd.Tag, "issuance must not consume units")
		}
	}
	n := 0
	for _, s := range outs {
		if u, ok := s.(*ledger.FungibleUnit); ok {
			if u.Amount == nil || u.Amount.Sign() <= 0 {
				return violation(cmd.Tag, "issued unit amount must be positive")
			}
			n++
		}
	}
	if n == 0 {
		return violation(cmd.Tag, "issuance produces no units")
	}
	return nil
}

// verifyUnitMove: conservation per asset. The sum of consumed unit amounts
// equals the sum of produced unit amounts for every asset touched, unless an
// explicit issuance command is present. Every consumed unit's holder signs.
func verifyUnitMove(t *Transition, cmd Command) error {
	if hasCommand(t, TagUnitIssue) {
		// Issuance exception to the conservation law.
		return nil
	}
	ins, err := t.InputStates()
	if err != nil {
		return violation(cmd.Tag, "undecodable inputs: %v", err)
	}
	outs, err := t.OutputStates()
	if err != nil {
		return violation(cmd.Tag, "undecodable outputs: %v", err)
	}
	inSums := make(map[string]*big.Int)
	outSums := make(map[string]*big.Int)
	for _, s := range ins {
		if u, ok := s.(*ledger.FungibleUnit); ok {
			if inSums[u.Asset] == nil {
				inSums[u.Asset] = new(big.Int)
			}
			inSums[u.Asset].Add(inSums[u.Asset], u.Amount)
			if !hasSigner(cmd, u.Holder.Key) {
				return violation(cmd.Tag, "holder of consumed unit %s must sign", u.Holder.Key)
			}
		}
	}
	for _, s := range outs {
		if u, ok := s.(*ledger.FungibleUnit); ok {
			if u.Amount == nil || u.Amount.Sign() <= 0 {
				return violation(cmd.Tag, "unit amount must be positive")
			}
			if outSums[u.Asset] == nil {
				outSums[u.Asset] = new(big.Int)
			}
			outSums[u.Asset].Add(outSums[u.Asset], u.Amount)
		}
	}
	if len(inSums) == 0 {
		return violation(cmd.Tag, "move consumes no units")
	}
	for asset, in := range inSums {
		out := outSums[asset]
		if out == nil || in.Cmp(out) != 0 {
			return violation(cmd.Tag, "conservation broken for %s: in=%s out=%v", asset, in, out)
		}
	}
	for asset := range outSums {
		if inSums[asset] == nil {
			return violation(cmd.Tag, "conservation broken for %s: units appear from nothing", asset)
		}
	}
	return nil
}
