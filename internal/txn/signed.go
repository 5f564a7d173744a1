// signed.go - Partially signed transitions and finalized commits.

package txn

import (
	"encoding/hex"
	"fmt"

	"settlement/internal/identity"
	"settlement/internal/ledger"
)

// Signature is one party's attestation over the canonical transition digest.
type Signature struct {
	Signer identity.PubKey `json:"signer"`
	Bytes  []byte          `json:"sig"`
}

// SignedTransition accumulates signatures over a frozen transition.
// Signatures may arrive in any order; the transition advances only once the
// full required-signer set is present.
type SignedTransition struct {
	Transition *Transition `json:"transition"`
	ID         ledger.TxID `json:"id"`
	Sigs       []Signature `json:"sigs"`
}

// NewSignedTransition freezes the transition's canonical identifier.
func NewSignedTransition(t *Transition) (*SignedTransition, error) {
	id, err := t.ID()
	if err != nil {
		return nil, err
	}
	return &SignedTransition{Transition: t, ID: id}, nil
}

// SignWith appends this keypair's signature over the canonical digest.
func (st *SignedTransition) SignWith(kp *identity.KeyPair) error {
	digest, err := hex.DecodeString(string(st.ID))
	if err != nil {
		return fmt.Errorf("malformed transition id: %w", err)
	}
	sig, err := kp.Sign(digest)
	if err != nil {
		return err
	}
	return st.AddSignature(Signature{Signer: kp.Public(), Bytes: sig})
}

// AddSignature verifies and records a counterparty signature. Duplicate
// signers are rejected.
func (st *SignedTransition) AddSignature(sig Signature) error {
	digest, err := hex.DecodeString(string(st.ID))
	if err != nil {
		return fmt.Errorf("malformed transition id: %w", err)
	}
	if err := identity.Verify(sig.Signer, sig.Bytes, digest); err != nil {
		return fmt.Errorf("signature from %s rejected: %w", sig.Signer, err)
	}
	for _, have := range st.Sigs {
		if have.Signer == sig.Signer {
			return fmt.Errorf("duplicate signature from %s", sig.Signer)
		}
	}
	st.Sigs = append(st.Sigs, sig)
	return nil
}

// Missing lists required signers that have not signed yet, in required
// order.
func (st *SignedTransition) Missing() []identity.PubKey {
	have := make(map[identity.PubKey]struct{}, len(st.Sigs))
	for _, s := range st.Sigs {
		have[s.Signer] = struct{}{}
	}
	var missing []identity.PubKey
	for _, k := range st.Transition.RequiredSigners() {
		if _, ok := have[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// VerifySignatures checks that the full required-signer set has signed the
// canonical digest.
func (st *SignedTransition) VerifySignatures() error {
	digest, err := hex.DecodeString(string(st.ID))
	if err != nil {
		return fmt.Errorf("malformed transition id: %w", err)
	}
	for _, sig := range st.Sigs {
		if err := identity.Verify(sig.Signer, sig.Bytes, digest); err != nil {
			return fmt.Errorf("signature from %s rejected: %w", sig.Signer, err)
		}
	}
	if missing := st.Missing(); len(missing) > 0 {
		return fmt.Errorf("missing %d required signature(s), first: %s", len(missing), missing[0])
	}
	return nil
}

// Commit is the authority-ordered, fully signed result of an accepted
// transition. Immutable once produced; replicated to every participant.
type Commit struct {
	Transition *SignedTransition `json:"transition"`
	TxID       ledger.TxID       `json:"tx_id"`
	Seq        uint64            `json:"seq"`
	NotarySig  []byte            `json:"notary_sig"`
}
