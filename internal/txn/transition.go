// transition.go - Candidate atomic updates to shared ledger state.
//
// A Transition consumes prior state versions and produces new ones, under
// commands that name the business rules and required signers. Ordering of
// consumed and produced entries is the order of addition and is part of the
// canonical identifier, so every party hashes and verifies the exact same
// bytes.

package txn

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	bls12377_fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"

	"settlement/internal/identity"
	"settlement/internal/ledger"
)

// ConsumedState is a consumed reference together with the state bytes it
// points at, carried in the transition so counterparties verify against the
// same inputs without resolving the backchain themselves.
type ConsumedState struct {
	Ref   ledger.Ref      `json:"ref"`
	State ledger.Envelope `json:"state"`
}

// Transition is a candidate transaction. It is exclusively owned by its
// initiator until finality; afterwards the resulting Commit is shared
// read-only state.
type Transition struct {
	Consumed []ConsumedState   `json:"consumed"`
	Produced []ledger.Envelope `json:"produced"`
	Commands []Command         `json:"commands"`
	Notary   identity.Party    `json:"notary"`
}

// InputStates decodes the consumed state payloads in order.
func (t *Transition) InputStates() ([]ledger.State, error) {
	out := make([]ledger.State, len(t.Consumed))
	for i, c := range t.Consumed {
		s, err := c.State.Unwrap()
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// OutputStates decodes the produced state payloads in order.
func (t *Transition) OutputStates() ([]ledger.State, error) {
	out := make([]ledger.State, len(t.Produced))
	for i, env := range t.Produced {
		s, err := env.Unwrap()
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// ConsumedRefs lists the consumed references in order.
func (t *Transition) ConsumedRefs() []ledger.Ref {
	refs := make([]ledger.Ref, len(t.Consumed))
	for i, c := range t.Consumed {
		refs[i] = c.Ref
	}
	return refs
}

// Digest computes the canonical 32-byte digest of the transition: a MiMC
// hash of the deterministic JSON encoding, reduced into the BLS12-377
// scalar field so it can be signed directly. Identical transitions yield
// identical digests on every party.
func (t *Transition) Digest() ([]byte, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("canonical encoding failed: %w", err)
	}
	sum := sha256.Sum256(body)
	h := mimcNative.NewMiMC()
	h.Write(sum[:])
	var e bls12377_fr.Element
	e.SetBytes(h.Sum(nil))
	out := e.Bytes()
	return out[:], nil
}

// ID returns the canonical transaction identifier, the hex form of Digest.
func (t *Transition) ID() (ledger.TxID, error) {
	d, err := t.Digest()
	if err != nil {
		return "", err
	}
	return ledger.TxID(hex.EncodeToString(d)), nil
}

// RequiredSigners is the union of all command signer sets, first-appearance
// order preserved.
func (t *Transition) RequiredSigners() []identity.PubKey {
	seen := make(map[identity.PubKey]struct{})
	var out []identity.PubKey
	for _, cmd := range t.Commands {
		for _, k := range cmd.Signers {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
