// builder.go - Assembly of candidate transitions.

package txn

import (
	"errors"
	"fmt"

	"settlement/internal/allocate"
	"settlement/internal/identity"
	"settlement/internal/ledger"
)

// Builder assembles a transition, preserving the order in which inputs,
// outputs and commands are added. The ordering authority is taken from the
// first consumed record's prior transition; later inputs naming a different
// authority fail the build.
type Builder struct {
	consumed  []ConsumedState
	produced  []ledger.Envelope
	commands  []Command
	notary    ledger.StateAndRef
	notarySet bool
	err       error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithNotary pins the ordering authority explicitly. Required for issuance
// transitions, which consume nothing; for all other transitions the
// authority comes from the consumed records and must agree with this one.
func (b *Builder) WithNotary(notary identity.Party) *Builder {
	if b.err != nil {
		return b
	}
	if b.notarySet && b.notary.Notary != notary {
		b.err = fmt.Errorf("%w: %q vs %q", ErrInconsistentAuthority, b.notary.Notary.Name, notary.Name)
		return b
	}
	b.notary = ledger.StateAndRef{Notary: notary}
	b.notarySet = true
	return b
}

// AddInput consumes a prior state version. The input's ordering authority
// must agree with every previously added input.
func (b *Builder) AddInput(sr ledger.StateAndRef) *Builder {
	if b.err != nil {
		return b
	}
	if !b.notarySet {
		b.notary = sr
		b.notarySet = true
	} else if sr.Notary != b.notary.Notary {
		b.err = fmt.Errorf("%w: %q vs %q", ErrInconsistentAuthority, b.notary.Notary.Name, sr.Notary.Name)
		return b
	}
	env, err := ledger.Wrap(sr.State)
	if err != nil {
		b.err = err
		return b
	}
	b.consumed = append(b.consumed, ConsumedState{Ref: sr.Ref, State: env})
	return b
}

// AddOutput produces a new state version.
func (b *Builder) AddOutput(s ledger.State) *Builder {
	if b.err != nil {
		return b
	}
	env, err := ledger.Wrap(s)
	if err != nil {
		b.err = err
		return b
	}
	b.produced = append(b.produced, env)
	return b
}

// AddCommand declares a business rule and its required signers.
func (b *Builder) AddCommand(cmd Command) *Builder {
	if b.err != nil {
		return b
	}
	b.commands = append(b.commands, cmd)
	return b
}

// AddMove wires an allocation result into the transition: every selected
// input unit is consumed, every computed output unit is produced, and a
// unit/move command signed by the payer is declared.
func (b *Builder) AddMove(m *allocate.Move, moveCmd Command) *Builder {
	for _, in := range m.Inputs {
		b.AddInput(in)
	}
	for _, out := range m.Outputs {
		b.AddOutput(out)
	}
	return b.AddCommand(moveCmd)
}

// Build freezes ordering and returns the transition. It fails if the
// ordering authority is undefined (nothing consumed and WithNotary never
// called) or if any prior step errored.
func (b *Builder) Build() (*Transition, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.notarySet {
		return nil, errors.New("ordering authority undefined; consume an input or call WithNotary")
	}
	return &Transition{
		Consumed: b.consumed,
		Produced: b.produced,
		Commands: b.commands,
		Notary:   b.notary.Notary,
	}, nil
}
