// respond.go - Counterparty side of signature collection and finality.
//
// The responder never trusts the initiator's verification: it re-runs the
// verification predicates itself, applies its own acceptance predicate, and
// signs only the canonical digest it computed locally. After signing it
// awaits the commit and checks the finalized identifier matches what it
// signed, so a substituted payload is caught before the local view updates.

package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"settlement/internal/identity"
	"settlement/internal/ledger"
	"settlement/internal/txn"
)

// AcceptFunc is a counterparty-specific acceptance predicate, run after the
// contract predicates pass. Returning an error refuses the transition.
type AcceptFunc func(t *txn.Transition) error

// AcceptExactlyOneUnit refuses any settlement that does not pay this party
// in exactly one output unit. Transitions without a settlement command pass
// through untouched.
func AcceptExactlyOneUnit(key identity.PubKey) AcceptFunc {
	return func(t *txn.Transition) error {
		settle := false
		for _, cmd := range t.Commands {
			if cmd.Tag == txn.TagObligationSettle {
				settle = true
			}
		}
		if !settle {
			return nil
		}
		outputs, err := t.OutputStates()
		if err != nil {
			return err
		}
		mine := 0
		for _, s := range outputs {
			if u, ok := s.(*ledger.FungibleUnit); ok && u.Holder.Key == key {
				mine++
			}
		}
		if mine != 1 {
			return fmt.Errorf("expected exactly one output unit held by me, got %d", mine)
		}
		return nil
	}
}

// Responder handles proposals arriving on one session.
type Responder struct {
	kp      *identity.KeyPair
	reg     *txn.Registry
	vault   *ledger.Vault
	accept  AcceptFunc
	timeout time.Duration
	log     zerolog.Logger
}

// NewResponder wires the counterparty's verifier, keys and vault. accept
// may be nil for counterparties with no extra acceptance constraints.
func NewResponder(kp *identity.KeyPair, reg *txn.Registry, vault *ledger.Vault, accept AcceptFunc, timeout time.Duration, log zerolog.Logger) *Responder {
	return &Responder{kp: kp, reg: reg, vault: vault, accept: accept, timeout: timeout, log: log}
}

// RespondSign receives one proposal and either signs or refuses it. The
// refusal (with reason) is sent back before the error is returned, so the
// initiator aborts promptly instead of timing out.
func (r *Responder) RespondSign(ctx context.Context, session Session) (*txn.SignedTransition, error) {
	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := session.Receive(sctx)
	if err != nil {
		return nil, mapTimeout(err)
	}
	var req SignRequest
	if err := msg.Decode(MsgSignRequest, &req); err != nil {
		return nil, err
	}
	st := req.Transition
	if st == nil || st.Transition == nil {
		return nil, r.refuse(sctx, session, "empty proposal")
	}

	// Recompute the canonical id; never sign the initiator's claim.
	id, err := st.Transition.ID()
	if err != nil {
		return nil, r.refuse(sctx, session, fmt.Sprintf("unhashable transition: %v", err))
	}
	if id != st.ID {
		return nil, r.refuse(sctx, session, "proposed id does not match transition bytes")
	}
	if err := r.reg.Verify(st.Transition); err != nil {
		return nil, r.refuse(sctx, session, err.Error())
	}
	if r.accept != nil {
		if err := r.accept(st.Transition); err != nil {
			return nil, r.refuse(sctx, session, err.Error())
		}
	}

	if err := st.SignWith(r.kp); err != nil {
		return nil, err
	}
	var ours *txn.Signature
	for i := range st.Sigs {
		if st.Sigs[i].Signer == r.kp.Public() {
			ours = &st.Sigs[i]
		}
	}
	resp, err := NewMessage(MsgSignResponse, SignResponse{Signature: ours})
	if err != nil {
		return nil, err
	}
	if err := session.Send(sctx, resp); err != nil {
		return nil, mapTimeout(err)
	}
	r.log.Debug().Str("tx_id", string(st.ID)).Msg("proposal signed")
	return st, nil
}

func (r *Responder) refuse(ctx context.Context, session Session, reason string) error {
	msg, err := NewMessage(MsgSignResponse, SignResponse{Refused: true, Reason: reason})
	if err == nil {
		if sendErr := session.Send(ctx, msg); sendErr != nil {
			r.log.Warn().Err(sendErr).Msg("could not deliver refusal")
		}
	}
	r.log.Info().Str("reason", reason).Msg("refused proposal")
	return &RefusedError{Reason: reason}
}

// ReceiveFinality awaits the commit for a transition this party signed,
// checks the finalized identifier matches, and applies it to the vault.
func (r *Responder) ReceiveFinality(ctx context.Context, session Session, signedID ledger.TxID) (*txn.Commit, error) {
	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := session.Receive(sctx)
	if err != nil {
		return nil, mapTimeout(err)
	}
	var notice FinalityNotice
	if err := msg.Decode(MsgCommit, &notice); err != nil {
		return nil, err
	}
	commit := notice.Commit
	if commit == nil || commit.Transition == nil {
		return nil, errors.New("empty finality notice")
	}
	if commit.TxID != signedID {
		return nil, fmt.Errorf("finalized transaction %s does not match signed transaction %s", commit.TxID, signedID)
	}
	recomputed, err := commit.Transition.Transition.ID()
	if err != nil {
		return nil, err
	}
	if recomputed != signedID {
		return nil, fmt.Errorf("commit payload was substituted: hashes to %s, signed %s", recomputed, signedID)
	}
	if err := commit.Transition.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("commit is not fully signed: %w", err)
	}
	if err := applyCommit(r.vault, commit); err != nil {
		return nil, err
	}
	r.log.Info().Str("tx_id", string(commit.TxID)).Uint64("seq", commit.Seq).Msg("commit applied")
	return commit, nil
}

// Respond runs the full counterparty workflow for one session: review and
// sign the proposal, then await and apply finality.
func (r *Responder) Respond(ctx context.Context, session Session) (*txn.Commit, error) {
	st, err := r.RespondSign(ctx, session)
	if err != nil {
		return nil, err
	}
	return r.ReceiveFinality(ctx, session, st.ID)
}

// applyCommit unpacks a commit into the vault's atomic apply.
func applyCommit(vault *ledger.Vault, commit *txn.Commit) error {
	t := commit.Transition.Transition
	return vault.Apply(commit.TxID, t.ConsumedRefs(), t.Produced, t.Notary)
}
