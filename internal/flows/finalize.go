// finalize.go - Finality protocol, initiator side.
//
// Submits the fully-signed transition to the ordering authority, then
// distributes the commit to every participant session and applies it to the
// initiator's own view. Nothing is durably mutated anywhere until the
// authority accepts, so abandoning a transition before submission has no
// side effects; after submission the outcome is authority-determined.

package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"settlement/internal/ledger"
	"settlement/internal/notary"
	"settlement/internal/txn"
)

// Finalize submits st and, on acceptance, distributes the commit over every
// session and applies it to vault. Rejection surfaces
// ErrNotarizationRejected wrapping the authority's cause; the transition is
// then terminally dead and a fresh one must be built from a fresh snapshot.
func Finalize(ctx context.Context, st *txn.SignedTransition, svc notary.Service, sessions []Session, vault *ledger.Vault, log zerolog.Logger) (*txn.Commit, error) {
	commit, err := svc.Submit(ctx, st)
	if err != nil {
		if errors.Is(err, notary.ErrDoubleSpend) {
			return nil, fmt.Errorf("%w: %w", ErrNotarizationRejected, err)
		}
		return nil, err
	}
	log.Info().Str("tx_id", string(commit.TxID)).Uint64("seq", commit.Seq).Msg("transition notarized")

	notice, err := NewMessage(MsgCommit, FinalityNotice{Commit: commit})
	if err != nil {
		return nil, err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, session := range sessions {
		session := session
		g.Go(func() error {
			if err := session.Send(gctx, notice); err != nil {
				return mapTimeout(err)
			}
			return nil
		})
	}
	distErr := g.Wait()

	if err := applyCommit(vault, commit); err != nil {
		return commit, err
	}
	if distErr != nil {
		// The commit stands regardless; the undelivered party recovers it
		// from the authority or a re-send.
		return commit, fmt.Errorf("commit %s finalized but not fully distributed: %w", commit.TxID, distErr)
	}
	return commit, nil
}
