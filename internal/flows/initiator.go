// initiator.go - Initiator-side drivers for the commitment workflow.
//
// Each driver runs one transition lifecycle end to end: allocate, build,
// verify locally, collect signatures, finalize. Verification failures abort
// before any network interaction. A batch of obligations is driven
// concurrently; one record's failure never aborts the rest.

package flows

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"settlement/internal/allocate"
	"settlement/internal/identity"
	"settlement/internal/ledger"
	"settlement/internal/notary"
	"settlement/internal/txn"
)

// Dialer opens a session to the counterparty controlling key.
type Dialer func(ctx context.Context, key identity.PubKey) (Session, error)

// Initiator owns the local side of transition commitment.
type Initiator struct {
	kp          *identity.KeyPair
	vault       *ledger.Vault
	reg         *txn.Registry
	svc         notary.Service
	notaryParty identity.Party
	dial        Dialer
	timeout     time.Duration
	attempts    int
	maxInFlight int
	log         zerolog.Logger
}

// InitiatorConfig wires an Initiator.
type InitiatorConfig struct {
	Keys        *identity.KeyPair
	Vault       *ledger.Vault
	Registry    *txn.Registry
	Notary      notary.Service
	NotaryParty identity.Party
	Dial        Dialer
	// Timeout bounds every session round trip. Zero means 30s.
	Timeout time.Duration
	// Attempts bounds rebuilds after a stale-view rejection. Zero means 3.
	Attempts int
	// MaxInFlight bounds concurrent transitions in a batch. Zero means 4.
	MaxInFlight int
	Log         zerolog.Logger
}

// NewInitiator validates and applies the config.
func NewInitiator(cfg InitiatorConfig) (*Initiator, error) {
	if cfg.Keys == nil || cfg.Vault == nil || cfg.Registry == nil || cfg.Notary == nil {
		return nil, errors.New("initiator requires keys, vault, registry and notary")
	}
	in := &Initiator{
		kp:          cfg.Keys,
		vault:       cfg.Vault,
		reg:         cfg.Registry,
		svc:         cfg.Notary,
		notaryParty: cfg.NotaryParty,
		dial:        cfg.Dial,
		timeout:     cfg.Timeout,
		attempts:    cfg.Attempts,
		maxInFlight: cfg.MaxInFlight,
		log:         cfg.Log,
	}
	if in.timeout <= 0 {
		in.timeout = 30 * time.Second
	}
	if in.attempts <= 0 {
		in.attempts = 3
	}
	if in.maxInFlight <= 0 {
		in.maxInFlight = 4
	}
	return in, nil
}

func (in *Initiator) anon() identity.AnonymousParty {
	return identity.AnonymousParty{Key: in.kp.Public()}
}

// runFlow verifies, signs, collects counterparty signatures and finalizes
// one built transition.
func (in *Initiator) runFlow(ctx context.Context, t *txn.Transition) (*txn.Commit, error) {
	if err := in.reg.Verify(t); err != nil {
		return nil, err
	}
	st, err := txn.NewSignedTransition(t)
	if err != nil {
		return nil, err
	}
	if err := st.SignWith(in.kp); err != nil {
		return nil, err
	}

	counterparties := st.Missing()
	sessions := make(map[identity.PubKey]Session, len(counterparties))
	var distribute []Session
	for _, key := range counterparties {
		if in.dial == nil {
			return nil, fmt.Errorf("%w: no dialer for counterparty %s", ErrSessionTimeout, key)
		}
		session, err := in.dial(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: dialing %s: %v", ErrSessionTimeout, key, err)
		}
		sessions[key] = session
		distribute = append(distribute, session)
	}
	if len(counterparties) > 0 {
		collector := NewCollector(st, sessions, in.timeout, in.log)
		if err := collector.Run(ctx); err != nil {
			return nil, err
		}
	}
	return Finalize(ctx, st, in.svc, distribute, in.vault, in.log)
}

// IssueUnits self-issues fungible units to the initiator's identity. Used
// to bootstrap a spendable pool.
func (in *Initiator) IssueUnits(ctx context.Context, asset string, amounts []*big.Int) (*txn.Commit, error) {
	b := txn.NewBuilder().WithNotary(in.notaryParty)
	for _, amt := range amounts {
		b.AddOutput(&ledger.FungibleUnit{Asset: asset, Amount: amt, Holder: in.anon()})
	}
	b.AddCommand(txn.Command{Tag: txn.TagUnitIssue, Signers: []identity.PubKey{in.kp.Public()}})
	t, err := b.Build()
	if err != nil {
		return nil, err
	}
	return in.runFlow(ctx, t)
}

// IssueObligation creates an obligation from the initiator to holder. The
// holder co-signs and receives the record at finality.
func (in *Initiator) IssueObligation(ctx context.Context, holder identity.AnonymousParty, asset string, amount *big.Int) (*txn.Commit, error) {
	o := ledger.NewObligation(in.anon(), holder, asset, amount)
	t, err := txn.NewBuilder().
		WithNotary(in.notaryParty).
		AddOutput(o).
		AddCommand(txn.Command{Tag: txn.TagObligationIssue, Signers: []identity.PubKey{in.kp.Public(), holder.Key}}).
		Build()
	if err != nil {
		return nil, err
	}
	return in.runFlow(ctx, t)
}

// buildSettlement allocates payment units against the current snapshot and
// assembles the settlement transition for one obligation.
func (in *Initiator) buildSettlement(sr ledger.StateAndRef) (*txn.Transition, error) {
	o, ok := sr.State.(*ledger.Obligation)
	if !ok {
		return nil, fmt.Errorf("expected obligation, got %s", sr.State.Kind())
	}
	pool := in.vault.Query(ledger.KindFungible, nil)
	move, err := allocate.GenerateMove(o.Asset, []allocate.Payment{{Recipient: o.Holder, Amount: o.Amount}}, pool, in.anon())
	if err != nil {
		return nil, err
	}
	return txn.NewBuilder().
		AddInput(sr).
		AddCommand(txn.Command{Tag: txn.TagObligationSettle, Signers: []identity.PubKey{o.Obligor.Key, o.Holder.Key}}).
		AddMove(move, txn.Command{Tag: txn.TagUnitMove, Signers: []identity.PubKey{in.kp.Public()}}).
		Build()
}

// SettleObligation pays one obligation. A stale-view rejection discards the
// transition and rebuilds a fresh one from a fresh snapshot, up to the
// configured attempt bound.
func (in *Initiator) SettleObligation(ctx context.Context, sr ledger.StateAndRef) (*txn.Commit, error) {
	var lastErr error
	for attempt := 1; attempt <= in.attempts; attempt++ {
		t, err := in.buildSettlement(sr)
		if err != nil {
			return nil, err
		}
		commit, err := in.runFlow(ctx, t)
		if err == nil {
			return commit, nil
		}
		lastErr = err
		if !errors.Is(err, ErrNotarizationRejected) {
			return nil, err
		}
		// The snapshot was stale. Re-query; the obligation itself may have
		// been settled by a competing transition in the meantime.
		in.log.Warn().
			Str("linear_id", obligationID(sr)).
			Int("attempt", attempt).
			Err(err).
			Msg("rejected by ordering authority, rebuilding from fresh snapshot")
		fresh, ok := in.vault.Unconsumed(sr.Ref)
		if !ok {
			return nil, fmt.Errorf("obligation no longer unconsumed: %w", err)
		}
		sr = fresh
	}
	return nil, lastErr
}

func obligationID(sr ledger.StateAndRef) string {
	if o, ok := sr.State.(*ledger.Obligation); ok {
		return o.LinearID.String()
	}
	return sr.Ref.String()
}

// PayResult reports the outcome for one obligation in a batch.
type PayResult struct {
	Obligation *ledger.Obligation
	Commit     *txn.Commit
	Err        error
}

// PayObligations settles every unpaid obligation owed by this party. Each
// obligation runs as an independent transition; failures are reported per
// record and do not abort the batch.
func (in *Initiator) PayObligations(ctx context.Context) []PayResult {
	owed := in.vault.Query(ledger.KindObligation, func(s ledger.State) bool {
		return s.(*ledger.Obligation).Obligor.Key == in.kp.Public()
	})
	results := make([]PayResult, len(owed))

	var g errgroup.Group
	g.SetLimit(in.maxInFlight)
	for i, sr := range owed {
		i, sr := i, sr
		results[i].Obligation = sr.State.(*ledger.Obligation)
		g.Go(func() error {
			commit, err := in.SettleObligation(ctx, sr)
			results[i].Commit = commit
			results[i].Err = err
			return nil
		})
	}
	g.Wait()
	return results
}
