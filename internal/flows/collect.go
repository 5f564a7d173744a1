// collect.go - Signature collection state machine, initiator side.
//
// Built -> AwaitingSignatures -> FullySigned | Aborted. The proposal goes to
// every required counterparty concurrently; signatures arrive in any order;
// a single refusal, timeout or failed session aborts the whole transition.
// There is no partial commit.

package flows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"settlement/internal/identity"
	"settlement/internal/txn"
)

// Stage is the observable state of one transition's commitment workflow.
type Stage int32

const (
	StageBuilt Stage = iota
	StageAwaitingSignatures
	StageFullySigned
	StageAborted
)

func (s Stage) String() string {
	switch s {
	case StageBuilt:
		return "built"
	case StageAwaitingSignatures:
		return "awaiting_signatures"
	case StageFullySigned:
		return "fully_signed"
	case StageAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Collector drives signature collection for one transition.
type Collector struct {
	st       *txn.SignedTransition
	sessions map[identity.PubKey]Session
	timeout  time.Duration
	log      zerolog.Logger

	mu    sync.Mutex
	stage Stage
}

// NewCollector prepares collection for st. sessions maps each required
// counterparty key to its open session; timeout bounds every round trip.
func NewCollector(st *txn.SignedTransition, sessions map[identity.PubKey]Session, timeout time.Duration, log zerolog.Logger) *Collector {
	return &Collector{
		st:       st,
		sessions: sessions,
		timeout:  timeout,
		stage:    StageBuilt,
		log:      log,
	}
}

// Stage reports the current state machine stage.
func (c *Collector) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

func (c *Collector) setStage(s Stage) {
	c.mu.Lock()
	c.stage = s
	c.mu.Unlock()
}

// Run proposes the transition and waits for the full required-signer set.
// On success the transition is FullySigned; on any failure it is Aborted
// and must not be reused.
func (c *Collector) Run(ctx context.Context) error {
	missing := c.st.Missing()
	c.setStage(StageAwaitingSignatures)
	c.log.Debug().
		Str("tx_id", string(c.st.ID)).
		Int("awaiting", len(missing)).
		Msg("collecting signatures")

	// Freeze the proposal bytes before fanning out: every counterparty
	// reviews the identical initiator-signed transition, and no signature
	// arriving mid-flight leaks into a sibling's request.
	proposal, err := NewMessage(MsgSignRequest, SignRequest{Transition: c.st})
	if err != nil {
		c.setStage(StageAborted)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex // guards c.st signature list
	for _, key := range missing {
		session, ok := c.sessions[key]
		if !ok {
			c.setStage(StageAborted)
			return fmt.Errorf("%w: no session for required signer %s", ErrSessionTimeout, key)
		}
		key := key
		g.Go(func() error {
			sig, err := c.requestSignature(gctx, session, proposal)
			if err != nil {
				return fmt.Errorf("signer %s: %w", key, err)
			}
			if sig.Signer != key {
				return fmt.Errorf("signer %s answered for %s", sig.Signer, key)
			}
			mu.Lock()
			defer mu.Unlock()
			return c.st.AddSignature(*sig)
		})
	}
	if err := g.Wait(); err != nil {
		c.setStage(StageAborted)
		return err
	}
	if err := c.st.VerifySignatures(); err != nil {
		c.setStage(StageAborted)
		return err
	}
	c.setStage(StageFullySigned)
	c.log.Debug().Str("tx_id", string(c.st.ID)).Msg("fully signed")
	return nil
}

func (c *Collector) requestSignature(ctx context.Context, session Session, req Message) (*txn.Signature, error) {
	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := session.Send(sctx, req); err != nil {
		return nil, mapTimeout(err)
	}
	reply, err := session.Receive(sctx)
	if err != nil {
		return nil, mapTimeout(err)
	}
	var resp SignResponse
	if err := reply.Decode(MsgSignResponse, &resp); err != nil {
		return nil, err
	}
	if resp.Refused {
		return nil, &RefusedError{Reason: resp.Reason}
	}
	if resp.Signature == nil {
		return nil, errors.New("sign response carries neither signature nor refusal")
	}
	return resp.Signature, nil
}

func mapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrSessionTimeout, err)
	}
	return err
}
