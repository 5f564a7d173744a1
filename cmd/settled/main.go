// main.go - Two-party settlement scenario over the HTTP transport.
//
// This demonstrates the complete obligation lifecycle between two nodes:
//   - an obligor node self-issues a pool of fungible units
//   - the obligor issues a batch of obligations to a holder, who co-signs each
//   - the obligor then pays every outstanding obligation concurrently
//   - the holder reviews, signs and applies each commit to its own vault
//
// Usage:
//   go run ./cmd/settled
//
// Architecture:
//   - Both parties run a p2p.Node and converse through per-flow sessions
//   - The ordering authority runs in-process (notary.InMemory)
//   - Each party maintains an independent vault; finality is the only
//     point where vaults change

package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/rs/zerolog"

	"settlement/internal/flows"
	"settlement/internal/identity"
	"settlement/internal/ledger"
	"settlement/internal/notary"
	"settlement/internal/txn"
	"settlement/p2p"
)

const version = "1.0.0"

func main() {
	cfg, err := LoadConfig("settled.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, closeLog, err := NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("scenario failed")
	}
}

func run(cfg *Config, log zerolog.Logger) error {
	ctx := context.Background()
	metrics := NewMetricsCollector()
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	// 1. Identities: obligor, holder and the ordering authority.
	obligorKP, err := identity.GenerateKeyPair()
	if err != nil {
		return err
	}
	holderKP, err := identity.GenerateKeyPair()
	if err != nil {
		return err
	}
	notaryKP, err := identity.GenerateKeyPair()
	if err != nil {
		return err
	}

	directory := identity.NewRegistry()
	directory.Register(obligorKP.Anonymous(), obligorKP.Party("Acme Corp"))
	directory.Register(holderKP.Anonymous(), holderKP.Party("Shareholder"))
	directory.Register(notaryKP.Anonymous(), notaryKP.Party("Notary"))

	svc := notary.NewInMemory("Notary", notaryKP)

	// 2. Transport: two nodes, peer directory filled in once both listen.
	obligorNode := p2p.NewNode("obligor", cfg.IssuerAddr, map[string]string{}, log)
	holderNode := p2p.NewNode("holder", cfg.HolderAddr, map[string]string{}, log)
	if err := obligorNode.Start(); err != nil {
		return err
	}
	defer obligorNode.Close()
	if err := holderNode.Start(); err != nil {
		return err
	}
	defer holderNode.Close()
	obligorNode.Peers["holder"] = holderNode.Address
	holderNode.Peers["obligor"] = obligorNode.Address

	// 3. Vaults and the shared contract registry.
	obligorVault := ledger.NewVault(obligorKP.Public())
	holderVault := ledger.NewVault(holderKP.Public())
	reg := txn.DefaultRegistry()

	// 4. Holder side: review every inbound proposal. A settlement must pay
	// the holder in exactly one output unit; issuances are accepted as-is.
	responder := flows.NewResponder(holderKP, reg, holderVault, flows.AcceptExactlyOneUnit(holderKP.Public()), timeout, log.With().Str("role", "holder").Logger())
	go func() {
		for session := range holderNode.Inbound() {
			go func(s *p2p.Session) {
				if _, err := responder.Respond(ctx, s); err != nil {
					log.Warn().Err(err).Msg("holder refused or failed a proposal")
				}
			}(session)
		}
	}()

	// 5. Obligor side: the initiator drives every flow.
	initiator, err := flows.NewInitiator(flows.InitiatorConfig{
		Keys:        obligorKP,
		Vault:       obligorVault,
		Registry:    reg,
		Notary:      svc,
		NotaryParty: svc.Party(),
		Dial: func(ctx context.Context, key identity.PubKey) (flows.Session, error) {
			if key != holderKP.Public() {
				return nil, fmt.Errorf("no route to counterparty %s", key)
			}
			return obligorNode.Open("holder")
		},
		Timeout:     timeout,
		Attempts:    cfg.Attempts,
		MaxInFlight: cfg.MaxInFlight,
		Log:         log.With().Str("role", "obligor").Logger(),
	})
	if err != nil {
		return err
	}

	health := NewHealthChecker(version)
	health.RegisterComponent("vault", func() error {
		if len(obligorVault.Query(ledger.KindFungible, nil)) == 0 {
			return fmt.Errorf("no spendable units in the vault")
		}
		return nil
	})
	health.RegisterComponent("notary", func() error {
		if svc.Party().Key == "" {
			return fmt.Errorf("ordering authority has no key")
		}
		return nil
	})
	health.RegisterComponent("transport", func() error {
		if obligorNode.Address == "" {
			return fmt.Errorf("node is not listening")
		}
		if _, ok := obligorNode.Peers["holder"]; !ok {
			return fmt.Errorf("holder peer is not registered")
		}
		return nil
	})

	// 6. Bootstrap a spendable pool.
	amounts := make([]*big.Int, cfg.IssueUnits)
	for i := range amounts {
		amounts[i] = big.NewInt(cfg.IssueAmount)
	}
	metrics.IncrementCounter(MetricTransitionsBuilt)
	start := time.Now()
	commit, err := initiator.IssueUnits(ctx, cfg.Asset, amounts)
	if err != nil {
		return fmt.Errorf("unit issuance failed: %w", err)
	}
	metrics.RecordCommit(time.Since(start))
	log.Info().Str("tx_id", string(commit.TxID)).Int("units", cfg.IssueUnits).Msg("pool issued")

	// 7. Issue the obligations. The holder co-signs each one.
	holder := identity.AnonymousParty{Key: holderKP.Public()}
	for i := 0; i < cfg.ObligationCount; i++ {
		metrics.IncrementCounter(MetricTransitionsBuilt)
		start := time.Now()
		commit, err := initiator.IssueObligation(ctx, holder, cfg.Asset, big.NewInt(cfg.ObligationAmount))
		if err != nil {
			return fmt.Errorf("obligation issuance failed: %w", err)
		}
		metrics.RecordCommit(time.Since(start))
		log.Info().Str("tx_id", string(commit.TxID)).Msg("obligation issued")
	}

	// 8. Pay everything owed.
	batchStart := time.Now()
	results := initiator.PayObligations(ctx)
	metrics.RecordDuration(MetricFlowDuration, time.Since(batchStart))
	for _, res := range results {
		metrics.IncrementCounter(MetricTransitionsBuilt)
		holderName := res.Obligation.Holder.Key.Short()
		if p, err := directory.Resolve(res.Obligation.Holder); err == nil {
			holderName = p.Name
		}
		if res.Err != nil {
			metrics.RecordAbort()
			metrics.RecordError("settlement")
			log.Error().
				Str("linear_id", res.Obligation.LinearID.String()).
				Str("holder", holderName).
				Err(res.Err).
				Msg("settlement failed")
			continue
		}
		metrics.IncrementCounter(MetricTransitionsCommitted)
		log.Info().
			Str("linear_id", res.Obligation.LinearID.String()).
			Str("holder", holderName).
			Str("tx_id", string(res.Commit.TxID)).
			Msg("obligation settled")
	}

	// 9. Report.
	unpaid := obligorVault.Query(ledger.KindObligation, nil)
	received := holderVault.Query(ledger.KindFungible, nil)
	metrics.SetGauge(MetricUnpaidObligations, float64(len(unpaid)))
	log.Info().
		Int("unpaid_obligations", len(unpaid)).
		Int("holder_units", len(received)).
		Int64("committed", metrics.Counter(MetricTransitionsCommitted)).
		Msg("scenario complete")

	h := health.CheckHealth()
	log.Info().Str("status", string(h.OverallStatus)).Dur("uptime", h.Uptime).Msg("health")
	log.Info().Interface("metrics", metrics.Summary()).Msg("metrics")
	return nil
}
