package notary

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/identity"
	"settlement/internal/ledger"
	"settlement/internal/txn"
)

func newAuthority(t *testing.T) *InMemory {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	return NewInMemory("Notary", kp)
}

// signedMove builds and fully signs a transition moving the given consumed
// unit reference to the signer.
func signedMove(t *testing.T, kp *identity.KeyPair, svc *InMemory, ref ledger.Ref, out int64) *txn.SignedTransition {
	t.Helper()
	holder := kp.Anonymous()
	tr, err := txn.NewBuilder().
		AddInput(ledger.StateAndRef{
			Ref:    ref,
			State:  &ledger.FungibleUnit{Asset: "USD", Amount: big.NewInt(out), Holder: holder},
			Notary: svc.Party(),
		}).
		AddOutput(&ledger.FungibleUnit{Asset: "USD", Amount: big.NewInt(out), Holder: holder}).
		AddCommand(txn.Command{Tag: txn.TagUnitMove, Signers: []identity.PubKey{kp.Public()}}).
		Build()
	require.NoError(t, err)

	st, err := txn.NewSignedTransition(tr)
	require.NoError(t, err)
	require.NoError(t, st.SignWith(kp))
	return st
}

func TestSubmitAcceptsAndOrders(t *testing.T) {
	svc := newAuthority(t)
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	first := signedMove(t, kp, svc, ledger.Ref{TxID: "tx1", Index: 0}, 10)
	commit, err := svc.Submit(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, first.ID, commit.TxID)
	assert.Equal(t, uint64(1), commit.Seq)
	assert.NotEmpty(t, commit.NotarySig)

	second := signedMove(t, kp, svc, ledger.Ref{TxID: "tx2", Index: 0}, 20)
	commit2, err := svc.Submit(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), commit2.Seq)
}

func TestSubmitFirstWinsOnConflict(t *testing.T) {
	svc := newAuthority(t)
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	ref := ledger.Ref{TxID: "tx1", Index: 0}
	winner := signedMove(t, kp, svc, ref, 10)
	loser := signedMove(t, kp, svc, ref, 11)

	_, err = svc.Submit(context.Background(), winner)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), loser)
	assert.ErrorIs(t, err, ErrDoubleSpend)

	// The loser's outcome is stable on resubmission.
	_, err = svc.Submit(context.Background(), loser)
	assert.ErrorIs(t, err, ErrDoubleSpend)
}

func TestSubmitRejectsMissingSignatures(t *testing.T) {
	svc := newAuthority(t)
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	st := signedMove(t, kp, svc, ledger.Ref{TxID: "tx1", Index: 0}, 10)
	st.Sigs = nil

	_, err = svc.Submit(context.Background(), st)
	require.Error(t, err)

	// An incompletely signed conflict retires nothing.
	retry := signedMove(t, kp, svc, ledger.Ref{TxID: "tx1", Index: 0}, 10)
	_, err = svc.Submit(context.Background(), retry)
	assert.NoError(t, err)
}

func TestSubmitRejectsForeignAuthority(t *testing.T) {
	svc := newAuthority(t)
	other := newAuthority(t)
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	st := signedMove(t, kp, other, ledger.Ref{TxID: "tx1", Index: 0}, 10)
	_, err = svc.Submit(context.Background(), st)
	assert.Error(t, err)
}

func TestSubmitHonoursContext(t *testing.T) {
	svc := newAuthority(t)
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := signedMove(t, kp, svc, ledger.Ref{TxID: "tx1", Index: 0}, 10)
	_, err = svc.Submit(ctx, st)
	assert.ErrorIs(t, err, context.Canceled)
}
