package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/identity"
)

var (
	alice     = identity.AnonymousParty{Key: "alice-key"}
	bob       = identity.AnonymousParty{Key: "bob-key"}
	authority = identity.Party{Name: "Notary", Key: "notary-key"}
)

func mustWrap(t *testing.T, s State) Envelope {
	t.Helper()
	env, err := Wrap(s)
	require.NoError(t, err)
	return env
}

func TestVaultApplyStoresRelevantStates(t *testing.T) {
	v := NewVault(alice.Key)
	unit := &FungibleUnit{Asset: "USD", Amount: big.NewInt(50), Holder: alice}
	foreign := &FungibleUnit{Asset: "USD", Amount: big.NewInt(99), Holder: bob}

	err := v.Apply("tx1", nil, []Envelope{mustWrap(t, unit), mustWrap(t, foreign)}, authority)
	require.NoError(t, err)

	got := v.Query(KindFungible, nil)
	require.Len(t, got, 1)
	assert.Equal(t, Ref{TxID: "tx1", Index: 0}, got[0].Ref)
	assert.Equal(t, authority, got[0].Notary)
	assert.Equal(t, big.NewInt(50), got[0].State.(*FungibleUnit).Amount)
}

func TestVaultApplyRetiresConsumed(t *testing.T) {
	v := NewVault(alice.Key)
	unit := &FungibleUnit{Asset: "USD", Amount: big.NewInt(50), Holder: alice}
	require.NoError(t, v.Apply("tx1", nil, []Envelope{mustWrap(t, unit)}, authority))

	ref := Ref{TxID: "tx1", Index: 0}
	_, ok := v.Unconsumed(ref)
	require.True(t, ok)

	moved := &FungibleUnit{Asset: "USD", Amount: big.NewInt(50), Holder: bob}
	require.NoError(t, v.Apply("tx2", []Ref{ref}, []Envelope{mustWrap(t, moved)}, authority))

	_, ok = v.Unconsumed(ref)
	assert.False(t, ok)
	assert.Empty(t, v.Query(KindFungible, nil))
}

func TestVaultApplyIdempotent(t *testing.T) {
	v := NewVault(alice.Key)
	unit := &FungibleUnit{Asset: "USD", Amount: big.NewInt(50), Holder: alice}
	env := mustWrap(t, unit)

	require.NoError(t, v.Apply("tx1", nil, []Envelope{env}, authority))
	require.NoError(t, v.Apply("tx1", nil, []Envelope{env}, authority))

	assert.Len(t, v.Query(KindFungible, nil), 1)
}

func TestVaultApplyRejectsUndecodableOutput(t *testing.T) {
	v := NewVault(alice.Key)
	good := mustWrap(t, &FungibleUnit{Asset: "USD", Amount: big.NewInt(50), Holder: alice})
	bad := Envelope{Kind: "no-such-kind", Data: []byte(`{}`)}

	err := v.Apply("tx1", nil, []Envelope{good, bad}, authority)
	require.Error(t, err)
	// Nothing lands when any output is undecodable.
	assert.Empty(t, v.Query(KindFungible, nil))
}

func TestVaultAddBootstrapsView(t *testing.T) {
	v := NewVault(alice.Key)
	sr := StateAndRef{
		Ref:    Ref{TxID: "genesis", Index: 0},
		State:  &FungibleUnit{Asset: "USD", Amount: big.NewInt(100), Holder: alice},
		Notary: authority,
	}
	v.Add(sr)

	got, ok := v.Unconsumed(sr.Ref)
	require.True(t, ok)
	assert.Equal(t, sr, got)
	assert.Len(t, v.Query(KindFungible, nil), 1)
}

func TestVaultQueryFilterAndOrder(t *testing.T) {
	v := NewVault(alice.Key)
	small := mustWrap(t, &FungibleUnit{Asset: "USD", Amount: big.NewInt(10), Holder: alice})
	large := mustWrap(t, &FungibleUnit{Asset: "USD", Amount: big.NewInt(90), Holder: alice})
	require.NoError(t, v.Apply("tx2", nil, []Envelope{small}, authority))
	require.NoError(t, v.Apply("tx1", nil, []Envelope{large}, authority))

	all := v.Query(KindFungible, nil)
	require.Len(t, all, 2)
	assert.Equal(t, TxID("tx1"), all[0].Ref.TxID)
	assert.Equal(t, TxID("tx2"), all[1].Ref.TxID)

	big90 := v.Query(KindFungible, func(s State) bool {
		return s.(*FungibleUnit).Amount.Cmp(big.NewInt(50)) > 0
	})
	require.Len(t, big90, 1)
	assert.Equal(t, TxID("tx1"), big90[0].Ref.TxID)
}

func TestVaultChainAuditsLinearRecord(t *testing.T) {
	v := NewVault(alice.Key, bob.Key)
	o := NewObligation(alice, bob, "USD", big.NewInt(40))

	require.NoError(t, v.Apply("tx1", nil, []Envelope{mustWrap(t, o)}, authority))
	require.NoError(t, v.Apply("tx2", []Ref{{TxID: "tx1", Index: 0}}, nil, authority))

	assert.Equal(t, []TxID{"tx1", "tx2"}, v.Chain(o.LinearID))
}

func TestVaultAddKeyExtendsRelevance(t *testing.T) {
	v := NewVault(alice.Key)
	fresh := identity.AnonymousParty{Key: "alice-fresh-key"}
	unit := mustWrap(t, &FungibleUnit{Asset: "USD", Amount: big.NewInt(5), Holder: fresh})

	require.NoError(t, v.Apply("tx1", nil, []Envelope{unit}, authority))
	assert.Empty(t, v.Query(KindFungible, nil))

	v.AddKey(fresh.Key)
	require.NoError(t, v.Apply("tx2", nil, []Envelope{unit}, authority))
	assert.Len(t, v.Query(KindFungible, nil), 1)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	o := NewObligation(alice, bob, "USD", big.NewInt(40))
	env, err := Wrap(o)
	require.NoError(t, err)
	assert.Equal(t, KindObligation, env.Kind)

	s, err := env.Unwrap()
	require.NoError(t, err)
	got, ok := s.(*Obligation)
	require.True(t, ok)
	assert.Equal(t, o.LinearID, got.LinearID)
	assert.Equal(t, o.Amount, got.Amount)
	assert.Equal(t, []identity.PubKey{alice.Key, bob.Key}, got.ParticipantKeys())
}

func TestEnvelopeUnknownKind(t *testing.T) {
	_, err := Envelope{Kind: "mystery", Data: []byte(`{}`)}.Unwrap()
	assert.Error(t, err)
}
