package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// digest returns a canonical 32-byte scalar for signing tests.
func digest(b byte) []byte {
	d := make([]byte, 32)
	d[31] = b
	return d
}

func TestSignAndVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	d := digest(7)
	sig, err := kp.Sign(d)
	require.NoError(t, err)

	assert.NoError(t, Verify(kp.Public(), sig, d))
}

func TestVerifyRejectsTamperedDigest(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	sig, err := kp.Sign(digest(7))
	require.NoError(t, err)

	err = Verify(kp.Public(), sig, digest(8))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	d := digest(7)
	sig, err := alice.Sign(d)
	require.NoError(t, err)

	assert.ErrorIs(t, Verify(bob.Public(), sig, d), ErrBadSignature)
}

func TestVerifyRejectsMalformedKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	sig, err := kp.Sign(digest(7))
	require.NoError(t, err)

	assert.Error(t, Verify("not-hex", sig, digest(7)))
}

func TestRegistryResolve(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	reg := NewRegistry()
	reg.Register(kp.Anonymous(), kp.Party("Acme Corp"))

	p, err := reg.Resolve(kp.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", p.Name)
	assert.Equal(t, kp.Public(), p.Key)
}

func TestRegistryUnknownIdentity(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Resolve(AnonymousParty{Key: "nobody"})
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}

func TestPubKeyShort(t *testing.T) {
	assert.Equal(t, "deadbeef", PubKey("deadbeef00112233").Short())
	assert.Equal(t, "ab", PubKey("ab").Short())
}
