// identity.go - Party identities and signing keys for the settlement protocol.
//
// A well-known Party binds a legal name to a long-term EdDSA public key.
// An AnonymousParty is a one-time key with no embedded link back to the
// long-term identity; the link exists only inside a Registry held by the
// parties entitled to it.

package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/twistededwards/eddsa"
)

// PubKey is a hex-encoded EdDSA public key on the BLS12-377 twisted Edwards
// curve. It is the participant reference carried inside ledger records.
type PubKey string

// Short returns an abbreviated form of the key for log output.
func (k PubKey) Short() string {
	if len(k) <= 8 {
		return string(k)
	}
	return string(k[:8])
}

// ErrBadSignature is returned when a signature does not verify against the
// claimed key and digest.
var ErrBadSignature = errors.New("signature verification failed")

// Party is a well-known, long-term identity.
type Party struct {
	Name string `json:"name"`
	Key  PubKey `json:"key"`
}

// AnonymousParty is a one-time identity used as the actual record participant.
// It carries nothing but the key; resolution to a Party goes through a
// Resolver and is available only to entitled holders of the Registry.
type AnonymousParty struct {
	Key PubKey `json:"key"`
}

// KeyPair holds a private EdDSA key together with its public reference.
// The private half never leaves this struct.
type KeyPair struct {
	priv *eddsa.PrivateKey
	pub  PubKey
}

// GenerateKeyPair creates a fresh EdDSA keypair using crypto/rand.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := eddsa.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("eddsa keygen failed: %w", err)
	}
	return &KeyPair{
		priv: priv,
		pub:  PubKey(hex.EncodeToString(priv.PublicKey.Bytes())),
	}, nil
}

// Public returns the public key reference.
func (kp *KeyPair) Public() PubKey {
	return kp.pub
}

// Party wraps the public key as a well-known identity.
func (kp *KeyPair) Party(name string) Party {
	return Party{Name: name, Key: kp.pub}
}

// Anonymous wraps the public key as a one-time identity.
func (kp *KeyPair) Anonymous() AnonymousParty {
	return AnonymousParty{Key: kp.pub}
}

// Sign signs a canonical 32-byte digest. The digest must be a canonical
// BLS12-377 scalar field element, which is what txn.Transition digests are.
func (kp *KeyPair) Sign(digest []byte) ([]byte, error) {
	sig, err := kp.priv.Sign(digest, mimc.NewMiMC())
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	return sig, nil
}

// Verify checks sig over digest against the given public key.
func Verify(pub PubKey, sig, digest []byte) error {
	raw, err := hex.DecodeString(string(pub))
	if err != nil {
		return fmt.Errorf("malformed public key: %w", err)
	}
	var pk eddsa.PublicKey
	if _, err := pk.SetBytes(raw); err != nil {
		return fmt.Errorf("malformed public key: %w", err)
	}
	ok, err := pk.Verify(sig, digest, mimc.NewMiMC())
	if err != nil {
		return fmt.Errorf("signature verification errored: %w", err)
	}
	if !ok {
		return ErrBadSignature
	}
	return nil
}
