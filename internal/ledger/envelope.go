// envelope.go - Tagged JSON codec for heterogeneous ledger states.
//
// Transitions and commits carry states over the wire inside a kind-tagged
// envelope, so every party decodes the exact bytes it later verifies and
// signs. Decoders are registered per kind, not dispatched via subclassing.

package ledger

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Envelope is the wire form of a State.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

var (
	decoderMu sync.RWMutex
	decoders  = make(map[string]func([]byte) (State, error))
)

// RegisterKind installs a decoder for a state kind. Later registrations for
// the same kind replace earlier ones.
func RegisterKind(kind string, decode func([]byte) (State, error)) {
	decoderMu.Lock()
	defer decoderMu.Unlock()
	decoders[kind] = decode
}

func init() {
	RegisterKind(KindObligation, func(b []byte) (State, error) {
		var o Obligation
		if err := json.Unmarshal(b, &o); err != nil {
			return nil, err
		}
		return &o, nil
	})
	RegisterKind(KindFungible, func(b []byte) (State, error) {
		var u FungibleUnit
		if err := json.Unmarshal(b, &u); err != nil {
			return nil, err
		}
		return &u, nil
	})
}

// Wrap encodes a state into its envelope.
func Wrap(s State) (Envelope, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return Envelope{}, fmt.Errorf("state encoding failed: %w", err)
	}
	return Envelope{Kind: s.Kind(), Data: data}, nil
}

// Unwrap decodes the enveloped state through the kind registry.
func (e Envelope) Unwrap() (State, error) {
	decoderMu.RLock()
	decode, ok := decoders[e.Kind]
	decoderMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder registered for state kind %q", e.Kind)
	}
	return decode(e.Data)
}
