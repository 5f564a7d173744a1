// session.go - Counterparty sessions and protocol messages.
//
// A Session is one FIFO conversation with one counterparty. Receives carry
// an upper-bound timeout through the context: no step of the protocol waits
// forever. Messages use a typed envelope with a raw payload, so the state
// machines can be driven by a scripted message sequence in tests.

package flows

import (
	"context"
	"encoding/json"
	"fmt"

	"settlement/internal/txn"
)

// MessageType discriminates protocol payloads.
type MessageType string

const (
	// MsgSignRequest proposes an unsigned (initiator-signed only)
	// transition for counterparty review.
	MsgSignRequest MessageType = "sign_request"
	// MsgSignResponse carries the counterparty's signature or refusal.
	MsgSignResponse MessageType = "sign_response"
	// MsgCommit distributes the finalized, ordered transition.
	MsgCommit MessageType = "commit"
)

// Message is the generic envelope exchanged over a session.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Session is one FIFO channel to a counterparty. Implementations must make
// Receive honour the context deadline; there is no open-ended wait.
type Session interface {
	Send(ctx context.Context, m Message) error
	Receive(ctx context.Context) (Message, error)
}

// SignRequest is the payload of MsgSignRequest.
type SignRequest struct {
	Transition *txn.SignedTransition `json:"transition"`
}

// SignResponse is the payload of MsgSignResponse.
type SignResponse struct {
	Signature *txn.Signature `json:"signature,omitempty"`
	Refused   bool           `json:"refused,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// FinalityNotice is the payload of MsgCommit.
type FinalityNotice struct {
	Commit *txn.Commit `json:"commit"`
}

// NewMessage marshals payload into a typed envelope.
func NewMessage(t MessageType, payload interface{}) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("payload encoding failed: %w", err)
	}
	return Message{Type: t, Payload: raw}, nil
}

// Decode unmarshals the envelope payload after checking its type.
func (m Message) Decode(want MessageType, into interface{}) error {
	if m.Type != want {
		return fmt.Errorf("expected %s message, got %s", want, m.Type)
	}
	if err := json.Unmarshal(m.Payload, into); err != nil {
		return fmt.Errorf("payload decoding failed: %w", err)
	}
	return nil
}

// pipeSession is an in-memory Session half backed by two channels. Used by
// tests and single-process wiring.
type pipeSession struct {
	in  <-chan Message
	out chan<- Message
}

// Pipe returns two connected in-memory sessions: whatever one side sends,
// the other receives in FIFO order.
func Pipe(buffer int) (Session, Session) {
	ab := make(chan Message, buffer)
	ba := make(chan Message, buffer)
	return &pipeSession{in: ba, out: ab}, &pipeSession{in: ab, out: ba}
}

func (s *pipeSession) Send(ctx context.Context, m Message) error {
	select {
	case s.out <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *pipeSession) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-s.in:
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}
