package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/flows"
)

// setupPair starts two connected nodes on ephemeral ports.
func setupPair(t *testing.T) (*Node, *Node) {
	t.Helper()
	a := NewNode("A", "127.0.0.1:0", map[string]string{}, zerolog.Nop())
	b := NewNode("B", "127.0.0.1:0", map[string]string{}, zerolog.Nop())
	require.NoError(t, a.Start())
	require.NoError(t, b.Start())
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	a.Peers["B"] = b.Address
	b.Peers["A"] = a.Address
	return a, b
}

func textMessage(body string) flows.Message {
	return flows.Message{
		Type:    flows.MsgSignRequest,
		Payload: json.RawMessage(fmt.Sprintf("%q", body)),
	}
}

func awaitInbound(t *testing.T, n *Node) *Session {
	t.Helper()
	select {
	case s := <-n.Inbound():
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for inbound session")
		return nil
	}
}

func TestSessionRoundTrip(t *testing.T) {
	a, b := setupPair(t)
	ctx := context.Background()

	out, err := a.Open("B")
	require.NoError(t, err)
	require.NoError(t, out.Send(ctx, textMessage("hello")))

	in := awaitInbound(t, b)
	assert.Equal(t, "A", in.PeerID)
	got, err := in.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, flows.MsgSignRequest, got.Type)

	// The reply routes back over the same session.
	require.NoError(t, in.Send(ctx, textMessage("hi yourself")))
	reply, err := out.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"hi yourself"`), reply.Payload)
}

func TestSessionDeliversInOrder(t *testing.T) {
	a, b := setupPair(t)
	ctx := context.Background()

	out, err := a.Open("B")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, out.Send(ctx, textMessage(fmt.Sprintf("m%d", i))))
	}

	in := awaitInbound(t, b)
	for i := 0; i < 5; i++ {
		got, err := in.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage(fmt.Sprintf("%q", fmt.Sprintf("m%d", i))), got.Payload)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	a, b := setupPair(t)
	ctx := context.Background()

	s1, err := a.Open("B")
	require.NoError(t, err)
	s2, err := a.Open("B")
	require.NoError(t, err)

	require.NoError(t, s1.Send(ctx, textMessage("one")))
	require.NoError(t, s2.Send(ctx, textMessage("two")))

	first := awaitInbound(t, b)
	second := awaitInbound(t, b)
	require.NotEqual(t, first.ID, second.ID)

	got := map[string]bool{}
	for _, in := range []*Session{first, second} {
		m, err := in.Receive(ctx)
		require.NoError(t, err)
		got[string(m.Payload)] = true
	}
	assert.True(t, got[`"one"`])
	assert.True(t, got[`"two"`])
}

func TestInboundAnnouncedOnce(t *testing.T) {
	a, b := setupPair(t)
	ctx := context.Background()

	out, err := a.Open("B")
	require.NoError(t, err)
	require.NoError(t, out.Send(ctx, textMessage("first")))
	require.NoError(t, out.Send(ctx, textMessage("second")))

	awaitInbound(t, b)
	select {
	case s := <-b.Inbound():
		t.Fatalf("session %s announced twice", s.ID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestReceiveHonoursDeadline(t *testing.T) {
	a, _ := setupPair(t)
	out, err := a.Open("B")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = out.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenUnknownPeer(t *testing.T) {
	a, _ := setupPair(t)
	_, err := a.Open("nobody")
	assert.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, 1, 50*time.Millisecond)
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	time.Sleep(120 * time.Millisecond)
	assert.True(t, rl.Allow())
}
