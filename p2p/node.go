// node.go - HTTP message node carrying protocol sessions between parties.
//
// Each node exposes a single inbox endpoint. Messages belong to sessions;
// messages within one session are delivered FIFO through a buffered channel,
// sessions are independent of each other. The first message bearing an
// unknown session id creates an inbound session and announces it on
// Inbound().

package p2p

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"settlement/internal/flows"
)

const sessionBuffer = 16

// Node is a participant endpoint in the network.
type Node struct {
	ID      string
	Address string
	Peers   map[string]string // node ID -> address

	server  *http.Server
	client  *http.Client
	limiter *RateLimiter
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	inbound  chan *Session
	closed   bool
}

// NewNode creates and initializes a new Node.
func NewNode(id, address string, peers map[string]string, log zerolog.Logger) *Node {
	return &Node{
		ID:       id,
		Address:  address,
		Peers:    peers,
		client:   &http.Client{Timeout: 5 * time.Second},
		limiter:  NewRateLimiter(256, 64, 100*time.Millisecond),
		log:      log.With().Str("node", id).Logger(),
		sessions: make(map[uuid.UUID]*Session),
		inbound:  make(chan *Session, sessionBuffer),
	}
}

// Session is one FIFO conversation with a peer. It implements
// flows.Session.
type Session struct {
	ID     uuid.UUID
	PeerID string

	node  *Node
	inbox chan flows.Message
}

// Send posts a protocol message to the peer under this session.
func (s *Session) Send(ctx context.Context, m flows.Message) error {
	env := Envelope{
		SessionID: s.ID,
		SenderID:  s.node.ID,
		Type:      string(m.Type),
		Payload:   m.Payload,
	}
	return s.node.post(ctx, s.PeerID, env)
}

// Receive blocks for the next message in this session, bounded by the
// context deadline.
func (s *Session) Receive(ctx context.Context) (flows.Message, error) {
	select {
	case m := <-s.inbox:
		return m, nil
	case <-ctx.Done():
		return flows.Message{}, ctx.Err()
	}
}

// Open starts a new outbound session with the target peer.
func (n *Node) Open(peerID string) (*Session, error) {
	if _, ok := n.Peers[peerID]; !ok {
		return nil, fmt.Errorf("peer %q not found in directory", peerID)
	}
	s := &Session{
		ID:     uuid.New(),
		PeerID: peerID,
		node:   n,
		inbox:  make(chan flows.Message, sessionBuffer),
	}
	n.mu.Lock()
	n.sessions[s.ID] = s
	n.mu.Unlock()
	return s, nil
}

// Inbound announces sessions opened by remote peers.
func (n *Node) Inbound() <-chan *Session {
	return n.inbound
}

// Start begins serving on the node's address. It returns once the listener
// is active.
func (n *Node) Start() error {
	r := mux.NewRouter()
	r.HandleFunc("/v1/message", n.handleMessage).Methods(http.MethodPost)

	n.server = &http.Server{Addr: n.Address, Handler: r}
	listener, err := net.Listen("tcp", n.Address)
	if err != nil {
		return fmt.Errorf("listen on %s failed: %w", n.Address, err)
	}
	// Kept for peers configured with port 0.
	n.Address = listener.Addr().String()

	go func() {
		n.log.Info().Str("addr", n.Address).Msg("node serving")
		if err := n.server.Serve(listener); err != http.ErrServerClosed {
			n.log.Error().Err(err).Msg("server failed")
		}
	}()
	return nil
}

// Close shuts the node down.
func (n *Node) Close() error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	if n.server != nil {
		return n.server.Close()
	}
	return nil
}

// handleMessage is the HTTP handler for the inbox endpoint.
func (n *Node) handleMessage(w http.ResponseWriter, r *http.Request) {
	if !n.limiter.Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		n.log.Warn().Err(err).Msg("received a bad request")
		return
	}
	if env.SessionID == uuid.Nil {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	s, known := n.sessions[env.SessionID]
	if !known {
		if n.closed {
			n.mu.Unlock()
			http.Error(w, "node closed", http.StatusServiceUnavailable)
			return
		}
		s = &Session{
			ID:     env.SessionID,
			PeerID: env.SenderID,
			node:   n,
			inbox:  make(chan flows.Message, sessionBuffer),
		}
		n.sessions[env.SessionID] = s
	}
	n.mu.Unlock()

	msg := flows.Message{Type: flows.MessageType(env.Type), Payload: env.Payload}
	select {
	case s.inbox <- msg:
	default:
		http.Error(w, "session inbox full", http.StatusServiceUnavailable)
		return
	}
	if !known {
		select {
		case n.inbound <- s:
		default:
			n.log.Warn().Str("session", s.ID.String()).Msg("inbound session queue full, dropping announce")
		}
	}

	n.log.Debug().
		Str("type", env.Type).
		Str("from", env.SenderID).
		Str("session", env.SessionID.String()).
		Msg("message received")
	w.WriteHeader(http.StatusOK)
}

// post delivers an envelope to a peer's inbox endpoint.
func (n *Node) post(ctx context.Context, peerID string, env Envelope) error {
	addr, ok := n.Peers[peerID]
	if !ok {
		return fmt.Errorf("peer %q not found in directory", peerID)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+"/v1/message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer returned non-OK status: %s", resp.Status)
	}
	return nil
}
