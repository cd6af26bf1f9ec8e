package srv

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kasperdoggames/crypto-jumper/server/config"
	"github.com/kasperdoggames/crypto-jumper/shared/protocol"
)

// recorder is a peer that keeps every envelope it is sent.
type recorder struct {
	mu   sync.Mutex
	msgs []protocol.MsgEnvelope
}

func (r *recorder) deliver(b []byte) bool {
	var env protocol.MsgEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return false
	}
	r.mu.Lock()
	r.msgs = append(r.msgs, env)
	r.mu.Unlock()
	return true
}

func (r *recorder) ofType(typ string) []protocol.MsgEnvelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.MsgEnvelope
	for _, m := range r.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) count(typ string) int { return len(r.ofType(typ)) }

// last decodes the newest envelope of typ into v.
func (r *recorder) last(t *testing.T, typ string, v interface{}) protocol.MsgEnvelope {
	t.Helper()
	msgs := r.ofType(typ)
	require.NotEmpty(t, msgs, "no %s received", typ)
	m := msgs[len(msgs)-1]
	require.NoError(t, json.Unmarshal(m.Data, v))
	return m
}

type recordingSettler struct {
	mu    sync.Mutex
	terms []Termination
}

func (s *recordingSettler) Settle(t Termination) {
	s.mu.Lock()
	s.terms = append(s.terms, t)
	s.mu.Unlock()
}

func (s *recordingSettler) all() []Termination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Termination(nil), s.terms...)
}

func newTestHub(t *testing.T, mutate ...func(*Options)) *Hub {
	t.Helper()
	opts := Options{
		Levels:           []string{"lava", "ice"},
		Capacity:         protocol.MaxRoomPlayers,
		CountdownSeconds: 3,
		CountdownMode:    config.CountdownModeClient,
		CountdownTick:    2 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewHub(opts, zerolog.Nop())
}

func wallet(n byte) string {
	return common.BytesToAddress([]byte{0xaa, n}).Hex()
}

func connect(h *Hub, wallet string) (string, *recorder) {
	rec := &recorder{}
	return h.connect(rec, wallet), rec
}

func send(t *testing.T, h *Hub, connID, typ string, v interface{}) error {
	t.Helper()
	b, err := protocol.Encode(typ, "", v)
	require.NoError(t, err)
	return h.dispatch(connID, b)
}

func requestSlot(t *testing.T, h *Hub, connID, level string) {
	t.Helper()
	require.NoError(t, send(t, h, connID, protocol.TypeRequestSlot, protocol.RequestSlot{Level: level}))
}

func roomOf(h *Hub, connID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.assignedRoomLocked(connID)
	if err != nil {
		return nil
	}
	return r
}

func stateOf(h *Hub, r *Room) Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return r.state
}

func roomIDs(h *Hub, level string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []string
	for _, r := range h.levels[level].all() {
		ids = append(ids, r.GameID)
	}
	return ids
}

func rosterOf(h *Hub, r *Room) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []string
	for _, p := range r.players {
		ids = append(ids, p.ConnID)
	}
	return ids
}

func queued(h *Hub, level string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []string
	for _, p := range h.queues[level].items {
		ids = append(ids, p.ConnID)
	}
	return ids
}

// startRoom drives the client countdown of r to zero from its timekeeper.
func startRoom(t *testing.T, h *Hub, timekeeper string) {
	t.Helper()
	for c := 3; c >= -1; c-- {
		require.NoError(t, send(t, h, timekeeper, protocol.TypeCountdown, protocol.Countdown{Counter: c}))
	}
}
