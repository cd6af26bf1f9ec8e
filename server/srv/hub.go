// server/srv/hub.go
package srv

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kasperdoggames/crypto-jumper/server/config"
	"github.com/kasperdoggames/crypto-jumper/server/metrics"
	"github.com/kasperdoggames/crypto-jumper/shared/protocol"
)

type Options struct {
	Levels           []string
	Capacity         int
	CountdownSeconds int
	CountdownMode    string
	CountdownTick    time.Duration
}

// OptionsFromConfig picks the hub settings out of the server config.
func OptionsFromConfig(c config.Config) Options {
	return Options{
		Levels:           c.Levels,
		Capacity:         c.RoomCapacity,
		CountdownSeconds: c.CountdownSeconds,
		CountdownMode:    c.CountdownMode,
		CountdownTick:    c.CountdownTick,
	}
}

// Hub owns every room, queue and connection. One mutex serialises all
// handlers, so each runs to completion before the next starts.
type Hub struct {
	log  zerolog.Logger
	opts Options

	mu         sync.Mutex
	conns      *tracker
	levels     map[string]*levelRooms
	queues     map[string]*queue
	active     int
	generation uint64

	settler Settler
	board   *Leaderboard
}

func NewHub(opts Options, log zerolog.Logger) *Hub {
	if opts.Capacity <= 0 || opts.Capacity > protocol.MaxRoomPlayers {
		opts.Capacity = protocol.MaxRoomPlayers
	}
	if opts.CountdownTick <= 0 {
		opts.CountdownTick = protocol.CountdownTickMs * time.Millisecond
	}
	if opts.CountdownMode == "" {
		opts.CountdownMode = config.CountdownModeClient
	}
	h := &Hub{
		log:    log.With().Str("component", "hub").Logger(),
		opts:   opts,
		conns:  newTracker(),
		levels: make(map[string]*levelRooms),
		queues: make(map[string]*queue),
		board:  NewLeaderboard(),
	}
	for _, l := range opts.Levels {
		h.levels[l] = newLevelRooms()
		h.queues[l] = &queue{}
	}
	return h
}

// SetSettler wires the ledger bridge; main calls it before serving.
func (h *Hub) SetSettler(s Settler) { h.settler = s }

func (h *Hub) Leaderboard() *Leaderboard { return h.board }

// ActiveLevel is the level ledger joins land in.
func (h *Hub) ActiveLevel() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activeLevelLocked()
}

func (h *Hub) activeLevelLocked() string {
	if len(h.opts.Levels) == 0 {
		return ""
	}
	return h.opts.Levels[h.active]
}

// ---- ledger events

// HandleNewGame tells every connection a new session is forming.
func (h *Hub) HandleNewGame(gameID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.toAllLocked("", protocol.TypeNewGame, "", protocol.NewGame{RoomSet: h.activeLevelLocked(), GameID: gameID})
}

// HandleGameStarted starts every waiting room of the active level and resyncs
// all connections with the full rosters.
func (h *Hub) HandleGameStarted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	level := h.activeLevelLocked()
	rooms := h.levels[level]
	if rooms == nil {
		return
	}
	for _, r := range rooms.all() {
		if r.state == PhaseWaiting && len(r.live(h.conns.isLive)) > 0 {
			_ = h.transitionLocked(r, PhaseRunning, CauseLedger)
			r.clock.halt()
		}
	}
	for _, r := range rooms.all() {
		h.toAllLocked("", protocol.TypeGameData, r.Channel(), r.view(h.conns.isLive))
	}
}

// HandleGameFinished ends every room of the active level, moves on to the
// next level and pushes the leaderboard to everyone.
func (h *Hub) HandleGameFinished(lb protocol.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	level := h.activeLevelLocked()
	if rooms := h.levels[level]; rooms != nil {
		for _, r := range rooms.all() {
			if r.state != PhaseEnd {
				_ = h.transitionLocked(r, PhaseEnd, CauseLedger)
			}
			h.retireLocked(r)
		}
		if h.queues[level].len() > 0 {
			h.openRoomLocked(level, h.queues[level].popLive(h.opts.Capacity, h.conns.isLive))
		}
		h.observeLocked(level)
	}
	h.generation++
	if len(h.opts.Levels) > 0 {
		h.active = (h.active + 1) % len(h.opts.Levels)
	}
	h.log.Info().Str("finished", level).Str("active", h.activeLevelLocked()).Uint64("generation", h.generation).Msg("LEVEL rotate")
	h.toAllLocked("", protocol.TypeGameEnd, "", protocol.GameEnd{Leaderboard: lb})
}

// HandleLedgerJoin seats a wallet the contract accepted, on the active level.
func (h *Hub) HandleLedgerJoin(wallet, connID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.conns.player(connID)
	if !ok {
		return fmt.Errorf("ledger join %s: %w", connID, ErrNotAssigned)
	}
	if p.Wallet != "" && p.Wallet != wallet {
		h.log.Warn().Str("conn", connID).Str("had", p.Wallet).Str("ledger", wallet).Msg("wallet rebound by ledger")
	}
	h.conns.bindWallet(connID, wallet)
	return h.requestSlotLocked(p, h.activeLevelLocked())
}

// ---- transport

type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

func (c *client) deliver(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// connect registers a peer; wallet may be empty for anonymous connections.
func (h *Hub) connect(p peer, wallet string) string {
	id := protocol.NewID()
	h.mu.Lock()
	h.conns.connect(id, p, wallet)
	h.mu.Unlock()
	metrics.Connections.Inc()
	h.log.Info().Str("conn", id).Str("wallet", wallet).Msg("CONNECT")
	return id
}

// HandleWS serves one upgraded connection until it closes.
func (h *Hub) HandleWS(conn *websocket.Conn, wallet string) {
	c := &client{conn: conn, send: make(chan []byte, 64)}
	c.id = h.connect(c, wallet)
	go c.writer()
	c.reader(h)
}

func (c *client) reader(h *Hub) {
	defer func() {
		h.HandleDisconnect(c.id)
		c.conn.Close()
		// no hub path can reach c after HandleDisconnect
		close(c.send)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if err := h.dispatch(c.id, data); err != nil {
			h.log.Debug().Err(err).Str("conn", c.id).Msg("message ignored")
		}
	}
}

func (c *client) writer() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// dispatch decodes one client envelope and runs its handler.
func (h *Hub) dispatch(connID string, data []byte) error {
	var env protocol.MsgEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("bad envelope: %w", err)
	}
	switch env.Type {
	case protocol.TypeRequestSlot:
		var m protocol.RequestSlot
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("%s: %w", env.Type, err)
		}
		var err error
		wallet, ok := normalizeWallet(m.Wallet)
		if ok {
			err = h.RequestSlot(connID, m.Level, wallet)
		} else {
			err = fmt.Errorf("%s: bad wallet %q", env.Type, m.Wallet)
		}
		if err != nil {
			h.mu.Lock()
			h.toConnLocked(connID, protocol.TypeError, "", protocol.ErrorMsg{Message: err.Error()})
			h.mu.Unlock()
		}
		return err

	case protocol.TypePlayerUpdate:
		var m protocol.PlayerUpdate
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("%s: %w", env.Type, err)
		}
		return h.HandlePlayerUpdate(connID, m)

	case protocol.TypeCountdown:
		var m protocol.Countdown
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("%s: %w", env.Type, err)
		}
		return h.HandleCountdown(connID, m.Counter)

	case protocol.TypeGameUpdate:
		var m protocol.GameUpdate
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("%s: %w", env.Type, err)
		}
		return h.HandleGameUpdate(connID, m)

	case protocol.TypeDead:
		return h.HandleDeath(connID)

	case protocol.TypeCoinCollected:
		var m protocol.CoinCollected
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("%s: %w", env.Type, err)
		}
		return h.HandleCoinCollected(connID, m.ID)

	default:
		h.mu.Lock()
		h.toConnLocked(connID, protocol.TypeError, "", protocol.ErrorMsg{Message: "Unknown message type: " + env.Type})
		h.mu.Unlock()
		return fmt.Errorf("unknown message type %q", env.Type)
	}
}
