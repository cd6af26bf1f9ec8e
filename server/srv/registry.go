package srv

import (
	"fmt"

	"github.com/kasperdoggames/crypto-jumper/server/metrics"
	"github.com/kasperdoggames/crypto-jumper/shared/protocol"
)

// levelRooms keeps one level's rooms in creation order so the last room is
// well defined.
type levelRooms struct {
	order []*Room
	byID  map[string]*Room
}

func newLevelRooms() *levelRooms {
	return &levelRooms{byID: make(map[string]*Room)}
}

func (l *levelRooms) add(r *Room) {
	l.order = append(l.order, r)
	l.byID[r.GameID] = r
}

func (l *levelRooms) get(gameID string) *Room { return l.byID[gameID] }

func (l *levelRooms) last() *Room {
	if len(l.order) == 0 {
		return nil
	}
	return l.order[len(l.order)-1]
}

func (l *levelRooms) remove(gameID string) *Room {
	r, ok := l.byID[gameID]
	if !ok {
		return nil
	}
	delete(l.byID, gameID)
	for i, x := range l.order {
		if x == r {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return r
}

func (l *levelRooms) all() []*Room { return append([]*Room(nil), l.order...) }

func (l *levelRooms) len() int { return len(l.order) }

// RequestSlot places the connection in the level's last open room, or queues it.
func (h *Hub) RequestSlot(connID, level, wallet string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.conns.player(connID)
	if !ok {
		return fmt.Errorf("request slot %s: %w", connID, ErrNotAssigned)
	}
	if _, ok := h.levels[level]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	if wallet != "" {
		h.conns.attachWallet(connID, wallet)
	}
	return h.requestSlotLocked(p, level)
}

func (h *Hub) requestSlotLocked(p *Player, level string) error {
	rooms, ok := h.levels[level]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	// Repeated requests from a seated or queued connection change nothing.
	if a, ok := h.conns.assignment(p.ConnID); ok {
		if r := h.roomLocked(a.Level, a.GameID); r != nil {
			h.toConnLocked(p.ConnID, protocol.TypeGameData, r.Channel(), r.view(h.conns.isLive))
		}
		return nil
	}
	for _, q := range h.queues {
		if q.contains(p.ConnID) {
			return nil
		}
	}

	last := rooms.last()
	if last != nil {
		last.prune(h.conns.isLive)
	}
	switch {
	case last == nil || len(last.players) == 0:
		if last != nil {
			h.retireLocked(last)
		}
		h.openRoomLocked(level, []*Player{p})
	case len(last.players) >= h.opts.Capacity || last.state != PhaseWaiting:
		h.queues[level].push(p)
		h.log.Info().Str("conn", p.ConnID).Str("level", level).Int("depth", h.queues[level].len()).Msg("QUEUE")
	default:
		last.add(p)
		h.conns.assign(p.ConnID, level, last.GameID)
		h.log.Info().Str("conn", p.ConnID).Str("room", last.GameID).Int("players", len(last.players)).Msg("JOIN")
		h.toRoomLocked(last, "", protocol.TypeGameData, last.Channel(), last.view(h.conns.isLive))
		h.startClockLocked(last)
	}
	h.observeLocked(level)
	return nil
}

// FinalizeRoom retires the room and seeds its successor from the queue.
func (h *Hub) FinalizeRoom(level, gameID string) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finalizeRoomLocked(level, gameID)
}

func (h *Hub) finalizeRoomLocked(level, gameID string) (*Room, error) {
	r := h.roomLocked(level, gameID)
	if r == nil {
		return nil, fmt.Errorf("finalize %s/%s: %w", level, gameID, ErrRoomNotFound)
	}
	h.retireLocked(r)
	next := h.openRoomLocked(level, h.queues[level].popLive(h.opts.Capacity, h.conns.isLive))
	h.observeLocked(level)
	return next, nil
}

// openRoomLocked creates a Waiting room holding players in order.
func (h *Hub) openRoomLocked(level string, players []*Player) *Room {
	r := newRoom(level, protocol.ShortID(), h.opts.CountdownSeconds)
	for _, p := range players {
		r.add(p)
		h.conns.assign(p.ConnID, level, r.GameID)
	}
	h.levels[level].add(r)
	h.log.Info().Str("level", level).Str("room", r.GameID).Int("players", len(players)).Msg("ROOM open")
	if len(players) > 0 {
		h.toRoomLocked(r, "", protocol.TypeGameData, r.Channel(), r.view(h.conns.isLive))
	}
	h.startClockLocked(r)
	return r
}

// retireLocked removes the room from the registry and frees its members.
func (h *Hub) retireLocked(r *Room) {
	r.clock.halt()
	if rooms, ok := h.levels[r.Level]; ok {
		rooms.remove(r.GameID)
	}
	for _, p := range r.players {
		h.conns.release(p.ConnID, r.GameID)
	}
}

func (h *Hub) roomLocked(level, gameID string) *Room {
	rooms, ok := h.levels[level]
	if !ok {
		return nil
	}
	return rooms.get(gameID)
}

func (h *Hub) observeLocked(level string) {
	if rooms, ok := h.levels[level]; ok {
		metrics.Rooms.WithLabelValues(level).Set(float64(rooms.len()))
	}
	if q, ok := h.queues[level]; ok {
		metrics.QueueDepth.WithLabelValues(level).Set(float64(q.len()))
	}
}
