package srv

import (
	"github.com/kasperdoggames/crypto-jumper/shared/protocol"
)

func (h *Hub) encode(typ, channel string, v interface{}) []byte {
	b, err := protocol.Encode(typ, channel, v)
	if err != nil {
		h.log.Error().Err(err).Str("type", typ).Msg("encode")
		return nil
	}
	return b
}

func (h *Hub) toConnLocked(id, typ, channel string, v interface{}) {
	p, ok := h.conns.peers[id]
	if !ok {
		return
	}
	if msg := h.encode(typ, channel, v); msg != nil && !p.deliver(msg) {
		h.log.Debug().Str("conn", id).Str("type", typ).Msg("send buffer full, dropped")
	}
}

// toRoomLocked fans out to every live member except exclude.
func (h *Hub) toRoomLocked(r *Room, exclude, typ, channel string, v interface{}) {
	msg := h.encode(typ, channel, v)
	if msg == nil {
		return
	}
	for _, pl := range r.players {
		if pl.ConnID == exclude {
			continue
		}
		if p, ok := h.conns.peers[pl.ConnID]; ok {
			p.deliver(msg)
		}
	}
}

// toAllLocked reaches every connection. Used for death notices, which are
// keyed by globally unique connection ids, and for level-wide resyncs.
func (h *Hub) toAllLocked(exclude, typ, channel string, v interface{}) {
	msg := h.encode(typ, channel, v)
	if msg == nil {
		return
	}
	for id, p := range h.conns.peers {
		if id != exclude {
			p.deliver(msg)
		}
	}
}

// SendGameEnd pushes the leaderboard to the members of a finished room.
func (h *Hub) SendGameEnd(members []string, lb protocol.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range members {
		h.toConnLocked(id, protocol.TypeGameEnd, "", protocol.GameEnd{Leaderboard: lb})
	}
}
