package srv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasperdoggames/crypto-jumper/server/config"
	"github.com/kasperdoggames/crypto-jumper/server/metrics"
	"github.com/kasperdoggames/crypto-jumper/shared/protocol"
)

// Termination is a finished room handed to the ledger. Winner is empty for
// a no-winner result.
type Termination struct {
	Level   string
	GameID  string
	Winner  string
	Members []string
}

// Settler records room results on the ledger. Settle must not block.
type Settler interface {
	Settle(t Termination)
}

func (h *Hub) assignedRoomLocked(connID string) (*Room, error) {
	a, ok := h.conns.assignment(connID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", connID, ErrNotAssigned)
	}
	r := h.roomLocked(a.Level, a.GameID)
	if r == nil {
		return nil, fmt.Errorf("%s/%s: %w", a.Level, a.GameID, ErrRoomNotFound)
	}
	return r, nil
}

func (h *Hub) transitionLocked(r *Room, to Phase, cause Cause) error {
	from := r.state
	if err := r.transition(to, cause); err != nil {
		h.log.Debug().Err(err).Str("room", r.GameID).Msg("transition rejected")
		return err
	}
	metrics.RoomTransitions.WithLabelValues(to.String(), string(cause)).Inc()
	h.log.Info().Str("room", r.GameID).Stringer("from", from).Stringer("to", to).Str("cause", string(cause)).Msg("ROOM phase")
	return nil
}

// HandlePlayerUpdate relays movement to the sender's room.
func (h *Hub) HandlePlayerUpdate(connID string, u protocol.PlayerUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.assignedRoomLocked(connID)
	if err != nil {
		return err
	}
	h.toRoomLocked(r, connID, protocol.TypePlayerUpdate, protocol.PlayerChannel(r.Level, r.GameID), protocol.PlayerMoved{
		PlayerID: connID,
		State:    u.State,
		Location: u.Location,
		FlipX:    u.FlipX,
	})
	return nil
}

// HandleCoinCollected relays a pickup once per room; repeats are dropped.
func (h *Hub) HandleCoinCollected(connID, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.assignedRoomLocked(connID)
	if err != nil {
		return err
	}
	if r.collected[id] {
		return nil
	}
	r.collected[id] = true
	h.toRoomLocked(r, connID, protocol.TypeCoinCollected, r.Channel(), protocol.CoinCollected{ID: id})
	return nil
}

// HandleCountdown takes a tick from the room's timekeeper client.
func (h *Hub) HandleCountdown(connID string, counter int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.assignedRoomLocked(connID)
	if err != nil {
		return err
	}
	if h.opts.CountdownMode == config.CountdownModeServer || r.timekeeper != connID {
		return fmt.Errorf("countdown from %s: %w", connID, ErrNotTimekeeper)
	}
	h.applyTickLocked(r, connID, counter)
	return nil
}

func (h *Hub) applyTickLocked(r *Room, sender string, counter int) {
	if r.state != PhaseWaiting {
		r.clock.halt()
		return
	}
	relay, fire := r.clock.apply(counter)
	if relay {
		h.toRoomLocked(r, sender, protocol.TypeCountdown, protocol.CountdownChannel(r.Level, r.GameID), protocol.Countdown{
			Level:   r.Level,
			GameID:  r.GameID,
			Counter: counter,
		})
	}
	if fire {
		h.startRunningLocked(r, CauseCountdown)
	}
}

func (h *Hub) startRunningLocked(r *Room, cause Cause) error {
	if err := h.transitionLocked(r, PhaseRunning, cause); err != nil {
		return err
	}
	r.clock.halt()
	h.toRoomLocked(r, "", protocol.TypeRoomState, r.Channel(), r.view(h.conns.isLive))
	return nil
}

// startClockLocked runs the room clock on the server once two players are in.
func (h *Hub) startClockLocked(r *Room) {
	if h.opts.CountdownMode != config.CountdownModeServer || r.state != PhaseWaiting ||
		r.clock.fired || r.clock.ticking() || len(r.live(h.conns.isLive)) < 2 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.clock.cancel = cancel
	go func() {
		t := time.NewTicker(h.opts.CountdownTick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				h.mu.Lock()
				if ctx.Err() == nil {
					h.applyTickLocked(r, "", r.clock.next())
				}
				h.mu.Unlock()
			}
		}
	}()
}

// HandleGameUpdate applies a phase report from a player.
func (h *Hub) HandleGameUpdate(connID string, u protocol.GameUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.assignedRoomLocked(connID)
	if err != nil {
		return err
	}
	switch u.State {
	case protocol.StateRunning:
		if h.opts.CountdownMode == config.CountdownModeServer || r.timekeeper != connID {
			return fmt.Errorf("start from %s: %w", connID, ErrNotTimekeeper)
		}
		return h.startRunningLocked(r, CauseCountdown)
	case protocol.StateEnd:
		if u.Winner {
			p, _ := h.conns.player(connID)
			return h.terminateLocked(r, p, CauseWinner)
		}
		return h.deathLocked(r, connID)
	default:
		return fmt.Errorf("state %q: %w", u.State, ErrIllegalTransition)
	}
}

// HandleDeath marks the player dead in its room.
func (h *Hub) HandleDeath(connID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.assignedRoomLocked(connID)
	if err != nil {
		return err
	}
	return h.deathLocked(r, connID)
}

func (h *Hub) deathLocked(r *Room, connID string) error {
	if r.dead[connID] {
		return nil
	}
	r.dead[connID] = true
	if r.standing(h.conns.isLive, connID) > 0 {
		h.toAllLocked(connID, protocol.TypeDead, "", protocol.DeadNotice{ID: connID})
		return nil
	}
	if r.state == PhaseRunning {
		return h.terminateLocked(r, nil, CauseAllDead)
	}
	_, err := h.finalizeRoomLocked(r.Level, r.GameID)
	return err
}

// HandleDisconnect drops the connection from every structure it touches.
func (h *Hub) HandleDisconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, _ := h.assignedRoomLocked(connID)
	h.conns.disconnect(connID)
	for level, q := range h.queues {
		if q.remove(connID) {
			h.observeLocked(level)
		}
	}
	metrics.Connections.Dec()
	h.log.Info().Str("conn", connID).Msg("LEAVE")
	if r == nil {
		return
	}
	if r.standing(h.conns.isLive, connID) > 0 {
		h.toAllLocked(connID, protocol.TypeDead, "", protocol.DeadNotice{ID: connID})
		return
	}
	if r.state == PhaseRunning && len(r.live(h.conns.isLive)) > 0 {
		// everyone still connected has already died
		_ = h.terminateLocked(r, nil, CauseAllDead)
		return
	}
	if _, err := h.finalizeRoomLocked(r.Level, r.GameID); err != nil {
		h.log.Debug().Err(err).Msg("finalize on disconnect")
	}
}

// terminateLocked ends the room. The first report to get here wins; later
// reports find the room gone. A winner without a wallet still ends the room
// but nothing is sent to the ledger or to the players.
func (h *Hub) terminateLocked(r *Room, winner *Player, cause Cause) error {
	if err := h.transitionLocked(r, PhaseEnd, cause); err != nil {
		return err
	}
	members := make([]string, 0, len(r.players))
	for _, p := range r.live(h.conns.isLive) {
		members = append(members, p.ConnID)
	}

	t := Termination{Level: r.Level, GameID: r.GameID, Members: members}
	var dropErr error
	if winner != nil {
		t.Winner = h.conns.walletOf(winner.ConnID)
		if t.Winner == "" {
			dropErr = fmt.Errorf("room %s winner %s: %w", r.GameID, winner.ConnID, ErrUnresolvedWallet)
		} else {
			r.winner = winner
		}
	}

	if dropErr != nil {
		metrics.DroppedTerminations.WithLabelValues("unresolved_wallet").Inc()
		h.log.Warn().Err(dropErr).Msg("termination dropped")
	} else {
		h.toRoomLocked(r, "", protocol.TypeRoomState, r.Channel(), r.view(h.conns.isLive))
	}

	if _, err := h.finalizeRoomLocked(r.Level, r.GameID); err != nil {
		return errors.Join(dropErr, err)
	}
	if dropErr != nil {
		return dropErr
	}
	if h.settler == nil {
		metrics.DroppedTerminations.WithLabelValues("no_ledger").Inc()
		h.log.Warn().Str("room", r.GameID).Msg("no ledger attached, result not recorded")
		return nil
	}
	h.settler.Settle(t)
	return nil
}
