package srv

import (
	"fmt"

	"github.com/kasperdoggames/crypto-jumper/shared/protocol"
)

// Player is one connection taking part in matchmaking. The same pointer is
// shared by the tracker, the queue and the room it lands in.
type Player struct {
	ConnID string
	Wallet string
}

// Room is one match with a bounded roster. The first joiner keeps the clock.
type Room struct {
	GameID string
	Level  string

	players    []*Player
	state      Phase
	winner     *Player
	timekeeper string

	dead      map[string]bool
	collected map[string]bool
	clock     *countdown
}

func newRoom(level, gameID string, start int) *Room {
	return &Room{
		GameID:    gameID,
		Level:     level,
		state:     PhaseWaiting,
		dead:      make(map[string]bool),
		collected: make(map[string]bool),
		clock:     newCountdown(start),
	}
}

func (r *Room) State() Phase { return r.state }

func (r *Room) Channel() string { return protocol.RoomChannel(r.Level, r.GameID) }

func (r *Room) add(p *Player) {
	if r.timekeeper == "" && len(r.players) == 0 {
		r.timekeeper = p.ConnID
	}
	r.players = append(r.players, p)
}

func (r *Room) has(connID string) bool {
	for _, p := range r.players {
		if p.ConnID == connID {
			return true
		}
	}
	return false
}

// live filters the roster down to connections that are still open.
func (r *Room) live(isLive func(string) bool) []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if isLive(p.ConnID) {
			out = append(out, p)
		}
	}
	return out
}

// prune drops closed connections from the roster.
func (r *Room) prune(isLive func(string) bool) {
	r.players = r.live(isLive)
}

// standing counts live players that have not reported death, ignoring except.
func (r *Room) standing(isLive func(string) bool, except string) int {
	n := 0
	for _, p := range r.players {
		if p.ConnID != except && isLive(p.ConnID) && !r.dead[p.ConnID] {
			n++
		}
	}
	return n
}

func (r *Room) transition(to Phase, cause Cause) error {
	if !r.state.CanTransition(to, cause) {
		return fmt.Errorf("%w: %s -> %s by %s", ErrIllegalTransition, r.state, to, cause)
	}
	r.state = to
	return nil
}

func (r *Room) view(isLive func(string) bool) protocol.GameData {
	gd := protocol.GameData{
		RoomSet:   r.Level,
		GameID:    r.GameID,
		GameState: r.state.String(),
	}
	for _, p := range r.live(isLive) {
		gd.Players = append(gd.Players, protocol.PlayerView{PlayerID: p.ConnID, Account: p.Wallet})
	}
	if gd.Players == nil {
		gd.Players = []protocol.PlayerView{}
	}
	if r.winner != nil {
		gd.Winner = &protocol.PlayerView{PlayerID: r.winner.ConnID, Account: r.winner.Wallet}
	}
	return gd
}
