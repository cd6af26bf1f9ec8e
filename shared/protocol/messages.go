package protocol

import "encoding/json"

// Envelope
type MsgEnvelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"` // room channel, empty for global/level-wide messages
	Data    json.RawMessage `json:"data"`
}

// Message types on the wire.
const (
	TypeRequestSlot   = "requestSlot"
	TypePlayerUpdate  = "playerUpdate"
	TypeCountdown     = "countdown"
	TypeGameUpdate    = "gameUpdate"
	TypeDead          = "dead"
	TypeCoinCollected = "coinCollected"

	TypeGameData  = "gameData"
	TypeNewGame   = "newGame"
	TypeRoomState = "roomState"
	TypeGameEnd   = "gameEnd"
	TypeError     = "error"
)

// ================= C -> S =================

// Matchmaking
type RequestSlot struct {
	Level  string `json:"level"`
	Wallet string `json:"account,omitempty"` // optional, only honoured while the connection has no wallet
}

type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Player movement/animation, relayed to the room as-is.
type PlayerUpdate struct {
	Level    string   `json:"level"`
	GameID   string   `json:"gameId"`
	State    string   `json:"state"`
	Location Location `json:"location"`
	FlipX    bool     `json:"flipX"`
}

// Timekeeper clock tick.
type Countdown struct {
	Level   string `json:"level"`
	GameID  string `json:"gameId"`
	Counter int    `json:"counter"`
}

// Phase report: "running" from the timekeeper, "end" from anyone finishing or dying out.
type GameUpdate struct {
	Level  string `json:"level"`
	GameID string `json:"gameId"`
	State  string `json:"state"`
	Winner bool   `json:"winner,omitempty"`
}

type Dead struct{}

type CoinCollected struct {
	ID string `json:"id"`
}

// ================= S -> C =================

type PlayerView struct {
	PlayerID string `json:"playerId"`
	Account  string `json:"account,omitempty"`
}

// Full roster + phase of one room. Always a full replace, never a delta.
type GameData struct {
	RoomSet   string       `json:"roomSet"`
	GameID    string       `json:"gameId"`
	Players   []PlayerView `json:"players"`
	GameState string       `json:"gameState"`
	Winner    *PlayerView  `json:"winner,omitempty"`
}

// Level-wide notice that the ledger opened a new session.
type NewGame struct {
	RoomSet string `json:"roomSet"`
	GameID  uint64 `json:"gameId"`
}

type PlayerMoved struct {
	PlayerID string   `json:"playerId"`
	State    string   `json:"state"`
	Location Location `json:"location"`
	FlipX    bool     `json:"flipX"`
}

type DeadNotice struct {
	ID string `json:"id"`
}

type GameEnd struct {
	Leaderboard Leaderboard `json:"leaderboard"`
}

type ErrorMsg struct {
	Message string `json:"message"`
}
