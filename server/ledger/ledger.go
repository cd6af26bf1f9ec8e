// Package ledger talks to the P2E game contract: it reads the session phase,
// streams contract events, replays historical wins and submits match results.
//
// Two implementations exist. Contract is backed by an Ethereum JSON-RPC node;
// Local keeps the same state machine in process for development and tests.
package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// Phase mirrors the contract's gameSessionState enum.
type Phase uint8

const (
	PhaseBegin Phase = iota
	PhaseNew
	PhaseStarted
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseBegin:
		return "Begin"
	case PhaseNew:
		return "New"
	case PhaseStarted:
		return "Started"
	case PhaseFinished:
		return "Finished"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

type EventKind int

const (
	EventNewGame EventKind = iota + 1
	EventGameStarted
	EventGameFinished
	EventGameSettled
	EventPlayerJoined
	EventPlayerWon
)

func (k EventKind) String() string {
	switch k {
	case EventNewGame:
		return "NewGame"
	case EventGameStarted:
		return "GameStarted"
	case EventGameFinished:
		return "GameFinished"
	case EventGameSettled:
		return "GameSettled"
	case EventPlayerJoined:
		return "PlayerJoinedGame"
	case EventPlayerWon:
		return "PlayerWon"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one decoded contract log.
type Event struct {
	Kind        EventKind
	GameID      uint64         // NewGame, GameStarted, GameFinished, GameSettled
	Player      common.Address // PlayerJoinedGame, PlayerWon
	ClientID    string         // PlayerJoinedGame: websocket connection id the player registered with
	TxHash      common.Hash
	BlockNumber uint64
}

// Win is a historical PlayerWon entry.
type Win struct {
	Player      common.Address
	TxHash      common.Hash
	BlockNumber uint64
}

// Ledger is the contract surface the session layer depends on.
type Ledger interface {
	SessionState(ctx context.Context) (Phase, error)
	// Subscribe streams decoded events into sink until the subscription is closed.
	Subscribe(ctx context.Context, sink chan<- Event) (event.Subscription, error)
	// WonHistory replays PlayerWon logs from fromBlock, oldest first.
	WonHistory(ctx context.Context, fromBlock uint64) ([]Win, error)
	// DeclareWinner and DeclareNoWinner return once the transaction is mined.
	DeclareWinner(ctx context.Context, winner common.Address, gameID string) (common.Hash, error)
	DeclareNoWinner(ctx context.Context, gameID string) (common.Hash, error)
	// ImageRef resolves the token URI of the first NFT the owner holds, "" if none.
	ImageRef(ctx context.Context, owner common.Address) (string, error)
}
