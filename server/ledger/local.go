package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"
)

var ErrJoinClosed = errors.New("this game session is either running or has finished")

// Write records one result submission accepted by Local.
type Write struct {
	Winner common.Address // zero for DeclareNoWinner
	GameID string
	TxHash common.Hash
}

// Local is an in-process ledger with the contract's phase machine:
// Begin -> New -> Started -> Finished -> (settled) New ...
type Local struct {
	log zerolog.Logger

	mu       sync.Mutex
	phase    Phase
	gameID   uint64
	block    uint64
	nonce    uint64
	wins     []Win
	writes   []Write
	images   map[common.Address]string
	writeErr error

	feed event.Feed
}

var _ Ledger = (*Local)(nil)

func NewLocal(log zerolog.Logger) *Local {
	return &Local{
		log:    log.With().Str("component", "ledger-local").Logger(),
		images: make(map[common.Address]string),
	}
}

func (l *Local) SessionState(context.Context) (Phase, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase, nil
}

func (l *Local) Subscribe(_ context.Context, sink chan<- Event) (event.Subscription, error) {
	return l.feed.Subscribe(sink), nil
}

func (l *Local) WonHistory(_ context.Context, fromBlock uint64) ([]Win, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Win, 0, len(l.wins))
	for _, w := range l.wins {
		if w.BlockNumber >= fromBlock {
			out = append(out, w)
		}
	}
	return out, nil
}

func (l *Local) DeclareWinner(_ context.Context, winner common.Address, gameID string) (common.Hash, error) {
	l.mu.Lock()
	if l.writeErr != nil {
		err := l.writeErr
		l.mu.Unlock()
		return common.Hash{}, fmt.Errorf("declareWinner: %w", err)
	}
	tx := l.nextTxLocked()
	l.writes = append(l.writes, Write{Winner: winner, GameID: gameID, TxHash: tx})
	l.wins = append(l.wins, Win{Player: winner, TxHash: tx, BlockNumber: l.block})
	ev := Event{Kind: EventPlayerWon, Player: winner, TxHash: tx, BlockNumber: l.block}
	l.mu.Unlock()

	l.emit(ev)
	return tx, nil
}

func (l *Local) DeclareNoWinner(_ context.Context, gameID string) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return common.Hash{}, fmt.Errorf("declareNoWinner: %w", l.writeErr)
	}
	tx := l.nextTxLocked()
	l.writes = append(l.writes, Write{GameID: gameID, TxHash: tx})
	return tx, nil
}

func (l *Local) ImageRef(_ context.Context, owner common.Address) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.images[owner], nil
}

// Advance performs one upkeep step of the session state machine and emits
// the matching event.
func (l *Local) Advance() Phase {
	l.mu.Lock()
	var events []Event
	switch l.phase {
	case PhaseBegin:
		l.gameID++
		l.phase = PhaseNew
		events = append(events, l.eventLocked(EventNewGame))
	case PhaseNew:
		l.phase = PhaseStarted
		events = append(events, l.eventLocked(EventGameStarted))
	case PhaseStarted:
		l.phase = PhaseFinished
		events = append(events, l.eventLocked(EventGameFinished))
	case PhaseFinished:
		events = append(events, l.eventLocked(EventGameSettled))
		l.gameID++
		l.phase = PhaseNew
		events = append(events, l.eventLocked(EventNewGame))
	}
	phase := l.phase
	l.mu.Unlock()

	for _, ev := range events {
		l.emit(ev)
	}
	return phase
}

// Join registers a wallet for the open session, as addPlayerToGameSession does.
func (l *Local) Join(player common.Address, clientID string) error {
	l.mu.Lock()
	if l.phase != PhaseNew {
		l.mu.Unlock()
		return ErrJoinClosed
	}
	ev := l.eventLocked(EventPlayerJoined)
	ev.Player = player
	ev.ClientID = clientID
	l.mu.Unlock()

	l.emit(ev)
	return nil
}

// Run advances the phase machine every interval until ctx is done.
func (l *Local) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			phase := l.Advance()
			l.log.Debug().Stringer("phase", phase).Msg("upkeep")
		}
	}
}

// SeedWins appends historical wins, one block per entry.
func (l *Local) SeedWins(players ...common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range players {
		l.wins = append(l.wins, Win{Player: p, TxHash: l.nextTxLocked(), BlockNumber: l.block})
	}
}

func (l *Local) SetImage(owner common.Address, uri string) {
	l.mu.Lock()
	l.images[owner] = uri
	l.mu.Unlock()
}

// FailWrites makes every following write return err; nil restores success.
func (l *Local) FailWrites(err error) {
	l.mu.Lock()
	l.writeErr = err
	l.mu.Unlock()
}

func (l *Local) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Write(nil), l.writes...)
}

func (l *Local) GameID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gameID
}

func (l *Local) eventLocked(kind EventKind) Event {
	return Event{Kind: kind, GameID: l.gameID, TxHash: l.nextTxLocked(), BlockNumber: l.block}
}

func (l *Local) nextTxLocked() common.Hash {
	l.block++
	l.nonce++
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], l.nonce)
	return crypto.Keccak256Hash([]byte("local"), b[:])
}

func (l *Local) emit(ev Event) {
	// Feed.Send blocks until every subscriber took the value.
	l.feed.Send(ev)
}
