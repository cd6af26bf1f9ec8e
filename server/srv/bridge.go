package srv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kasperdoggames/crypto-jumper/server/ledger"
	"github.com/kasperdoggames/crypto-jumper/server/metrics"
)

type BridgeConfig struct {
	StartBlock   uint64
	WriteTimeout time.Duration
	// WriteRetries is the number of extra attempts after a failed write.
	WriteRetries uint
}

// Bridge connects the hub to the ledger: contract events drive room
// rotation, finished rooms become declareWinner/declareNoWinner calls.
type Bridge struct {
	log    zerolog.Logger
	ledger ledger.Ledger
	hub    *Hub
	board  *Leaderboard
	cfg    BridgeConfig
	tracer trace.Tracer

	newBackOff func() backoff.BackOff

	mu    sync.Mutex
	phase ledger.Phase

	events chan ledger.Event
	sub    event.Subscription
	wg     sync.WaitGroup
}

// NewBridge attaches itself to h as the settler.
func NewBridge(l ledger.Ledger, h *Hub, cfg BridgeConfig, log zerolog.Logger) *Bridge {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	b := &Bridge{
		log:        log.With().Str("component", "bridge").Logger(),
		ledger:     l,
		hub:        h,
		board:      h.Leaderboard(),
		cfg:        cfg,
		tracer:     otel.Tracer("github.com/kasperdoggames/crypto-jumper/server/srv"),
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		events:     make(chan ledger.Event, 64),
	}
	h.SetSettler(b)
	return b
}

func (b *Bridge) Phase() ledger.Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

func (b *Bridge) setPhase(p ledger.Phase) {
	b.mu.Lock()
	b.phase = p
	b.mu.Unlock()
}

// Start mirrors the contract phase, subscribes to events and rebuilds the
// leaderboard from history. Run must follow.
func (b *Bridge) Start(ctx context.Context) error {
	phase, err := b.ledger.SessionState(ctx)
	if err != nil {
		return fmt.Errorf("read session state: %w", err)
	}
	b.setPhase(phase)

	// Subscribe first so no win falls between the scan and the live feed;
	// Record drops the overlap by tx hash.
	sub, err := b.ledger.Subscribe(ctx, b.events)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := b.Rescan(ctx); err != nil {
		sub.Unsubscribe()
		return err
	}
	b.sub = sub
	b.log.Info().Stringer("phase", phase).Msg("ledger bridge started")
	return nil
}

// Rescan rebuilds the leaderboard from the PlayerWon log.
func (b *Bridge) Rescan(ctx context.Context) error {
	ctx, span := b.tracer.Start(ctx, "ledger.rescan",
		trace.WithAttributes(attribute.Int64("ledger.start_block", int64(b.cfg.StartBlock))))
	defer span.End()

	wins, err := b.ledger.WonHistory(ctx, b.cfg.StartBlock)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "won history")
		return fmt.Errorf("won history: %w", err)
	}
	b.board.Rebuild(wins)
	span.SetAttributes(attribute.Int("ledger.wins", len(wins)))
	b.log.Info().Int("wins", len(wins)).Uint64("from", b.cfg.StartBlock).Msg("leaderboard rebuilt")
	b.resolveImages()
	return nil
}

// Run dispatches ledger events until ctx ends or the subscription fails.
func (b *Bridge) Run(ctx context.Context) error {
	if b.sub == nil {
		return errors.New("bridge not started")
	}
	defer b.sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-b.sub.Err():
			if err == nil {
				return nil
			}
			return fmt.Errorf("ledger subscription: %w", err)
		case ev := <-b.events:
			b.dispatch(ev)
		}
	}
}

func (b *Bridge) dispatch(ev ledger.Event) {
	metrics.LedgerEvents.WithLabelValues(ev.Kind.String()).Inc()
	b.log.Debug().Stringer("kind", ev.Kind).Uint64("game", ev.GameID).Uint64("block", ev.BlockNumber).Msg("ledger event")

	switch ev.Kind {
	case ledger.EventNewGame:
		b.setPhase(ledger.PhaseNew)
		b.hub.HandleNewGame(ev.GameID)
	case ledger.EventGameStarted:
		b.setPhase(ledger.PhaseStarted)
		b.hub.HandleGameStarted()
	case ledger.EventGameFinished:
		b.setPhase(ledger.PhaseFinished)
		b.hub.HandleGameFinished(b.board.Snapshot())
	case ledger.EventGameSettled:
		b.setPhase(ledger.PhaseBegin)
		b.log.Info().Uint64("game", ev.GameID).Msg("session settled")
	case ledger.EventPlayerJoined:
		if err := b.hub.HandleLedgerJoin(ev.Player.Hex(), ev.ClientID); err != nil {
			b.log.Warn().Err(err).Str("wallet", ev.Player.Hex()).Str("conn", ev.ClientID).Msg("ledger join not seated")
		}
	case ledger.EventPlayerWon:
		if b.board.Record(ev.Player.Hex(), ev.TxHash.Hex()) {
			b.resolveImages()
		}
	}
}

// Settle submits the room result in the background. Failures are logged and
// the hub's state is left as is.
func (b *Bridge) Settle(t Termination) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.settle(context.Background(), t)
	}()
}

func (b *Bridge) settle(ctx context.Context, t Termination) {
	method := "declareNoWinner"
	if t.Winner != "" {
		method = "declareWinner"
	}
	ctx, span := b.tracer.Start(ctx, "ledger."+method, trace.WithAttributes(
		attribute.String("game.level", t.Level),
		attribute.String("game.id", t.GameID),
		attribute.String("game.winner", t.Winner),
	))
	defer span.End()

	attempt := func() (common.Hash, error) {
		wctx, cancel := context.WithTimeout(ctx, b.cfg.WriteTimeout)
		defer cancel()
		var (
			tx  common.Hash
			err error
		)
		if t.Winner == "" {
			tx, err = b.ledger.DeclareNoWinner(wctx, t.GameID)
		} else {
			tx, err = b.ledger.DeclareWinner(wctx, common.HexToAddress(t.Winner), t.GameID)
		}
		if errors.Is(err, ledger.ErrReverted) {
			return tx, backoff.Permanent(err)
		}
		return tx, err
	}
	tx, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b.newBackOff()),
		backoff.WithMaxTries(b.cfg.WriteRetries+1),
	)
	if err != nil {
		metrics.LedgerWrites.WithLabelValues(method, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, method)
		b.log.Error().Err(err).Str("room", t.GameID).Str("winner", t.Winner).Msg(method + " failed")
		return
	}
	metrics.LedgerWrites.WithLabelValues(method, "ok").Inc()
	span.SetAttributes(attribute.String("ledger.tx", tx.Hex()))
	b.log.Info().Str("room", t.GameID).Str("winner", t.Winner).Str("tx", tx.Hex()).Msg(method)

	if t.Winner != "" && b.board.Record(t.Winner, tx.Hex()) {
		b.resolveImages()
	}
	b.hub.SendGameEnd(t.Members, b.board.Snapshot())
}

// resolveImages looks up NFT images for wallets that have none yet.
func (b *Bridge) resolveImages() {
	missing := b.board.MissingImages()
	if len(missing) == 0 {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for _, w := range missing {
			ctx, cancel := context.WithTimeout(context.Background(), b.cfg.WriteTimeout)
			ref, err := b.ledger.ImageRef(ctx, common.HexToAddress(w))
			cancel()
			if err != nil {
				b.log.Debug().Err(err).Str("wallet", w).Msg("image lookup")
			}
			b.board.SetImage(w, ref)
		}
	}()
}

// Wait blocks until background writes and lookups are done.
func (b *Bridge) Wait() { b.wg.Wait() }
