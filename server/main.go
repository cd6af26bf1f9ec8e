package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kasperdoggames/crypto-jumper/server/auth"
	"github.com/kasperdoggames/crypto-jumper/server/config"
	"github.com/kasperdoggames/crypto-jumper/server/ledger"
	"github.com/kasperdoggames/crypto-jumper/server/metrics"
	"github.com/kasperdoggames/crypto-jumper/server/srv"
	"github.com/kasperdoggames/crypto-jumper/server/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := newLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(cfg config.Config, out io.Writer) zerolog.Logger {
	if cfg.LogPretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// openLedger dials the contract, or falls back to the in-process ledger
// when no RPC endpoint is configured. local is nil for the contract.
func openLedger(ctx context.Context, cfg config.LedgerConfig, log zerolog.Logger) (l ledger.Ledger, local *ledger.Local, closeFn func(), err error) {
	if cfg.RPCURL == "" {
		log.Warn().Msg("LEDGER_RPC_URL not set, using the local ledger")
		local = ledger.NewLocal(log)
		return local, local, func() {}, nil
	}
	c, err := ledger.Dial(ctx, ledger.ContractConfig{
		RPCURL:     cfg.RPCURL,
		Address:    cfg.Contract,
		NFTAddress: cfg.NFTContract,
		PrivateKey: cfg.PrivateKey,
		ChainID:    cfg.ChainID,
	}, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, nil, c.Close, nil
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, "crypto-jumper", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	hub := srv.NewHub(srv.OptionsFromConfig(cfg), log)

	led, local, closeLedger, err := openLedger(ctx, cfg.Ledger, log)
	if err != nil {
		return err
	}
	defer closeLedger()

	bridge := srv.NewBridge(led, hub, srv.BridgeConfig{
		StartBlock:   cfg.Ledger.StartBlock,
		WriteTimeout: cfg.Ledger.WriteTimeout,
		WriteRetries: cfg.Ledger.WriteRetries,
	}, log)
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("ledger bridge: %w", err)
	}

	a := auth.NewAuth([]byte(cfg.JWTSecret), log)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           routes(hub, a, reg, log),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bridge.Run(gctx) })
	if local != nil && cfg.Ledger.LocalUpkeep > 0 {
		g.Go(func() error {
			local.Run(gctx, cfg.Ledger.LocalUpkeep)
			return nil
		})
	}
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Strs("levels", cfg.Levels).Str("countdown", cfg.CountdownMode).Msg("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	err = g.Wait()
	bridge.Wait()
	return err
}
