// Package main is the fundexd command. The serve subcommand runs the
// exchange HTTP service over PostgreSQL and ClickHouse (or fully in
// memory); simulate executes a scripted scenario against a fresh engine
// and reports per-step outcomes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fundex/internal/assets"
	"fundex/internal/config"
	"fundex/internal/engine"
	"fundex/internal/events"
	"fundex/internal/observability"
	"fundex/internal/persistence"
	"fundex/internal/scenario"
	"fundex/internal/server"
	"fundex/internal/storage"
	chstore "fundex/internal/storage/clickhouse"
	"fundex/internal/storage/memory"
	"fundex/internal/storage/migrations"
	pgstore "fundex/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "fundexd",
		Short:        "AMM exchange and incentive engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSimulateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the exchange HTTP service",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().String("postgres-dsn", "", "PostgreSQL DSN for durable state")
	cmd.Flags().String("clickhouse-dsn", "", "ClickHouse DSN for the event journal")
	cmd.Flags().Bool("use-memory", false, "use in-memory storage instead of PostgreSQL and ClickHouse")
	cmd.Flags().String("admin-key", "", "API key granting the admin capability")
	cmd.Flags().String("ledger-key", "", "API key granting the ledger capability")
	cmd.Flags().String("asset-a", string(engine.DefaultAssetA), "reserve asset A symbol")
	cmd.Flags().String("asset-b", string(engine.DefaultAssetB), "reserve asset B symbol")
	cmd.Flags().Int64("minimum-floor", engine.DefaultMinimumFloor, "shares locked to the sentinel on the bootstrap deposit")
	cmd.Flags().Int64("ratio-tolerance-bps", engine.DefaultRatioToleranceBps, "deposit ratio tolerance in basis points")
	cmd.Flags().Int64("max-slippage-bps", engine.DefaultMaxSlippageBps, "initial price impact bound in basis points")
	cmd.Flags().Int("max-farm-pools", engine.DefaultMaxFarmPools, "maximum number of farm pools")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !cfg.UseMemory && (cfg.PostgresDSN == "" || cfg.ClickhouseDSN == "") {
		return fmt.Errorf("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	loader := persistence.NewLoader(stores.pools, stores.tiers, stores.farms)
	snap, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	params := engine.Params{
		AssetA:            assets.Asset(cfg.AssetA),
		AssetB:            assets.Asset(cfg.AssetB),
		MinimumFloor:      big.NewInt(cfg.MinimumFloor),
		RatioToleranceBps: cfg.RatioToleranceBps,
		MaxSlippageBps:    cfg.MaxSlippageBps,
		MaxFarmPools:      cfg.MaxFarmPools,
	}

	bank := assets.NewBank()
	recorder := persistence.NewRecorder(stores.pools, stores.tiers, stores.farms, stores.journal, logger)
	broadcaster := server.NewBroadcaster(logger)
	sink := events.Fanout{recorder, observability.Observer{}, broadcaster}

	var opts []engine.Option
	if snap != nil {
		opts = append(opts, engine.WithSnapshot(snap))
	}
	eng, err := engine.New(params, bank, sink, opts...)
	if err != nil {
		return err
	}

	// First boot persists the full tier table; afterwards the recorder
	// keeps it current event by event.
	if snap == nil || len(snap.Tiers) == 0 {
		tiers, err := eng.Tiers()
		if err != nil {
			return err
		}
		if err := persistence.SeedTiers(ctx, stores.tiers, tiers); err != nil {
			return fmt.Errorf("seed tiers: %w", err)
		}
	}

	srv, err := server.NewServer(server.Options{
		Addr:        cfg.Listen,
		Engine:      eng,
		Bank:        bank,
		Journal:     stores.journal,
		Broadcaster: broadcaster,
		AdminKey:    cfg.AdminKey,
		LedgerKey:   cfg.LedgerKey,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	logger.Info("fundexd starting",
		zap.String("listen", cfg.Listen),
		zap.String("asset_a", cfg.AssetA),
		zap.String("asset_b", cfg.AssetB),
		zap.Bool("use_memory", cfg.UseMemory),
		zap.Bool("restored", snap != nil),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	// A second signal or a stalled shutdown forces exit.
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("second signal, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	err = srv.Shutdown(shutCtx)
	close(done)
	return err
}

// engineStores groups the durable stores behind one engine.
type engineStores struct {
	pools   storage.PoolStore
	tiers   storage.TierStore
	farms   storage.FarmStore
	journal storage.EventJournal
}

// createStores builds the storage layer and applies migrations. The
// returned cleanup closes whatever was opened.
func createStores(ctx context.Context, cfg config.Config) (*engineStores, func(), error) {
	if cfg.UseMemory {
		stores := &engineStores{
			pools:   memory.NewPoolStore(),
			tiers:   memory.NewTierStore(),
			farms:   memory.NewFarmStore(),
			journal: memory.NewEventJournal(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &engineStores{
		pools:   pgstore.NewPoolStore(pool),
		tiers:   pgstore.NewTierStore(pool),
		farms:   pgstore.NewFarmStore(pool),
		journal: chstore.NewEventJournal(conn),
	}

	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <scenario.json>",
		Short: "Run a scripted scenario against a fresh in-memory engine",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulate,
	}

	cmd.Flags().String("format", "text", "output format (text, json)")
	cmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	level, _ := cmd.Flags().GetString("log-level")

	logger, err := newLogger(level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sc, err := scenario.Load(args[0])
	if err != nil {
		return err
	}

	res, err := scenario.NewRunner(logger).Run(cmd.Context(), sc)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	case "text":
		printResult(os.Stdout, res)
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	if res.Failed > 0 {
		return fmt.Errorf("%d of %d steps contradicted their expectation", res.Failed, len(res.Steps))
	}
	return nil
}

func printResult(w io.Writer, res *scenario.Result) {
	fmt.Fprintf(w, "scenario %q: %d steps, %d failed, %d events committed\n",
		res.Name, len(res.Steps), res.Failed, res.Events)

	for _, st := range res.Steps {
		mark := "ok  "
		if !st.Pass {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "  [%s] #%02d t=%-6d %-20s %s", mark, st.Index, st.At, st.Op, st.Account)
		if st.Detail != "" {
			fmt.Fprintf(w, "  %s", st.Detail)
		}
		if st.Error != "" {
			fmt.Fprintf(w, "  err: %s", st.Error)
		}
		fmt.Fprintln(w)
	}

	if res.Final != nil && res.Final.Pool != nil {
		p := res.Final.Pool
		fmt.Fprintf(w, "final pool: %s=%s %s=%s shares=%s paused=%v\n",
			p.AssetA, p.ReserveA, p.AssetB, p.ReserveB, p.TotalShares, p.Paused)
	}

	names := make([]string, 0, len(res.Balances))
	for name := range res.Balances {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		symbols := make([]string, 0, len(res.Balances[name]))
		for sym := range res.Balances[name] {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)
		fmt.Fprintf(w, "balance %s:", name)
		for _, sym := range symbols {
			fmt.Fprintf(w, " %s=%s", sym, res.Balances[name][sym])
		}
		fmt.Fprintln(w)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
