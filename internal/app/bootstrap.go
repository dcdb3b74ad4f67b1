// Package app wires the order engine together: config, journal,
// dispatcher, broker backend and its notification channel.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"broker_go/internal/broker"
	"broker_go/internal/engine"
	"broker_go/internal/event"
	"broker_go/internal/infra"
	"broker_go/internal/infra/bitget"
	"broker_go/internal/infra/tradier"
	"broker_go/internal/storage"
	"broker_go/internal/strategy"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config     *infra.Config
	EventStore *storage.EventStore
	Dispatcher *engine.Dispatcher
	Session    *broker.Session

	// Paper is non-nil in PAPER mode; tests and demo scripts drive
	// fills through it.
	Paper *broker.Paper

	seq         uint64
	orderWorker *bitget.OrderWorker
	reconciler  *broker.Reconciler
	unlock      func()
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, DB, engine).
// No goroutines start here; Start launches the loops.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Broker-Go...")

	// 0. Runtime Warmup (GC Optimization)
	event.Warmup()

	// 1. Load Config (Dynamic Path Resolution)
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	infra.PrintBanner(cfg)

	mode := strings.ToUpper(cfg.Trading.Mode)
	if mode == "" {
		mode = "PAPER" // Default to paper if not set
	}

	// REAL mode demands an explicit second confirmation outside the
	// config file. A copied config must never be enough to trade
	// real money.
	if mode == "REAL" && os.Getenv("CONFIRM_REAL_MONEY") != "YES" {
		return fmt.Errorf("REAL mode requires CONFIRM_REAL_MONEY=YES in the environment")
	}

	// 3. Workspace: data isolation per mode, single-instance lock
	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data", strings.ToLower(mode))
	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	// 4. Journal (Single-Writer WAL DB)
	var journal engine.Journal
	if cfg.Engine.Journal {
		dbPath := filepath.Join(dataDir, "events.db")
		evStore, err := storage.NewEventStore(dbPath)
		if err != nil {
			return err
		}
		b.EventStore = evStore
		journal = evStore
		slog.Info("✅ EventStore initialized (WAL-mode)", "path", dbPath, "mode", mode)

		// Resume the sequence counter so replayed and new events
		// never collide.
		if last, err := evStore.GetLastSeq(context.Background()); err == nil {
			b.seq = last
		}
	}

	// 5. Dispatcher (The Hotpath Loop)
	b.Dispatcher = engine.NewDispatcher(cfg.QueueSizeOrDefault(), engine.NewRegistry(), journal)

	// 6. Broker backend and its notification channel
	switch {
	case mode == "PAPER":
		b.Paper = broker.NewPaper(b.Dispatcher, &b.seq)
		b.Session = broker.NewSession(b.Paper, b.Dispatcher)
		slog.Info("✅ Paper broker ready")

	case strings.ToUpper(cfg.Trading.Broker) == "BITGET":
		client := bitget.NewClient(cfg)
		b.Session = broker.NewSession(client, b.Dispatcher)
		b.orderWorker = bitget.NewOrderWorker(cfg, b.Dispatcher, &b.seq)
		slog.Info("✅ Bitget backend ready (push channel)")

	case strings.ToUpper(cfg.Trading.Broker) == "TRADIER":
		client := tradier.NewClient(cfg)
		b.Session = broker.NewSession(client, b.Dispatcher)
		interval := time.Duration(cfg.Engine.PollIntervalSec) * time.Second
		if interval <= 0 {
			interval = 5 * time.Second
		}
		b.reconciler = broker.NewReconciler(client, b.Dispatcher, interval, &b.seq)
		slog.Info("✅ Tradier backend ready (poll channel)", "interval", interval)

	default:
		return fmt.Errorf("unsupported broker: %s", cfg.Trading.Broker)
	}

	return nil
}

// BindStrategy attaches the strategy's lifecycle callbacks.
// Must be called before Start.
func (b *Bootstrap) BindStrategy(s strategy.Strategy) {
	strategy.Bind(b.Dispatcher, s)
	slog.Info("✅ Strategy bound", "name", s.Name())
}

// Start launches the dispatch loop and the notification channel, and
// blocks until the channel is ready to deliver events. Orders
// submitted after Start cannot miss their own lifecycle.
func (b *Bootstrap) Start(ctx context.Context) error {
	go b.Dispatcher.Run(ctx)

	if b.orderWorker != nil {
		b.orderWorker.Start(ctx)

		readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := b.orderWorker.WaitReady(readyCtx); err != nil {
			return fmt.Errorf("order stream not ready: %w", err)
		}
		slog.Info("✅ Order stream ready")
	}

	if b.reconciler != nil {
		b.reconciler.Start(ctx)
		slog.Info("✅ Reconciler started")
	}

	return nil
}

// Shutdown releases everything Initialize acquired.
func (b *Bootstrap) Shutdown() {
	if b.orderWorker != nil {
		b.orderWorker.Stop()
	}
	if b.EventStore != nil {
		b.EventStore.Close()
	}
	if b.unlock != nil {
		b.unlock()
	}
	slog.Info("👋 Shutdown complete")
}
