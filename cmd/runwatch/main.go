package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/runwatch/config"
	"github.com/alejandrodnm/runwatch/internal/adapters/backend"
	"github.com/alejandrodnm/runwatch/internal/adapters/notify"
	"github.com/alejandrodnm/runwatch/internal/adapters/storage"
	"github.com/alejandrodnm/runwatch/internal/application/engine"
	"github.com/alejandrodnm/runwatch/internal/domain"
	"github.com/alejandrodnm/runwatch/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	execCmd := flag.String("exec", "", "submit a trade command and watch the resulting run")
	runID := flag.String("run", "", "watch an existing run id")
	orderID := flag.String("order", "", "watch an order's fill confirmation")
	table := flag.Bool("table", false, "print full step table per snapshot (default: compact 1-line)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if *execCmd == "" && *runID == "" && *orderID == "" {
		slog.Error("nothing to do: pass -exec, -run or -order")
		os.Exit(1)
	}

	slog.Info("runwatch starting",
		"config", *configPath,
		"backend", cfg.Backend.BaseURL,
		"poll_interval", cfg.PollInterval(),
	)

	client := backend.NewClient(backend.Config{
		BaseURL:    cfg.Backend.BaseURL,
		MaxRetries: cfg.Backend.MaxRetries,
		Timeout:    cfg.BackendTimeout(),
	})
	stream := backend.NewStream(cfg.Backend.BaseURL)

	var store ports.RunStorage
	if cfg.Storage.DSN != "" {
		s, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer s.Close()
		store = s
	}

	eng := engine.New(client, stream, client, store, engine.Config{
		PollInterval: cfg.PollInterval(),
		FillInterval: cfg.FillInterval(),
		FillTimeout:  cfg.FillTimeout(),
	})
	notifier := notify.NewConsole(*table)

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	target := *runID
	if *execCmd != "" {
		target, err = client.ExecuteCommand(ctx, *execCmd)
		if err != nil {
			slog.Error("command execution failed", "err", err)
			os.Exit(1)
		}
		slog.Info("command accepted", "run_id", target)
	}

	var wg sync.WaitGroup

	if target != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchRun(ctx, eng, notifier, target)
		}()
	}

	if *orderID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchFill(ctx, eng, notifier, *orderID)
		}()
	}

	wg.Wait()
	slog.Info("runwatch stopped cleanly")
}

// watchRun imprime cada snapshot hasta que el run resuelve o el usuario corta.
func watchRun(ctx context.Context, eng *engine.Engine, notifier ports.Notifier, runID string) {
	snapshots, cancel := eng.Subscribe(runID)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := notifier.NotifyRun(ctx, snap); err != nil {
				slog.Warn("notifier error", "err", err)
			}
			if snap.Status.Terminal() {
				slog.Info("run resolved", "run_id", runID, "status", snap.Status)
				return
			}
		}
	}
}

// watchFill imprime el banner terminal de la sesión y, si aparece, el aviso
// de confirmación tardía.
func watchFill(ctx context.Context, eng *engine.Engine, notifier ports.Notifier, orderID string) {
	for outcome := range eng.WatchFill(ctx, orderID) {
		if err := notifier.NotifyFill(ctx, outcome); err != nil {
			slog.Warn("notifier error", "err", err)
		}
		if outcome.State == domain.WatchFilled {
			return
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("metrics server stopped", "err", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
