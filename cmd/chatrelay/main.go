package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chatrelay/internal/adapter/gateway"
	"chatrelay/internal/adapter/llm"
	"chatrelay/internal/adapter/store"
	"chatrelay/internal/infra/config"
	"chatrelay/internal/infra/logger"
	"chatrelay/internal/infra/tracer"
	"chatrelay/internal/security"
	"chatrelay/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatrelay:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "chatrelay.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	// Configured auth tokens may be stored as encrypted records; decrypt
	// them before the registry is seeded. Plaintext tokens pass through.
	if cfg.Security.EncryptCredentials {
		cipher, err := security.NewCredentialCipher(os.Getenv("CHATRELAY_CREDENTIAL_KEY"))
		if err != nil {
			return fmt.Errorf("init credential cipher: %w", err)
		}
		defer cipher.Zeroize()
		for i := range cfg.Agents {
			rec, ok := security.DecodeRecord(cfg.Agents[i].AuthToken)
			if !ok {
				continue
			}
			token, err := cipher.Decrypt(rec)
			if err != nil {
				return fmt.Errorf("decrypt credential for agent %q: %w", cfg.Agents[i].ID, err)
			}
			cfg.Agents[i].AuthToken = token
		}
	}

	db, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	factory := llm.NewFactory(llm.CustomConfig{
		ChatPath:   cfg.Custom.ChatPath,
		ModelsPath: cfg.Custom.ModelsPath,
	})
	client := llm.NewClient(factory, log)

	registry := usecase.NewRegistry(cfg.Agents)
	executor := usecase.NewExecutor(registry, log)
	breakers := usecase.NewBreakerSet(log)

	observer := usecase.NewProbeObserver(cfg.Network.CheckURL, cfg.NetworkCheckPeriod(), log)
	observer.Start(ctx)
	defer observer.Stop()

	sender := usecase.NewSendService(
		registry, client, executor, breakers,
		db, db, observer,
		cfg.Queue.MaxDepth, log,
	)

	offline := usecase.NewOfflineManager(db, sender, observer, cfg.Queue.MaxRetries, log)
	offline.Start(ctx)
	defer offline.Stop()

	checker := usecase.NewHealthChecker(factory, log)
	if cfg.Health.Enabled {
		monitor := usecase.NewMonitor(checker, registry, cfg.HealthInterval(), cfg.Health.Concurrency, log)
		if err := monitor.Start(ctx); err != nil {
			return fmt.Errorf("start health monitor: %w", err)
		}
		defer monitor.Stop()
	}

	tester := usecase.NewTester(client, log)

	srv := gateway.NewServer(
		gateway.Options{
			Addr:           cfg.Gateway.Addr,
			AllowedOrigins: cfg.Gateway.AllowedOrigins,
			RatePerSecond:  cfg.Gateway.RatePerSecond,
			RateBurst:      cfg.Gateway.RateBurst,
		},
		registry, sender, tester, checker, offline, db, factory, log,
	)

	log.Info("chatrelay starting",
		"addr", cfg.Gateway.Addr,
		"agents", len(cfg.Agents),
		"health_enabled", cfg.Health.Enabled)

	return srv.Start(ctx)
}
