package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"derivbot/config"
	"derivbot/internal/adapters/console"
	"derivbot/internal/adapters/deriv"
	"derivbot/internal/adapters/logger"
	"derivbot/internal/adapters/sqlite"
	"derivbot/internal/domain"
	"derivbot/internal/ports"
	"derivbot/internal/session"
	"derivbot/internal/sim"
	"derivbot/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize History Store (Database Adapter)
	store, err := sqlite.NewHistoryStore(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize history store")
		log.Fatalf("FATAL: Failed to initialize history store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing history store")
		}
	}()
	appLogger.Info(context.Background(), "History store initialized")

	// 4. Initialize Strategy
	strat, err := strategy.ForName(cfg.Strategy, appLogger, nil)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize strategy")
		log.Fatalf("FATAL: Failed to initialize strategy: %v", err)
	}
	appLogger.Info(context.Background(), "Strategy initialized", map[string]interface{}{"strategy": strat.Name()})

	// 5. Initialize Stats Sink (console display + sqlite persistence)
	var statsSink ports.StatsSink = sqlite.NewSink(console.NewSink(appLogger), store, appLogger)

	// 6. Start the session (live or simulation)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Simulation {
		runner, err := sim.NewRunner(sim.Config{
			Strategy:             strat,
			Sink:                 statsSink,
			Logger:               appLogger,
			InitialStake:         cfg.InitialStake,
			MartingaleMultiplier: cfg.MartingaleMultiplier,
			TakeProfit:           cfg.TakeProfit,
			StopLoss:             cfg.StopLoss,
			StartingBalance:      cfg.SimBalance,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize simulation runner")
			log.Fatalf("FATAL: Failed to initialize simulation runner: %v", err)
		}
		if err := runner.Start(context.Background()); err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Simulation failed to start")
			log.Fatalf("FATAL: Simulation failed to start: %v", err)
		}
		<-sigs
		runner.Stop("Interrupted by operator.", domain.SeverityInfo)
		appLogger.Info(context.Background(), "Application finished gracefully.")
		return
	}

	transportFactory, err := deriv.NewFactory(deriv.Config{
		URL:                  cfg.WSURL,
		ResolveToken:         func() string { return cfg.Token },
		Logger:               appLogger,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize broker transport")
		log.Fatalf("FATAL: Failed to initialize broker transport: %v", err)
	}

	controller, err := session.New(session.Config{
		Strategy:             strat,
		Transport:            transportFactory,
		Sink:                 statsSink,
		Logger:               appLogger,
		ResolveToken:         func() string { return cfg.Token },
		InitialStake:         cfg.InitialStake,
		MartingaleMultiplier: cfg.MartingaleMultiplier,
		TakeProfit:           cfg.TakeProfit,
		StopLoss:             cfg.StopLoss,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize session")
		log.Fatalf("FATAL: Failed to initialize session: %v", err)
	}

	if err := controller.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Session failed to start")
		log.Fatalf("FATAL: Session failed to start: %v", err)
	}

	<-sigs
	controller.Stop("Interrupted by operator.", domain.SeverityInfo)
	appLogger.Info(context.Background(), "Application finished gracefully.")
}
