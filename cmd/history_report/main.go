// Command history_report prints the stored trade history for one session and
// the lifetime profit across all sessions.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"derivbot/config"
	"derivbot/internal/adapters/logger"
	"derivbot/internal/adapters/sqlite"
)

var sessionID = flag.String("session", "", "Session id to list (omit for totals only)")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		// The report only needs the database path; a missing broker token
		// must not block it.
		cfg = &config.Config{DBPath: getenvDefault("DB_PATH", "./data/derivbot.db"), LogLevel: logger.LevelWarn}
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	store, err := sqlite.NewHistoryStore(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open history store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if *sessionID != "" {
		entries, err := store.FindBySession(ctx, *sessionID)
		if err != nil {
			log.Fatalf("FATAL: Failed to read session history: %v", err)
		}
		if len(entries) == 0 {
			fmt.Printf("No trades recorded for session %s\n", *sessionID)
		}
		for i, e := range entries {
			result := "LOSS"
			if e.Win {
				result = "WIN"
			}
			fmt.Printf("%3d  %s  %-7s %-12s stake %8s  profit %9s  %s\n",
				i+1, e.Timestamp.Format("2006-01-02 15:04:05"), e.Market, e.Target,
				e.Stake.StringFixed(2), e.Profit.StringFixed(2), result)
		}
	}

	total, err := store.TotalProfit(ctx)
	if err != nil {
		log.Fatalf("FATAL: Failed to compute total profit: %v", err)
	}
	fmt.Printf("Total profit across all sessions: %s\n", total.StringFixed(2))
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
