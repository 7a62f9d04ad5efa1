package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/mcdev12/focusroom/go/internal/dbconfig"
)

// statements are idempotent so the tool can run on every deploy.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
	  id                 UUID PRIMARY KEY,
	  name               TEXT NOT NULL,
	  settings           JSONB NOT NULL,
	  participants       UUID[] NOT NULL DEFAULT '{}',
	  admin_id           UUID NOT NULL,
	  timer              JSONB,
	  timer_last_updated TIMESTAMPTZ NOT NULL,
	  is_running         BOOLEAN NOT NULL DEFAULT FALSE,
	  is_public          BOOLEAN NOT NULL DEFAULT TRUE,
	  dormant_at         TIMESTAMPTZ,
	  is_active          BOOLEAN NOT NULL DEFAULT TRUE,
	  created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	  updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS rooms_running_idx ON rooms (is_running) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS rooms_public_idx ON rooms (created_at DESC) WHERE is_active AND is_public`,
	`CREATE INDEX IF NOT EXISTS rooms_last_updated_idx ON rooms (timer_last_updated) WHERE is_active`,
}

func main() {
	_ = godotenv.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	for i, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			fmt.Fprintf(os.Stderr, "statement %d failed: %v\n", i+1, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Applied %d statements to %s@%s/%s\n", len(statements), cfg.User, cfg.Host, cfg.Database)
}
