package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/dbconfig"
	"github.com/mcdev12/focusroom/go/internal/rooms"
)

// setupStore returns the room repository for the configured store. The
// returned *sql.DB is nil for the memory store.
func setupStore(config *Config) (rooms.RoomsRepository, *sql.DB, error) {
	if config.Store == storeMemory {
		log.Warn().Msg("using in-memory room store, rooms are lost on restart")
		return rooms.NewMemoryRepository(), nil, nil
	}

	dbConfig := dbconfig.NewConfigFromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := dbConfig.Open(ctx)
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("user", dbConfig.User).
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("connected to database")
	return rooms.NewRepository(database), database, nil
}
