package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"tourneyforge/tourney"
)

const configFile = "tourney.json"

// noinspection GoUnusedExportedFunction
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	initStart := time.Now()

	logger.Info("Loading Tourneyforge Nakama plugin...")

	if _, err := tourney.Init(ctx, logger, nk, initializer, configFile); err != nil {
		logger.Error("Failed to initialize tournaments: %v", err)
		return err
	}

	logger.Info("Tourneyforge Nakama plugin loaded in '%d' msec.", time.Since(initStart).Milliseconds())
	return nil
}
