// Command tourneyd runs the tournament engine as a standalone HTTP service for game servers that do not embed Nakama.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tourneyforge/tourney"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	s, err := loadSettings()
	if err != nil {
		log.Fatal(err)
	}

	zapLogger, err := newZap(s.Debug)
	if err != nil {
		log.Fatal("failed to build logger: ", err)
	}
	defer zapLogger.Sync()
	logger := tourney.NewZapLogger(zapLogger)

	if err := run(s, logger); err != nil {
		logger.Error("tourneyd stopped: %v", err)
		zapLogger.Sync()
		log.Fatal(err)
	}
}

func newZap(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(s *settings, logger *tourney.ZapLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, err := s.engineConfig()
	if err != nil {
		return err
	}
	bonus, err := s.bonusTable(config)
	if err != nil {
		return err
	}
	membership, err := s.membership()
	if err != nil {
		return err
	}
	store, closeStore, err := s.documentStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	engine := tourney.NewEngine(logger, tourney.EngineDeps{
		Store:      store,
		Membership: membership,
		Bonus:      bonus,
	}, config)
	if err := engine.Load(ctx); err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}

	if s.AdminToken == "" {
		logger.Warn("TOURNEYD_ADMIN_TOKEN is not set, admin routes will reject every request")
	}
	app := newApp(engine, logger, s.AdminToken)
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(s.Addr)
	}()
	logger.WithFields(map[string]interface{}{"addr": s.Addr, "backend": s.Backend}).Info("tourneyd listening")

	select {
	case <-ctx.Done():
	case err = <-listenErr:
		logger.Error("HTTP server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := app.ShutdownWithContext(shutdownCtx); shutdownErr != nil {
		logger.Warn("HTTP shutdown: %v", shutdownErr)
	}
	if shutdownErr := engine.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("Failed to flush tournament state: %v", shutdownErr)
		if err == nil {
			err = shutdownErr
		}
	}
	return err
}
