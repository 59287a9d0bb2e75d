package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"lane-siege/server/internal/battle"
	"lane-siege/server/internal/config"
	"lane-siege/server/internal/engine"
	"lane-siege/server/internal/feed"
	"lane-siege/server/internal/telemetry"
)

// Run wires configuration, logging, the battle engine, and the websocket
// event feed, then serves until the context is cancelled.
func Run(ctx context.Context) error {
	if err := config.Load("."); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(config.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zl := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	logger := telemetry.WrapZerolog(zl)

	layout, err := battle.NewGridLayout(config.LayoutWidth(), config.ZoneDepth(), config.CellCount())
	if err != nil {
		return fmt.Errorf("building lane layout: %w", err)
	}

	eng, err := engine.New(engine.Options{
		FireInterval: config.FireInterval(),
		FlightStep:   config.FlightStep(),
		Layout:       layout,
		CastleMaxHP:  config.CastleMaxHP(),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("building battle engine: %w", err)
	}

	hub := feed.NewHub(logger)
	hub.Attach(eng.Bus)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    config.ListenAddr(),
		Handler: mux,
	}

	logger.Info("server starting", "addr", config.ListenAddr())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
