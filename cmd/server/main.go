package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cardclash/battle-backend/internal/cards"
	"github.com/cardclash/battle-backend/internal/config"
	"github.com/cardclash/battle-backend/internal/httpapi"
	"github.com/cardclash/battle-backend/internal/hub"
	"github.com/cardclash/battle-backend/internal/results"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := buildLogger(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	library, err := cards.NewLibrary()
	if err != nil {
		logger.Fatal("loading card library", zap.Error(err))
	}

	var recorder hub.Recorder = results.Noop{}
	if cfg.DatabaseURL != "" {
		store, err := results.NewStore(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("opening result archive", zap.Error(err))
		}
		recorder = store
		logger.Info("result archive enabled")
	}

	h := hub.NewHub(ctx, library, hub.Settings{
		Grace:          cfg.GracePeriod,
		StartingHealth: cfg.StartingHealth,
		StartingHand:   cfg.StartingHand,
		DeckSize:       cfg.DeckSize,
	}, recorder, logger)

	// Build the router *with* the hub injected
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		h.Inbox() <- hub.ShutdownHub{}
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
