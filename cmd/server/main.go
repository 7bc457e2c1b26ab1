package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/parley/internal/adapter/driven/gateway/ws"
	badgerrepo "github.com/Wyydra/parley/internal/adapter/driven/persistence/badger"
	"github.com/Wyydra/parley/internal/adapter/driven/persistence/memory"
	handler "github.com/Wyydra/parley/internal/adapter/driving/http"
	"github.com/Wyydra/parley/internal/config"
	"github.com/Wyydra/parley/internal/core/port"
	"github.com/Wyydra/parley/internal/core/service"
	"github.com/Wyydra/parley/internal/metrics"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg)

	var (
		messages port.MessageRepository
		profiles port.ProfileRepository
	)
	switch cfg.Store {
	case "memory":
		messages = memory.NewMessageRepository()
		profiles = memory.NewProfileRepository()
	default:
		db, err := badgerrepo.Open(cfg.BadgerPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.BadgerPath).Msg("Failed to open badger")
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close badger")
			}
		}()
		messages = badgerrepo.NewMessageRepository(db)
		profiles = badgerrepo.NewProfileRepository(db)
	}
	log.Info().Str("store", cfg.Store).Msg("Storage ready")

	clk := clock.New()
	hub := ws.NewHub()

	presence := service.NewPresenceService(profiles, hub, clk)
	chat := service.NewChatService(messages, profiles, presence, hub, clk,
		service.WithHistoryLimits(cfg.HistoryDefaultLimit, cfg.HistoryMaxLimit))
	signaling := service.NewSignalingService(presence, hub)
	rooms := service.NewRoomCoordinator(hub)
	metrics.RegisterRooms(rooms.Rooms)

	h := handler.NewHandler(presence, chat, signaling, rooms, hub, handler.Options{
		StaticDir:      cfg.StaticDir,
		SendBufferSize: cfg.SendBufferSize,
		EventRate:      rate.Limit(cfg.EventRate),
		EventBurst:     cfg.EventBurst,
		AllowedOrigins: cfg.Origins(),
	})

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: h.NewRouter(),
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Stop()
	log.Info().Msg("Server exited")
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogJSON {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()
}
