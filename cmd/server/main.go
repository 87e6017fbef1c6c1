package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"chatserver/internal/config"
	"chatserver/internal/hash"
	"chatserver/internal/listener"
	"chatserver/internal/registry"
	"chatserver/internal/store"
)

func newLogger(level, format string) zerolog.Logger {
	var l zerolog.Level
	switch level {
	case "debug":
		l = zerolog.DebugLevel
	case "warn":
		l = zerolog.WarnLevel
	case "error":
		l = zerolog.ErrorLevel
	default:
		l = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(l)

	var writer = os.Stdout
	logger := zerolog.New(writer)
	if format == "pretty" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.With().Timestamp().Str("service", "chatserver").Logger()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("load config")
	}

	addr := flag.String("addr", cfg.Addr, "TCP address to listen on")
	dbPath := flag.String("db", cfg.DBPath, "path to the sqlite credential database")
	flag.Parse()

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)

	st, err := store.Open(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelSeed()
	rootHash := hash.Password(store.RootPassword)
	if err := st.Seed(seedCtx, store.RootID, rootHash, "root account"); err != nil {
		logger.Fatal().Err(err).Msg("seed root account")
	}

	reg := registry.NewWithCapacities(cfg.BusCapacity, cfg.MaxGuests, cfg.MaxUsers)

	lst, err := listener.New(*addr, reg, st, logger.With().Str("component", "listener").Logger(), cfg.QueueCapacity)
	if err != nil {
		logger.Fatal().Err(err).Msg("bind listener")
	}

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info().Msg("shutting down")
		cancel()
		lst.Shutdown()
	}()

	logger.Info().Str("addr", *addr).Msg("listening")
	if err := lst.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("listener stopped")
	}
}
