package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"minimaxing/api"
	"minimaxing/config"
	"minimaxing/sandbox"
	"minimaxing/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log, err := config.NewLogger(cfg.Logs, os.Stderr)
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("build logger")
	}
	if cfg.Logs.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := store.Open(cfg.DB.Driver, cfg.DB.DSN, store.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open store")
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(st,
		api.WithLogger(log),
		api.WithEngine(api.Engine{
			RepetitionPenalty: cfg.Engine.RepetitionPenalty,
			MaxPlies:          cfg.Engine.MaxPlies,
			Sandbox: []sandbox.Option{
				sandbox.WithMaxSteps(cfg.Sandbox.MaxSteps),
				sandbox.WithTimeout(cfg.Sandbox.Timeout),
			},
		}),
	)
	if err := srv.Start(ctx, cfg.HTTP.Workers); err != nil {
		log.Fatal().Err(err).Msg("start match runner")
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	srv.Close()
}
