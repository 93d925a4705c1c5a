package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arlevm/paircall/internal/adapters/httpapi"
	"github.com/arlevm/paircall/internal/adapters/rtc"
	sigclient "github.com/arlevm/paircall/internal/adapters/signal"
	"github.com/arlevm/paircall/internal/app/session"
	"github.com/arlevm/paircall/internal/config"
	"github.com/arlevm/paircall/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	devices, err := rtc.NewDevices()
	if err != nil {
		log.Fatal().Err(err).Msg("media device init failed")
	}
	builder, err := rtc.NewBuilder(cfg.WebRTCICEServers(), devices.Selector())
	if err != nil {
		log.Fatal().Err(err).Msg("connection builder init failed")
	}

	selfID := domain.PeerID(cfg.SelfID)

	client := sigclient.NewClient(cfg.SignalURL, selfID, cfg.ConnectTimeout)

	sess := session.New(session.Config{
		SelfID:           selfID,
		Kind:             domain.ParseCallKind(cfg.CallKind),
		SettleDelay:      cfg.SettleDelay,
		MonitorInterval:  cfg.MonitorInterval,
		GraceWindow:      cfg.GraceWindow,
		ReconnectInitial: cfg.ReconnectInitial,
		ReconnectMax:     cfg.ReconnectMax,
	}, client, devices, builder)
	client.SetHandler(sess)

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("signal client stopped")
			cancel()
		}
	}()
	go sess.Run(ctx)
	go func() {
		for err := range sess.Errors() {
			log.Error().Err(err).Msg("session error")
		}
	}()

	r := httpapi.SetupRouter(cfg.Mode, sess.Snapshot)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		log.Info().Str("addr", addr).Msg("paircall debug server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Exited gracefully")
}
