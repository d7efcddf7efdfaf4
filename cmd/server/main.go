package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/stickpm/sfu/internal/adapters/http"
	"github.com/stickpm/sfu/internal/adapters/rtc"
	wssignal "github.com/stickpm/sfu/internal/adapters/signal"
	"github.com/stickpm/sfu/internal/app"
	"github.com/stickpm/sfu/internal/app/orch"
	"github.com/stickpm/sfu/internal/app/sfu"
	"github.com/stickpm/sfu/internal/app/streams"
	"github.com/stickpm/sfu/internal/config"
	"github.com/stickpm/sfu/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	sessions := app.NewSessionRegistry()
	catalog := streams.NewRegistry(cfg.BroadcasterCap)
	relays := sfu.NewRelayManager()
	monitor := sfu.NewMonitor(cfg.StatsInterval)

	o := &orch.Orchestrator{
		Sessions:  sessions,
		Streams:   catalog,
		Relays:    relays,
		Monitor:   monitor,
		Directory: app.RoomPolicy{Sessions: sessions},
		Lifecycle: app.LogLifecycle{},

		WebRTC:         rtc.DefaultWebRTCConfig(cfg.StunURLs),
		PreferredCodec: cfg.PreferredCodec,
		NewConnection: func(conf webrtc.Configuration, sid core.SessionID) (core.MediaConnection, error) {
			return rtc.NewConnection(conf, sid)
		},
	}

	ctrl := wssignal.NewSignalWSController(o)
	ctrl.ReadLimit = cfg.ReadLimit
	ctrl.PingPeriod = cfg.PingPeriod
	catalog.SetNotifier(ctrl)

	r := router.SetupRouter(ctx, cfg, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("SFU server started")
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
	log.Info().Msg("Server exited gracefully")
}
