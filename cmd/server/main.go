package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/callplane/internal/adapters/engine"
	router "github.com/dkeye/callplane/internal/adapters/http"
	"github.com/dkeye/callplane/internal/adapters/rtc"
	wssignal "github.com/dkeye/callplane/internal/adapters/signal"
	"github.com/dkeye/callplane/internal/app"
	"github.com/dkeye/callplane/internal/app/orch"
	"github.com/dkeye/callplane/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var env string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(env)
		},
	}
	root := &cobra.Command{
		Use:          "callplane",
		Short:        "callplane is the control plane of a real-time audio/video client.",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.PersistentFlags().StringVar(&env, "env", "", "config environment (config/config.<env>.yaml), defaults to CONFIG_ENV or dev")
	root.AddCommand(serve, &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func run(env string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Err(err).Str("level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	eng := engine.NewSim(engine.SimOptions{
		Version:  cfg.Engine.Version,
		DataPort: cfg.Engine.DataPort,
		Latency:  cfg.Engine.Latency,
	})
	pub, err := rtc.NewPublisher(rtc.DefaultWebRTCConfig(), "callplane", cfg.CustomFrameRate)
	if err != nil {
		return fmt.Errorf("media publisher: %w", err)
	}
	defer pub.Close()

	o := orch.New(eng, app.NewRegistry(app.SimplePolicy{}), pub, orch.Options{
		CommandTimeout:   cfg.CommandTimeout,
		WatchInterval:    cfg.DeviceWatchInterval,
		DefaultBitrate:   cfg.DefaultVideoBitrate,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Limiter:          wssignal.NewLinkRateLimiter(cfg.RateLimit, cfg.RateBurst),
	})

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("version", version).Msg("callplane started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return o.Liveness.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		o.Close(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
