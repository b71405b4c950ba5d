package main

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vspc/vspc/internal/options"
	"github.com/vspc/vspc/internal/server"
	"github.com/vspc/vspc/pkg/config"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	cfg, err := config.Load("vspcd")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Log.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	cfg.Log.ConfigureZerolog()

	log.Info().
		Str("vm_addr", cfg.Listen.VMAddr).
		Str("admin_addr", cfg.Listen.AdminAddr).
		Str("debug_addr", cfg.Listen.DebugAddr).
		Msg("starting vspcd")

	tlsProvider := buildTLSProvider(cfg.TLS)

	srv := server.New(cfg, tlsProvider, log.Logger)

	vmLis, err := net.Listen("tcp", cfg.Listen.VMAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Listen.VMAddr).Msg("failed to bind vm listener")
	}
	adminLis, err := net.Listen("tcp", cfg.Listen.AdminAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Listen.AdminAddr).Msg("failed to bind admin listener")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 3)
	go func() { errCh <- srv.ServeVM(ctx, vmLis) }()
	go func() { errCh <- srv.ServeAdmin(ctx, adminLis) }()

	statsInterval, err := time.ParseDuration(cfg.Stats.Interval)
	if err != nil {
		statsInterval = 60 * time.Second
	}
	bootstrapper := server.NewBootstrapper(srv.Counters(), statsInterval, log.Logger)
	_ = bootstrapper.SetResourceLimits()
	_ = bootstrapper.SetProcessPriority()
	go bootstrapper.RunStats(ctx)

	debugServer := &http.Server{
		Addr:    cfg.Listen.DebugAddr,
		Handler: srv.NewDebugRouter(cfg.WebConsole.Enabled),
	}
	go func() {
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("listener failed")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = debugServer.Shutdown(shutdownCtx)

	log.Info().Msg("vspcd stopped")
}

func buildTLSProvider(cfg config.TLSConfig) options.TLSProvider {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return options.UnimplementedTLSProvider{}
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load configured TLS certificate, AUTHENTICATION SSL will fail")
		return options.UnimplementedTLSProvider{}
	}
	return options.StaticTLSProvider{Config: &tls.Config{Certificates: []tls.Certificate{cert}}}
}
