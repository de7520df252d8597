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

	"github.com/devfolio/dashboard/internal/config"
	"github.com/devfolio/dashboard/internal/handlers"
	"github.com/devfolio/dashboard/internal/services"
	"github.com/devfolio/dashboard/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	addr       string
	store      string
	apiBaseURL string
}

// parseFlags applies command-line overrides on top of the environment
func parseFlags(args []string) (options, error) {
	flags := pflag.NewFlagSet("devfolio", pflag.ContinueOnError)

	opts := options{}
	flags.StringVar(&opts.addr, "addr", config.GetListenAddr(), "gateway listen address")
	flags.StringVar(&opts.store, "store", config.GetTokenStoreBackend(), "token store backend: memory, file or redis")
	flags.StringVar(&opts.apiBaseURL, "api-base-url", config.GetAPIBaseURL(), "backend API base URL")

	if err := flags.Parse(args); err != nil {
		return options{}, err
	}

	switch opts.store {
	case config.TokenStoreMemory, config.TokenStoreFile, config.TokenStoreRedis:
	default:
		return options{}, fmt.Errorf("unknown token store %q", opts.store)
	}

	return opts, nil
}

func (o options) apply() {
	config.SetListenAddr(o.addr)
	config.SetTokenStoreBackend(o.store)
	config.SetAPIBaseURL(o.apiBaseURL)
}

func setupRouter(svc *services.Services) (*mux.Router, error) {
	r := mux.NewRouter()
	if err := handlers.RegisterRoutes(r, svc); err != nil {
		return nil, err
	}
	return r, nil
}

func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	opts.apply()

	svc, err := services.InitializeServices()
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer svc.Close()

	svc.Restore(ctx)

	router, err := setupRouter(svc)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              config.GetListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Gateway starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func main() {
	logger.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Error().Err(err).Msg("Gateway exited with error")
		stop()
		os.Exit(1)
	}
}
