package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"creek/src/broker"
	"creek/src/config"
	"creek/src/contracts"
	"creek/src/httpapi"
	"creek/src/kafka"
	"creek/src/logger"
	"creek/src/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker HTTP server",
	Long: `Runs the broker and serves it over HTTP until interrupted.

Example:
  CREEK_BACKEND=postgres CREEK_POSTGRES_DSN=postgres://localhost/creek creek serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			appConfig.Addr = addr
		}
		if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
			appConfig.Backend = backend
			if err := appConfig.Validate(); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gw, admin, closeFn, err := openBackend(ctx, appConfig, log)
		if err != nil {
			return err
		}
		defer closeFn()

		log.Info("[Serve] %s backend, listening on %s", appConfig.Backend, appConfig.Addr)
		return httpapi.NewServer(gw, admin, log).ListenAndServe(ctx, appConfig.Addr)
	},
}

// openBackend builds the gateway for the configured backend.
func openBackend(ctx context.Context, cfg *config.Config, log logger.Logger) (contracts.Gateway, contracts.Admin, func(), error) {
	if cfg.Backend == config.BackendKafka {
		gw, err := kafka.NewGateway(kafka.Config{Brokers: cfg.KafkaBrokers}, log)
		if err != nil {
			return nil, nil, nil, err
		}
		return gw, gw, gw.Close, nil
	}

	var st store.LogStore
	var err error
	switch cfg.Backend {
	case config.BackendPostgres:
		st, err = store.NewPostgresStore(ctx, cfg.PostgresDSN)
	case config.BackendRedis:
		st, err = store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	default:
		st = store.NewInMemoryStore()
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}

	b := broker.New(st,
		broker.WithSubscriptionTTL(cfg.SubscriptionTTL),
		broker.WithLeaseTTL(cfg.LeaseTTL),
		broker.WithRenewOnActivity(cfg.RenewOnActivity),
		broker.WithLogger(log),
	)
	gw := broker.NewGateway(b, broker.GatewayConfig{
		ReadLimit:      cfg.ReadLimit,
		SessionTimeout: cfg.SessionTimeout,
	}, log)

	closeFn := func() {
		gw.Close()
		if err := b.Close(); err != nil {
			log.Warn("[Serve] closing store: %v", err)
		}
	}
	return gw, gw, closeFn, nil
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default $CREEK_ADDR or :8420)")
	serveCmd.Flags().String("backend", "", "Storage backend: memory, postgres, redis or kafka")
}
