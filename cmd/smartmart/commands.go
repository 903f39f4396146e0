package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"smartmart/internal/api"
	"smartmart/internal/config"
	"smartmart/internal/consumer"
	"smartmart/internal/webhook"
	"smartmart/migrations"
)

const maintenanceInterval = time.Hour

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withApp loads config, connects every backend and runs fn.
func withApp(configPath string, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	if err := migrations.AutoMigrate(ctx, a.db, cfg.DB.Retries); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	stripeEvents := webhook.NewStripeHandler(cfg.Payment.Stripe.WebhookSecret, a.subscriptions, a.orders, a.repos.subscriptions)

	e := api.NewRouter(api.Handlers{
		Users:           api.NewUserHandler(a.users, a.carts),
		Catalog:         api.NewCatalogHandler(a.products, a.categories, a.recommend),
		Carts:           api.NewCartHandler(a.carts),
		Orders:          api.NewOrderHandler(a.checkout, a.orders),
		Recommendations: api.NewRecommendationHandler(a.recommend),
		Subscriptions:   api.NewSubscriptionHandler(a.subscriptions),
		Notifications:   api.NewNotificationHandler(a.notifications),
		GDPR:            api.NewGDPRHandler(a.gdpr),
		Settings:        api.NewSettingHandler(a.settings),
		StripeWebhook:   api.NewStripeWebhookHandler(stripeEvents),
	}, a.users, api.RouterConfig{
		JWTSecret: cfg.JWT.Secret,
		RateLimit: cfg.HTTP.RateLimit,
		RateBurst: cfg.HTTP.RateBurst,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msgf("HTTP server listening on %s", cfg.HTTP.Addr)
		if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func workerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume background jobs and order events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, work)
		},
	}
}

func work(ctx context.Context, a *app) error {
	k := a.cfg.Kafka
	brokers := k.BrokerURLs()
	jobs := config.NewKafkaReader(brokers, k.JobsTopic, k.GroupID)
	orders := config.NewKafkaReader(brokers, k.OrderTopic, k.GroupID)
	defer jobs.Close()
	defer orders.Close()

	c := consumer.NewConsumer(a.gdpr, a.subscriptions, a.notifications, a.cfg.Worker.Count)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msgf("Worker consuming %s and %s", k.JobsTopic, k.OrderTopic)
		if err := c.Run(ctx, jobs, orders); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		maintain(ctx, a)
		return nil
	})
	return g.Wait()
}

// maintain purges expired exports and reports overdue data requests until ctx ends.
func maintain(ctx context.Context, a *app) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		if purged, err := a.gdpr.PurgeExpiredExports(ctx); err != nil {
			logger.Error().Err(err).Msg("Error purging expired exports")
		} else if purged > 0 {
			logger.Info().Msgf("Purged %d expired exports", purged)
		}
		if overdue, err := a.gdpr.Overdue(ctx); err != nil {
			logger.Error().Err(err).Msg("Error checking overdue data requests")
		} else if len(overdue) > 0 {
			logger.Warn().Int("count", len(overdue)).Msg("Data requests past their response deadline")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := connectDB(cfg.DB.DSN, cfg.DB.Retries)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrations.AutoMigrate(cmd.Context(), db, cfg.DB.Retries); err != nil {
				return err
			}
			logger.Info().Msg("Migrations applied")
			return nil
		},
	}
}

func settingsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Export or import shop settings as JSON",
	}

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write all settings as a JSON object",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(ctx context.Context, a *app) error {
				data, err := a.settings.Export(ctx)
				if err != nil {
					return err
				}
				if out == "" {
					_, err = cmd.OutOrStdout().Write(append(data, '\n'))
					return err
				}
				return os.WriteFile(out, data, 0o600)
			})
		},
	}
	export.Flags().StringVarP(&out, "output", "o", "", "file to write, stdout when empty")

	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Upsert settings from a JSON object, read from stdin when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			return withApp(*configPath, func(ctx context.Context, a *app) error {
				n, err := a.settings.Import(ctx, data)
				if err != nil {
					return err
				}
				logger.Info().Msgf("Imported %d settings", n)
				return nil
			})
		},
	}

	cmd.AddCommand(export, importCmd)
	return cmd
}

func gdprCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gdpr",
		Short: "Data request maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge-exports",
		Short: "Delete export files past their expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(ctx context.Context, a *app) error {
				n, err := a.gdpr.PurgeExpiredExports(ctx)
				if err != nil {
					return err
				}
				logger.Info().Msgf("Purged %d expired exports", n)
				return nil
			})
		},
	})
	return cmd
}
