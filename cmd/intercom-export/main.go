// Command intercom-export pages through all Intercom conversations and
// writes each page of normalized conversations to its own JSON file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/intercom-export/internal/config"
	"github.com/Sternrassler/intercom-export/internal/telemetry"
	"github.com/Sternrassler/intercom-export/pkg/cache"
	"github.com/Sternrassler/intercom-export/pkg/conversation"
	"github.com/Sternrassler/intercom-export/pkg/intercom"
	"github.com/Sternrassler/intercom-export/pkg/logging"
	"github.com/Sternrassler/intercom-export/pkg/metrics"
	"github.com/Sternrassler/intercom-export/pkg/output"
	"github.com/Sternrassler/intercom-export/pkg/pagination"
	"github.com/Sternrassler/intercom-export/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const pushTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("intercom-export failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:   "intercom-export",
		Short: "Export Intercom conversations to JSON files",
		Long: `intercom-export walks the Intercom conversations listing page by page,
fetches every conversation with plain-text bodies, flattens it into
{conversationID, participants, messages} and writes one JSON array per page.

The access token is read from INTERCOM_TOKEN (environment or .env file).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = run(ctx, cfg, cmd.ErrOrStderr())
			return err
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.AddCommand(newSchemaCmd())

	return cmd
}

// loadConfig applies .env, config file and flags to v in that order.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	if err := config.ReadFile(v, cfgFile); err != nil {
		return nil, err
	}

	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}

	return config.Load(v)
}

// run wires the exporter from cfg and performs one full export.
func run(ctx context.Context, cfg *config.Config, logOut io.Writer) (*pagination.Result, error) {
	namer := output.NewNamer()

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: logOut,
		RunID:  namer.RunID(),
	})
	logger := logging.NewLogger("main")

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{Endpoint: cfg.OTLP, RunID: namer.RunID()})
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	var cacheManager *cache.Manager
	if cfg.RedisURL != "" {
		redisClient, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("Response cache disabled")
		} else {
			defer redisClient.Close()
			cacheManager = cache.NewManager(redisClient, cache.Options{})
			logger.Info().Msg("Response cache enabled")
		}
	}

	client, err := intercom.New(ctx, intercom.Config{
		Token:      cfg.Intercom.Token,
		BaseURL:    cfg.Intercom.BaseURL,
		APIVersion: cfg.Intercom.APIVersion,
		UserAgent:  "intercom-export/1.0",
		Timeout:    cfg.Intercom.RequestTimeout,
		Cache:      cacheManager,
	})
	if err != nil {
		return nil, fmt.Errorf("create intercom client: %w", err)
	}
	defer client.Close()

	sink, err := output.NewFileSink(cfg.Export.OutputDir)
	if err != nil {
		return nil, err
	}

	p := pagination.New(pagination.Deps{
		Lister:     client,
		Normalizer: conversation.NewNormalizer(client, logging.NewLogger("normalizer")),
		Guard: ratelimit.NewGuard(ratelimit.Config{
			Threshold: cfg.Export.RateLimitThreshold,
			Sleep:     cfg.Export.ThrottleSleep,
		}, logging.NewLogger("ratelimit")),
		Sink:  sink,
		Namer: namer,
	}, pagination.Config{
		PerPage:        cfg.Export.PerPage,
		MaxConcurrency: cfg.Export.MaxConcurrency,
	}, logging.NewLogger("paginator"))

	result, runErr := p.Run(ctx)

	pushCtx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := metrics.Push(pushCtx, cfg.Pushgate, metrics.DefaultJob, namer.RunID()); err != nil {
		logger.Warn().Err(err).Msg("Metrics push failed")
	}

	if runErr != nil {
		return result, runErr
	}

	logger.Info().
		Int("pages", result.Pages).
		Int("conversations", result.Conversations).
		Str("output_dir", sink.Dir()).
		Msg("Export finished")

	return result, nil
}

// connectRedis parses a redis:// URL and checks the connection.
func connectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
