package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/pagefeed/pkg/cache"
	"github.com/Sternrassler/pagefeed/pkg/client"
	"github.com/Sternrassler/pagefeed/pkg/config"
	"github.com/Sternrassler/pagefeed/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	configFile string
	logLevel   string
	baseURL    string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "pagefeed",
		Short:         "Read paged envelope endpoints with retries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	flags.StringVar(&opts.baseURL, "base-url", "", "Override the configured base URL")

	root.AddCommand(
		newFetchCommand(opts),
		newSearchCommand(opts),
		newDeleteCommand(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version of pagefeed",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

// app holds what every subcommand needs.
type app struct {
	cfg    *config.Config
	exec   *client.Executor
	redis  *redis.Client
	logger zerolog.Logger
}

func newApp(ctx context.Context, opts *rootOptions, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logging.Setup(logging.Config{
		Level:   level,
		Format:  cfg.Logging.Format,
		Service: "pagefeed",
		Output:  stderr,
	})

	a := &app{cfg: cfg, logger: logging.NewLogger("cli")}

	execCfg := client.DefaultConfig(cfg.UserAgent)
	execCfg.Timeout = cfg.Timeout
	execCfg.Retry = client.RetryPolicy{MaxRetries: cfg.MaxRetries, Delay: cfg.RetryDelay}

	if cfg.Cache.Enabled {
		if cfg.Cache.RedisAddr != "" {
			a.redis = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := a.redis.Ping(pingCtx).Err(); err != nil {
				a.redis.Close()
				return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Cache.RedisAddr, err)
			}
			a.logger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("Connected to Redis")
		}
		execCfg.Cache = cache.NewManager(a.redis, cfg.Cache.MemoryTTL)
	}

	a.exec, err = client.New(execCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
}
