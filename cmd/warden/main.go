package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "federated chat anti-spam daemon",
		Version: versioninfo.Short(),
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/warden/warden.sqlite",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   40,
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for counters; empty runs in-memory",
			EnvVars: []string{"WARDEN_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3899",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3898",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "platform-host",
			Usage:   "base URL of the chat-platform gateway",
			Value:   "http://localhost:8081",
			EnvVars: []string{"WARDEN_PLATFORM_HOST"},
		},
		&cli.StringFlag{
			Name:    "platform-token",
			Usage:   "bearer token for the chat-platform gateway",
			EnvVars: []string{"WARDEN_PLATFORM_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "platform-rate-limit",
			Usage:   "max requests per second to the platform gateway",
			Value:   20,
			EnvVars: []string{"WARDEN_PLATFORM_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "reputation-host",
			Usage:   "base URL of the external reputation service; empty disables the check",
			EnvVars: []string{"WARDEN_REPUTATION_HOST"},
		},
		&cli.StringFlag{
			Name:    "reputation-token",
			EnvVars: []string{"WARDEN_REPUTATION_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "reputation-daily-quota",
			Usage:   "max reputation lookups per day before the check fails open",
			Value:   10000,
			EnvVars: []string{"WARDEN_REPUTATION_DAILY_QUOTA"},
		},
		&cli.StringFlag{
			Name:    "stoplist-file",
			Usage:   "path to JSON stoplist config for the keyword check",
			EnvVars: []string{"WARDEN_STOPLIST_FILE"},
		},
		&cli.IntFlag{
			Name:    "autoban-threshold",
			Value:   80,
			EnvVars: []string{"WARDEN_AUTOBAN_THRESHOLD"},
		},
		&cli.IntFlag{
			Name:    "review-threshold",
			Value:   50,
			EnvVars: []string{"WARDEN_REVIEW_THRESHOLD"},
		},
		&cli.IntFlag{
			Name:    "veto-threshold",
			Value:   95,
			EnvVars: []string{"WARDEN_VETO_THRESHOLD"},
		},
		&cli.IntFlag{
			Name:    "max-auto-samples",
			Usage:   "retained automatically-labeled corpus samples per label",
			Value:   10000,
			EnvVars: []string{"WARDEN_MAX_AUTO_SAMPLES"},
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Usage:   "how often expired restrictions are swept and lifted",
			Value:   time.Minute,
			EnvVars: []string{"WARDEN_SWEEP_INTERVAL"},
		},
		&cli.StringFlag{
			Name:    "admin-webhook-url",
			Usage:   "Slack-compatible webhook notified of enforcement actions",
			EnvVars: []string{"WARDEN_ADMIN_WEBHOOK_URL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		srv, err := NewServer(logger, configFromContext(cctx))
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(cctx.Context, cctx.String("bind")); err != nil {
			return fmt.Errorf("failed to run warden service: %w", err)
		}
		return nil
	},
}

func configFromContext(cctx *cli.Context) Config {
	return Config{
		DatabaseURL:          cctx.String("database-url"),
		MaxDBConnections:     cctx.Int("max-db-connections"),
		RedisURL:             cctx.String("redis-url"),
		PlatformHost:         cctx.String("platform-host"),
		PlatformToken:        cctx.String("platform-token"),
		PlatformRateLimit:    cctx.Int("platform-rate-limit"),
		ReputationHost:       cctx.String("reputation-host"),
		ReputationToken:      cctx.String("reputation-token"),
		ReputationDailyQuota: cctx.Int("reputation-daily-quota"),
		StopListFile:         cctx.String("stoplist-file"),
		AutoBanThreshold:     cctx.Int("autoban-threshold"),
		ReviewThreshold:      cctx.Int("review-threshold"),
		VetoThreshold:        cctx.Int("veto-threshold"),
		MaxAutoSamples:       cctx.Int("max-auto-samples"),
		SweepInterval:        cctx.Duration("sweep-interval"),
		AdminWebhookURL:      cctx.String("admin-webhook-url"),
	}
}
