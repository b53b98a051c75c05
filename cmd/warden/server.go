package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	slogecho "github.com/samber/slog-echo"
	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/detect/checks"
	"github.com/wardenhq/warden/detect/corpus"
	"github.com/wardenhq/warden/detect/countstore"
	"github.com/wardenhq/warden/detect/engine"
	"github.com/wardenhq/warden/detect/keyword"
	"github.com/wardenhq/warden/enforce"
	"github.com/wardenhq/warden/platform"
	"github.com/wardenhq/warden/store"
)

type Config struct {
	DatabaseURL      string
	MaxDBConnections int
	RedisURL         string

	PlatformHost      string
	PlatformToken     string
	PlatformRateLimit int

	ReputationHost       string
	ReputationToken      string
	ReputationDailyQuota int

	StopListFile string

	AutoBanThreshold int
	ReviewThreshold  int
	VetoThreshold    int

	MaxAutoSamples  int
	SweepInterval   time.Duration
	AdminWebhookURL string
}

type Server struct {
	logger       *slog.Logger
	store        *store.Store
	engine       *engine.Engine
	orchestrator *enforce.Orchestrator
	reconciler   *enforce.Reconciler
	similarity   *checks.Similarity
	echo         *echo.Echo
}

func NewServer(logger *slog.Logger, config Config) (*Server, error) {
	db, err := store.SetupDatabase(config.DatabaseURL, config.MaxDBConnections)
	if err != nil {
		return nil, err
	}
	st, err := store.NewStore(db)
	if err != nil {
		return nil, err
	}

	var counters countstore.CountStore
	if config.RedisURL != "" {
		// check redis connection before committing to it
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		if _, err := redis.NewClient(opt).Ping(context.TODO()).Result(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}
		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis countstore: %v", err)
		}
		counters = cnt
	} else {
		counters = countstore.NewMemCountStore()
	}

	stoplists := map[string]*keyword.StopList{}
	if config.StopListFile != "" {
		stoplists, err = keyword.LoadStopListsJSON(config.StopListFile)
		if err != nil {
			return nil, fmt.Errorf("loading stoplists: %v", err)
		}
		logger.Info("loaded stoplist config from JSON", "path", config.StopListFile, "lists", len(stoplists))
	}

	feed := corpus.NewFeed(logger, st, config.MaxAutoSamples)

	similarity, err := checks.NewSimilarity(10_000)
	if err != nil {
		return nil, err
	}

	checkList := []detect.Check{
		checks.NewShortMsg(),
		checks.NewKeyword(stoplists),
		similarity,
		checks.NewFlood(counters),
		checks.NewWordFreq(feed, 10*time.Minute),
	}
	if config.ReputationHost != "" {
		checkList = append(checkList, checks.NewReputation(
			config.ReputationHost,
			config.ReputationToken,
			60,
			int64(config.ReputationDailyQuota),
		))
	}
	registry, err := detect.NewRegistry(checkList...)
	if err != nil {
		return nil, err
	}

	client := platform.NewHTTPClient(config.PlatformHost, config.PlatformToken, config.PlatformRateLimit)

	var webhook *enforce.WebhookNotifier
	if config.AdminWebhookURL != "" {
		webhook = enforce.NewWebhookNotifier(config.AdminWebhookURL)
	}

	orchestrator := &enforce.Orchestrator{
		Logger:   logger,
		Store:    st,
		Platform: client,
		Notifier: enforce.NewNotifier(logger, client, st),
		Webhook:  webhook,
		Audit:    st,
		Locks:    enforce.NewKeyedLocks(),
	}

	eng := &engine.Engine{
		Logger:   logger,
		Checks:   registry,
		Resolver: engine.NewScopeResolver(st),
		Policy: engine.Policy{
			AutoBanThreshold:           config.AutoBanThreshold,
			ReviewQueueThreshold:       config.ReviewThreshold,
			MaxConfidenceVetoThreshold: config.VetoThreshold,
		},
		Store:    st,
		Corpus:   feed,
		Enforcer: orchestrator,
		Audit:    st,
	}

	reconciler := &enforce.Reconciler{
		Logger:   logger,
		Store:    st,
		Platform: client,
		Audit:    st,
		Interval: config.SweepInterval,
	}

	return &Server{
		logger:       logger,
		store:        st,
		engine:       eng,
		orchestrator: orchestrator,
		reconciler:   reconciler,
		similarity:   similarity,
	}, nil
}

// Run serves the HTTP API and the background expiry sweeper until the
// context is cancelled.
func (s *Server) Run(ctx context.Context, bind string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = s.errorHandler
	s.registerRoutes(e)
	s.echo = e

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.reconciler.Run(ctx)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		s.logger.Info("starting warden API", "bind", bind)
		err := e.Start(bind)
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	})
	return g.Wait()
}

func (s *Server) RunMetrics(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, mux)
}

func (s *Server) errorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "internal error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code >= 500 {
		s.logger.Warn("HTTP request error", "statusCode", code, "path", ctx.Path(), "err", err)
	}
	_ = ctx.JSON(code, map[string]any{"error": msg})
}
