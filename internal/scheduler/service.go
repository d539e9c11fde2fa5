package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"multi-platform-rpa/internal"
	"multi-platform-rpa/internal/browser"
	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/metrics"
	"multi-platform-rpa/internal/platforms"
	"multi-platform-rpa/internal/publishers"
	"multi-platform-rpa/internal/records"
	"multi-platform-rpa/internal/rpa"
	"multi-platform-rpa/internal/s3"
	"multi-platform-rpa/internal/server"
)

const scriptCheckInterval = 5 * time.Minute

// Stack is the publishing core shared by the daemon and the CLI.
type Stack struct {
	Config     internal.Config
	Table      platforms.Table
	Engine     *rpa.Engine
	Dispatcher *publishers.Dispatcher
	Metrics    *metrics.Metrics
}

// NewStack wires the engine, record store and publishers from cfg. The
// browser is not launched; call Engine.Initialize before publishing.
func NewStack(ctx context.Context, cfg internal.Config, log *logging.Logger) (*Stack, error) {
	table, err := platforms.Load(cfg.PlatformsFile)
	if err != nil {
		return nil, err
	}
	backend, err := browser.New(cfg.BrowserDriver)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(reg)

	engine := rpa.NewEngine(rpa.EngineConfig{
		ScriptsDir:     cfg.ScriptsDir,
		ScreenshotsDir: cfg.ScreenshotsDir,
		PollInterval:   cfg.PollInterval,
		PollAttempts:   cfg.PollAttempts,
		Session: rpa.SessionConfig{
			Headless:       cfg.Headless,
			ExecPath:       cfg.ChromePath,
			UserAgent:      cfg.UserAgent,
			ViewportWidth:  cfg.ViewportWidth,
			ViewportHeight: cfg.ViewportHeight,
			FileBufferURL:  FileBufferURL(cfg.FileServerURL),
		},
	}, table, backend, log.With("rpa"), rpa.WithMetrics(m))

	store, err := newRecordStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	d := publishers.NewDispatcher(table, engine, cfg.StorageDir, log.With("dispatch"),
		publishers.WithRecords(store), publishers.WithMetrics(m))
	for _, p := range DirectPublishers(cfg, log) {
		d.Add(p)
		log.Infof("direct publisher enabled: %s", p.Platform())
	}

	return &Stack{Config: cfg, Table: table, Engine: engine, Dispatcher: d, Metrics: m}, nil
}

// FileBufferURL is the endpoint the in-page bridge fetches videos from.
func FileBufferURL(base string) string {
	return strings.TrimRight(base, "/") + "/api/file-buffer"
}

func newRecordStore(ctx context.Context, cfg internal.Config) (records.Store, error) {
	if !cfg.S3Enabled() {
		return records.NewFileStore(cfg.RecordsFile, cfg.MaxRecords), nil
	}
	c, err := s3.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return records.NewS3Store(c, cfg.RecordsJSONKey, cfg.MaxRecords), nil
}

// DirectPublishers returns the API publishers whose credentials are
// configured. Platforms left out answer "not implemented".
func DirectPublishers(cfg internal.Config, log *logging.Logger) []publishers.Publisher {
	var out []publishers.Publisher
	if cfg.YouTubeClientSecrets != "" || cfg.YouTubeToken != "" {
		out = append(out, publishers.NewYouTube(cfg.YouTubeClientSecrets, cfg.YouTubeToken))
	}
	if cfg.XConsumerKey != "" && cfg.XAccessToken != "" {
		out = append(out, publishers.NewX(cfg.XConsumerKey, cfg.XConsumerSecret, cfg.XAccessToken, cfg.XAccessTokenSecret, log.With("x")))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		out = append(out, publishers.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID))
	}
	return out
}

// Service is the long-running daemon: HTTP API, cron jobs and the
// script monitor around one engine.
type Service struct {
	log     *logging.Logger
	cron    *cron.Cron
	stack   *Stack
	server  *server.Server
	monitor *ScriptMonitor

	schedule Schedule
	jobsOnce sync.Once
}

func BuildService(ctx context.Context, log *logging.Logger) (*Service, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, err
	}
	schedule, err := LoadSchedule(cfg.ScheduleFile)
	if err != nil {
		return nil, err
	}
	stack, err := NewStack(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	router := server.NewRouter(server.Deps{
		StorageDir: cfg.StorageDir,
		Dispatcher: stack.Dispatcher,
		Metrics:    stack.Metrics,
		Log:        log,
		ErrorsLog:  cfg.ErrorsLog,
	})

	return &Service{
		log:      log,
		cron:     cron.New(cron.WithSeconds()),
		stack:    stack,
		server:   server.New(cfg.HTTPAddr, router, log.With("http")),
		schedule: schedule,
	}, nil
}

func (s *Service) Stack() *Stack { return s.stack }

// Run launches the browser, then serves until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.stack.Engine.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	defer func() {
		if err := s.stack.Engine.Cleanup(); err != nil {
			s.log.Errorf("engine cleanup: %v", err)
		}
	}()
	s.log.Infof("rpa scripts loaded for %v", s.stack.Engine.SupportedPlatforms())

	var regErr error
	s.jobsOnce.Do(func() { regErr = Register(ctx, s.cron, s.schedule, s.stack.Dispatcher, s.log) })
	if regErr != nil {
		return regErr
	}
	s.cron.Start()

	s.monitor = NewScriptMonitor(s.stack.Engine, scriptCheckInterval, s.log)
	s.monitor.Start(ctx)

	srvErr := make(chan error, 1)
	go func() { srvErr <- s.server.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = <-srvErr
	case runErr = <-srvErr:
	}

	s.monitor.Stop()

	ctxStop := s.cron.Stop()
	select {
	case <-ctxStop.Done():
	case <-time.After(10 * time.Second):
		return errors.Join(runErr, errors.New("cron stop timeout"))
	}
	return runErr
}
