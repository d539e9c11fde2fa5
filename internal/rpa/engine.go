package rpa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"multi-platform-rpa/internal/browser"
	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/metrics"
	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/platforms"
)

type EngineConfig struct {
	ScriptsDir     string
	ScreenshotsDir string // empty disables failure screenshots
	PollInterval   time.Duration
	PollAttempts   int
	Session        SessionConfig
}

type Option func(*Engine)

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine runs platform automation scripts in one browser session.
// Executions on an engine are serialized.
type Engine struct {
	cfg      EngineConfig
	registry *Registry
	session  *Session
	clock    Clock
	metrics  *metrics.Metrics
	log      *logging.Logger

	ids    *TabIDs
	driver *Driver

	mu          sync.Mutex
	initialized bool
}

func NewEngine(cfg EngineConfig, table platforms.Table, backend browser.Backend, log *logging.Logger, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, clock: SystemClock, log: log}
	for _, o := range opts {
		o(e)
	}
	e.registry = NewRegistry(cfg.ScriptsDir, table, log)
	e.session = NewSession(backend, cfg.Session, table, e.registry, log)
	e.ids = NewTabIDs(e.clock)
	e.driver = NewDriver(cfg.PollInterval, cfg.PollAttempts, e.clock, log)
	return e
}

// Initialize launches the browser and loads the script registry.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}
	if err := e.session.Initialize(ctx); err != nil {
		return err
	}
	e.registry.Load()
	e.initialized = true
	return nil
}

// LoadScripts loads the script registry without launching the browser.
// It is a no-op once the registry is loaded.
func (e *Engine) LoadScripts() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry.Load()
}

// ScanScripts lists the platforms with a script on disk now. The loaded
// set is not changed; see SupportedPlatforms.
func (e *Engine) ScanScripts() []model.Platform {
	return e.registry.Scan()
}

func (e *Engine) SupportedPlatforms() []model.Platform {
	return e.registry.List()
}

func (e *Engine) IsPlatformSupported(p model.Platform) bool {
	return e.registry.IsSupported(p)
}

// Execute runs one publish request through the browser. Failures are
// reported in the result; Execute itself never fails.
func (e *Engine) Execute(ctx context.Context, req model.PublishRequest) model.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := e.clock.Now()
	finish := func(res model.ExecutionResult) model.ExecutionResult {
		res.DurationMs = e.clock.Now().Sub(started).Milliseconds()
		res.Platform = req.Platform
		res.Method = model.MethodRPA
		return res
	}
	fail := func(err error) model.ExecutionResult {
		return finish(model.ExecutionResult{Error: err.Error(), ErrorKind: Kind(err)})
	}

	if !e.initialized {
		return fail(ErrNotInitialized)
	}
	if !e.registry.IsSupported(req.Platform) {
		return fail(fmt.Errorf("%s %w", req.Platform, ErrUnsupportedPlatform))
	}

	task := model.NewUploadTask(req.Content, e.ids.Next())
	log := e.log.With("rpa[" + task.TabID + "]")
	ctx = withLogger(ctx, log)
	log.Infof("publishing %q to %s", task.Title, req.Platform)

	outcome, err := e.run(ctx, req, task)
	e.metrics.ObservePolls(string(req.Platform), outcome.Attempts)
	if err != nil {
		log.Errorf("publish to %s failed: %v", req.Platform, err)
		res := fail(err)
		res.TabID = task.TabID
		if shot := e.screenshot(task.TabID, log); shot != "" {
			res.Screenshots = []string{shot}
		}
		return res
	}
	res := finish(model.ExecutionResult{Success: true, TabID: task.TabID})
	log.Infof("published to %s in %dms", req.Platform, res.DurationMs)
	return res
}

func (e *Engine) run(ctx context.Context, req model.PublishRequest, task model.UploadTask) (Outcome, error) {
	e.session.LoadCookies(ctx, req.CredentialPath)
	if err := e.session.Navigate(ctx, req.Platform); err != nil {
		return Outcome{State: StateIdle}, err
	}
	if err := e.session.InjectScript(ctx, req.Platform); err != nil {
		return Outcome{State: StateIdle}, err
	}
	if err := e.session.SetConfig(ctx, task); err != nil {
		return Outcome{State: StateIdle}, err
	}
	d := *e.driver
	d.log = logFrom(ctx, e.log)
	return d.Run(ctx, e.session.Bridge())
}

func (e *Engine) screenshot(tabID string, log *logging.Logger) string {
	if e.cfg.ScreenshotsDir == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	png, err := e.session.Screenshot(ctx)
	if err != nil {
		log.Warnf("failure screenshot: %v", err)
		return ""
	}
	if err := os.MkdirAll(e.cfg.ScreenshotsDir, 0o755); err != nil {
		log.Warnf("failure screenshot: %v", err)
		return ""
	}
	path := filepath.Join(e.cfg.ScreenshotsDir, tabID+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		log.Warnf("failure screenshot: %v", err)
		return ""
	}
	return path
}

// Cleanup releases the browser. The engine cannot be used afterwards.
func (e *Engine) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = false
	return e.session.Cleanup()
}

type loggerKey struct{}

func withLogger(ctx context.Context, l *logging.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func logFrom(ctx context.Context, fallback *logging.Logger) *logging.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*logging.Logger); ok && l != nil {
		return l
	}
	return fallback
}
