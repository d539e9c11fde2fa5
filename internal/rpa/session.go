package rpa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"multi-platform-rpa/internal/browser"
	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/platforms"
)

// SessionConfig is the browser launch profile.
type SessionConfig struct {
	Headless       bool
	ExecPath       string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	// FileBufferURL is the full URL of the host's file-buffer endpoint.
	FileBufferURL string
}

type sessionState int

const (
	sessionNew sessionState = iota
	sessionReady
	sessionClosed
)

const hostCallTimeout = 10 * time.Second

// Session owns the browser page used for automation. It is created
// once, initialized once and destroyed by Cleanup.
type Session struct {
	backend  browser.Backend
	cfg      SessionConfig
	table    platforms.Table
	registry *Registry
	log      *logging.Logger

	mu    sync.Mutex
	state sessionState
	tabID string // correlation id of the task currently configured

	hostCtx    context.Context
	hostCancel context.CancelFunc
}

func NewSession(backend browser.Backend, cfg SessionConfig, table platforms.Table, registry *Registry, log *logging.Logger) *Session {
	return &Session{backend: backend, cfg: cfg, table: table, registry: registry, log: log}
}

// Initialize launches the browser with the capability bridge installed.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case sessionReady:
		return nil
	case sessionClosed:
		return ErrSessionClosed
	}

	s.hostCtx, s.hostCancel = context.WithCancel(context.Background())
	err := s.backend.Start(ctx, browser.Options{
		Headless:       s.cfg.Headless,
		ExecPath:       s.cfg.ExecPath,
		UserAgent:      s.cfg.UserAgent,
		ViewportWidth:  s.cfg.ViewportWidth,
		ViewportHeight: s.cfg.ViewportHeight,
		InitScript:     browser.InitScript(s.cfg.FileBufferURL),
		OnHostCall:     s.handleHostCall,
	})
	if err != nil {
		s.hostCancel()
		_ = s.backend.Close()
		return fmt.Errorf("initialize browser: %w", err)
	}
	s.state = sessionReady
	s.log.Infof("browser session ready (%dx%d, headless=%v)", s.cfg.ViewportWidth, s.cfg.ViewportHeight, s.cfg.Headless)
	return nil
}

func (s *Session) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case sessionNew:
		return ErrNotInitialized
	case sessionClosed:
		return ErrSessionClosed
	}
	return nil
}

// LoadCookies adds the cookies in path to the browser context. Failures
// are logged and otherwise ignored.
func (s *Session) LoadCookies(ctx context.Context, path string) {
	log := logFrom(ctx, s.log)
	if path == "" {
		log.Warnf("no credential file given, continuing without cookies")
		return
	}
	if err := s.ready(); err != nil {
		log.Warnf("cookies not loaded: %v", err)
		return
	}
	cookies, err := browser.LoadCookies(path)
	if err != nil {
		log.Warnf("cookies not loaded: %v", err)
		return
	}
	if err := s.backend.SetCookies(ctx, cookies); err != nil {
		log.Warnf("cookies not applied: %v", err)
		return
	}
	log.Infof("loaded %d cookies from %s", len(cookies), path)
}

// Navigate opens the platform's upload page and waits for DOM ready.
func (s *Session) Navigate(ctx context.Context, p model.Platform) error {
	entry, ok := s.table.Lookup(p)
	if !ok || entry.URL == "" {
		return fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
	}
	if err := s.ready(); err != nil {
		return err
	}
	logFrom(ctx, s.log).Infof("navigating to %s", entry.URL)
	if err := s.backend.Navigate(ctx, entry.URL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &navigationError{err: fmt.Errorf("navigate to %s: %w", entry.URL, err)}
	}
	return nil
}

// InjectScript evaluates the platform's automation script in the page.
func (s *Session) InjectScript(ctx context.Context, p model.Platform) error {
	if err := s.ready(); err != nil {
		return err
	}
	src, err := s.registry.Script(p)
	if err != nil {
		return err
	}
	if err := s.backend.AddScript(ctx, src); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &PageError{Op: "inject", Message: fmt.Sprintf("inject %s script: %v", p, err)}
	}
	return nil
}

// SetConfig publishes task to the page and resets the completion flag.
func (s *Session) SetConfig(ctx context.Context, task model.UploadTask) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.mu.Lock()
	s.tabID = task.TabID
	s.mu.Unlock()
	return s.Bridge().SetTask(ctx, task)
}

// Bridge returns the protocol view of the current page.
func (s *Session) Bridge() Bridge {
	return NewPageBridge(s.backend)
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.backend.Screenshot(ctx)
}

// Cleanup closes the browser. It is safe to call more than once and after
// a failed Initialize.
func (s *Session) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == sessionClosed {
		return nil
	}
	wasStarted := s.state == sessionReady
	s.state = sessionClosed
	if s.hostCancel != nil {
		s.hostCancel()
	}
	if !wasStarted {
		return nil
	}
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	s.log.Infof("browser session closed")
	return nil
}

func (s *Session) currentTab() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabID
}

// handleHostCall serves bridge calls that need real input events.
func (s *Session) handleHostCall(call browser.HostCall) {
	var tabID string
	switch call.Method {
	case browser.HostSendEvent:
		tabID = call.StringArg(1)
	case browser.HostSendEntryEvent:
		tabID = call.StringArg(0)
	default:
		s.log.Debugf("ignoring host call %s", call.Method)
		return
	}
	if cur := s.currentTab(); tabID != cur {
		s.log.Warnf("host call %s for tab %s ignored, current tab is %s", call.Method, tabID, cur)
		return
	}

	ctx, cancel := context.WithTimeout(s.hostCtx, hostCallTimeout)
	defer cancel()
	var err error
	if call.Method == browser.HostSendEvent {
		err = s.backend.InsertText(ctx, call.StringArg(0))
	} else {
		err = s.backend.PressEnter(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Errorf("host call %s for tab %s: %v", call.Method, tabID, err)
	}
}
