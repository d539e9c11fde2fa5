// Package browser drives a single automated browser page for the RPA engine.
package browser

import (
	"context"
	"fmt"
)

// Options configures a browser launch.
type Options struct {
	Headless       bool
	ExecPath       string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int

	// InitScript runs in every document before any page script.
	InitScript string
	// OnHostCall receives capability-bridge calls that need the host.
	// Calls are delivered in order on a single goroutine.
	OnHostCall func(HostCall)
}

// Backend is one browser process with one context and one page.
type Backend interface {
	Start(ctx context.Context, opts Options) error
	SetCookies(ctx context.Context, cookies []Cookie) error
	// Navigate returns once the DOM of the new document is ready.
	Navigate(ctx context.Context, url string) error
	// AddScript evaluates source at page global scope.
	AddScript(ctx context.Context, source string) error
	// Evaluate runs expr, awaits a returned promise and decodes the JSON
	// value into out. out may be nil.
	Evaluate(ctx context.Context, expr string, out any) error
	InsertText(ctx context.Context, text string) error
	PressEnter(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

func New(driver string) (Backend, error) {
	switch driver {
	case DriverChromedp, "":
		return NewChromedp(), nil
	case DriverPlaywright:
		return NewPlaywright(), nil
	}
	return nil, fmt.Errorf("unknown browser driver: %s", driver)
}

// StealthArgs are passed to every launched browser.
var StealthArgs = []string{"--disable-blink-features=AutomationControlled"}
