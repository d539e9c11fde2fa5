package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Chromedp is the default Backend, driving Chrome over the DevTools protocol.
type Chromedp struct {
	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	queue       *hostQueue
}

func NewChromedp() *Chromedp {
	return &Chromedp{}
}

func (c *Chromedp) Start(ctx context.Context, opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tabCtx != nil {
		return errors.New("browser already started")
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
	)
	for _, arg := range StealthArgs {
		name, value, _ := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	// The browser outlives the request that started it; only Close ends it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	queue := newHostQueue(opts.OnHostCall)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != HostBinding {
			return
		}
		call, err := ParseHostCall(called.Payload)
		if err != nil {
			return
		}
		queue.push(call)
	})

	c.allocCancel = allocCancel
	c.tabCtx = tabCtx
	c.tabCancel = tabCancel
	c.queue = queue

	err := runOn(tabCtx, ctx,
		chromedp.EmulateViewport(int64(opts.ViewportWidth), int64(opts.ViewportHeight)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := runtime.AddBinding(HostBinding).Do(ctx); err != nil {
				return fmt.Errorf("add host binding: %w", err)
			}
			if opts.InitScript == "" {
				return nil
			}
			_, err := page.AddScriptToEvaluateOnNewDocument(opts.InitScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		c.closeLocked()
		return fmt.Errorf("start chrome: %w", err)
	}
	return nil
}

func (c *Chromedp) run(ctx context.Context, actions ...chromedp.Action) error {
	c.mu.Lock()
	tab := c.tabCtx
	c.mu.Unlock()
	if tab == nil {
		return errors.New("browser not started")
	}
	return runOn(tab, ctx, actions...)
}

// runOn executes actions on the tab, aborting when ctx is done.
func runOn(tab, ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Chromedp) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, ck := range cookies {
		p := &network.CookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			URL:      ck.URL,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
		}
		switch strings.ToLower(ck.SameSite) {
		case "strict":
			p.SameSite = network.CookieSameSiteStrict
		case "lax":
			p.SameSite = network.CookieSameSiteLax
		case "none", "no_restriction":
			p.SameSite = network.CookieSameSiteNone
		}
		if ck.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

func (c *Chromedp) Navigate(ctx context.Context, url string) error {
	return c.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (c *Chromedp) AddScript(ctx context.Context, source string) error {
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, exc, err := runtime.Evaluate(source).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return errors.New(exceptionMessage(exc))
		}
		return nil
	}))
}

func (c *Chromedp) Evaluate(ctx context.Context, expr string, out any) error {
	var raw []byte
	var target any
	if out != nil {
		target = &raw
	}
	err := c.run(ctx, chromedp.Evaluate(expr, target, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		var exc *runtime.ExceptionDetails
		if errors.As(err, &exc) {
			return errors.New(exceptionMessage(exc))
		}
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Chromedp) InsertText(ctx context.Context, text string) error {
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
}

func (c *Chromedp) PressEnter(ctx context.Context) error {
	return c.run(ctx, chromedp.KeyEvent(kb.Enter))
}

func (c *Chromedp) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *Chromedp) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Chromedp) closeLocked() {
	if c.tabCancel != nil {
		c.tabCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	if c.queue != nil {
		c.queue.close()
	}
	c.tabCtx, c.tabCancel, c.allocCancel, c.queue = nil, nil, nil, nil
}

func exceptionMessage(exc *runtime.ExceptionDetails) string {
	if exc.Exception != nil && exc.Exception.Description != "" {
		msg, _, _ := strings.Cut(exc.Exception.Description, "\n")
		return msg
	}
	return exc.Text
}
