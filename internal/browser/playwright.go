package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// Playwright is the alternate Backend, for hosts where the bundled
// Playwright Chromium is preferred over a system Chrome.
type Playwright struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	queue   *hostQueue
}

func NewPlaywright() *Playwright {
	return &Playwright{}
}

func (p *Playwright) Start(ctx context.Context, opts Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pw != nil {
		return errors.New("browser already started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
		return fmt.Errorf("failed to install playwright browsers: %w", err)
	}
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	p.pw = pw

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     StealthArgs,
	}
	if opts.ExecPath != "" {
		launch.ExecutablePath = playwright.String(opts.ExecPath)
	}
	p.browser, err = pw.Chromium.Launch(launch)
	if err != nil {
		p.closeLocked()
		return fmt.Errorf("launch chromium: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight},
	}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	p.context, err = p.browser.NewContext(ctxOpts)
	if err != nil {
		p.closeLocked()
		return fmt.Errorf("failed to create browser context: %w", err)
	}

	p.queue = newHostQueue(opts.OnHostCall)
	queue := p.queue
	err = p.context.ExposeFunction(HostBinding, func(args ...interface{}) interface{} {
		if len(args) == 0 {
			return nil
		}
		payload, ok := args[0].(string)
		if !ok {
			return nil
		}
		if call, err := ParseHostCall(payload); err == nil {
			queue.push(call)
		}
		return nil
	})
	if err != nil {
		p.closeLocked()
		return fmt.Errorf("expose host binding: %w", err)
	}

	if opts.InitScript != "" {
		if err := p.context.AddInitScript(playwright.Script{Content: playwright.String(opts.InitScript)}); err != nil {
			p.closeLocked()
			return fmt.Errorf("add init script: %w", err)
		}
	}

	p.page, err = p.context.NewPage()
	if err != nil {
		p.closeLocked()
		return fmt.Errorf("failed to create page: %w", err)
	}
	return nil
}

func (p *Playwright) current() (playwright.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.page == nil {
		return nil, errors.New("browser not started")
	}
	return p.page, nil
}

func (p *Playwright) SetCookies(ctx context.Context, cookies []Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	bctx := p.context
	p.mu.Unlock()
	if bctx == nil {
		return errors.New("browser not started")
	}

	pwCookies := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		var sameSite *playwright.SameSiteAttribute
		switch strings.ToLower(c.SameSite) {
		case "strict":
			sameSite = playwright.SameSiteAttributeStrict
		case "none", "no_restriction":
			sameSite = playwright.SameSiteAttributeNone
		case "lax":
			sameSite = playwright.SameSiteAttributeLax
		}
		pc := playwright.OptionalCookie{Name: c.Name, Value: c.Value, SameSite: sameSite}
		// url and domain are mutually exclusive
		if c.Domain != "" {
			pc.Domain = playwright.String(c.Domain)
			pc.Path = playwright.String(c.Path)
		} else {
			pc.URL = playwright.String(c.URL)
		}
		if c.Expires > 0 {
			pc.Expires = playwright.Float(c.Expires)
		}
		if c.HTTPOnly {
			pc.HttpOnly = playwright.Bool(true)
		}
		if c.Secure {
			pc.Secure = playwright.Bool(true)
		}
		pwCookies = append(pwCookies, pc)
	}
	return bctx.AddCookies(pwCookies)
}

func (p *Playwright) Navigate(ctx context.Context, url string) error {
	page, err := p.current()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

func (p *Playwright) AddScript(ctx context.Context, source string) error {
	page, err := p.current()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = page.AddScriptTag(playwright.PageAddScriptTagOptions{Content: playwright.String(source)})
	return err
}

func (p *Playwright) Evaluate(ctx context.Context, expr string, out any) error {
	page, err := p.current()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := page.Evaluate(expr)
	if err != nil {
		return err
	}
	if out == nil || v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode evaluate result: %w", err)
	}
	return json.Unmarshal(b, out)
}

func (p *Playwright) InsertText(ctx context.Context, text string) error {
	page, err := p.current()
	if err != nil {
		return err
	}
	return page.Keyboard().InsertText(text)
}

func (p *Playwright) PressEnter(ctx context.Context) error {
	page, err := p.current()
	if err != nil {
		return err
	}
	return page.Keyboard().Press("Enter")
}

func (p *Playwright) Screenshot(ctx context.Context) ([]byte, error) {
	page, err := p.current()
	if err != nil {
		return nil, err
	}
	return page.Screenshot()
}

func (p *Playwright) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

// closeLocked tears down in reverse order of creation: the context (and
// its pages) before the browser, the driver last.
func (p *Playwright) closeLocked() error {
	var errs []error
	if p.context != nil {
		errs = append(errs, p.context.Close())
	}
	if p.browser != nil {
		errs = append(errs, p.browser.Close())
	}
	if p.pw != nil {
		errs = append(errs, p.pw.Stop())
	}
	if p.queue != nil {
		p.queue.close()
	}
	p.pw, p.browser, p.context, p.page, p.queue = nil, nil, nil, nil, nil
	return errors.Join(errs...)
}
