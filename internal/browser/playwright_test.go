package browser

import (
	"errors"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
)

type closeLog []string

type fakePWContext struct {
	playwright.BrowserContext
	log *closeLog
	err error
}

func (c *fakePWContext) Close(...playwright.BrowserContextCloseOptions) error {
	*c.log = append(*c.log, "context")
	return c.err
}

type fakePWBrowser struct {
	playwright.Browser
	log *closeLog
}

func (b *fakePWBrowser) Close(...playwright.BrowserCloseOptions) error {
	*b.log = append(*b.log, "browser")
	return nil
}

func TestPlaywrightCloseOrder(t *testing.T) {
	var log closeLog
	p := &Playwright{
		browser: &fakePWBrowser{log: &log},
		context: &fakePWContext{log: &log, err: errors.New("target closed")},
		queue:   newHostQueue(func(HostCall) {}),
	}

	err := p.Close()
	assert.EqualError(t, err, "target closed")
	assert.Equal(t, closeLog{"context", "browser"}, log)

	assert.NoError(t, p.Close(), "second close is a no-op")
	assert.Len(t, log, 2)
}
