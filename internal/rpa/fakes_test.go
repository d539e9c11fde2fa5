package rpa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"multi-platform-rpa/internal/browser"
	"multi-platform-rpa/internal/model"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps++
	return nil
}

func (c *fakeClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}

// fakeBackend emulates a page that runs the cooperative upload protocol.
// doneAfter is the number of render ticks after which isDone turns true;
// zero means never.
type fakeBackend struct {
	mu sync.Mutex

	doneAfter   int
	startErr    error
	navigateErr error
	cookieErr   error
	evalFail    map[string]string // entry point -> thrown message

	started     bool
	closed      int
	opts        browser.Options
	cookies     []browser.Cookie
	navigations []string
	scripts     []string
	tasks       []model.UploadTask
	ticks       int
	pushes      int
	typed       []string
	enters      int
}

func (f *fakeBackend) Start(_ context.Context, opts browser.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	f.opts = opts
	return nil
}

func (f *fakeBackend) SetCookies(_ context.Context, cookies []browser.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cookieErr != nil {
		return f.cookieErr
	}
	f.cookies = append(f.cookies, cookies...)
	return nil
}

func (f *fakeBackend) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	return f.navigateErr
}

func (f *fakeBackend) AddScript(_ context.Context, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, source)
	return nil
}

func (f *fakeBackend) Evaluate(_ context.Context, expr string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	reply := map[string]any{"ok": true}
	switch {
	case strings.Contains(expr, "window.rpConfig = "):
		start := strings.Index(expr, "window.rpConfig = ") + len("window.rpConfig = ")
		end := strings.Index(expr[start:], ";\n")
		var task model.UploadTask
		if err := json.Unmarshal([]byte(expr[start:start+end]), &task); err != nil {
			return err
		}
		f.tasks = append(f.tasks, task)
	case expr == isCompleteJS:
		reply["value"] = f.doneAfter > 0 && f.ticks >= f.doneAfter
	case expr == fmt.Sprintf(callEntryJS, entryStart):
		f.entryReply(entryStart, reply)
	case expr == fmt.Sprintf(callEntryJS, entryTick):
		f.ticks++
		f.entryReply(entryTick, reply)
	case expr == triggerJS:
		f.pushes++
		f.entryReply(entryTrigger, reply)
	default:
		return errors.New("unexpected expression: " + expr)
	}

	if out == nil {
		return nil
	}
	b, _ := json.Marshal(reply)
	return json.Unmarshal(b, out)
}

func (f *fakeBackend) entryReply(entry string, reply map[string]any) {
	if msg, ok := f.evalFail[entry]; ok {
		reply["ok"] = false
		reply["error"] = msg
	}
}

func (f *fakeBackend) InsertText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakeBackend) PressEnter(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enters++
	return nil
}

func (f *fakeBackend) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeBackend) Navigations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigations...)
}

// scriptsDir writes one trivial script per platform name.
func scriptsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n+".js"),
			[]byte("function renderVideo() {}\nfunction startPush() {}\n"), 0o644))
	}
	return dir
}
