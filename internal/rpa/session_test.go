package rpa

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multi-platform-rpa/internal/browser"
	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/platforms"
)

func newTestSession(t *testing.T, backend *fakeBackend) *Session {
	t.Helper()
	reg := NewRegistry(scriptsDir(t, "bilibili"), platforms.Default(), logging.Discard())
	reg.Load()
	s := NewSession(backend, SessionConfig{ViewportWidth: 1920, ViewportHeight: 1080}, platforms.Default(), reg, logging.Discard())
	return s
}

func hostCall(method string, args ...any) browser.HostCall {
	c := browser.HostCall{Method: method}
	for _, a := range args {
		b, _ := json.Marshal(a)
		c.Args = append(c.Args, b)
	}
	return c
}

func TestSessionRequiresInitialize(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(t, backend)

	assert.ErrorIs(t, s.Navigate(context.Background(), model.PlatformBilibili), ErrNotInitialized)
	assert.ErrorIs(t, s.InjectScript(context.Background(), model.PlatformBilibili), ErrNotInitialized)
	assert.Empty(t, backend.navigations)
}

func TestSessionNavigateUnknownPlatform(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(t, backend)
	require.NoError(t, s.Initialize(context.Background()))

	err := s.Navigate(context.Background(), model.PlatformYouTube)
	assert.ErrorIs(t, err, ErrUnknownPlatform)
	err = s.Navigate(context.Background(), "myspace")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
	assert.Empty(t, backend.navigations)
}

func TestSessionCookieErrorsAreNotFatal(t *testing.T) {
	backend := &fakeBackend{cookieErr: errors.New("protocol error")}
	s := newTestSession(t, backend)
	require.NoError(t, s.Initialize(context.Background()))

	s.LoadCookies(context.Background(), cookieFile(t))
	s.LoadCookies(context.Background(), "")
	require.NoError(t, s.Navigate(context.Background(), model.PlatformBilibili))
	assert.Len(t, backend.navigations, 1)
}

func TestSessionHostCallsRoutedByTab(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(t, backend)
	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.SetConfig(context.Background(), model.UploadTask{TabID: "tab_1"}))

	s.handleHostCall(hostCall(browser.HostSendEvent, "#话题", "tab_1", "tab_1"))
	s.handleHostCall(hostCall(browser.HostSendEntryEvent, "tab_1", "tab_1"))
	s.handleHostCall(hostCall(browser.HostSendEvent, "stale", "tab_0", "tab_0"))
	s.handleHostCall(hostCall("somethingElse"))

	assert.Equal(t, []string{"#话题"}, backend.typed)
	assert.Equal(t, 1, backend.enters)
}

func TestSessionSetConfigResetsFlag(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(t, backend)
	require.NoError(t, s.Initialize(context.Background()))

	task := model.UploadTask{VideoPath: "v.mp4", VideoMime: "video/mp4", TabID: "tab_7"}
	require.NoError(t, s.SetConfig(context.Background(), task))

	require.Len(t, backend.tasks, 1)
	assert.Equal(t, task, backend.tasks[0])
	assert.Equal(t, "tab_7", s.currentTab())
}

func TestSessionCleanup(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(t, backend)

	require.NoError(t, s.Cleanup(), "cleanup before initialize")
	assert.Equal(t, 0, backend.closed)
	assert.ErrorIs(t, s.Initialize(context.Background()), ErrSessionClosed)

	s2 := newTestSession(t, backend)
	require.NoError(t, s2.Initialize(context.Background()))
	require.NoError(t, s2.Cleanup())
	require.NoError(t, s2.Cleanup())
	assert.Equal(t, 1, backend.closed)
	assert.ErrorIs(t, s2.Navigate(context.Background(), model.PlatformBilibili), ErrSessionClosed)
}
