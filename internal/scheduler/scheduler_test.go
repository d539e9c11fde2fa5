package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multi-platform-rpa/internal"
	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/publishers"
)

const scheduleYAML = `
jobs:
  - name: evening
    spec: "0 0 20 * * *"
    requests:
      - platform: Bilibili
        content:
          videoFile: daily/clip.mp4
          title: Daily clip
      - platform: zhihu
        content: {videoPath: daily/clip.mp4}
  - name: hourly-telegram
    spec: "@hourly"
    requests:
      - platform: telegram
        content: {videoPath: daily/clip.mp4, description: hi}
`

func writeSchedule(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "schedule.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadSchedule(t *testing.T) {
	s, err := LoadSchedule(writeSchedule(t, scheduleYAML))
	require.NoError(t, err)
	require.Len(t, s.Jobs, 2)

	evening := s.Jobs[0]
	assert.Equal(t, "evening", evening.Name)
	require.Len(t, evening.Requests, 2)
	assert.Equal(t, model.PlatformBilibili, evening.Requests[0].Platform, "platform names normalized")
	assert.Equal(t, "daily/clip.mp4", evening.Requests[0].Content.Video())
	assert.Equal(t, "Daily clip", evening.Requests[0].Content.Title)
	assert.Equal(t, "daily/clip.mp4", evening.Requests[1].Content.Video())
}

func TestLoadScheduleEmptyPath(t *testing.T) {
	s, err := LoadSchedule("")
	require.NoError(t, err)
	assert.Empty(t, s.Jobs)
}

func TestLoadScheduleInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing name", "jobs:\n  - spec: '@daily'\n    requests: [{platform: weibo}]\n", "name is required"},
		{"bad spec", "jobs:\n  - name: a\n    spec: '0 20 * * *'\n    requests: [{platform: weibo}]\n", "bad spec"},
		{"no requests", "jobs:\n  - name: a\n    spec: '@daily'\n", "no requests"},
		{"unknown platform", "jobs:\n  - name: a\n    spec: '@daily'\n    requests: [{platform: myspace}]\n", "unknown platform"},
		{"duplicate", "jobs:\n  - {name: a, spec: '@daily', requests: [{platform: weibo}]}\n  - {name: a, spec: '@daily', requests: [{platform: weibo}]}\n", "duplicate"},
		{"yaml", "jobs: [", "parse schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSchedule(writeSchedule(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

type fakeBatch struct {
	mu      sync.Mutex
	calls   [][]model.PublishRequest
	sources []string
}

func (f *fakeBatch) DispatchBatch(ctx context.Context, reqs []model.PublishRequest) []model.ExecutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, reqs)
	f.sources = append(f.sources, publishers.SourceFrom(ctx))
	out := make([]model.ExecutionResult, len(reqs))
	for i, r := range reqs {
		out[i] = model.ExecutionResult{Platform: r.Platform, Success: r.Platform != model.PlatformZhihu, Error: "upload timed out after 60 attempts"}
	}
	return out
}

func TestRegisterRunsJobsAsCron(t *testing.T) {
	s, err := LoadSchedule(writeSchedule(t, scheduleYAML))
	require.NoError(t, err)
	c := cron.New(cron.WithSeconds())
	d := &fakeBatch{}

	require.NoError(t, Register(context.Background(), c, s, d, logging.Discard()))

	entries := c.Entries()
	require.Len(t, entries, 2)
	entries[0].Job.Run()

	require.Len(t, d.calls, 1)
	assert.Len(t, d.calls[0], 2)
	assert.Equal(t, publishers.SourceCron, d.sources[0])
}

func TestJobSkippedAfterCancel(t *testing.T) {
	s, err := LoadSchedule(writeSchedule(t, scheduleYAML))
	require.NoError(t, err)
	c := cron.New(cron.WithSeconds())
	d := &fakeBatch{}
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, Register(ctx, c, s, d, logging.Discard()))
	cancel()

	c.Entries()[0].Job.Run()

	assert.Empty(t, d.calls)
}

type fakeScripts struct {
	loaded []model.Platform
	disk   []model.Platform
	scans  int
}

func (f *fakeScripts) ScanScripts() []model.Platform {
	f.scans++
	return f.disk
}

func (f *fakeScripts) SupportedPlatforms() []model.Platform { return f.loaded }

func TestScriptMonitorCheck(t *testing.T) {
	src := &fakeScripts{
		loaded: []model.Platform{model.PlatformBilibili, model.PlatformWeibo},
		disk:   []model.Platform{model.PlatformBilibili, model.PlatformZhihu},
	}
	m := NewScriptMonitor(src, 0, logging.Discard())

	added, removed := m.Check()
	assert.Equal(t, []model.Platform{model.PlatformZhihu}, added)
	assert.Equal(t, []model.Platform{model.PlatformWeibo}, removed)

	// drift persists until a restart: the loaded set is not touched
	added, removed = m.Check()
	assert.Equal(t, []model.Platform{model.PlatformZhihu}, added)
	assert.Equal(t, []model.Platform{model.PlatformWeibo}, removed)
	assert.Equal(t, []model.Platform{model.PlatformBilibili, model.PlatformWeibo}, src.loaded)
	assert.Equal(t, 2, src.scans)

	src.disk = []model.Platform{model.PlatformBilibili, model.PlatformWeibo}
	added, removed = m.Check()
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestScriptMonitorStopIsIdempotent(t *testing.T) {
	m := NewScriptMonitor(&fakeScripts{}, 0, logging.Discard())
	m.Start(context.Background())
	m.Stop()
	m.Stop()
}

func TestDirectPublishers(t *testing.T) {
	assert.Empty(t, DirectPublishers(internal.Config{}, logging.Discard()))

	got := DirectPublishers(internal.Config{
		YouTubeToken:   "token.json",
		XConsumerKey:   "ck",
		XAccessToken:   "at",
		TelegramToken:  "tg",
		TelegramChatID: -100,
	}, logging.Discard())

	var names []model.Platform
	for _, p := range got {
		names = append(names, p.Platform())
	}
	assert.Equal(t, []model.Platform{model.PlatformYouTube, model.PlatformX, model.PlatformTelegram}, names)
}

func TestFileBufferURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:3409/api/file-buffer", FileBufferURL("http://127.0.0.1:3409/"))
	assert.Equal(t, "http://files.local/api/file-buffer", FileBufferURL("http://files.local"))
}
