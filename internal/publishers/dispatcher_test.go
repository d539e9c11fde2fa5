package publishers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/metrics"
	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/platforms"
	"multi-platform-rpa/internal/records"
)

type fakeEngine struct {
	supported map[model.Platform]bool
	calls     []model.PublishRequest
	result    func(req model.PublishRequest) model.ExecutionResult
}

func (e *fakeEngine) Execute(_ context.Context, req model.PublishRequest) model.ExecutionResult {
	e.calls = append(e.calls, req)
	if e.result != nil {
		return e.result(req)
	}
	return model.ExecutionResult{Success: true, Platform: req.Platform, Method: model.MethodRPA, DurationMs: 1000, TabID: "tab_1_1"}
}

func (e *fakeEngine) IsPlatformSupported(p model.Platform) bool { return e.supported[p] }

type fakePublisher struct {
	platform model.Platform
	err      error
	got      *Request
}

func (p *fakePublisher) Platform() model.Platform { return p.platform }

func (p *fakePublisher) Publish(_ context.Context, req *Request) (*Result, error) {
	p.got = req
	if p.err != nil {
		return nil, p.err
	}
	return &Result{URL: "https://example.com/" + string(p.platform)}, nil
}

type dispatcherFixture struct {
	d       *Dispatcher
	engine  *fakeEngine
	records records.Store
	reg     *prometheus.Registry
	root    string
}

func newDispatcherFixture(t *testing.T) dispatcherFixture {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "clip.mp4"), []byte("video"), 0o644))
	engine := &fakeEngine{supported: map[model.Platform]bool{model.PlatformBilibili: true}}
	store := records.NewFileStore(filepath.Join(t.TempDir(), "records.json"), 10)
	reg := prometheus.NewRegistry()
	d := NewDispatcher(platforms.Default(), engine, root, logging.Discard(),
		WithRecords(store), WithMetrics(metrics.MustNewMetrics(reg)))
	return dispatcherFixture{d: d, engine: engine, records: store, reg: reg, root: root}
}

func TestDispatchRoutesRPA(t *testing.T) {
	fx := newDispatcherFixture(t)
	req := model.PublishRequest{Platform: model.PlatformBilibili, Content: model.Content{VideoPath: "clip.mp4", Title: "T"}}

	res, err := fx.d.Dispatch(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, fx.engine.calls, 1)
	assert.Equal(t, req, fx.engine.calls[0])

	recent, err := fx.records.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, SourceAPI, recent[0].Source)
	assert.Equal(t, "tab_1_1", recent[0].TabID)
}

func TestDispatchRPAUnsupportedGoesThroughEngine(t *testing.T) {
	fx := newDispatcherFixture(t)
	fx.engine.result = func(req model.PublishRequest) model.ExecutionResult {
		return model.ExecutionResult{Error: string(req.Platform) + " not supported", ErrorKind: model.ErrorKindConfig, Method: model.MethodRPA}
	}

	res, err := fx.d.Dispatch(context.Background(), model.PublishRequest{Platform: model.PlatformWeibo})
	require.NoError(t, err)
	assert.Equal(t, "weibo not supported", res.Error)
}

func TestDispatchDirectNotImplemented(t *testing.T) {
	fx := newDispatcherFixture(t)

	_, err := fx.d.Dispatch(context.Background(), model.PublishRequest{Platform: model.PlatformTencent})

	require.ErrorIs(t, err, ErrNotImplemented)
	assert.EqualError(t, err, "direct publisher not implemented for: tencent")
	assert.Empty(t, fx.engine.calls)
}

func TestDispatchUnknownPlatform(t *testing.T) {
	fx := newDispatcherFixture(t)
	_, err := fx.d.Dispatch(context.Background(), model.PublishRequest{Platform: "myspace"})
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestDispatchDirect(t *testing.T) {
	fx := newDispatcherFixture(t)
	pub := &fakePublisher{platform: model.PlatformX}
	fx.d.Add(pub)

	res, err := fx.d.Dispatch(WithSource(context.Background(), SourceCLI), model.PublishRequest{
		Platform: model.PlatformX,
		Content:  model.Content{VideoFile: "clip.mp4", Title: "T", Text: "body", Tags: []string{"a"}},
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, model.MethodDirectAPI, res.Method)
	assert.Equal(t, "https://example.com/x", res.URL)
	require.NotNil(t, pub.got)
	assert.Equal(t, filepath.Join(fx.root, "clip.mp4"), pub.got.VideoPath)
	assert.Equal(t, "body", pub.got.Description)

	recent, _ := fx.records.Recent(context.Background(), 1)
	require.Len(t, recent, 1)
	assert.Equal(t, SourceCLI, recent[0].Source)
	n, err := testutil.GatherAndCount(fx.reg, "rpa_executions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDispatchDirectFailures(t *testing.T) {
	tests := []struct {
		name  string
		video string
		err   error
		kind  model.ErrorKind
	}{
		{"path escapes storage", "../etc/passwd", nil, model.ErrorKindConfig},
		{"missing credentials", "clip.mp4", ErrMissingCredentials, model.ErrorKindCredential},
		{"api error", "clip.mp4", errors.New("status=403 | duplicate content"), model.ErrorKindPublish},
		{"canceled", "clip.mp4", context.Canceled, model.ErrorKindCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newDispatcherFixture(t)
			fx.d.Add(&fakePublisher{platform: model.PlatformTelegram, err: tt.err})

			res, err := fx.d.Dispatch(context.Background(), model.PublishRequest{
				Platform: model.PlatformTelegram, Content: model.Content{VideoPath: tt.video},
			})

			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestDispatchBatch(t *testing.T) {
	fx := newDispatcherFixture(t)
	fx.d.Add(&fakePublisher{platform: model.PlatformYouTube})

	results := fx.d.DispatchBatch(context.Background(), []model.PublishRequest{
		{Platform: model.PlatformBilibili, Content: model.Content{VideoPath: "clip.mp4"}},
		{Platform: model.PlatformXiaohongshu},
		{Platform: model.PlatformYouTube, Content: model.Content{VideoPath: "clip.mp4"}},
	})

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, model.ErrorKindConfig, results[1].ErrorKind)
	assert.Equal(t, model.PlatformXiaohongshu, results[1].Platform)
	assert.True(t, results[2].Success)

	recent, _ := fx.records.Recent(context.Background(), 10)
	require.Len(t, recent, 2, "rejected requests are not recorded")
	assert.Equal(t, SourceBatch, recent[0].Source)
}

func TestDispatchBatchCanceled(t *testing.T) {
	fx := newDispatcherFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	fx.engine.result = func(req model.PublishRequest) model.ExecutionResult {
		cancel()
		return model.ExecutionResult{Success: true, Method: model.MethodRPA}
	}

	results := fx.d.DispatchBatch(ctx, []model.PublishRequest{
		{Platform: model.PlatformBilibili},
		{Platform: model.PlatformBilibili},
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, model.ErrorKindCanceled, results[1].ErrorKind)
	assert.Len(t, fx.engine.calls, 1)
}

func TestPlatforms(t *testing.T) {
	fx := newDispatcherFixture(t)
	fx.d.Add(&fakePublisher{platform: model.PlatformYouTube})

	infos := fx.d.Platforms()
	require.Len(t, infos, len(model.AllPlatforms()))

	byName := map[model.Platform]PlatformInfo{}
	for _, i := range infos {
		byName[i.Platform] = i
	}
	assert.True(t, byName[model.PlatformBilibili].Available)
	assert.False(t, byName[model.PlatformWeibo].Available)
	assert.Equal(t, "https://weibo.com/compose/", byName[model.PlatformWeibo].URL)
	assert.True(t, byName[model.PlatformYouTube].Available)
	assert.False(t, byName[model.PlatformTencent].Available)
	assert.Equal(t, model.MethodDirectAPI, byName[model.PlatformTencent].Method)
}

func TestRemoveShortsHashtag(t *testing.T) {
	assert.Equal(t, "funny cat", RemoveShortsHashtag("funny #Shorts cat"))
	assert.Equal(t, "#shortsfilm", RemoveShortsHashtag("#shortsfilm"))
	assert.Equal(t, "", RemoveShortsHashtag("#shorts"))
}
