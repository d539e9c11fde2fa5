package publishers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/metrics"
	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/platforms"
	"multi-platform-rpa/internal/records"
	"multi-platform-rpa/internal/storage"
)

// Engine runs RPA publishes. *rpa.Engine implements it.
type Engine interface {
	Execute(ctx context.Context, req model.PublishRequest) model.ExecutionResult
	IsPlatformSupported(p model.Platform) bool
}

// PlatformInfo is one row of the platform listing.
type PlatformInfo struct {
	Platform  model.Platform      `json:"platform"`
	Method    model.PublishMethod `json:"method"`
	URL       string              `json:"url,omitempty"`
	Available bool                `json:"available"`
}

type Option func(*Dispatcher)

func WithRecords(s records.Store) Option {
	return func(d *Dispatcher) { d.records = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher routes publish requests by the platform table: RPA
// platforms to the engine, the rest to registered direct publishers.
type Dispatcher struct {
	table      platforms.Table
	engine     Engine
	storageDir string
	publishers map[model.Platform]Publisher
	records    records.Store
	metrics    *metrics.Metrics
	log        *logging.Logger
	now        func() time.Time
}

func NewDispatcher(table platforms.Table, engine Engine, storageDir string, log *logging.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		table:      table,
		engine:     engine,
		storageDir: storageDir,
		publishers: map[model.Platform]Publisher{},
		log:        log,
		now:        time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Add registers or replaces the direct publisher for its platform.
func (d *Dispatcher) Add(p Publisher) {
	d.publishers[p.Platform()] = p
}

// Platforms lists every table entry with its availability.
func (d *Dispatcher) Platforms() []PlatformInfo {
	return lo.Map(model.AllPlatforms(), func(p model.Platform, _ int) PlatformInfo {
		e := d.table[p]
		info := PlatformInfo{Platform: p, Method: e.Method, URL: e.URL}
		switch e.Method {
		case model.MethodRPA:
			info.Available = d.engine != nil && d.engine.IsPlatformSupported(p)
		case model.MethodDirectAPI:
			_, info.Available = d.publishers[p]
		}
		return info
	})
}

// Dispatch publishes one request. The error is non-nil only when the
// request cannot be routed at all; execution failures are reported in
// the result.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.PublishRequest) (model.ExecutionResult, error) {
	entry, ok := d.table.Lookup(req.Platform)
	if !ok {
		return model.ExecutionResult{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, req.Platform)
	}

	var res model.ExecutionResult
	switch entry.Method {
	case model.MethodRPA:
		if d.engine == nil {
			return model.ExecutionResult{}, fmt.Errorf("rpa engine not configured for: %s", req.Platform)
		}
		done := d.metrics.Track()
		res = d.engine.Execute(ctx, req)
		done()
	case model.MethodDirectAPI:
		p, ok := d.publishers[req.Platform]
		if !ok {
			return model.ExecutionResult{}, fmt.Errorf("%w for: %s", ErrNotImplemented, req.Platform)
		}
		done := d.metrics.Track()
		res = d.publishDirect(ctx, p, req)
		done()
	default:
		return model.ExecutionResult{}, fmt.Errorf("%s: unknown publish method %q", req.Platform, entry.Method)
	}

	d.observe(ctx, req, res)
	return res, nil
}

// DispatchBatch publishes reqs one after another and returns one result
// per request, in order. Requests that cannot be routed get a failed
// result of kind config; requests left when ctx ends are not started.
func (d *Dispatcher) DispatchBatch(ctx context.Context, reqs []model.PublishRequest) []model.ExecutionResult {
	if SourceFrom(ctx) == SourceAPI {
		ctx = WithSource(ctx, SourceBatch)
	}
	out := make([]model.ExecutionResult, 0, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			out = append(out, model.ExecutionResult{
				Platform: req.Platform, Error: err.Error(), ErrorKind: model.ErrorKindCanceled,
			})
			continue
		}
		res, err := d.Dispatch(ctx, req)
		if err != nil {
			d.log.Warnf("batch item %d (%s) rejected: %v", i, req.Platform, err)
			res = model.ExecutionResult{Platform: req.Platform, Error: err.Error(), ErrorKind: model.ErrorKindConfig}
		}
		out = append(out, res)
	}
	ok := lo.CountBy(out, func(r model.ExecutionResult) bool { return r.Success })
	d.log.Infof("batch finished: %d/%d succeeded", ok, len(out))
	return out
}

func (d *Dispatcher) publishDirect(ctx context.Context, p Publisher, req model.PublishRequest) model.ExecutionResult {
	started := d.now()
	res := model.ExecutionResult{Platform: req.Platform, Method: model.MethodDirectAPI}
	finish := func() model.ExecutionResult {
		res.DurationMs = d.now().Sub(started).Milliseconds()
		return res
	}

	c := req.Content
	video, err := storage.Resolve(d.storageDir, c.Video())
	if err != nil {
		res.Error, res.ErrorKind = err.Error(), model.ErrorKindConfig
		return finish()
	}
	thumb := ""
	if c.ThumbnailPath != "" {
		if thumb, err = storage.Resolve(d.storageDir, c.ThumbnailPath); err != nil {
			res.Error, res.ErrorKind = err.Error(), model.ErrorKindConfig
			return finish()
		}
	}

	d.log.Infof("publishing %q to %s via api", c.Title, req.Platform)
	out, err := p.Publish(ctx, &Request{
		VideoPath:     video,
		ThumbnailPath: thumb,
		Title:         c.Title,
		Description:   c.Body(),
		Tags:          c.Tags,
		Privacy:       c.Privacy,
	})
	if err != nil {
		d.log.Errorf("publish to %s failed: %v", req.Platform, err)
		res.Error, res.ErrorKind = err.Error(), errorKind(err)
		return finish()
	}
	res.Success = true
	if out != nil {
		res.URL = out.URL
	}
	return finish()
}

func (d *Dispatcher) observe(ctx context.Context, req model.PublishRequest, res model.ExecutionResult) {
	d.metrics.ObserveExecution(string(req.Platform), string(res.Method), res.Success, string(res.ErrorKind),
		time.Duration(res.DurationMs)*time.Millisecond)
	if d.records == nil {
		return
	}
	if _, err := d.records.Append(context.WithoutCancel(ctx), records.FromResult(req, res, SourceFrom(ctx))); err != nil {
		d.log.Errorf("append publish record: %v", err)
	}
}

func errorKind(err error) model.ErrorKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.ErrorKindCanceled
	case errors.Is(err, ErrMissingCredentials):
		return model.ErrorKindCredential
	}
	return model.ErrorKindPublish
}

// Request sources recorded in the publish history.
const (
	SourceAPI   = "api"
	SourceBatch = "batch"
	SourceCron  = "cron"
	SourceCLI   = "cli"
)

type sourceKey struct{}

func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the source set on ctx, SourceAPI by default.
func SourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return SourceAPI
}
