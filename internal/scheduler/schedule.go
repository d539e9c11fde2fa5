package scheduler

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/publishers"
)

// cronParser accepts the six-field (seconds first) expressions the
// scheduler runs with, plus descriptors like @daily.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one scheduled publish: at every tick of Spec the requests are
// dispatched as a batch.
type Job struct {
	Name     string                 `yaml:"name"`
	Spec     string                 `yaml:"spec"`
	Requests []model.PublishRequest `yaml:"requests"`
}

// Schedule is the YAML schedule file.
//
//	jobs:
//	  - name: evening-bilibili
//	    spec: "0 0 20 * * *"
//	    requests:
//	      - platform: bilibili
//	        content: {videoFile: daily/clip.mp4, title: Daily clip}
type Schedule struct {
	Jobs []Job `yaml:"jobs"`
}

// LoadSchedule reads and validates the schedule file. An empty path
// yields an empty schedule.
func LoadSchedule(path string) (Schedule, error) {
	if path == "" {
		return Schedule{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("read schedule: %w", err)
	}
	var s Schedule
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Schedule{}, fmt.Errorf("parse schedule %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, fmt.Errorf("schedule %s: %w", path, err)
	}
	return s, nil
}

// Validate checks every job and normalizes platform names in place.
func (s Schedule) Validate() error {
	seen := make(map[string]bool, len(s.Jobs))
	for i := range s.Jobs {
		j := &s.Jobs[i]
		if strings.TrimSpace(j.Name) == "" {
			return fmt.Errorf("job %d: name is required", i)
		}
		if seen[j.Name] {
			return fmt.Errorf("job %q: duplicate name", j.Name)
		}
		seen[j.Name] = true
		if _, err := cronParser.Parse(j.Spec); err != nil {
			return fmt.Errorf("job %q: bad spec %q: %w", j.Name, j.Spec, err)
		}
		if len(j.Requests) == 0 {
			return fmt.Errorf("job %q: no requests", j.Name)
		}
		for k := range j.Requests {
			p, err := model.ParsePlatform(string(j.Requests[k].Platform))
			if err != nil {
				return fmt.Errorf("job %q: %w", j.Name, err)
			}
			j.Requests[k].Platform = p
		}
	}
	return nil
}

// BatchDispatcher runs a list of requests. *publishers.Dispatcher
// implements it.
type BatchDispatcher interface {
	DispatchBatch(ctx context.Context, reqs []model.PublishRequest) []model.ExecutionResult
}

// Register adds every job of s to c. Jobs run under ctx, so canceling it
// aborts in-flight publishes.
func Register(ctx context.Context, c *cron.Cron, s Schedule, d BatchDispatcher, log *logging.Logger) error {
	for _, job := range s.Jobs {
		job := job
		if _, err := c.AddFunc(job.Spec, func() { runJob(ctx, job, d, log) }); err != nil {
			return fmt.Errorf("register job %q: %w", job.Name, err)
		}
		log.Infof("cron: registered %q (%s, %d requests)", job.Name, job.Spec, len(job.Requests))
	}
	return nil
}

func runJob(ctx context.Context, job Job, d BatchDispatcher, log *logging.Logger) {
	if ctx.Err() != nil {
		return
	}
	log.Infof("cron: running %q", job.Name)
	results := d.DispatchBatch(publishers.WithSource(ctx, publishers.SourceCron), job.Requests)
	failed := 0
	for i, res := range results {
		if !res.Success {
			failed++
			log.Errorf("cron %q: %s failed: %s", job.Name, job.Requests[i].Platform, res.Error)
		}
	}
	log.Infof("cron: %q done, %d/%d succeeded", job.Name, len(results)-failed, len(results))
}
