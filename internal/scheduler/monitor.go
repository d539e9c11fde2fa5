package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/model"
)

// ScriptSource compares the scripts on disk with the loaded set.
// *rpa.Engine implements it.
type ScriptSource interface {
	ScanScripts() []model.Platform
	SupportedPlatforms() []model.Platform
}

// ScriptMonitor periodically compares the script directory with the
// registry loaded at startup and reports drift. The registry itself is
// never changed; a restart applies new or removed scripts.
type ScriptMonitor struct {
	src      ScriptSource
	log      *logging.Logger
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	reported string
}

func NewScriptMonitor(src ScriptSource, interval time.Duration, log *logging.Logger) *ScriptMonitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ScriptMonitor{
		src:      src,
		log:      log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins monitoring
func (m *ScriptMonitor) Start(ctx context.Context) {
	m.log.Infof("script monitor: starting, interval=%s", m.interval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loop(ctx)
	}()
}

// Stop gracefully stops the monitor
func (m *ScriptMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
		m.log.Infof("script monitor: stopped")
	})
}

func (m *ScriptMonitor) loop(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-t.C:
			m.Check()
		}
	}
}

// Check scans the script directory once. added are platforms with a
// script on disk that is not loaded, removed are loaded platforms whose
// script is gone. Unchanged drift is logged only once.
func (m *ScriptMonitor) Check() (added, removed []model.Platform) {
	onDisk := m.src.ScanScripts()
	loaded := m.src.SupportedPlatforms()
	added, removed = lo.Difference(onDisk, loaded)

	key := fmt.Sprint(added, removed)
	m.mu.Lock()
	changed := key != m.reported
	m.reported = key
	m.mu.Unlock()
	if !changed {
		return added, removed
	}

	if len(added) > 0 {
		m.log.Infof("script monitor: scripts on disk but not loaded for %v, restart to enable", added)
	}
	if len(removed) > 0 {
		m.log.Warnf("script monitor: loaded scripts missing on disk for %v", removed)
	}
	if len(added) == 0 && len(removed) == 0 {
		m.log.Infof("script monitor: scripts on disk match the loaded set")
	}
	return added, removed
}
