package cache

import (
	"context"
	"time"

	"github.com/LavishGent/imgcache/internal/types"
)

const defaultMaintenanceInterval = time.Second

func (m *Manager) startMaintenance() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.loopCancel != nil {
		return
	}

	interval := m.interval
	if interval <= 0 {
		interval = defaultMaintenanceInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.loopCancel = cancel
	m.loopDone = make(chan struct{})
	go m.maintenanceLoop(ctx, interval, m.loopDone)
}

func (m *Manager) stopMaintenance() {
	m.lifecycleMu.Lock()
	cancel, done := m.loopCancel, m.loopDone
	m.loopCancel, m.loopDone = nil, nil
	m.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (m *Manager) maintenanceLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runMaintenance(ctx)
		}
	}
}

func (m *Manager) runMaintenance(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Recovered from panic in maintenance", "panic", r)
		}
	}()
	m.maintenance(ctx, m.now())
}

// maintenance is one tick: queue refreshes for stale entries, decay every
// entry's popularity, then gate the refresh queue on main queue activity.
// The gate applies from the end of the tick, so a refresh admitted while the
// refresh queue is still running starts at once.
func (m *Manager) maintenance(ctx context.Context, now time.Time) {
	m.mu.Lock()
	stale := m.index.stale(now, m.maxAge)
	m.mu.Unlock()

	for _, key := range stale {
		if ctx.Err() != nil {
			break
		}
		if m.refreshQueue.HasPending(key) {
			continue
		}
		adm := m.refreshQueue.Admit(key, m.refreshTask(key), types.PriorityLow)
		if adm != types.Admitted {
			m.metrics.RecordRejection(refreshQueueName, adm)
		}
	}

	m.mu.Lock()
	m.index.decay(popularityDecay)
	m.mu.Unlock()

	if m.mainQueue.Len() > 0 {
		m.refreshQueue.Pause()
	} else {
		m.refreshQueue.Resume()
	}
}
