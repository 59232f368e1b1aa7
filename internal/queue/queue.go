// Package queue provides a bounded, single-worker task queue with priority
// admission and a cooldown between task executions.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/imgcache/internal/types"
)

// Task is a unit of work. Its error is logged and otherwise dropped.
type Task func(ctx context.Context) error

type Config struct {
	Name      string
	MaxLength int
	Cooldown  time.Duration
}

type item struct {
	key  string
	task Task
}

// Queue runs at most one task at a time. After each task it idles for the
// configured cooldown before the next may start. A key is either queued or
// running at most once.
type Queue struct {
	logger    *slog.Logger
	name      string
	maxLength int
	cooldown  time.Duration

	mu          sync.Mutex
	pending     []item
	keys        map[string]struct{}
	workingOn   string
	running     bool
	coolingDown bool
	paused      bool
	closed      bool
	timer       *time.Timer
	lastFinish  time.Time
	// changed is closed and replaced each time a task finishes.
	changed chan struct{}

	admitted  atomic.Int64
	rejected  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

func New(cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 1000
	}
	if cfg.Name == "" {
		cfg.Name = "queue"
	}

	return &Queue{
		logger:    logger.With("component", "task-queue", "queue", cfg.Name),
		name:      cfg.Name,
		maxLength: cfg.MaxLength,
		cooldown:  cfg.Cooldown,
		keys:      make(map[string]struct{}),
		changed:   make(chan struct{}),
	}
}

func (q *Queue) Name() string {
	return q.name
}

// Admit offers task under key. High priority goes ahead of every queued task;
// low priority goes to the back. Rejections are reported, not errors.
func (q *Queue) Admit(key string, task Task, priority types.Priority) types.Admission {
	q.mu.Lock()
	var admission types.Admission
	switch {
	case q.closed:
		admission = types.RejectedClosed
	case q.hasPendingLocked(key):
		admission = types.RejectedDuplicate
	case len(q.pending) >= q.maxLength:
		admission = types.RejectedFull
	default:
		admission = types.Admitted
		it := item{key: key, task: task}
		if priority == types.PriorityHigh {
			q.pending = append([]item{it}, q.pending...)
		} else {
			q.pending = append(q.pending, it)
		}
		q.keys[key] = struct{}{}
		q.startLocked()
	}
	queued := len(q.pending)
	q.mu.Unlock()

	if admission != types.Admitted {
		q.rejected.Add(1)
		q.logger.Warn("Task admission rejected",
			"key", key,
			"reason", admission.String(),
			"queued", queued,
			"max_length", q.maxLength)
		return admission
	}

	q.admitted.Add(1)
	q.logger.Debug("Task admitted", "key", key, "priority", priority.String(), "queued", queued)
	return admission
}

// HasPending reports whether key is queued or running.
func (q *Queue) HasPending(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hasPendingLocked(key)
}

// Len returns queued plus in-flight tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.running {
		n++
	}
	return n
}

// Pause stops new tasks from starting. An in-flight task is unaffected.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.paused {
		q.paused = true
		q.logger.Debug("Queue paused", "queued", len(q.pending))
	}
}

// Resume allows tasks to start again and starts one if eligible.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.paused {
		q.paused = false
		q.logger.Debug("Queue resumed", "queued", len(q.pending))
	}
	q.startLocked()
}

func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Drain drops every queued task and waits for the in-flight one to finish.
// The pause state is left as it was.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	dropped := len(q.pending)
	for _, it := range q.pending {
		delete(q.keys, it.key)
	}
	q.pending = nil
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Info("Queue drained", "dropped", dropped)
	}

	for {
		q.mu.Lock()
		if !q.running {
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("queue %s drain: %w", q.name, ctx.Err())
		case <-changed:
		}
	}
}

// WaitIdle blocks until nothing is queued or running, or ctx is done.
// A paused queue with queued work only becomes idle through Drain.
func (q *Queue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.running && len(q.pending) == 0 {
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Close rejects further admissions and stops queued tasks from starting.
// Use Drain to wait for the in-flight task.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
		q.coolingDown = false
	}
}

func (q *Queue) DebugInfo() types.QueueDebugInfo {
	q.mu.Lock()
	waiting := make([]string, len(q.pending))
	for i, it := range q.pending {
		waiting[i] = it.key
	}
	info := types.QueueDebugInfo{
		Name:      q.name,
		MaxLength: q.maxLength,
		Cooldown:  q.cooldown.String(),
		Paused:    q.paused,
		Closed:    q.closed,
		WorkingOn: q.workingOn,
		WaitingOn: waiting,
	}
	if !q.lastFinish.IsZero() {
		info.LastFinish = q.lastFinish.Format(time.RFC3339Nano)
	}
	q.mu.Unlock()

	info.Admitted = q.admitted.Load()
	info.Rejected = q.rejected.Load()
	info.Completed = q.completed.Load()
	info.Failed = q.failed.Load()
	return info
}

func (q *Queue) hasPendingLocked(key string) bool {
	_, ok := q.keys[key]
	return ok
}

// startLocked launches the head task if the worker is free.
func (q *Queue) startLocked() {
	if q.running || q.coolingDown || q.paused || q.closed || len(q.pending) == 0 {
		return
	}

	it := q.pending[0]
	q.pending[0] = item{}
	q.pending = q.pending[1:]
	q.running = true
	q.workingOn = it.key

	go q.run(it)
}

func (q *Queue) run(it item) {
	start := time.Now()
	err := q.execute(it)
	elapsed := time.Since(start)

	if err != nil {
		q.failed.Add(1)
		q.logger.Warn("Task failed", "key", it.key, "duration", elapsed, "error", err)
	} else {
		q.completed.Add(1)
		q.logger.Debug("Task completed", "key", it.key, "duration", elapsed)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.keys, it.key)
	q.running = false
	q.workingOn = ""
	q.lastFinish = time.Now()
	close(q.changed)
	q.changed = make(chan struct{})

	if q.closed {
		return
	}
	if q.cooldown <= 0 {
		q.startLocked()
		return
	}
	q.coolingDown = true
	q.timer = time.AfterFunc(q.cooldown, q.endCooldown)
}

func (q *Queue) endCooldown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.coolingDown = false
	q.timer = nil
	q.startLocked()
}

func (q *Queue) execute(it item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return it.task(context.Background())
}
