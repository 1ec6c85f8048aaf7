// Package tasks runs report generation and sync jobs on a bounded in-process
// worker pool.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/retrolens/retro-engine/internal/config"
	"github.com/retrolens/retro-engine/internal/metrics"
	"github.com/retrolens/retro-engine/internal/models"
)

// Task kinds handled by the manager.
const (
	KindGenerateReport = "generate-report"
	KindSyncMetrics    = "sync-metrics"
	KindCleanupReports = "cleanup-reports"
)

var (
	// ErrQueueFull is returned when the submission queue has no room left.
	ErrQueueFull = errors.New("task queue is full")
	// ErrShuttingDown is returned for submissions after Shutdown started.
	ErrShuttingDown = errors.New("task manager is shutting down")
	// ErrTaskNotFound is returned when a task ID is unknown or pruned.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskFinished is returned when revoking a task in a terminal state.
	ErrTaskFinished = errors.New("task already finished")
)

// Func is the unit of work a task executes. The context is cancelled on
// revocation, task timeout, or manager shutdown.
type Func func(ctx context.Context) (any, error)

type task struct {
	id          string
	kind        string
	state       models.TaskState
	submittedAt time.Time
	startedAt   *time.Time
	finishedAt  *time.Time
	result      any
	errMsg      string
	run         Func
	cancel      context.CancelFunc
}

// Manager owns the worker pool and the retained task history.
type Manager struct {
	logger      *slog.Logger
	queue       chan *task
	retainFor   time.Duration
	taskTimeout time.Duration

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
}

// NewManager starts the configured number of workers.
func NewManager(cfg config.TasksConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 32
	}
	retainFor := cfg.RetainFor
	if retainFor <= 0 {
		retainFor = time.Hour
	}
	taskTimeout := cfg.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = 2 * time.Minute
	}

	baseCtx, stop := context.WithCancel(context.Background())
	m := &Manager{
		logger:      logger,
		queue:       make(chan *task, queueSize),
		retainFor:   retainFor,
		taskTimeout: taskTimeout,
		baseCtx:     baseCtx,
		stop:        stop,
		tasks:       make(map[string]*task),
	}

	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	logger.Info("task manager started",
		slog.Int("workers", workers), slog.Int("queue_size", queueSize))
	return m
}

// Submit queues fn for background execution and returns its task handle.
func (m *Manager) Submit(kind string, fn Func) (models.TaskAccepted, error) {
	t := &task{
		id:          uuid.NewString(),
		kind:        kind,
		state:       models.TaskPending,
		submittedAt: time.Now().UTC(),
		run:         fn,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return models.TaskAccepted{}, ErrShuttingDown
	}
	m.pruneLocked(time.Now())

	select {
	case m.queue <- t:
		m.tasks[t.id] = t
	default:
		m.mu.Unlock()
		return models.TaskAccepted{}, ErrQueueFull
	}
	m.mu.Unlock()

	metrics.TaskStarted()
	m.logger.Info("task submitted", slog.String("task_id", t.id), slog.String("kind", kind))
	return models.TaskAccepted{TaskID: t.id, State: models.TaskPending}, nil
}

// Get returns a point-in-time view of one task.
func (m *Manager) Get(taskID string) (models.TaskView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return models.TaskView{}, ErrTaskNotFound
	}
	return t.view(), nil
}

// List returns all retained tasks, newest submission first.
func (m *Manager) List() []models.TaskView {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(time.Now())

	views := make([]models.TaskView, 0, len(m.tasks))
	for _, t := range m.tasks {
		views = append(views, t.view())
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].SubmittedAt.After(views[j].SubmittedAt)
	})
	return views
}

// Revoke cancels a pending task outright, or signals a running one to stop.
func (m *Manager) Revoke(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	switch t.state {
	case models.TaskPending:
		now := time.Now().UTC()
		t.state = models.TaskRevoked
		t.finishedAt = &now
		metrics.TaskFinished()
		m.logger.Info("task revoked", slog.String("task_id", taskID))
		return nil
	case models.TaskRunning:
		t.state = models.TaskRevoked
		if t.cancel != nil {
			t.cancel()
		}
		m.logger.Info("running task revoked", slog.String("task_id", taskID))
		return nil
	default:
		return ErrTaskFinished
	}
}

// Shutdown stops accepting work, cancels running tasks' contexts when ctx
// expires, and waits for the workers to drain.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.stop()
		return nil
	case <-ctx.Done():
		m.stop()
		<-done
		return ctx.Err()
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for t := range m.queue {
		m.execute(t)
	}
}

func (m *Manager) execute(t *task) {
	m.mu.Lock()
	if t.state != models.TaskPending {
		// Revoked while queued.
		m.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	t.state = models.TaskRunning
	t.startedAt = &now
	ctx, cancel := context.WithTimeout(m.baseCtx, m.taskTimeout)
	t.cancel = cancel
	m.mu.Unlock()

	result, err := t.run(ctx)
	cancel()

	m.mu.Lock()
	finished := time.Now().UTC()
	t.finishedAt = &finished
	t.cancel = nil
	switch {
	case t.state == models.TaskRevoked:
		// Keep the revoked state even if the func returned normally.
	case err != nil:
		t.state = models.TaskFailed
		t.errMsg = err.Error()
		m.logger.Error("task failed",
			slog.String("task_id", t.id), slog.String("kind", t.kind),
			slog.String("error", err.Error()))
	default:
		t.state = models.TaskCompleted
		t.result = result
	}
	m.mu.Unlock()
	metrics.TaskFinished()
}

// pruneLocked drops terminal tasks older than the retention window. The
// caller holds m.mu.
func (m *Manager) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.retainFor)
	for id, t := range m.tasks {
		if t.finishedAt != nil && t.finishedAt.Before(cutoff) {
			delete(m.tasks, id)
		}
	}
}

func (t *task) view() models.TaskView {
	view := models.TaskView{
		TaskID:      t.id,
		Kind:        t.kind,
		State:       t.state,
		SubmittedAt: t.submittedAt,
		Result:      t.result,
		Error:       t.errMsg,
	}
	if t.startedAt != nil {
		started := *t.startedAt
		view.StartedAt = &started
	}
	if t.finishedAt != nil {
		finished := *t.finishedAt
		view.FinishedAt = &finished
	}
	return view
}
