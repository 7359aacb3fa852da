package poller

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Stopper cancels one running worker and waits for it to exit.
type Stopper interface {
	Stop()
}

type workerStopper struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *workerStopper) Stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Manager owns the running workers. Workers are registered per channel
// row id; stopping the manager stops them all and refuses new starts.
type Manager struct {
	logger *slog.Logger

	mu      sync.Mutex
	workers map[uuid.UUID]Stopper
	stopped bool
}

func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		logger:  log.With(slog.String("component", "poll-manager")),
		workers: map[uuid.UUID]Stopper{},
	}
}

// Start launches the worker in its own goroutine. Starting an id that is
// already running replaces the previous worker.
func (m *Manager) Start(ctx context.Context, worker *Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		m.logger.Warn("manager stopped, worker not started",
			slog.String("channel_id", worker.id.String()))
		return
	}
	if previous, ok := m.workers[worker.id]; ok {
		go previous.Stop()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(runCtx)
	}()
	m.workers[worker.id] = &workerStopper{cancel: cancel, done: done}
	m.logger.Info("worker started", slog.String("channel_id", worker.id.String()))
}

// Stop cancels one worker.
func (m *Manager) Stop(id uuid.UUID) {
	m.mu.Lock()
	stopper, ok := m.workers[id]
	delete(m.workers, id)
	m.mu.Unlock()
	if ok {
		stopper.Stop()
	}
}

// StopAll cancels every worker and marks the manager stopped.
func (m *Manager) StopAll() {
	m.mu.Lock()
	m.stopped = true
	workers := m.workers
	m.workers = map[uuid.UUID]Stopper{}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, stopper := range workers {
		wg.Add(1)
		go func(id uuid.UUID, s Stopper) {
			defer wg.Done()
			s.Stop()
			m.logger.Info("worker stopped", slog.String("channel_id", id.String()))
		}(id, stopper)
	}
	wg.Wait()
}

// Running reports how many workers are active.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}
