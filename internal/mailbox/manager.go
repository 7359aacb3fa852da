package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hostbridge/hostbridge/internal/hosts"
)

// Manager starts and stops the background receivers for every mailbox
// channel row.
type Manager struct {
	logger   *slog.Logger
	registry *Registry
	handler  InboundHandler

	mu        sync.Mutex
	receivers map[uuid.UUID]Stopper
	stopped   bool
}

func NewManager(log *slog.Logger, registry *Registry, handler InboundHandler) *Manager {
	return &Manager{
		logger:    log.With(slog.String("component", "mailbox-manager")),
		registry:  registry,
		handler:   handler,
		receivers: map[uuid.UUID]Stopper{},
	}
}

// Start launches the receiver for one channel row. Webhook-mode channels
// yield a no-op stopper and are served by the HTTP layer instead.
func (m *Manager) Start(ctx context.Context, ch hosts.Channel) error {
	receiver, err := m.registry.GetReceiver(ProviderName(ch.Channel))
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return fmt.Errorf("mailbox manager stopped")
	}
	m.mu.Unlock()

	stopper, err := receiver.StartReceiving(ctx, ch, m.handler)
	if err != nil {
		return fmt.Errorf("start receiver for channel %s: %w", channelKey(ch), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		go func() { _ = stopper.Stop(context.Background()) }()
		return fmt.Errorf("mailbox manager stopped")
	}
	if previous, ok := m.receivers[channelKey(ch)]; ok {
		go func() { _ = previous.Stop(context.Background()) }()
	}
	m.receivers[channelKey(ch)] = stopper
	m.logger.Info("mailbox receiver started",
		slog.String("channel_id", channelKey(ch).String()),
		slog.String("adapter", ch.Channel))
	return nil
}

// Stop shuts one receiver down.
func (m *Manager) Stop(ctx context.Context, id uuid.UUID) {
	m.mu.Lock()
	stopper, ok := m.receivers[id]
	delete(m.receivers, id)
	m.mu.Unlock()
	if ok {
		_ = stopper.Stop(ctx)
	}
}

// StopAll shuts every receiver down and refuses new starts.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	m.stopped = true
	receivers := m.receivers
	m.receivers = map[uuid.UUID]Stopper{}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, stopper := range receivers {
		wg.Add(1)
		go func(id uuid.UUID, s Stopper) {
			defer wg.Done()
			_ = s.Stop(ctx)
			m.logger.Info("mailbox receiver stopped", slog.String("channel_id", id.String()))
		}(id, stopper)
	}
	wg.Wait()
}
