// Package mailbox receives raw inbound email for host-configured
// mailboxes, over long-lived IMAP connections or provider webhooks, and
// hands the raw bytes to the ingestion dispatcher.
package mailbox

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/hostbridge/hostbridge/internal/hosts"
)

// ProviderName identifies one mailbox adapter.
type ProviderName string

// InboundHandler is invoked once per received raw RFC 822 message.
type InboundHandler func(ctx context.Context, ch hosts.Channel, raw []byte) error

// Stopper represents a stoppable background receiver.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Adapter is the base interface every mailbox adapter implements.
type Adapter interface {
	Type() ProviderName
}

// Receiver establishes a long-lived connection (IMAP IDLE or polling)
// for one channel row.
type Receiver interface {
	StartReceiving(ctx context.Context, ch hosts.Channel, handler InboundHandler) (Stopper, error)
}

// WebhookReceiver turns an inbound HTTP callback into raw message bytes.
type WebhookReceiver interface {
	HandleWebhook(ctx context.Context, ch hosts.Channel, r *http.Request) ([]byte, error)
}

// Registry holds the registered mailbox adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ProviderName]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[ProviderName]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

func (r *Registry) Get(name ProviderName) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("mailbox adapter not found: %s", name)
	}
	return a, nil
}

func (r *Registry) GetReceiver(name ProviderName) (Receiver, error) {
	a, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	recv, ok := a.(Receiver)
	if !ok {
		return nil, fmt.Errorf("mailbox adapter %s does not support receiving", name)
	}
	return recv, nil
}

func (r *Registry) GetWebhookReceiver(name ProviderName) (WebhookReceiver, error) {
	a, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	recv, ok := a.(WebhookReceiver)
	if !ok {
		return nil, fmt.Errorf("mailbox adapter %s does not support webhooks", name)
	}
	return recv, nil
}

// noopStopper is returned by adapters whose inbound mode needs no
// background process.
type noopStopper struct{}

func (n *noopStopper) Stop(_ context.Context) error { return nil }

// NoopStopper returns a Stopper that does nothing.
func NoopStopper() Stopper { return &noopStopper{} }

// channelKey is used by the manager to index running receivers.
func channelKey(ch hosts.Channel) uuid.UUID { return ch.ID }
