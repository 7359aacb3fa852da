package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hostbridge/hostbridge/internal/conversation"
	"github.com/hostbridge/hostbridge/internal/dedup"
	"github.com/hostbridge/hostbridge/internal/mailparse"
	"github.com/hostbridge/hostbridge/internal/reservation"
)

// reservationReconciler is the reconciliation surface the dispatcher
// needs. Satisfied by reservation.Reconciler.
type reservationReconciler interface {
	Reconcile(ctx context.Context, hostID uuid.UUID, ev reservation.Event) (reservation.Outcome, error)
}

// guestRouter is the routing surface the dispatcher needs. Satisfied by
// conversation.Router.
type guestRouter interface {
	Route(ctx context.Context, hostID uuid.UUID, msg conversation.GuestMessage) (*conversation.Context, error)
}

// EligibleFunc receives the assembled context of an auto-reply-eligible
// guest message. Reply generation itself lives downstream.
type EligibleFunc func(ctx context.Context, convCtx *conversation.Context, msg conversation.GuestMessage) error

// Dispatcher ties classification to reconciliation and routing, with
// provider-id dedup in front. All channel entry points (mailbox, polling
// workers, webhooks) funnel through it.
type Dispatcher struct {
	logger     *slog.Logger
	chain      *Chain
	reconciler reservationReconciler
	router     guestRouter
	seen       dedup.SeenStore
	onEligible EligibleFunc

	unhandled atomic.Int64
	duplicate atomic.Int64
}

func NewDispatcher(log *slog.Logger, chain *Chain, reconciler reservationReconciler, router guestRouter, seen dedup.SeenStore, onEligible EligibleFunc) *Dispatcher {
	return &Dispatcher{
		logger:     log.With(slog.String("component", "dispatcher")),
		chain:      chain,
		reconciler: reconciler,
		router:     router,
		seen:       seen,
		onEligible: onEligible,
	}
}

// HandleEmail ingests one raw email. hostID is uuid.Nil for the shared
// mailbox path; tenancy is then resolved through the property mapping
// during reconciliation.
func (d *Dispatcher) HandleEmail(ctx context.Context, hostID uuid.UUID, raw []byte) error {
	payload := mailparse.Normalize(raw)
	msg := d.chain.Classify(payload)
	return d.Dispatch(ctx, hostID, "email", msg)
}

// Dispatch applies one classified message. Failures leave the message
// unmarked in the dedup store so redelivery can retry it.
func (d *Dispatcher) Dispatch(ctx context.Context, hostID uuid.UUID, channel string, msg ParsedMessage) error {
	key := ""
	if msg.Metadata.ProviderMessageID != "" {
		key = dedup.Key(hostID.String(), channel, msg.Metadata.ProviderMessageID)
		seen, err := d.seen.Seen(ctx, key)
		if err != nil {
			return fmt.Errorf("dedup check: %w", err)
		}
		if seen {
			d.duplicate.Add(1)
			d.logger.Debug("duplicate delivery dropped",
				slog.String("channel", channel),
				slog.String("provider_message_id", msg.Metadata.ProviderMessageID))
			return nil
		}
	}

	if err := d.apply(ctx, hostID, msg); err != nil {
		return err
	}

	if key != "" {
		if err := d.seen.Mark(ctx, key, dedup.DefaultTTL); err != nil {
			// The event is already applied; reconciliation is idempotent
			// under redelivery, so a failed mark is only logged.
			d.logger.Warn("dedup mark failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (d *Dispatcher) apply(ctx context.Context, hostID uuid.UUID, msg ParsedMessage) error {
	switch msg.Kind {
	case KindReservationConfirmed, KindReservationCancelled:
		ev, ok := msg.Event()
		if !ok {
			return fmt.Errorf("message kind %s carries no reservation", msg.Kind)
		}
		outcome, err := d.reconciler.Reconcile(ctx, hostID, ev)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		d.logger.Info("reservation event applied",
			slog.String("outcome", string(outcome)),
			slog.String("channel", ev.Reservation.SourceChannel),
			slog.String("primary_id", ev.Reservation.PrimaryID))
		return nil

	case KindGuestMessage:
		if msg.GuestMessage == nil {
			return errors.New("guest-message kind carries no message")
		}
		convCtx, err := d.router.Route(ctx, hostID, *msg.GuestMessage)
		if err != nil {
			return fmt.Errorf("route guest message: %w", err)
		}
		if convCtx != nil && d.onEligible != nil {
			if err := d.onEligible(ctx, convCtx, *msg.GuestMessage); err != nil {
				return fmt.Errorf("handle eligible message: %w", err)
			}
		}
		return nil

	case KindUnhandled:
		d.unhandled.Add(1)
		return nil

	default:
		return fmt.Errorf("unknown message kind %q", msg.Kind)
	}
}

// DispatchBatch applies a polling batch. Confirmations are applied before
// cancellations so a cancel arriving in the same batch as its
// confirmation lands on an existing record instead of being skipped. Any
// failure is returned joined, and the caller must not acknowledge the
// batch.
func (d *Dispatcher) DispatchBatch(ctx context.Context, hostID uuid.UUID, channel string, msgs []ParsedMessage) error {
	ordered := make([]ParsedMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Kind != KindReservationCancelled {
			ordered = append(ordered, msg)
		}
	}
	for _, msg := range msgs {
		if msg.Kind == KindReservationCancelled {
			ordered = append(ordered, msg)
		}
	}

	var errs []error
	for _, msg := range ordered {
		if err := d.Dispatch(ctx, hostID, channel, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UnhandledCount reports how many payloads fell through the chain.
func (d *Dispatcher) UnhandledCount() int64 { return d.unhandled.Load() }

// DuplicateCount reports how many deliveries the dedup store dropped.
func (d *Dispatcher) DuplicateCount() int64 { return d.duplicate.Load() }
