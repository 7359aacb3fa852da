package poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hostbridge/hostbridge/internal/channels/krossbooking"
	"github.com/hostbridge/hostbridge/internal/ingest"
)

// BatchDispatcher is the dispatch surface a cycle needs. Satisfied by
// ingest.Dispatcher.
type BatchDispatcher interface {
	DispatchBatch(ctx context.Context, hostID uuid.UUID, channel string, msgs []ingest.ParsedMessage) error
}

// KrossbookingCycle builds the poll cycle for one tenant's Krossbooking
// channel: fetch reservations, dispatch, acknowledge; then the same for
// guest messages. Acknowledge and confirm run only after the batch is
// fully applied locally, so a crash or store failure redelivers the
// batch instead of losing it.
func KrossbookingCycle(log *slog.Logger, client *krossbooking.Client, dispatcher BatchDispatcher, hostID uuid.UUID) CycleFunc {
	logger := log.With(
		slog.String("component", "krossbooking-cycle"),
		slog.String("host_id", hostID.String()))

	return func(ctx context.Context) error {
		if err := cycleReservations(ctx, logger, client, dispatcher, hostID); err != nil {
			return err
		}
		return cycleMessages(ctx, logger, client, dispatcher, hostID)
	}
}

func cycleReservations(ctx context.Context, logger *slog.Logger, client *krossbooking.Client, dispatcher BatchDispatcher, hostID uuid.UUID) error {
	dtos, err := client.FetchReservations(ctx)
	if err != nil {
		return fmt.Errorf("fetch reservations: %w", err)
	}
	if len(dtos) == 0 {
		return nil
	}

	if err := dispatcher.DispatchBatch(ctx, hostID, "krossbooking", krossbooking.AdaptReservations(dtos)); err != nil {
		return fmt.Errorf("dispatch reservations: %w", err)
	}

	ids := make([]string, 0, len(dtos))
	for _, dto := range dtos {
		ids = append(ids, dto.IDReservation)
	}
	if err := client.AckReservations(ctx, ids); err != nil {
		return fmt.Errorf("ack reservations: %w", err)
	}
	logger.Info("reservation batch processed", slog.Int("count", len(dtos)))
	return nil
}

func cycleMessages(ctx context.Context, logger *slog.Logger, client *krossbooking.Client, dispatcher BatchDispatcher, hostID uuid.UUID) error {
	dtos, err := client.FetchMessages(ctx)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}
	if len(dtos) == 0 {
		return nil
	}

	msgs := make([]ingest.ParsedMessage, 0, len(dtos))
	discarded := 0
	for _, dto := range dtos {
		msg, ok := krossbooking.AdaptMessage(dto)
		if !ok {
			discarded++
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := dispatcher.DispatchBatch(ctx, hostID, "krossbooking", msgs); err != nil {
		return fmt.Errorf("dispatch messages: %w", err)
	}

	// Inadmissible messages are confirmed too; redelivering them can
	// never make them admissible.
	ids := make([]string, 0, len(dtos))
	for _, dto := range dtos {
		ids = append(ids, dto.IDMessage)
	}
	if err := client.ConfirmMessages(ctx, ids); err != nil {
		return fmt.Errorf("confirm messages: %w", err)
	}
	logger.Info("message batch processed",
		slog.Int("count", len(msgs)),
		slog.Int("discarded", discarded))
	return nil
}
