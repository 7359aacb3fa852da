package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hostbridge/hostbridge/internal/reservation"
)

// Router resolves inbound guest messages to their reservation, client and
// property, records them, and gates auto-reply eligibility.
type Router struct {
	logger        *slog.Logger
	reservations  reservation.Store
	store         Store
	historyWindow int
}

func NewRouter(log *slog.Logger, reservations reservation.Store, store Store, historyWindow int) *Router {
	if historyWindow <= 0 {
		historyWindow = 20
	}
	return &Router{
		logger:        log.With(slog.String("component", "router")),
		reservations:  reservations,
		store:         store,
		historyWindow: historyWindow,
	}
}

// Route resolves and records one guest message. It returns a non-nil
// Context only when the message is eligible for an automated reply; the
// message is persisted either way so ineligible and unroutable traffic
// stays visible for manual follow-up. Eligibility is the combined gate of
// the per-client opt-in and, for brand-new reservations, the tenant-level
// new-reservation flag.
func (r *Router) Route(ctx context.Context, hostID uuid.UUID, msg GuestMessage) (*Context, error) {
	rec, err := r.findReservation(ctx, hostID, msg)
	if err != nil {
		return nil, err
	}

	client, err := r.findClient(ctx, hostID, rec, msg)
	if err != nil {
		return nil, err
	}

	stored := &StoredMessage{
		HostID:     hostID,
		Source:     msg.Source,
		Sender:     msg.GuestEmail,
		Body:       msg.Text,
		ReceivedAt: msg.ReceivedAt,
	}
	if rec != nil {
		stored.ReservationID = rec.ID
		stored.PropertyID = rec.PropertyID
	}
	if client != nil {
		stored.ClientID = client.ID
	}

	if client == nil {
		if err := r.store.RecordMessage(ctx, stored); err != nil {
			return nil, fmt.Errorf("record message: %w", err)
		}
		r.logger.Warn("guest message not routable, recorded without client",
			slog.String("source", msg.Source),
			slog.String("reservation_ref", msg.ReservationRef))
		return nil, nil
	}

	eligible, err := r.eligible(ctx, hostID, rec, client)
	if err != nil {
		return nil, err
	}
	stored.Eligible = eligible

	// The context is assembled before the message is recorded, so the
	// history window holds prior turns only, never the message itself.
	var convCtx *Context
	if eligible {
		convCtx = &Context{
			HostID:      hostID,
			ClientID:    client.ID,
			ClientName:  client.Name,
			ClientEmail: client.Email,
		}
		if rec != nil {
			convCtx.ReservationID = rec.ID
			convCtx.PropertyID = rec.PropertyID
			if rec.PropertyID != uuid.Nil {
				name, err := r.store.PropertyName(ctx, rec.PropertyID)
				if err != nil {
					return nil, fmt.Errorf("property name: %w", err)
				}
				convCtx.PropertyName = name
			}
		}
		history, err := r.store.ListHistory(ctx, convCtx.PropertyID, client.ID, r.historyWindow)
		if err != nil {
			return nil, fmt.Errorf("list history: %w", err)
		}
		convCtx.History = history
	}

	if err := r.store.RecordMessage(ctx, stored); err != nil {
		return nil, fmt.Errorf("record message: %w", err)
	}
	return convCtx, nil
}

// findReservation applies the same key fallback order reconciliation
// uses: reservation cross-reference first, then the thread key.
func (r *Router) findReservation(ctx context.Context, hostID uuid.UUID, msg GuestMessage) (*reservation.Record, error) {
	type candidate struct {
		keyType reservation.KeyType
		value   string
	}
	var keys []candidate
	if ref := strings.TrimSpace(msg.ReservationRef); ref != "" && ref != reservation.UnknownID {
		keys = append(keys, candidate{reservation.KeyPrimary, ref})
	}
	if msg.ThreadID != "" {
		keys = append(keys, candidate{reservation.KeyThread, msg.ThreadID})
	}
	for _, key := range keys {
		rec, err := r.reservations.Find(ctx, hostID, key.keyType, key.value)
		if err != nil {
			return nil, fmt.Errorf("find reservation by %s: %w", key.keyType, err)
		}
		if rec != nil {
			return rec, nil
		}
	}
	return nil, nil
}

// findClient prefers the reservation's stored client reference, then the
// guest email, then the reservation cross-reference clients were created
// under.
func (r *Router) findClient(ctx context.Context, hostID uuid.UUID, rec *reservation.Record, msg GuestMessage) (*reservation.Client, error) {
	if rec != nil && rec.ClientID != uuid.Nil {
		client, err := r.store.ClientByID(ctx, rec.ClientID)
		if err != nil {
			return nil, fmt.Errorf("client by id: %w", err)
		}
		if client != nil {
			return client, nil
		}
	}
	if email := strings.ToLower(strings.TrimSpace(msg.GuestEmail)); email != "" {
		client, err := r.store.ClientByEmail(ctx, hostID, email)
		if err != nil {
			return nil, fmt.Errorf("client by email: %w", err)
		}
		if client != nil {
			return client, nil
		}
	}
	if ref := strings.TrimSpace(msg.ReservationRef); ref != "" && ref != reservation.UnknownID {
		client, err := r.store.ClientByReservationRef(ctx, hostID, ref)
		if err != nil {
			return nil, fmt.Errorf("client by reservation ref: %w", err)
		}
		if client != nil {
			return client, nil
		}
	}
	return nil, nil
}

func (r *Router) eligible(ctx context.Context, hostID uuid.UUID, rec *reservation.Record, client *reservation.Client) (bool, error) {
	if !client.AutoReplyEnabled {
		return false, nil
	}
	if rec == nil {
		return true, nil
	}
	count, err := r.store.CountMessages(ctx, rec.ID)
	if err != nil {
		return false, fmt.Errorf("count messages: %w", err)
	}
	if count > 0 {
		return true, nil
	}
	// First message on the reservation: the tenant must have opted in to
	// auto-replies on new reservations.
	allowed, err := r.store.HostAutoReplyNewReservations(ctx, hostID)
	if err != nil {
		return false, fmt.Errorf("host auto-reply flag: %w", err)
	}
	return allowed, nil
}
