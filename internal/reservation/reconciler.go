package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Reconciler applies canonical reservation events to the store:
// find-or-create on confirmation, status flip on cancellation, no-op skip
// when there is nothing to act on. Reconciling the same source event twice
// is idempotent.
type Reconciler struct {
	logger *slog.Logger
	store  Store

	skippedNoTenant  atomic.Int64
	skippedMalformed atomic.Int64
}

func NewReconciler(log *slog.Logger, store Store) *Reconciler {
	return &Reconciler{
		logger: log.With(slog.String("component", "reconciler")),
		store:  store,
	}
}

// Stats reports skip counters for operator visibility.
type Stats struct {
	SkippedNoTenant  int64
	SkippedMalformed int64
}

func (r *Reconciler) Stats() Stats {
	return Stats{
		SkippedNoTenant:  r.skippedNoTenant.Load(),
		SkippedMalformed: r.skippedMalformed.Load(),
	}
}

// Reconcile resolves the event to an existing record via the identity key
// fallback chain and applies it. hostID may be uuid.Nil for channels that
// carry no tenant scope; the tenant is then resolved through the property
// mapping, and events for unmapped properties are skipped; retrying
// cannot succeed until an operator adds the mapping.
func (r *Reconciler) Reconcile(ctx context.Context, hostID uuid.UUID, ev Event) (Outcome, error) {
	res := ev.Reservation
	keys := res.KeySet()
	if len(keys) == 0 {
		r.skippedMalformed.Add(1)
		r.logger.Warn("event carries no identity keys, skipping",
			slog.String("channel", res.SourceChannel),
			slog.String("property", res.PropertyExternalName))
		return OutcomeSkipped, nil
	}

	if hostID == uuid.Nil {
		resolved, ok, err := r.store.ResolveHostByProperty(ctx, res.PropertyExternalName)
		if err != nil {
			return OutcomeSkipped, fmt.Errorf("resolve host for property %q: %w", res.PropertyExternalName, err)
		}
		if !ok {
			r.skippedNoTenant.Add(1)
			r.logger.Warn("no tenant mapping for property, skipping",
				slog.String("property", res.PropertyExternalName),
				slog.String("channel", res.SourceChannel))
			return OutcomeSkipped, nil
		}
		hostID = resolved
	}

	var existing *Record
	for _, key := range keys {
		found, err := r.store.Find(ctx, hostID, key.Type, key.Value)
		if err != nil {
			return OutcomeSkipped, fmt.Errorf("lookup %s=%s: %w", key.Type, key.Value, err)
		}
		if found != nil {
			existing = found
			break
		}
	}

	cancels := ev.Cancelled || (!res.HasStayDates() && existing != nil)

	switch {
	case existing != nil && cancels:
		if existing.Status == StatusCancelled {
			return OutcomeSkipped, nil
		}
		if err := r.store.MarkCancelled(ctx, hostID, existing.ID); err != nil {
			return OutcomeSkipped, fmt.Errorf("mark cancelled %s: %w", existing.ID, err)
		}
		r.logger.Info("reservation cancelled",
			slog.String("reservation_id", existing.ID.String()),
			slog.String("channel", res.SourceChannel))
		return OutcomeCancelled, nil

	case existing != nil:
		merged := mergeRecord(existing, res)
		if err := r.ensureProperty(ctx, hostID, res.PropertyExternalName, merged); err != nil {
			return OutcomeSkipped, err
		}
		if err := r.ensureClient(ctx, hostID, res, merged); err != nil {
			return OutcomeSkipped, err
		}
		if _, err := r.store.Upsert(ctx, merged); err != nil {
			return OutcomeSkipped, fmt.Errorf("update reservation %s: %w", merged.ID, err)
		}
		return OutcomeUpdated, nil

	case ev.Cancelled:
		// Nothing to cancel. Explicitly not an error: cancellations can
		// arrive before (or without) the confirmation they refer to.
		return OutcomeSkipped, nil

	case !res.HasStayDates():
		r.skippedMalformed.Add(1)
		return OutcomeSkipped, nil

	default:
		rec := newRecord(hostID, res)
		if err := r.ensureProperty(ctx, hostID, res.PropertyExternalName, rec); err != nil {
			return OutcomeSkipped, err
		}
		if err := r.ensureClient(ctx, hostID, res, rec); err != nil {
			return OutcomeSkipped, err
		}
		created, err := r.store.Upsert(ctx, rec)
		if err != nil {
			return OutcomeSkipped, fmt.Errorf("create reservation: %w", err)
		}
		if !created {
			// A concurrent delivery of the same event won the write;
			// the upsert merged into that row.
			return OutcomeUpdated, nil
		}
		r.logger.Info("reservation created",
			slog.String("reservation_id", rec.ID.String()),
			slog.String("primary_ref", rec.PrimaryRef),
			slog.String("channel", res.SourceChannel))
		return OutcomeCreated, nil
	}
}

// ensureProperty resolves the external property name to the tenant-scoped
// internal id, creating the mapping on first sight.
func (r *Reconciler) ensureProperty(ctx context.Context, hostID uuid.UUID, externalName string, rec *Record) error {
	externalName = strings.TrimSpace(externalName)
	if externalName == "" || rec.PropertyID != uuid.Nil {
		return nil
	}
	id, ok, err := r.store.FindPropertyMapping(ctx, hostID, externalName)
	if err != nil {
		return fmt.Errorf("find property mapping %q: %w", externalName, err)
	}
	if !ok {
		id, err = r.store.CreatePropertyMapping(ctx, hostID, externalName)
		if err != nil {
			return fmt.Errorf("create property mapping %q: %w", externalName, err)
		}
	}
	rec.PropertyID = id
	return nil
}

// ensureClient links the reservation to a client row, creating one from
// the guest contact details when none exists yet.
func (r *Reconciler) ensureClient(ctx context.Context, hostID uuid.UUID, res Canonical, rec *Record) error {
	if rec.ClientID != uuid.Nil {
		return nil
	}
	email := strings.ToLower(strings.TrimSpace(res.GuestEmail))
	if email == "" {
		return nil
	}
	client, err := r.store.FindClientByEmail(ctx, hostID, email)
	if err != nil {
		return fmt.Errorf("find client %q: %w", email, err)
	}
	if client == nil {
		client, err = r.store.CreateClient(ctx, Client{
			HostID:         hostID,
			Name:           res.GuestName,
			Email:          email,
			Phone:          res.GuestPhone,
			ReservationRef: rec.PrimaryRef,
		})
		if err != nil {
			return fmt.Errorf("create client %q: %w", email, err)
		}
	}
	rec.ClientID = client.ID
	return nil
}

func newRecord(hostID uuid.UUID, res Canonical) *Record {
	rec := &Record{
		ID:            uuid.New(),
		HostID:        hostID,
		SourceChannel: res.SourceChannel,
		SecondaryRef:  res.SecondaryID,
		ThreadRef:     res.ThreadKey,
		GuestName:     res.GuestName,
		GuestEmail:    res.GuestEmail,
		GuestPhone:    res.GuestPhone,
		CheckIn:       res.CheckIn,
		CheckOut:      res.CheckOut,
		Adults:        res.Adults,
		Children:      res.Children,
		TotalAmount:   res.TotalAmount,
		Currency:      res.Currency,
		Status:        StatusConfirmed,
	}
	if res.HasPrimaryID() {
		rec.PrimaryRef = res.PrimaryID
	}
	return rec
}

// mergeRecord overwrites the mutable fields of an existing record with the
// event's values and backfills identity keys the record did not have yet,
// so future lookups by any key succeed.
func mergeRecord(existing *Record, res Canonical) *Record {
	merged := *existing
	if res.HasPrimaryID() && merged.PrimaryRef == "" {
		merged.PrimaryRef = res.PrimaryID
	}
	if res.SecondaryID != "" && merged.SecondaryRef == "" {
		merged.SecondaryRef = res.SecondaryID
	}
	if res.ThreadKey != "" && merged.ThreadRef == "" {
		merged.ThreadRef = res.ThreadKey
	}
	if res.HasStayDates() {
		merged.CheckIn = res.CheckIn
		merged.CheckOut = res.CheckOut
	}
	if res.TotalAmount != nil {
		merged.TotalAmount = res.TotalAmount
		merged.Currency = res.Currency
	}
	if res.GuestName != "" {
		merged.GuestName = res.GuestName
	}
	if res.GuestEmail != "" {
		merged.GuestEmail = res.GuestEmail
	}
	if res.GuestPhone != "" {
		merged.GuestPhone = res.GuestPhone
	}
	if res.Adults > 0 {
		merged.Adults = res.Adults
	}
	if res.Children > 0 {
		merged.Children = res.Children
	}
	merged.Status = StatusConfirmed
	return &merged
}
