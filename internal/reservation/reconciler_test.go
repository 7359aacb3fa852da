package reservation

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	records    map[uuid.UUID]*Record
	properties map[string]uuid.UUID // hostID|externalName
	hosts      map[string]uuid.UUID // externalName -> hostID
	clients    map[string]*Client   // hostID|email
}

func newMemStore() *memStore {
	return &memStore{
		records:    map[uuid.UUID]*Record{},
		properties: map[string]uuid.UUID{},
		hosts:      map[string]uuid.UUID{},
		clients:    map[string]*Client{},
	}
}

func (m *memStore) Find(_ context.Context, hostID uuid.UUID, keyType KeyType, keyValue string) (*Record, error) {
	if keyValue == "" {
		return nil, nil
	}
	for _, rec := range m.records {
		if rec.HostID != hostID {
			continue
		}
		switch keyType {
		case KeyPrimary:
			if rec.PrimaryRef == keyValue {
				return rec, nil
			}
		case KeySecondary:
			if rec.SecondaryRef == keyValue {
				return rec, nil
			}
		case KeyThread:
			if rec.ThreadRef == keyValue {
				return rec, nil
			}
		}
	}
	return nil, nil
}

func (m *memStore) Upsert(_ context.Context, rec *Record) (bool, error) {
	if _, ok := m.records[rec.ID]; ok {
		clone := *rec
		m.records[rec.ID] = &clone
		return false, nil
	}
	if rec.PrimaryRef != "" {
		for _, existing := range m.records {
			if existing.HostID == rec.HostID && existing.PrimaryRef == rec.PrimaryRef {
				rec.ID = existing.ID
				clone := *rec
				m.records[existing.ID] = &clone
				return false, nil
			}
		}
	}
	clone := *rec
	m.records[rec.ID] = &clone
	return true, nil
}

func (m *memStore) MarkCancelled(_ context.Context, hostID, id uuid.UUID) error {
	rec, ok := m.records[id]
	if !ok || rec.HostID != hostID {
		return assert.AnError
	}
	rec.Status = StatusCancelled
	return nil
}

func (m *memStore) FindPropertyMapping(_ context.Context, hostID uuid.UUID, externalName string) (uuid.UUID, bool, error) {
	id, ok := m.properties[hostID.String()+"|"+externalName]
	return id, ok, nil
}

func (m *memStore) CreatePropertyMapping(_ context.Context, hostID uuid.UUID, externalName string) (uuid.UUID, error) {
	id := uuid.New()
	m.properties[hostID.String()+"|"+externalName] = id
	return id, nil
}

func (m *memStore) ResolveHostByProperty(_ context.Context, externalName string) (uuid.UUID, bool, error) {
	id, ok := m.hosts[externalName]
	return id, ok, nil
}

func (m *memStore) FindClientByEmail(_ context.Context, hostID uuid.UUID, email string) (*Client, error) {
	return m.clients[hostID.String()+"|"+email], nil
}

func (m *memStore) CreateClient(_ context.Context, client Client) (*Client, error) {
	client.ID = uuid.New()
	m.clients[client.HostID.String()+"|"+client.Email] = &client
	return &client, nil
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func confirmedEvent() Event {
	amount := 318.0
	return Event{Reservation: Canonical{
		PrimaryID:            "4211398512",
		ThreadKey:            "thread-abc",
		SourceChannel:        "booking",
		PropertyExternalName: "Casa Bella Vista",
		GuestName:            "Marco Rossi",
		GuestEmail:           "marco@example.com",
		CheckIn:              datePtr(2026, time.January, 15),
		CheckOut:             datePtr(2026, time.January, 18),
		Adults:               2,
		TotalAmount:          &amount,
		Currency:             "EUR",
	}}
}

func TestReconcileCreatesReservation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := NewReconciler(slog.Default(), store)
	hostID := uuid.New()

	outcome, err := rec.Reconcile(context.Background(), hostID, confirmedEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	require.Len(t, store.records, 1)

	for _, stored := range store.records {
		assert.Equal(t, "4211398512", stored.PrimaryRef)
		assert.Equal(t, "thread-abc", stored.ThreadRef)
		assert.Equal(t, StatusConfirmed, stored.Status)
		assert.NotEqual(t, uuid.Nil, stored.PropertyID)
		assert.NotEqual(t, uuid.Nil, stored.ClientID)
	}
	assert.Len(t, store.properties, 1)
	assert.Len(t, store.clients, 1)
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := NewReconciler(slog.Default(), store)
	hostID := uuid.New()
	ctx := context.Background()

	_, err := rec.Reconcile(ctx, hostID, confirmedEvent())
	require.NoError(t, err)

	outcome, err := rec.Reconcile(ctx, hostID, confirmedEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Len(t, store.records, 1, "replaying the same event must not duplicate the record")
	assert.Len(t, store.clients, 1)
}

func TestReconcileCancellation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := NewReconciler(slog.Default(), store)
	hostID := uuid.New()
	ctx := context.Background()

	_, err := rec.Reconcile(ctx, hostID, confirmedEvent())
	require.NoError(t, err)

	cancel := confirmedEvent()
	cancel.Cancelled = true
	outcome, err := rec.Reconcile(ctx, hostID, cancel)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, outcome)

	for _, stored := range store.records {
		assert.Equal(t, StatusCancelled, stored.Status)
	}

	// Second cancellation is a no-op, not an error.
	outcome, err = rec.Reconcile(ctx, hostID, cancel)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestReconcileCancellationWithoutRecordSkips(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := NewReconciler(slog.Default(), store)

	cancel := confirmedEvent()
	cancel.Cancelled = true
	outcome, err := rec.Reconcile(context.Background(), uuid.New(), cancel)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, store.records)
}

func TestReconcileMissingDatesCancelsExisting(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := NewReconciler(slog.Default(), store)
	hostID := uuid.New()
	ctx := context.Background()

	_, err := rec.Reconcile(ctx, hostID, confirmedEvent())
	require.NoError(t, err)

	// A modification relay with both stay dates absent is the implicit
	// cancellation signal once a record exists.
	modified := confirmedEvent()
	modified.Reservation.CheckIn = nil
	modified.Reservation.CheckOut = nil
	outcome, err := rec.Reconcile(ctx, hostID, modified)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, outcome)
}

func TestReconcileKeyFallbackBackfillsPrimaryRef(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := NewReconciler(slog.Default(), store)
	hostID := uuid.New()
	ctx := context.Background()

	// First event arrives without a usable primary id.
	first := confirmedEvent()
	first.Reservation.PrimaryID = UnknownID
	outcome, err := rec.Reconcile(ctx, hostID, first)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)

	// Second event for the same thread carries the primary id; it must
	// resolve through the thread key and backfill the primary ref.
	outcome, err = rec.Reconcile(ctx, hostID, confirmedEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	require.Len(t, store.records, 1)
	for _, stored := range store.records {
		assert.Equal(t, "4211398512", stored.PrimaryRef)
	}
}

func TestReconcileNoIdentityKeysSkips(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := NewReconciler(slog.Default(), store)

	ev := Event{Reservation: Canonical{SourceChannel: "booking"}}
	outcome, err := rec.Reconcile(context.Background(), uuid.New(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, int64(1), rec.Stats().SkippedMalformed)
}

func TestReconcileResolvesHostThroughProperty(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	hostID := uuid.New()
	store.hosts["Casa Bella Vista"] = hostID
	rec := NewReconciler(slog.Default(), store)

	outcome, err := rec.Reconcile(context.Background(), uuid.Nil, confirmedEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	for _, stored := range store.records {
		assert.Equal(t, hostID, stored.HostID)
	}
}

func TestReconcileUnmappedPropertySkips(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := NewReconciler(slog.Default(), store)

	outcome, err := rec.Reconcile(context.Background(), uuid.Nil, confirmedEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, int64(1), rec.Stats().SkippedNoTenant)
	assert.Empty(t, store.records)
}
