package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbridge/hostbridge/internal/channels/krossbooking"
	"github.com/hostbridge/hostbridge/internal/ingest"
)

type captureDispatcher struct {
	batches [][]ingest.ParsedMessage
	fail    bool
}

func (d *captureDispatcher) DispatchBatch(_ context.Context, _ uuid.UUID, _ string, msgs []ingest.ParsedMessage) error {
	d.batches = append(d.batches, msgs)
	if d.fail {
		return errors.New("store unavailable")
	}
	return nil
}

func cycleFixture(t *testing.T, dispatcher *captureDispatcher) (CycleFunc, *atomic.Int64, *atomic.Int64) {
	t.Helper()

	var acked, confirmed atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/reservations/pending":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []krossbooking.ReservationDTO{
					{IDReservation: "KB-1", Status: "CONF", DateArrival: "2026-09-03", DateDeparture: "2026-09-05"},
					{IDReservation: "KB-2", Status: "CANC"},
				},
			})
		case "/reservations/ack":
			acked.Add(1)
			w.WriteHeader(http.StatusNoContent)
		case "/messages/pending":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []krossbooking.MessageDTO{
					{IDMessage: "M-1", IDReservation: "KB-1", SenderRole: "guest", Text: "ciao"},
					{IDMessage: "M-2", IDReservation: "KB-1", SenderRole: "host", Text: "risposta"},
				},
			})
		case "/messages/confirm":
			confirmed.Add(1)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	client := krossbooking.NewClient(krossbooking.Credentials{BaseURL: srv.URL, APIKey: "k", HotelID: "H1"})
	return KrossbookingCycle(slog.Default(), client, dispatcher, uuid.New()), &acked, &confirmed
}

func TestKrossbookingCycleHappyPath(t *testing.T) {
	t.Parallel()

	dispatcher := &captureDispatcher{}
	cycle, acked, confirmed := cycleFixture(t, dispatcher)

	require.NoError(t, cycle(context.Background()))
	require.Len(t, dispatcher.batches, 2)
	assert.Len(t, dispatcher.batches[0], 2, "both reservation events dispatched")
	assert.Len(t, dispatcher.batches[1], 1, "host-authored message discarded before dispatch")
	assert.Equal(t, int64(1), acked.Load())
	assert.Equal(t, int64(1), confirmed.Load())
}

func TestKrossbookingCycleDoesNotAckOnLocalFailure(t *testing.T) {
	t.Parallel()

	dispatcher := &captureDispatcher{fail: true}
	cycle, acked, confirmed := cycleFixture(t, dispatcher)

	require.Error(t, cycle(context.Background()))
	assert.Equal(t, int64(0), acked.Load(), "a failed batch must stay unacknowledged for redelivery")
	assert.Equal(t, int64(0), confirmed.Load())
}
