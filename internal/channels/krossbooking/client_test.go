package krossbooking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Credentials{BaseURL: srv.URL, APIKey: "secret", HotelID: "H1"})
}

func TestFetchReservations(t *testing.T) {
	t.Parallel()

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reservations/pending", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "H1", r.Header.Get("X-Hotel-ID"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []ReservationDTO{{IDReservation: "KB-1", Status: "CONF"}},
		})
	})

	batch, err := client.FetchReservations(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "KB-1", batch[0].IDReservation)
}

func TestAckReservationsPostsIDs(t *testing.T) {
	t.Parallel()

	var got map[string][]string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/reservations/ack", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.AckReservations(context.Background(), []string{"KB-1", "KB-2"}))
	assert.Equal(t, []string{"KB-1", "KB-2"}, got["ids"])
}

func TestAckReservationsSkipsEmptyBatch(t *testing.T) {
	t.Parallel()

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty batch")
	})
	require.NoError(t, client.AckReservations(context.Background(), nil))
}

func TestProviderErrorCarriesRetryAfter(t *testing.T) {
	t.Parallel()

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchReservations(context.Background())
	require.Error(t, err)

	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, http.StatusTooManyRequests, provErr.StatusCode)
	assert.Equal(t, 30*time.Second, provErr.RetryAfter)
	assert.True(t, provErr.Temporary())
}

func TestProviderErrorPermanent(t *testing.T) {
	t.Parallel()

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.FetchReservations(context.Background())
	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.False(t, provErr.Temporary())
}
