package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbridge/hostbridge/internal/channels/smoobu"
	"github.com/hostbridge/hostbridge/internal/hosts"
	"github.com/hostbridge/hostbridge/internal/ingest"
	"github.com/hostbridge/hostbridge/internal/mailbox"
)

type fakeChannelStore struct {
	channels map[uuid.UUID]*hosts.Channel
	err      error
}

func (f *fakeChannelStore) GetChannel(_ context.Context, id uuid.UUID) (*hosts.Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.channels[id], nil
}

type fakeDispatcher struct {
	dispatched []ingest.ParsedMessage
	emails     [][]byte
	fail       bool
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ uuid.UUID, _ string, msg ingest.ParsedMessage) error {
	if f.fail {
		return errors.New("boom")
	}
	f.dispatched = append(f.dispatched, msg)
	return nil
}

func (f *fakeDispatcher) HandleEmail(_ context.Context, _ uuid.UUID, raw []byte) error {
	if f.fail {
		return errors.New("boom")
	}
	f.emails = append(f.emails, raw)
	return nil
}

func webhookFixture(dispatcher *fakeDispatcher) (*WebhookHandler, uuid.UUID) {
	channelID := uuid.New()
	store := &fakeChannelStore{channels: map[uuid.UUID]*hosts.Channel{
		channelID: {ID: channelID, HostID: uuid.New(), Channel: hosts.ChannelSmoobu},
	}}
	h := NewWebhookHandler(slog.Default(), store, smoobu.NewAdapter(), dispatcher, mailbox.NewRegistry())
	return h, channelID
}

func postSmoobu(t *testing.T, h *WebhookHandler, channelID string, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/smoobu/"+channelID, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("channel_id")
	c.SetParamValues(channelID)
	err := h.HandleSmoobu(c)
	if err != nil {
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		rec.Code = httpErr.Code
	}
	return rec
}

func TestHandleSmoobuDispatchesReservation(t *testing.T) {
	t.Parallel()

	dispatcher := &fakeDispatcher{}
	h, channelID := webhookFixture(dispatcher)

	body := `{"action":"newReservation","data":{"id":777,"arrival":"2026-07-01","departure":"2026-07-05","apartment":{"id":1,"name":"Casa Bella Vista"},"guest-name":"Marco Rossi","price":420.5}}`
	rec := postSmoobu(t, h, channelID.String(), body)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, ingest.KindReservationConfirmed, dispatcher.dispatched[0].Kind)
	assert.Equal(t, "777", dispatcher.dispatched[0].Reservation.PrimaryID)
}

func TestHandleSmoobuDiscardsInadmissible(t *testing.T) {
	t.Parallel()

	dispatcher := &fakeDispatcher{}
	h, channelID := webhookFixture(dispatcher)

	// Host-authored message: answered 200 so the provider stops
	// redelivering, but nothing is dispatched.
	body := `{"action":"newMessage","message":{"id":9,"reservation-id":777,"type":"host","message":"ciao"}}`
	rec := postSmoobu(t, h, channelID.String(), body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "discarded")
	assert.Empty(t, dispatcher.dispatched)
}

func TestHandleSmoobuFailureReturns500(t *testing.T) {
	t.Parallel()

	dispatcher := &fakeDispatcher{fail: true}
	h, channelID := webhookFixture(dispatcher)

	body := `{"action":"newReservation","data":{"id":777,"arrival":"2026-07-01","departure":"2026-07-05"}}`
	rec := postSmoobu(t, h, channelID.String(), body)

	assert.Equal(t, http.StatusInternalServerError, rec.Code, "provider must retry on local failure")
}

func TestHandleSmoobuUnknownChannel(t *testing.T) {
	t.Parallel()

	h, _ := webhookFixture(&fakeDispatcher{})
	rec := postSmoobu(t, h, uuid.NewString(), `{"action":"newReservation","data":{"id":1}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSmoobuDisabledChannel(t *testing.T) {
	t.Parallel()

	channelID := uuid.New()
	store := &fakeChannelStore{channels: map[uuid.UUID]*hosts.Channel{
		channelID: {ID: channelID, Channel: hosts.ChannelSmoobu, Disabled: true},
	}}
	h := NewWebhookHandler(slog.Default(), store, smoobu.NewAdapter(), &fakeDispatcher{}, mailbox.NewRegistry())

	rec := postSmoobu(t, h, channelID.String(), `{"action":"newReservation","data":{"id":1}}`)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestHandleSmoobuInvalidChannelID(t *testing.T) {
	t.Parallel()

	h, _ := webhookFixture(&fakeDispatcher{})
	rec := postSmoobu(t, h, "not-a-uuid", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
