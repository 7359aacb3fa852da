package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hostbridge/hostbridge/internal/channels/smoobu"
	"github.com/hostbridge/hostbridge/internal/hosts"
	"github.com/hostbridge/hostbridge/internal/ingest"
	"github.com/hostbridge/hostbridge/internal/mailbox"
)

// channelStore resolves webhook channel ids to configured channel rows.
type channelStore interface {
	GetChannel(ctx context.Context, id uuid.UUID) (*hosts.Channel, error)
}

// webhookDispatcher is the ingestion surface the webhook handlers need.
type webhookDispatcher interface {
	Dispatch(ctx context.Context, hostID uuid.UUID, channel string, msg ingest.ParsedMessage) error
	HandleEmail(ctx context.Context, hostID uuid.UUID, raw []byte) error
}

// WebhookHandler receives push deliveries from Smoobu and Mailgun. The
// channel id in the path selects the tenant channel row.
type WebhookHandler struct {
	logger     *slog.Logger
	channels   channelStore
	adapter    *smoobu.Adapter
	dispatcher webhookDispatcher
	registry   *mailbox.Registry
}

func NewWebhookHandler(log *slog.Logger, channels channelStore, adapter *smoobu.Adapter, dispatcher webhookDispatcher, registry *mailbox.Registry) *WebhookHandler {
	return &WebhookHandler{
		logger:     log.With(slog.String("handler", "webhooks")),
		channels:   channels,
		adapter:    adapter,
		dispatcher: dispatcher,
		registry:   registry,
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/smoobu/:channel_id", h.HandleSmoobu)
	e.POST("/webhooks/mailgun/:channel_id", h.HandleMailgun)
}

// HandleSmoobu ingests one Smoobu push event. Inadmissible payloads are
// answered 200 so the provider stops redelivering them; local processing
// failures are answered 500 so it retries.
func (h *WebhookHandler) HandleSmoobu(c echo.Context) error {
	ch, err := h.lookupChannel(c, hosts.ChannelSmoobu)
	if err != nil {
		return err
	}

	var ev smoobu.WebhookEvent
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	msg, err := h.adapter.Adapt(ev)
	if errors.Is(err, smoobu.ErrNotAdmissible) {
		h.logger.Info("smoobu payload discarded", slog.String("reason", err.Error()))
		return c.JSON(http.StatusOK, map[string]string{"status": "discarded"})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.dispatcher.Dispatch(c.Request().Context(), ch.HostID, "smoobu", msg); err != nil {
		h.logger.Error("smoobu dispatch failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleMailgun verifies and ingests one inbound-route callback.
func (h *WebhookHandler) HandleMailgun(c echo.Context) error {
	ch, err := h.lookupChannel(c, hosts.ChannelMailgun)
	if err != nil {
		return err
	}

	receiver, err := h.registry.GetWebhookReceiver(mailbox.ProviderName(ch.Channel))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "mailgun adapter not available")
	}

	raw, err := receiver.HandleWebhook(c.Request().Context(), *ch, c.Request())
	if err != nil {
		h.logger.Error("webhook handling failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}

	if err := h.dispatcher.HandleEmail(c.Request().Context(), ch.HostID, raw); err != nil {
		h.logger.Error("inbound processing failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) lookupChannel(c echo.Context, wantType string) (*hosts.Channel, error) {
	raw := strings.TrimSpace(c.Param("channel_id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "channel_id is invalid")
	}
	ch, err := h.channels.GetChannel(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("channel lookup failed", slog.Any("error", err))
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "channel lookup failed")
	}
	if ch == nil || ch.Channel != wantType {
		return nil, echo.NewHTTPError(http.StatusNotFound, "channel not found")
	}
	if ch.Disabled {
		return nil, echo.NewHTTPError(http.StatusGone, "channel disabled")
	}
	return ch, nil
}
