package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hostbridge/hostbridge/internal/hosts"
	"github.com/hostbridge/hostbridge/internal/ingest"
	"github.com/hostbridge/hostbridge/internal/reservation"
)

// AdminHandler exposes the operator surface: tenants, channel
// configuration, auto-reply flags and ingestion counters.
type AdminHandler struct {
	logger     *slog.Logger
	hosts      *hosts.Service
	reconciler *reservation.Reconciler
	dispatcher *ingest.Dispatcher
}

func NewAdminHandler(log *slog.Logger, hostsSvc *hosts.Service, reconciler *reservation.Reconciler, dispatcher *ingest.Dispatcher) *AdminHandler {
	return &AdminHandler{
		logger:     log.With(slog.String("handler", "admin")),
		hosts:      hostsSvc,
		reconciler: reconciler,
		dispatcher: dispatcher,
	}
}

func (h *AdminHandler) Register(e *echo.Echo) {
	e.POST("/hosts", h.CreateHost)
	e.GET("/hosts/:id", h.GetHost)
	e.PUT("/hosts/:id/auto-reply", h.SetHostAutoReply)
	e.PUT("/hosts/:id/clients/:client_id/auto-reply", h.SetClientAutoReply)
	e.POST("/hosts/:id/channels", h.UpsertChannel)
	e.DELETE("/channels/:id", h.DisableChannel)
	e.GET("/stats", h.Stats)
}

type createHostRequest struct {
	Name string `json:"name"`
}

func (h *AdminHandler) CreateHost(c echo.Context) error {
	var req createHostRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	host, err := h.hosts.CreateHost(c.Request().Context(), req.Name)
	if err != nil {
		h.logger.Error("create host failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "create host failed")
	}
	return c.JSON(http.StatusCreated, host)
}

func (h *AdminHandler) GetHost(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is invalid")
	}
	host, err := h.hosts.GetHost(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "host lookup failed")
	}
	if host == nil {
		return echo.NewHTTPError(http.StatusNotFound, "host not found")
	}
	return c.JSON(http.StatusOK, host)
}

type flagRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *AdminHandler) SetHostAutoReply(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is invalid")
	}
	var req flagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := h.hosts.SetAutoReplyNewReservations(c.Request().Context(), id, req.Enabled); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (h *AdminHandler) SetClientAutoReply(c echo.Context) error {
	hostID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is invalid")
	}
	clientID, err := uuid.Parse(c.Param("client_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "client_id is invalid")
	}
	var req flagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := h.hosts.SetClientAutoReply(c.Request().Context(), hostID, clientID, req.Enabled); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

type upsertChannelRequest struct {
	Channel     string          `json:"channel"`
	Credentials json.RawMessage `json:"credentials"`
}

func (h *AdminHandler) UpsertChannel(c echo.Context) error {
	hostID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is invalid")
	}
	var req upsertChannelRequest
	if err := c.Bind(&req); err != nil || req.Channel == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "channel is required")
	}
	ch, err := h.hosts.UpsertChannel(c.Request().Context(), hostID, req.Channel, req.Credentials)
	if err != nil {
		h.logger.Error("upsert channel failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "upsert channel failed")
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *AdminHandler) DisableChannel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is invalid")
	}
	if err := h.hosts.DisableChannel(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type statsResponse struct {
	Unhandled        int64 `json:"unhandled"`
	Duplicates       int64 `json:"duplicates"`
	SkippedNoTenant  int64 `json:"skipped_no_tenant"`
	SkippedMalformed int64 `json:"skipped_malformed"`
}

func (h *AdminHandler) Stats(c echo.Context) error {
	stats := h.reconciler.Stats()
	return c.JSON(http.StatusOK, statsResponse{
		Unhandled:        h.dispatcher.UnhandledCount(),
		Duplicates:       h.dispatcher.DuplicateCount(),
		SkippedNoTenant:  stats.SkippedNoTenant,
		SkippedMalformed: stats.SkippedMalformed,
	})
}
