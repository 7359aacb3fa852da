package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hostbridge/hostbridge/internal/auth"
)

// AuthHandler exchanges the shared operator key for a JWT.
type AuthHandler struct {
	logger      *slog.Logger
	jwtSecret   string
	operatorKey string
	expiresIn   time.Duration
}

func NewAuthHandler(log *slog.Logger, jwtSecret, operatorKey string, expiresIn time.Duration) *AuthHandler {
	return &AuthHandler{
		logger:      log.With(slog.String("handler", "auth")),
		jwtSecret:   jwtSecret,
		operatorKey: operatorKey,
		expiresIn:   expiresIn,
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/login", h.Login)
}

type loginRequest struct {
	OperatorID  string `json:"operator_id"`
	OperatorKey string `json:"operator_key"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil || req.OperatorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "operator_id is required")
	}
	if h.operatorKey == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "operator login is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(req.OperatorKey), []byte(h.operatorKey)) != 1 {
		h.logger.Warn("login rejected", slog.String("operator_id", req.OperatorID))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid operator key")
	}

	token, expiresAt, err := auth.GenerateToken(req.OperatorID, h.jwtSecret, h.expiresIn)
	if err != nil {
		h.logger.Error("token generation failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "token generation failed")
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}
