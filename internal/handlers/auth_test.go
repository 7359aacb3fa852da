package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postLogin(t *testing.T, h *AuthHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	err := h.Login(e.NewContext(req, rec))
	if err != nil {
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		rec.Code = httpErr.Code
	}
	return rec
}

func TestLoginIssuesToken(t *testing.T) {
	t.Parallel()

	h := NewAuthHandler(slog.Default(), "secret", "op-key", time.Hour)
	rec := postLogin(t, h, `{"operator_id":"ops","operator_key":"op-key"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "token")
}

func TestLoginRejectsWrongKey(t *testing.T) {
	t.Parallel()

	h := NewAuthHandler(slog.Default(), "secret", "op-key", time.Hour)
	rec := postLogin(t, h, `{"operator_id":"ops","operator_key":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRequiresConfiguredKey(t *testing.T) {
	t.Parallel()

	h := NewAuthHandler(slog.Default(), "secret", "", time.Hour)
	rec := postLogin(t, h, `{"operator_id":"ops","operator_key":""}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
