// Package krossbooking integrates the Krossbooking channel manager:
// a fetch-then-acknowledge polling API for reservations and guest
// messages.
package krossbooking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Credentials selects the tenant account on the provider side.
type Credentials struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	APIKey  string `json:"api_key" validate:"required"`
	HotelID string `json:"hotel_id" validate:"required"`
}

// ProviderError is a non-2xx provider response. RetryAfter carries the
// provider's declared delay when the response included one.
type ProviderError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider responded %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether a retry can succeed.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetryDelayHint exposes the provider's declared delay to the polling
// backoff.
func (e *ProviderError) RetryDelayHint() time.Duration {
	return e.RetryAfter
}

// ReservationDTO is the provider's reservation wire shape.
type ReservationDTO struct {
	IDReservation string  `json:"id_reservation"`
	CodChannel    string  `json:"cod_channel"`
	ChannelRef    string  `json:"channel_ref"`
	Label         string  `json:"label"`
	DateArrival   string  `json:"date_arrival"`
	DateDeparture string  `json:"date_departure"`
	Adults        int     `json:"adults"`
	Children      int     `json:"children"`
	AmountTotal   float64 `json:"amount_total"`
	Currency      string  `json:"currency"`
	Status        string  `json:"cod_reservation_status"`
	GuestName     string  `json:"guest_name"`
	GuestEmail    string  `json:"guest_email"`
	GuestPhone    string  `json:"guest_phone"`
}

// MessageDTO is the provider's guest-message wire shape.
type MessageDTO struct {
	IDMessage     string `json:"id_message"`
	IDThread      string `json:"id_thread"`
	IDReservation string `json:"id_reservation"`
	SenderRole    string `json:"sender_role"`
	GuestName     string `json:"guest_name"`
	GuestEmail    string `json:"guest_email"`
	Text          string `json:"text"`
	CreatedAt     string `json:"created_at"`
}

// Client talks to the provider API. All calls share one rate limiter so
// per-tenant workers cannot burst past the provider's quota.
type Client struct {
	creds   Credentials
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(creds Credentials) *Client {
	return &Client{
		creds:   creds,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// FetchReservations returns the batch of new and changed reservations
// past the provider-side cursor. The cursor advances only on
// AckReservations.
func (c *Client) FetchReservations(ctx context.Context) ([]ReservationDTO, error) {
	var out struct {
		Data []ReservationDTO `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/reservations/pending", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// AckReservations advances the provider cursor past the given ids. Call
// only after the batch is fully applied locally.
func (c *Client) AckReservations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"ids": ids}
	return c.call(ctx, http.MethodPost, "/reservations/ack", body, nil)
}

// FetchMessages returns the unconfirmed guest-message batch.
func (c *Client) FetchMessages(ctx context.Context) ([]MessageDTO, error) {
	var out struct {
		Data []MessageDTO `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/messages/pending", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ConfirmMessages advances the provider message cursor.
func (c *Client) ConfirmMessages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"ids": ids}
	return c.call(ctx, http.MethodPost, "/messages/confirm", body, nil)
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.creds.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.APIKey)
	req.Header.Set("X-Hotel-ID", c.creds.HotelID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       string(payload),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
