// Package smoobu integrates the Smoobu channel manager, a push-webhook
// API delivering one reservation or guest-message event per call.
package smoobu

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hostbridge/hostbridge/internal/conversation"
	"github.com/hostbridge/hostbridge/internal/ingest"
	"github.com/hostbridge/hostbridge/internal/reservation"
)

// ErrNotAdmissible marks payloads the channel rules exclude from
// ingestion: non-guest senders and messages lacking the reservation
// cross-reference. Such deliveries are answered 200 so the provider
// stops redelivering them.
var ErrNotAdmissible = errors.New("payload not admissible")

// WebhookEvent is the provider's envelope: action discriminates the
// payload variant.
type WebhookEvent struct {
	Action      string          `json:"action" validate:"required"`
	Reservation *ReservationDTO `json:"data"`
	Message     *MessageDTO     `json:"message"`
}

// NameRef is the provider's {id, name} sub-object.
type NameRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ReservationDTO is the reservation payload variant.
type ReservationDTO struct {
	ID           int     `json:"id" validate:"required"`
	Type         string  `json:"type"`
	Arrival      string  `json:"arrival" validate:"omitempty,datetime=2006-01-02"`
	Departure    string  `json:"departure" validate:"omitempty,datetime=2006-01-02"`
	Apartment    NameRef `json:"apartment"`
	Channel      NameRef `json:"channel"`
	ChannelRef   string  `json:"reference-id"`
	GuestName    string  `json:"guest-name"`
	Email        string  `json:"email"`
	Phone        string  `json:"phone"`
	Adults       int     `json:"adults"`
	Children     int     `json:"children"`
	Price        float64 `json:"price"`
	CurrencyCode string  `json:"currency"`
}

// MessageDTO is the guest-message payload variant.
type MessageDTO struct {
	ID            int    `json:"id" validate:"required"`
	ReservationID int    `json:"reservation-id"`
	SenderRole    string `json:"type"`
	Subject       string `json:"subject"`
	Body          string `json:"message"`
	GuestName     string `json:"guest-name"`
	GuestEmail    string `json:"guest-email"`
	CreatedAt     string `json:"created-at"`
}

// Adapter validates and maps webhook events. Pure mapping, no network.
type Adapter struct {
	validate *validator.Validate
}

func NewAdapter() *Adapter {
	return &Adapter{validate: validator.New()}
}

// Adapt maps one webhook event into a classified message. Cancellation
// is signaled either by the action or by the reservation type.
func (a *Adapter) Adapt(ev WebhookEvent) (ingest.ParsedMessage, error) {
	if err := a.validate.Struct(ev); err != nil {
		return ingest.ParsedMessage{}, fmt.Errorf("invalid event: %w", err)
	}

	switch strings.ToLower(ev.Action) {
	case "newreservation", "updatereservation", "cancelreservation":
		if ev.Reservation == nil {
			return ingest.ParsedMessage{}, fmt.Errorf("action %s without reservation payload", ev.Action)
		}
		return a.adaptReservation(ev.Action, *ev.Reservation)
	case "newmessage":
		if ev.Message == nil {
			return ingest.ParsedMessage{}, fmt.Errorf("action %s without message payload", ev.Action)
		}
		return a.adaptMessage(*ev.Message)
	default:
		return ingest.ParsedMessage{}, fmt.Errorf("%w: unsupported action %q", ErrNotAdmissible, ev.Action)
	}
}

func (a *Adapter) adaptReservation(action string, dto ReservationDTO) (ingest.ParsedMessage, error) {
	if err := a.validate.Struct(dto); err != nil {
		return ingest.ParsedMessage{}, fmt.Errorf("invalid reservation payload: %w", err)
	}

	res := reservation.Canonical{
		PrimaryID:            strconv.Itoa(dto.ID),
		SecondaryID:          strings.TrimSpace(dto.ChannelRef),
		SourceChannel:        "smoobu",
		PropertyExternalName: strings.TrimSpace(dto.Apartment.Name),
		GuestName:            strings.TrimSpace(dto.GuestName),
		GuestEmail:           strings.ToLower(strings.TrimSpace(dto.Email)),
		GuestPhone:           strings.TrimSpace(dto.Phone),
		Adults:               dto.Adults,
		Children:             dto.Children,
	}
	if d, err := time.Parse("2006-01-02", dto.Arrival); err == nil {
		res.CheckIn = &d
	}
	if d, err := time.Parse("2006-01-02", dto.Departure); err == nil {
		res.CheckOut = &d
	}
	if dto.Price > 0 {
		price := dto.Price
		res.TotalAmount = &price
		res.Currency = dto.CurrencyCode
		if res.Currency == "" {
			res.Currency = "EUR"
		}
	}

	meta := ingest.Metadata{
		Sender:            "smoobu",
		ProviderMessageID: deliveryID(action, dto.ID),
		ReceivedAt:        time.Now(),
	}
	if strings.EqualFold(action, "cancelReservation") || strings.EqualFold(dto.Type, "cancellation") {
		return ingest.NewCancelled(meta, res), nil
	}
	return ingest.NewConfirmed(meta, res), nil
}

func (a *Adapter) adaptMessage(dto MessageDTO) (ingest.ParsedMessage, error) {
	if err := a.validate.Struct(dto); err != nil {
		return ingest.ParsedMessage{}, fmt.Errorf("invalid message payload: %w", err)
	}
	if !strings.EqualFold(dto.SenderRole, "guest") {
		return ingest.ParsedMessage{}, fmt.Errorf("%w: sender role %q", ErrNotAdmissible, dto.SenderRole)
	}
	if dto.ReservationID == 0 {
		return ingest.ParsedMessage{}, fmt.Errorf("%w: message without reservation reference", ErrNotAdmissible)
	}

	receivedAt := time.Now()
	if at, err := time.Parse(time.RFC3339, dto.CreatedAt); err == nil {
		receivedAt = at
	}

	msg := conversation.GuestMessage{
		ReservationRef: strconv.Itoa(dto.ReservationID),
		Source:         "smoobu",
		Text:           dto.Body,
		GuestName:      strings.TrimSpace(dto.GuestName),
		GuestEmail:     strings.ToLower(strings.TrimSpace(dto.GuestEmail)),
		ReceivedAt:     receivedAt,
	}
	meta := ingest.Metadata{
		Subject:           dto.Subject,
		Sender:            "smoobu",
		ProviderMessageID: "msg-" + strconv.Itoa(dto.ID),
		ReceivedAt:        receivedAt,
	}
	return ingest.NewGuestMessage(meta, msg), nil
}

// deliveryID keys dedup per action so an update or cancellation of a
// reservation is not dropped against its creation event.
func deliveryID(action string, id int) string {
	return strings.ToLower(action) + "-" + strconv.Itoa(id)
}
