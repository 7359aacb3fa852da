package krossbooking

import (
	"strings"
	"time"

	"github.com/hostbridge/hostbridge/internal/conversation"
	"github.com/hostbridge/hostbridge/internal/ingest"
	"github.com/hostbridge/hostbridge/internal/reservation"
)

// Reservation status codes on the wire.
const (
	statusConfirmed = "CONF"
	statusModified  = "MODI"
	statusCancelled = "CANC"
)

// AdaptReservation maps one polled reservation into the canonical shape.
// Pure mapping, no network.
func AdaptReservation(dto ReservationDTO) ingest.ParsedMessage {
	res := reservation.Canonical{
		PrimaryID:            strings.TrimSpace(dto.IDReservation),
		SecondaryID:          strings.TrimSpace(dto.ChannelRef),
		SourceChannel:        "krossbooking",
		PropertyExternalName: strings.TrimSpace(dto.Label),
		GuestName:            strings.TrimSpace(dto.GuestName),
		GuestEmail:           strings.ToLower(strings.TrimSpace(dto.GuestEmail)),
		GuestPhone:           strings.TrimSpace(dto.GuestPhone),
		Adults:               dto.Adults,
		Children:             dto.Children,
	}
	if res.PrimaryID == "" {
		res.PrimaryID = reservation.UnknownID
	}
	if d, ok := parseWireDate(dto.DateArrival); ok {
		res.CheckIn = &d
	}
	if d, ok := parseWireDate(dto.DateDeparture); ok {
		res.CheckOut = &d
	}
	if dto.AmountTotal > 0 {
		amount := dto.AmountTotal
		res.TotalAmount = &amount
		res.Currency = dto.Currency
		if res.Currency == "" {
			res.Currency = "EUR"
		}
	}

	meta := ingest.Metadata{
		Sender:            "krossbooking",
		ProviderMessageID: reservationDeliveryID(dto),
		ReceivedAt:        time.Now(),
	}
	if strings.EqualFold(dto.Status, statusCancelled) {
		return ingest.NewCancelled(meta, res)
	}
	return ingest.NewConfirmed(meta, res)
}

// AdaptReservations maps a whole polled batch.
func AdaptReservations(dtos []ReservationDTO) []ingest.ParsedMessage {
	msgs := make([]ingest.ParsedMessage, 0, len(dtos))
	for _, dto := range dtos {
		msgs = append(msgs, AdaptReservation(dto))
	}
	return msgs
}

// AdaptMessage maps one polled guest message. Messages whose sender role
// is not the guest, or that lack the reservation cross-reference, are
// not admissible: they cannot be reconciled and must not be dispatched.
func AdaptMessage(dto MessageDTO) (ingest.ParsedMessage, bool) {
	if !strings.EqualFold(dto.SenderRole, "guest") {
		return ingest.ParsedMessage{}, false
	}
	ref := strings.TrimSpace(dto.IDReservation)
	thread := strings.TrimSpace(dto.IDThread)
	if ref == "" && thread == "" {
		return ingest.ParsedMessage{}, false
	}
	if ref == "" {
		ref = reservation.UnknownID
	}

	receivedAt := time.Now()
	if at, err := time.Parse(time.RFC3339, dto.CreatedAt); err == nil {
		receivedAt = at
	}

	msg := conversation.GuestMessage{
		ReservationRef: ref,
		ThreadID:       thread,
		Source:         "krossbooking",
		Text:           dto.Text,
		GuestName:      strings.TrimSpace(dto.GuestName),
		GuestEmail:     strings.ToLower(strings.TrimSpace(dto.GuestEmail)),
		ReceivedAt:     receivedAt,
	}
	meta := ingest.Metadata{
		Sender:            "krossbooking",
		ProviderMessageID: "msg-" + dto.IDMessage,
		ReceivedAt:        receivedAt,
		Snippet:           snippet(dto.Text, 120),
	}
	return ingest.NewGuestMessage(meta, msg), true
}

// reservationDeliveryID builds a stable dedup id for one reservation
// state. Status is part of the id so a later cancellation of the same
// reservation is not dropped as a duplicate.
func reservationDeliveryID(dto ReservationDTO) string {
	return "res-" + dto.IDReservation + "-" + strings.ToUpper(dto.Status)
}

func parseWireDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}
