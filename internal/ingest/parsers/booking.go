package parsers

import (
	"strings"
	"time"

	"github.com/hostbridge/hostbridge/internal/ingest"
	"github.com/hostbridge/hostbridge/internal/mailparse"
	"github.com/hostbridge/hostbridge/internal/reservation"
)

const bookingDomain = "booking.com"

// BookingCancellation recognizes the relay's templated cancellation
// emails. It must sit before BookingConfirmation in the chain: the
// cancellation template still carries the reservation-number block the
// confirmation matcher keys on.
type BookingCancellation struct {
	now Clock
}

var _ ingest.Parser = (*BookingCancellation)(nil)

func (p *BookingCancellation) Name() string { return "booking-cancellation" }

func (p *BookingCancellation) Matches(payload mailparse.Payload) bool {
	if !containsFold(payload.From, bookingDomain) {
		return false
	}
	return containsFold(payload.Subject, "cancellat") ||
		containsFold(payload.Text(), "prenotazione cancellata")
}

func (p *BookingCancellation) Extract(payload mailparse.Payload) ingest.ParsedMessage {
	res := extractBookingReservation(payload, p.now())
	msg := ingest.NewCancelled(ingest.MetadataFrom(payload), res)
	msg.RawText = payload.PlainText
	msg.RawHTML = payload.HTML
	return msg
}

// BookingConfirmation recognizes new-reservation and modification relay
// emails and extracts the full reservation.
type BookingConfirmation struct {
	now Clock
}

var _ ingest.Parser = (*BookingConfirmation)(nil)

func (p *BookingConfirmation) Name() string { return "booking-confirmation" }

func (p *BookingConfirmation) Matches(payload mailparse.Payload) bool {
	if !containsFold(payload.From, bookingDomain) {
		return false
	}
	if containsFold(payload.Subject, "nuova prenotazione") ||
		containsFold(payload.Subject, "prenotazione modificata") {
		return true
	}
	return containsFold(payload.Text(), "numero di prenotazione")
}

func (p *BookingConfirmation) Extract(payload mailparse.Payload) ingest.ParsedMessage {
	res := extractBookingReservation(payload, p.now())
	msg := ingest.NewConfirmed(ingest.MetadataFrom(payload), res)
	msg.RawText = payload.PlainText
	msg.RawHTML = payload.HTML
	return msg
}

// extractBookingReservation pulls the reservation fields out of a relay
// template. Layered per field: label table first, anchored regex second,
// positional date-pair heuristic last.
func extractBookingReservation(payload mailparse.Payload, now time.Time) reservation.Canonical {
	text := payload.Text()

	res := reservation.Canonical{
		SourceChannel:        "booking",
		PrimaryID:            reservation.UnknownID,
		ThreadKey:            replyThreadKey(payload.Headers),
		PropertyExternalName: ingest.LabelValue(text, "Appartamento", "Struttura", "Alloggio"),
		GuestName:            ingest.LabelValue(text, "Nome del cliente", "Cliente", "Nome"),
		GuestPhone:           ingest.LabelValue(text, "Numero di telefono", "Telefono"),
	}

	if ref := ingest.LabelValue(text, "Numero di prenotazione", "Numero prenotazione"); ref != "" {
		if m := bookingRefPattern.FindString(ref); m != "" {
			res.PrimaryID = m
		}
	}
	if res.PrimaryID == reservation.UnknownID {
		if m := bookingRefPattern.FindString(payload.Subject); m != "" {
			res.PrimaryID = m
		}
	}

	if email := ingest.LabelValue(text, "Indirizzo email", "Email", "E-mail"); email != "" {
		res.GuestEmail = strings.ToLower(emailPattern.FindString(email))
	}

	if raw := ingest.LabelValue(text, "Check-in"); raw != "" {
		if d, ok := ingest.ParseDate(raw, now); ok {
			res.CheckIn = &d
		}
	}
	if raw := ingest.LabelValue(text, "Check-out"); raw != "" {
		if d, ok := ingest.ParseDate(raw, now); ok {
			res.CheckOut = &d
		}
	}
	if res.CheckIn == nil || res.CheckOut == nil {
		if in, out, ok := ingest.DatePairAfterHeader(text, now, "check-in", "check-out"); ok {
			res.CheckIn, res.CheckOut = &in, &out
		}
	}

	res.Adults = atoiSafe(ingest.LabelValue(text, "Adulti"))
	res.Children = atoiSafe(ingest.LabelValue(text, "Bambini"))

	totalLine := firstLineContaining(text, "TOTALE")
	if totalLine == "" {
		totalLine = ingest.LabelValue(text, "Prezzo totale", "Importo totale", "Totale")
	}
	if amount, currency, ok := ingest.ParseAmount(totalLine); ok {
		res.TotalAmount = &amount
		res.Currency = currency
	}
	return res
}
