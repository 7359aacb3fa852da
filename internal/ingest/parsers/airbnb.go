package parsers

import (
	"strings"

	"github.com/hostbridge/hostbridge/internal/conversation"
	"github.com/hostbridge/hostbridge/internal/ingest"
	"github.com/hostbridge/hostbridge/internal/mailparse"
	"github.com/hostbridge/hostbridge/internal/reservation"
)

const airbnbDomain = "airbnb."

// AirbnbGuestMessage recognizes guest-message notifications. It must sit
// before AirbnbConfirmation: message notifications quote the reservation
// confirmation code and would otherwise be misread as new reservations.
type AirbnbGuestMessage struct{}

var _ ingest.Parser = (*AirbnbGuestMessage)(nil)

func (p *AirbnbGuestMessage) Name() string { return "airbnb-guest-message" }

func (p *AirbnbGuestMessage) Matches(payload mailparse.Payload) bool {
	if !containsFold(payload.From, airbnbDomain) {
		return false
	}
	return containsFold(payload.Subject, "messaggio") ||
		containsFold(payload.Subject, "ti ha inviato")
}

func (p *AirbnbGuestMessage) Extract(payload mailparse.Payload) ingest.ParsedMessage {
	text := payload.Text()

	ref := reservation.UnknownID
	if code := airbnbCodePattern.FindString(text); code != "" {
		ref = code
	}

	guestName := ingest.LabelValue(text, "Da", "Nome")
	if guestName == "" {
		// "Marco ti ha inviato un messaggio" subjects carry the name.
		if name, _, found := strings.Cut(payload.Subject, " ti ha inviato"); found {
			guestName = strings.TrimSpace(name)
		}
	}

	msg := conversation.GuestMessage{
		ReservationRef: ref,
		ThreadID:       replyThreadKey(payload.Headers),
		Source:         "airbnb",
		Text:           messageBody(text),
		ReplyTo:        emailPattern.FindString(payload.Headers["Reply-To"]),
		GuestName:      guestName,
		ReceivedAt:     payload.ReceivedAt,
	}
	out := ingest.NewGuestMessage(ingest.MetadataFrom(payload), msg)
	out.RawText = payload.PlainText
	out.RawHTML = payload.HTML
	return out
}

// AirbnbConfirmation recognizes reservation-confirmed notifications.
type AirbnbConfirmation struct {
	now Clock
}

var _ ingest.Parser = (*AirbnbConfirmation)(nil)

func (p *AirbnbConfirmation) Name() string { return "airbnb-confirmation" }

func (p *AirbnbConfirmation) Matches(payload mailparse.Payload) bool {
	if !containsFold(payload.From, airbnbDomain) {
		return false
	}
	return containsFold(payload.Subject, "prenotazione confermata") ||
		containsFold(payload.Subject, "nuova prenotazione") ||
		containsFold(payload.Text(), "codice di conferma")
}

func (p *AirbnbConfirmation) Extract(payload mailparse.Payload) ingest.ParsedMessage {
	text := payload.Text()
	now := p.now()

	res := reservation.Canonical{
		SourceChannel:        "airbnb",
		PrimaryID:            reservation.UnknownID,
		ThreadKey:            replyThreadKey(payload.Headers),
		PropertyExternalName: ingest.LabelValue(text, "Alloggio", "Annuncio"),
		GuestName:            ingest.LabelValue(text, "Ospite", "Nome"),
	}
	if code := airbnbCodePattern.FindString(text); code != "" {
		res.PrimaryID = code
	}

	if raw := ingest.LabelValue(text, "Check-in", "Arrivo"); raw != "" {
		if d, ok := ingest.ParseDate(raw, now); ok {
			res.CheckIn = &d
		}
	}
	if raw := ingest.LabelValue(text, "Check-out", "Partenza"); raw != "" {
		if d, ok := ingest.ParseDate(raw, now); ok {
			res.CheckOut = &d
		}
	}
	if res.CheckIn == nil || res.CheckOut == nil {
		if in, out, ok := ingest.DatePairAfterHeader(text, now, "check-in", "check-out"); ok {
			res.CheckIn, res.CheckOut = &in, &out
		}
	}

	res.Adults = atoiSafe(ingest.LabelValue(text, "Adulti", "Ospiti"))
	res.Children = atoiSafe(ingest.LabelValue(text, "Bambini"))

	totalLine := firstLineContaining(text, "Totale")
	if amount, currency, ok := ingest.ParseAmount(totalLine); ok {
		res.TotalAmount = &amount
		res.Currency = currency
	}

	msg := ingest.NewConfirmed(ingest.MetadataFrom(payload), res)
	msg.RawText = payload.PlainText
	msg.RawHTML = payload.HTML
	return msg
}

// messageBody strips quoted history and boilerplate from a notification,
// keeping the guest's own text.
func messageBody(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "il ") && strings.Contains(lower, "ha scritto:") {
			break
		}
		if strings.Contains(lower, "rispondi a questo messaggio") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
