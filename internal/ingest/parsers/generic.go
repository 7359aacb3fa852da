package parsers

import (
	"strings"

	"github.com/hostbridge/hostbridge/internal/conversation"
	"github.com/hostbridge/hostbridge/internal/ingest"
	"github.com/hostbridge/hostbridge/internal/mailparse"
	"github.com/hostbridge/hostbridge/internal/reservation"
)

var enquiryMarkers = []string{
	"richiesta",
	"disponibilità",
	"disponibilita",
	"informazioni",
	"prenotare",
	"enquiry",
	"inquiry",
	"availability",
}

// GenericEnquiry is the loosest matcher and runs last in the chain. It
// claims direct guest enquiries sent from a personal address, keyed on
// enquiry wording, and yields a guest message with no reservation
// cross-reference.
type GenericEnquiry struct{}

var _ ingest.Parser = (*GenericEnquiry)(nil)

func (p *GenericEnquiry) Name() string { return "generic-enquiry" }

func (p *GenericEnquiry) Matches(payload mailparse.Payload) bool {
	if containsFold(payload.From, bookingDomain) || containsFold(payload.From, airbnbDomain) {
		return false
	}
	if emailPattern.FindString(payload.From) == "" {
		return false
	}
	haystack := strings.ToLower(payload.Subject + "\n" + payload.Text())
	for _, marker := range enquiryMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}

func (p *GenericEnquiry) Extract(payload mailparse.Payload) ingest.ParsedMessage {
	msg := conversation.GuestMessage{
		ReservationRef: reservation.UnknownID,
		ThreadID:       strings.ToLower(strings.TrimSpace(payload.From)),
		Source:         "email",
		Text:           payload.Text(),
		ReplyTo:        payload.From,
		GuestEmail:     strings.ToLower(payload.From),
		ReceivedAt:     payload.ReceivedAt,
	}
	out := ingest.NewGuestMessage(ingest.MetadataFrom(payload), msg)
	out.RawText = payload.PlainText
	out.RawHTML = payload.HTML
	return out
}
