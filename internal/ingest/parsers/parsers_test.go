package parsers

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbridge/hostbridge/internal/ingest"
	"github.com/hostbridge/hostbridge/internal/mailparse"
	"github.com/hostbridge/hostbridge/internal/reservation"
)

func fixedClock() time.Time {
	return time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
}

func testChain() *ingest.Chain {
	return ingest.NewChain(slog.Default(), Default(fixedClock))
}

const bookingConfirmationBody = `Nuova prenotazione!

Numero di prenotazione: 4211398512
Appartamento: Casa Bella Vista
Nome del cliente: Marco Rossi
Indirizzo email: marco@example.com
Numero di telefono: +39 333 1234567

Check-in: 15/01/2026
Check-out: 18/01/2026
Adulti: 2
Bambini: 1

TOTALE (EUR) 318,00 €
`

func bookingPayload(subject, body string) mailparse.Payload {
	return mailparse.Payload{
		Headers: map[string]string{
			"Reply-To": "reply-9981273@mchat.booking.com",
		},
		Subject:    subject,
		From:       "noreply@booking.com",
		MessageID:  "msg-1@booking.com",
		ReceivedAt: fixedClock(),
		PlainText:  body,
	}
}

func TestBookingConfirmationExtraction(t *testing.T) {
	t.Parallel()

	msg := testChain().Classify(bookingPayload("Nuova prenotazione - Casa Bella Vista", bookingConfirmationBody))
	require.Equal(t, ingest.KindReservationConfirmed, msg.Kind)
	require.NotNil(t, msg.Reservation)

	res := msg.Reservation
	assert.Equal(t, "4211398512", res.PrimaryID)
	assert.Equal(t, "reply-9981273", res.ThreadKey)
	assert.Equal(t, "booking", res.SourceChannel)
	assert.Equal(t, "Casa Bella Vista", res.PropertyExternalName)
	assert.Equal(t, "Marco Rossi", res.GuestName)
	assert.Equal(t, "marco@example.com", res.GuestEmail)

	require.NotNil(t, res.CheckIn)
	require.NotNil(t, res.CheckOut)
	assert.Equal(t, "2026-01-15", res.CheckIn.Format("2006-01-02"))
	assert.Equal(t, "2026-01-18", res.CheckOut.Format("2006-01-02"))

	assert.Equal(t, 2, res.Adults)
	assert.Equal(t, 1, res.Children)
	require.NotNil(t, res.TotalAmount)
	assert.InDelta(t, 318.00, *res.TotalAmount, 0.001)
	assert.Equal(t, "EUR", res.Currency)
}

func TestBookingCancellationPrecedesConfirmation(t *testing.T) {
	t.Parallel()

	// The cancellation template still carries the reservation-number
	// block; the chain must classify it as a cancellation.
	body := `Prenotazione cancellata

Numero di prenotazione: 4211398512
Appartamento: Casa Bella Vista
`
	msg := testChain().Classify(bookingPayload("Prenotazione cancellata - Casa Bella Vista", body))
	require.Equal(t, ingest.KindReservationCancelled, msg.Kind)
	require.NotNil(t, msg.Reservation)
	assert.Equal(t, "4211398512", msg.Reservation.PrimaryID)
}

func TestBookingPositionalDatePair(t *testing.T) {
	t.Parallel()

	body := `Nuova prenotazione!

Numero di prenotazione: 4211398512
Appartamento: Casa Bella Vista

Check-in  Check-out
gio 3 set 2026   sab 5 set 2026
`
	msg := testChain().Classify(bookingPayload("Nuova prenotazione", body))
	require.Equal(t, ingest.KindReservationConfirmed, msg.Kind)
	res := msg.Reservation
	require.NotNil(t, res.CheckIn)
	require.NotNil(t, res.CheckOut)
	assert.Equal(t, "2026-09-03", res.CheckIn.Format("2006-01-02"))
	assert.Equal(t, "2026-09-05", res.CheckOut.Format("2006-01-02"))
}

func airbnbMessagePayload() mailparse.Payload {
	return mailparse.Payload{
		Headers: map[string]string{
			"Reply-To": "thread-55ab12@reply.airbnb.com",
		},
		Subject:    "Marco ti ha inviato un messaggio",
		From:       "automated@airbnb.com",
		ReceivedAt: fixedClock(),
		PlainText: `Marco:

A che ora possiamo fare il check-in?

Codice di conferma: HMABC12345
Rispondi a questo messaggio per contattare l'ospite.
`,
	}
}

func TestAirbnbGuestMessagePrecedesConfirmation(t *testing.T) {
	t.Parallel()

	// The notification quotes the confirmation code; it must still be
	// classified as a guest message, not a new reservation.
	msg := testChain().Classify(airbnbMessagePayload())
	require.Equal(t, ingest.KindGuestMessage, msg.Kind)
	require.NotNil(t, msg.GuestMessage)
	assert.Equal(t, "HMABC12345", msg.GuestMessage.ReservationRef)
	assert.Equal(t, "thread-55ab12", msg.GuestMessage.ThreadID)
	assert.Equal(t, "Marco", msg.GuestMessage.GuestName)
	assert.Contains(t, msg.GuestMessage.Text, "A che ora possiamo fare il check-in?")
	assert.NotContains(t, msg.GuestMessage.Text, "Rispondi a questo messaggio")
}

func TestAirbnbConfirmationExtraction(t *testing.T) {
	t.Parallel()

	payload := mailparse.Payload{
		Headers:    map[string]string{"Reply-To": "thread-77cd34@reply.airbnb.com"},
		Subject:    "Prenotazione confermata - Marco arriva il 3 settembre",
		From:       "automated@airbnb.com",
		ReceivedAt: fixedClock(),
		PlainText: `Prenotazione confermata!

Codice di conferma: HMXYZ98765
Alloggio: Trullo Antico
Ospite: Marco Rossi
Check-in: gio 3 set 2026
Check-out: sab 5 set 2026
Adulti: 2

Totale: 245,50 €
`,
	}
	msg := testChain().Classify(payload)
	require.Equal(t, ingest.KindReservationConfirmed, msg.Kind)
	res := msg.Reservation
	assert.Equal(t, "HMXYZ98765", res.PrimaryID)
	assert.Equal(t, "airbnb", res.SourceChannel)
	assert.Equal(t, "Trullo Antico", res.PropertyExternalName)
	require.NotNil(t, res.CheckIn)
	assert.Equal(t, "2026-09-03", res.CheckIn.Format("2006-01-02"))
	require.NotNil(t, res.TotalAmount)
	assert.InDelta(t, 245.50, *res.TotalAmount, 0.001)
	assert.Equal(t, "EUR", res.Currency)
}

func TestGenericEnquiry(t *testing.T) {
	t.Parallel()

	payload := mailparse.Payload{
		Headers:    map[string]string{},
		Subject:    "Richiesta disponibilità agosto",
		From:       "giulia@example.com",
		ReceivedAt: fixedClock(),
		PlainText:  "Buongiorno, vorrei informazioni sulla disponibilità per agosto.",
	}
	msg := testChain().Classify(payload)
	require.Equal(t, ingest.KindGuestMessage, msg.Kind)
	assert.Equal(t, reservation.UnknownID, msg.GuestMessage.ReservationRef)
	assert.Equal(t, "email", msg.GuestMessage.Source)
	assert.Equal(t, "giulia@example.com", msg.GuestMessage.GuestEmail)
}

func TestGenericEnquiryDoesNotClaimChannelSenders(t *testing.T) {
	t.Parallel()

	// A relay email with enquiry wording must never fall through to the
	// generic parser.
	payload := bookingPayload("Informazioni sulla prenotazione", "Richiesta informazioni.\n\nNumero di prenotazione: 4211398512\n")
	msg := testChain().Classify(payload)
	assert.Equal(t, ingest.KindReservationConfirmed, msg.Kind)
}

func TestUnhandledFallbackPreservesMetadata(t *testing.T) {
	t.Parallel()

	payload := mailparse.Payload{
		Headers:    map[string]string{},
		Subject:    "Weekly newsletter",
		From:       "news@example.org",
		To:         []string{"host@example.com"},
		MessageID:  "news-1@example.org",
		ReceivedAt: fixedClock(),
		PlainText:  "Nothing reservation related here.",
	}
	msg := testChain().Classify(payload)
	assert.Equal(t, ingest.KindUnhandled, msg.Kind)
	assert.Equal(t, "Weekly newsletter", msg.Metadata.Subject)
	assert.Equal(t, "news@example.org", msg.Metadata.Sender)
	assert.Equal(t, "news-1@example.org", msg.Metadata.ProviderMessageID)
	assert.Nil(t, msg.Reservation)
	assert.Nil(t, msg.GuestMessage)
}

func TestClassificationIsDeterministic(t *testing.T) {
	t.Parallel()

	chain := testChain()
	payload := bookingPayload("Nuova prenotazione", bookingConfirmationBody)
	first := chain.Classify(payload)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first.Kind, chain.Classify(payload).Kind)
	}
}
