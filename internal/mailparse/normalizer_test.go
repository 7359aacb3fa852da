package mailparse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartFixture = "From: Booking.com <noreply@booking.com>\r\n" +
	"To: host@example.com\r\n" +
	"Subject: Nuova prenotazione\r\n" +
	"Message-ID: <abc123@booking.com>\r\n" +
	"Date: Mon, 12 Jan 2026 10:30:00 +0100\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"sep\"\r\n" +
	"\r\n" +
	"--sep\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Numero di prenotazione: 4211398512\r\n" +
	"--sep\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><body><b>Numero di prenotazione:</b> 4211398512</body></html>\r\n" +
	"--sep--\r\n"

func TestNormalizeMultipart(t *testing.T) {
	t.Parallel()

	p := Normalize([]byte(multipartFixture))

	assert.Equal(t, "noreply@booking.com", p.From)
	assert.Equal(t, []string{"host@example.com"}, p.To)
	assert.Equal(t, "Nuova prenotazione", p.Subject)
	assert.Equal(t, "abc123@booking.com", p.MessageID)
	assert.Contains(t, p.PlainText, "4211398512")
	assert.Contains(t, p.HTML, "<b>")
}

func TestNormalizeNeverFails(t *testing.T) {
	t.Parallel()

	p := Normalize([]byte("not an email at all\xff\xfe"))
	require.NotEmpty(t, p.PlainText)
	assert.Contains(t, p.PlainText, "not an email at all")
}

func TestTextPrefersPlainPart(t *testing.T) {
	t.Parallel()

	p := Payload{PlainText: "plain body", HTML: "<p>html body</p>"}
	assert.Equal(t, "plain body", p.Text())

	p = Payload{HTML: "<p>html only</p>"}
	assert.Equal(t, "html only", p.Text())
}

func TestSnippetCapsAtRuneCount(t *testing.T) {
	t.Parallel()

	p := Payload{PlainText: "\n\n  " + strings.Repeat("à", 50)}
	assert.Equal(t, strings.Repeat("à", 10), p.Snippet(10))
}

func TestFlattenHTMLDegradesToTagStripping(t *testing.T) {
	t.Parallel()

	out := FlattenHTML("<div>Totale: 318,00 €</div>")
	assert.Contains(t, out, "318,00")
}
