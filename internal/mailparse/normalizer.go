// Package mailparse decodes raw RFC 822 payloads into a normalized
// {headers, plain text, html} shape for the parser chain. Decoding is
// best-effort: malformed input degrades to a plain-text view of the raw
// bytes instead of an error, because ingestion must not stall on one
// broken message.
package mailparse

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Payload is the normalized form of one inbound email.
type Payload struct {
	Headers    map[string]string
	Subject    string
	From       string
	To         []string
	MessageID  string
	ReceivedAt time.Time
	PlainText  string
	HTML       string
}

// Text returns the best available textual body: the plain part when
// present, otherwise the HTML part flattened to text.
func (p Payload) Text() string {
	if strings.TrimSpace(p.PlainText) != "" {
		return p.PlainText
	}
	return FlattenHTML(p.HTML)
}

// Snippet returns the first non-empty line of the body, capped at max runes.
func (p Payload) Snippet(max int) string {
	for _, line := range strings.Split(p.Text(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if max > 0 && len(runes) > max {
			return string(runes[:max])
		}
		return line
	}
	return ""
}

// Normalize decodes raw message bytes. It never fails: unreadable MIME
// structures fall back to the raw bytes as plain text, and invalid UTF-8
// is replaced rune by rune.
func Normalize(raw []byte) Payload {
	payload := Payload{Headers: map[string]string{}}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		payload.PlainText = sanitize(string(raw))
		return payload
	}
	defer mr.Close()

	fields := mr.Header.Fields()
	for fields.Next() {
		if _, exists := payload.Headers[fields.Key()]; !exists {
			value, err := fields.Text()
			if err != nil {
				value = fields.Value()
			}
			payload.Headers[fields.Key()] = value
		}
	}

	payload.Subject, _ = mr.Header.Subject()
	payload.MessageID, _ = mr.Header.MessageID()
	if date, err := mr.Header.Date(); err == nil {
		payload.ReceivedAt = date
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		payload.From = from[0].Address
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		for _, addr := range to {
			payload.To = append(payload.To, addr.Address)
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Unknown charsets and broken sub-parts are skipped, not fatal.
			if part == nil {
				break
			}
			continue
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, _ := header.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch mediaType {
		case "text/plain":
			if payload.PlainText == "" {
				payload.PlainText = sanitize(string(body))
			}
		case "text/html":
			if payload.HTML == "" {
				payload.HTML = sanitize(string(body))
			}
		}
	}

	if payload.PlainText == "" && payload.HTML == "" {
		payload.PlainText = sanitize(string(raw))
	}
	return payload
}

var (
	tagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
	blankPattern = regexp.MustCompile(`\n{3,}`)
)

// FlattenHTML converts an HTML body to readable text for the regex
// fallback extraction layer. Conversion errors degrade to tag stripping.
func FlattenHTML(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}
	text, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		text = tagPattern.ReplaceAllString(html, " ")
	}
	text = blankPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// sanitize replaces invalid UTF-8 sequences so downstream regex matching
// never chokes on a bad charset transcode.
func sanitize(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}
