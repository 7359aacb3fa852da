// Package mailgun receives host mailbox email through Mailgun inbound
// routes, via signed webhooks or stored-event polling.
package mailgun

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	mg "github.com/mailgun/mailgun-go/v5"
	"github.com/mailgun/mailgun-go/v5/events"
	"github.com/mailgun/mailgun-go/v5/mtypes"

	"github.com/hostbridge/hostbridge/internal/hosts"
	"github.com/hostbridge/hostbridge/internal/mailbox"
)

const ProviderName mailbox.ProviderName = "mailgun"

const (
	InboundModeWebhook = "webhook"
	InboundModePoll    = "poll"
)

// Credentials is the channel credential blob for a Mailgun inbound
// route.
type Credentials struct {
	Domain              string `json:"domain" validate:"required"`
	APIKey              string `json:"api_key" validate:"required"`
	Region              string `json:"region"`
	InboundMode         string `json:"inbound_mode"`
	WebhookSigningKey   string `json:"webhook_signing_key"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
}

func (c *Credentials) fillDefaults() {
	if c.InboundMode == "" {
		c.InboundMode = InboundModePoll
	}
	if c.PollIntervalSeconds < 15 {
		c.PollIntervalSeconds = 30
	}
}

type Adapter struct {
	logger *slog.Logger
}

var (
	_ mailbox.Adapter         = (*Adapter)(nil)
	_ mailbox.Receiver        = (*Adapter)(nil)
	_ mailbox.WebhookReceiver = (*Adapter)(nil)
)

func New(log *slog.Logger) *Adapter {
	return &Adapter{logger: log.With(slog.String("adapter", "mailgun"))}
}

func (a *Adapter) Type() mailbox.ProviderName { return ProviderName }

func newClient(creds Credentials) *mg.Client {
	client := mg.NewMailgun(creds.APIKey)
	if creds.Region == "eu" {
		client.SetAPIBase(mg.APIBaseEU)
	}
	return client
}

// StartReceiving runs the stored-event poll loop. Webhook-mode channels
// are served by the HTTP layer and need no background process.
func (a *Adapter) StartReceiving(ctx context.Context, ch hosts.Channel, handler mailbox.InboundHandler) (mailbox.Stopper, error) {
	creds, err := hosts.Credentials[Credentials](ch)
	if err != nil {
		return nil, err
	}
	creds.fillDefaults()
	if creds.InboundMode == InboundModeWebhook {
		return mailbox.NoopStopper(), nil
	}

	client := newClient(creds)
	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	conn := &pollConn{
		logger:  a.logger.With(slog.String("channel_id", ch.ID.String())),
		client:  client,
		fetcher: client,
		creds:   creds,
		channel: ch,
		handler: handler,
		cancel:  cancel,
	}
	go conn.run(rctx)
	return conn, nil
}

// HandleWebhook verifies the route callback signature and returns the
// raw message. Routes configured with store-and-notify post the full
// MIME in body-mime; forward-only routes get a message synthesized from
// the form fields.
func (a *Adapter) HandleWebhook(_ context.Context, ch hosts.Channel, r *http.Request) ([]byte, error) {
	creds, err := hosts.Credentials[Credentials](ch)
	if err != nil {
		return nil, err
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		if err2 := r.ParseForm(); err2 != nil {
			return nil, fmt.Errorf("parse form: %w", err2)
		}
	}

	if creds.WebhookSigningKey != "" {
		timestamp := r.FormValue("timestamp")
		token := r.FormValue("token")
		signature := r.FormValue("signature")
		mac := hmac.New(sha256.New, []byte(creds.WebhookSigningKey))
		mac.Write([]byte(timestamp + token))
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return nil, fmt.Errorf("webhook signature verification failed")
		}
	}

	if mime := r.FormValue("body-mime"); mime != "" {
		return []byte(mime), nil
	}
	return synthesizeRFC822(
		r.FormValue("Message-Id"),
		r.FormValue("sender"),
		r.FormValue("recipient"),
		r.FormValue("subject"),
		r.FormValue("body-plain"),
		r.FormValue("body-html"),
	), nil
}

// storedMessageFetcher is the slice of the Mailgun client the poll path
// uses to pull full MIME bodies. Satisfied by *mg.Client.
type storedMessageFetcher interface {
	GetStoredMessageRaw(ctx context.Context, url string) (mtypes.StoredMessageRaw, error)
}

type pollConn struct {
	logger   *slog.Logger
	client   *mg.Client
	fetcher  storedMessageFetcher
	creds    Credentials
	channel  hosts.Channel
	handler  mailbox.InboundHandler
	cancel   context.CancelFunc
	once     sync.Once
	lastTime time.Time
}

func (c *pollConn) Stop(_ context.Context) error {
	c.once.Do(func() { c.cancel() })
	return nil
}

func (c *pollConn) run(ctx context.Context) {
	c.lastTime = time.Now().Add(-1 * time.Hour)
	interval := time.Duration(c.creds.PollIntervalSeconds) * time.Second
	for {
		c.pollEvents(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (c *pollConn) pollEvents(ctx context.Context) {
	opts := &mg.ListEventOptions{
		Begin:  c.lastTime,
		End:    time.Now(),
		Limit:  100,
		Filter: map[string]string{"event": "stored"},
	}

	iter := c.client.ListEvents(c.creds.Domain, opts)
	var evts []events.Event
	if !iter.Next(ctx, &evts) {
		if err := iter.Err(); err != nil {
			c.logger.Error("mailgun events poll failed", slog.Any("error", err))
		}
		return
	}

	for _, evt := range evts {
		stored, ok := evt.(*events.Stored)
		if !ok {
			continue
		}
		ts := stored.GetTimestamp()
		if ts.After(c.lastTime) {
			c.lastTime = ts.Add(time.Millisecond)
		}

		if err := c.handler(ctx, c.channel, c.rawMessage(ctx, stored)); err != nil {
			c.logger.Error("inbound handler failed", slog.Any("error", err))
		}
	}
}

// rawMessage pulls the full stored MIME, which carries the body the
// extraction layer needs. Only when the storage fetch fails does it fall
// back to a headers-only message.
func (c *pollConn) rawMessage(ctx context.Context, stored *events.Stored) []byte {
	if url := stored.Storage.URL; url != "" {
		msg, err := c.fetcher.GetStoredMessageRaw(ctx, url)
		if err == nil && msg.BodyMime != "" {
			return []byte(msg.BodyMime)
		}
		if err != nil {
			c.logger.Warn("stored message fetch failed, falling back to headers",
				slog.Any("error", err))
		}
	}
	return synthesizeRFC822(
		stored.Message.Headers.MessageID,
		stored.Message.Headers.From,
		stored.Message.Headers.To,
		stored.Message.Headers.Subject,
		"", "")
}

// synthesizeRFC822 rebuilds a minimal message from webhook form fields
// so the rest of the pipeline always consumes raw RFC 822 bytes.
func synthesizeRFC822(messageID, from, to, subject, bodyPlain, bodyHTML string) []byte {
	var b strings.Builder
	if messageID != "" {
		if !strings.HasPrefix(messageID, "<") {
			messageID = "<" + messageID + ">"
		}
		fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	}
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	if bodyHTML != "" && bodyPlain == "" {
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(bodyHTML)
	} else {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(bodyPlain)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
