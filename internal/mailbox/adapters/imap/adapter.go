// Package imap receives host mailbox email over IMAP, preferring IDLE
// with a polling safety net.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/hostbridge/hostbridge/internal/hosts"
	"github.com/hostbridge/hostbridge/internal/mailbox"
)

const ProviderName mailbox.ProviderName = "imap"

// Credentials is the channel credential blob for an IMAP mailbox.
type Credentials struct {
	Host                string `json:"host" validate:"required"`
	Port                int    `json:"port"`
	Username            string `json:"username" validate:"required"`
	Password            string `json:"password" validate:"required"`
	Security            string `json:"security"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
}

func (c *Credentials) fillDefaults() {
	if c.Port == 0 {
		c.Port = 993
	}
	if c.Security == "" {
		c.Security = "tls"
	}
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = 300
	}
}

type Adapter struct {
	logger *slog.Logger
}

var (
	_ mailbox.Adapter  = (*Adapter)(nil)
	_ mailbox.Receiver = (*Adapter)(nil)
)

func New(log *slog.Logger) *Adapter {
	return &Adapter{logger: log.With(slog.String("adapter", "imap"))}
}

func (a *Adapter) Type() mailbox.ProviderName { return ProviderName }

func (a *Adapter) StartReceiving(ctx context.Context, ch hosts.Channel, handler mailbox.InboundHandler) (mailbox.Stopper, error) {
	creds, err := hosts.Credentials[Credentials](ch)
	if err != nil {
		return nil, err
	}
	creds.fillDefaults()

	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	conn := &imapConn{
		logger:  a.logger.With(slog.String("channel_id", ch.ID.String())),
		creds:   creds,
		channel: ch,
		handler: handler,
		cancel:  cancel,
	}
	go conn.run(rctx)
	return conn, nil
}

type imapConn struct {
	logger  *slog.Logger
	creds   Credentials
	channel hosts.Channel
	handler mailbox.InboundHandler
	cancel  context.CancelFunc
	once    sync.Once
	lastUID imap.UID
}

func (c *imapConn) Stop(_ context.Context) error {
	c.once.Do(func() { c.cancel() })
	return nil
}

func (c *imapConn) run(ctx context.Context) {
	for {
		if err := c.connectAndReceive(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("imap connection error, retrying in 30s", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(30 * time.Second):
			}
		}
	}
}

func (c *imapConn) connectAndReceive(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.creds.Host, c.creds.Port)

	newMailCh := make(chan struct{}, 1)
	notifyNewMail := func() {
		select {
		case newMailCh <- struct{}{}:
		default:
		}
	}

	opts := &imapclient.Options{
		TLSConfig: &tls.Config{ServerName: c.creds.Host},
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages != nil {
					notifyNewMail()
				}
			},
		},
	}

	var client *imapclient.Client
	var err error
	switch c.creds.Security {
	case "starttls":
		client, err = imapclient.DialStartTLS(addr, opts)
	case "none":
		client, err = imapclient.DialInsecure(addr, opts)
	default:
		client, err = imapclient.DialTLS(addr, opts)
	}
	if err != nil {
		return fmt.Errorf("dial imap (%s): %w", c.creds.Security, err)
	}
	defer client.Close()

	if err := client.Login(c.creds.Username, c.creds.Password).Wait(); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}
	defer client.Logout()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("select inbox: %w", err)
	}

	c.logger.Info("imap connected", slog.String("host", c.creds.Host))
	c.fetchNewMessages(ctx, client)

	idleCmd, idleErr := client.Idle()
	if idleErr != nil {
		c.logger.Warn("IDLE not supported, falling back to polling", slog.Any("error", idleErr))
		return c.pollLoop(ctx, client)
	}

	// Even with IDLE, check periodically: some servers accept IDLE but
	// never push EXISTS notifications.
	checkInterval := time.Duration(c.creds.PollIntervalSeconds) * time.Second
	if checkInterval > 2*time.Minute {
		checkInterval = 2 * time.Minute
	}

	for {
		select {
		case <-ctx.Done():
			_ = idleCmd.Close()
			return nil
		case <-newMailCh:
			_ = idleCmd.Close()
			c.fetchNewMessages(ctx, client)
			idleCmd, idleErr = client.Idle()
			if idleErr != nil {
				return c.pollLoop(ctx, client)
			}
		case <-time.After(checkInterval):
			_ = idleCmd.Close()
			c.fetchNewMessages(ctx, client)
			idleCmd, idleErr = client.Idle()
			if idleErr != nil {
				return c.pollLoop(ctx, client)
			}
		}
	}
}

func (c *imapConn) pollLoop(ctx context.Context, client *imapclient.Client) error {
	interval := time.Duration(c.creds.PollIntervalSeconds) * time.Second
	for {
		c.fetchNewMessages(ctx, client)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// fetchNewMessages tracks the mailbox by UID so other clients marking
// mail as read do not interfere. The first run only records the highest
// UID; backlog predating the channel is not ingested.
func (c *imapConn) fetchNewMessages(ctx context.Context, client *imapclient.Client) {
	var uidSet imap.UIDSet
	if c.lastUID > 0 {
		uidSet.AddRange(c.lastUID+1, 0)
	} else {
		uidSet.AddRange(1, 0)
	}

	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	isFirstRun := c.lastUID == 0
	processed := 0

	for {
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			continue
		}
		if buf.UID > c.lastUID {
			c.lastUID = buf.UID
		}
		if isFirstRun {
			continue
		}
		if len(buf.BodySection) == 0 || len(buf.BodySection[0].Bytes) == 0 {
			continue
		}
		processed++
		if err := c.handler(ctx, c.channel, buf.BodySection[0].Bytes); err != nil {
			c.logger.Error("inbound handler failed", slog.Any("error", err))
		}
	}

	if processed > 0 {
		c.logger.Info("imap fetch completed",
			slog.Int("processed", processed),
			slog.Uint64("last_uid", uint64(c.lastUID)))
	}
}
