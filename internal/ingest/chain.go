package ingest

import (
	"log/slog"
	"strings"

	"github.com/hostbridge/hostbridge/internal/mailparse"
)

// Parser is one entry of the classification chain.
type Parser interface {
	// Name identifies the parser in logs and test assertions.
	Name() string
	// Matches reports whether the parser claims the payload.
	Matches(payload mailparse.Payload) bool
	// Extract builds the typed message for a claimed payload. It runs
	// only after Matches returned true.
	Extract(payload mailparse.Payload) ParsedMessage
}

// Chain evaluates parsers in slice order and yields the first match's
// extraction. Ordering is a correctness contract: cancellation parsers
// precede confirmation parsers for the same sender domain, and specific
// parsers precede looser ones that would over-match. Classification
// never fails; payloads nothing claims come back as unhandled with their
// metadata intact.
type Chain struct {
	logger  *slog.Logger
	parsers []Parser
}

func NewChain(log *slog.Logger, parsers []Parser) *Chain {
	return &Chain{
		logger:  log.With(slog.String("component", "parser-chain")),
		parsers: parsers,
	}
}

// Classify runs the chain over one normalized payload.
func (c *Chain) Classify(payload mailparse.Payload) ParsedMessage {
	meta := MetadataFrom(payload)
	for _, parser := range c.parsers {
		if !parser.Matches(payload) {
			continue
		}
		msg := parser.Extract(payload)
		c.logger.Debug("payload classified",
			slog.String("parser", parser.Name()),
			slog.String("kind", string(msg.Kind)),
			slog.String("sender", meta.Sender))
		return msg
	}
	c.logger.Info("payload unhandled",
		slog.String("sender", meta.Sender),
		slog.String("subject", meta.Subject))
	return NewUnhandled(meta)
}

// MetadataFrom lifts the payload envelope into message metadata.
func MetadataFrom(payload mailparse.Payload) Metadata {
	return Metadata{
		Subject:           payload.Subject,
		Sender:            strings.ToLower(payload.From),
		Recipients:        payload.To,
		ReceivedAt:        payload.ReceivedAt,
		ProviderMessageID: payload.MessageID,
		Snippet:           payload.Snippet(120),
	}
}
