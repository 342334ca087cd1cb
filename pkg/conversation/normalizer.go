package conversation

import (
	"context"
	"fmt"

	"github.com/Sternrassler/intercom-export/pkg/intercom"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var conversationsNormalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "intercom_conversations_normalized_total",
	Help: "Total conversations normalized by outcome",
}, []string{"outcome"})

var tracer = otel.Tracer("github.com/Sternrassler/intercom-export/pkg/conversation")

// DetailFetcher loads the full record of one conversation.
// *intercom.Client implements it.
type DetailFetcher interface {
	FindConversation(ctx context.Context, id intercom.ID, plainText bool) (*intercom.ConversationDetail, error)
}

// Normalizer fetches conversation details and flattens them.
type Normalizer struct {
	fetcher DetailFetcher
	logger  zerolog.Logger
}

// NewNormalizer creates a Normalizer backed by fetcher.
func NewNormalizer(fetcher DetailFetcher, logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		fetcher: fetcher,
		logger:  logger,
	}
}

// Normalize fetches the detail for ref with plain-text bodies and flattens it.
func (n *Normalizer) Normalize(ctx context.Context, ref intercom.ConversationRef) (Normalized, error) {
	ctx, span := tracer.Start(ctx, "conversation.normalize")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", string(ref.ID)))

	detail, err := n.fetcher.FindConversation(ctx, ref.ID, true)
	if err != nil {
		conversationsNormalizedTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch detail")
		n.logger.Error().Err(err).Str("conversation_id", string(ref.ID)).Msg("Conversation detail fetch failed")
		return Normalized{}, fmt.Errorf("normalize conversation %s: %w", ref.ID, err)
	}

	out := FromDetail(detail)
	span.SetAttributes(attribute.Int("conversation.messages", len(out.Messages)))
	conversationsNormalizedTotal.WithLabelValues("ok").Inc()

	n.logger.Debug().
		Str("conversation_id", string(out.ConversationID)).
		Int("messages", len(out.Messages)).
		Msg("Conversation normalized")

	return out, nil
}

// FromDetail flattens a conversation detail. The opening message comes from
// the source and the conversation's created_at; replies follow in order.
func FromDetail(detail *intercom.ConversationDetail) Normalized {
	parts := detail.Parts()
	messages := make([]Message, 0, 1+len(parts))

	messages = append(messages, NewMessage(
		detail.Source.Author.ID,
		detail.Source.Author.Email,
		detail.CreatedAt,
		detail.Source.Body,
	))
	for _, part := range parts {
		messages = append(messages, NewMessage(
			part.Author.ID,
			part.Author.Email,
			part.CreatedAt,
			part.Body,
		))
	}

	return Normalized{
		ConversationID: detail.ID,
		Participants:   participantsOf(detail),
		Messages:       messages,
	}
}

func participantsOf(detail *intercom.ConversationDetail) Participants {
	var p Participants
	if id := detail.Source.Author.ID; id != "" {
		p[0] = &id
	}
	if detail.AdminAssigneeID != nil && *detail.AdminAssigneeID != "" {
		id := *detail.AdminAssigneeID
		p[1] = &id
	}
	return p
}
