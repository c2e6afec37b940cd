package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"onchain-intel/internal/observability"
	"onchain-intel/internal/storage"
)

// ErrMalformedEvent marks messages that can never be processed.
var ErrMalformedEvent = errors.New("malformed transfer event")

// TransferIngested announces that the ledger gained a transfer between From and To.
type TransferIngested struct {
	Chain  string `json:"chain"`
	From   string `json:"from"`
	To     string `json:"to"`
	TxHash string `json:"txHash,omitempty"`
}

// Addresses returns the non-empty lowercase parties of the event.
func (e TransferIngested) Addresses() []string {
	out := make([]string, 0, 2)
	for _, a := range []string{e.From, e.To} {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Invalidator drops cached aggregates of an entity.
type Invalidator interface {
	Invalidate(ctx context.Context, slug string) (int, error)
}

var _ sarama.ConsumerGroupHandler = (*Handler)(nil)

// Handler maps transfer events to the owning entities and invalidates their aggregates.
type Handler struct {
	entities    storage.EntityStore
	invalidator Invalidator
	logger      zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(entities storage.EntityStore, invalidator Invalidator, logger zerolog.Logger) *Handler {
	return &Handler{
		entities:    entities,
		invalidator: invalidator,
		logger:      logger.With().Str("component", "ingest_handler").Logger(),
	}
}

func (h *Handler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *Handler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *Handler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			_, err := h.Handle(session.Context(), msg.Value)
			switch {
			case err == nil:
				observability.RecordIngestMessage("processed")
			case errors.Is(err, ErrMalformedEvent):
				observability.RecordIngestMessage("malformed")
				h.logger.Warn().Err(err).Int32("partition", msg.Partition).Int64("offset", msg.Offset).Msg("skipping malformed transfer event")
			case errors.Is(err, context.Canceled):
				return nil
			default:
				observability.RecordIngestMessage("error")
				return fmt.Errorf("claim handle: %w", err)
			}
			session.MarkMessage(msg, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// Handle processes one raw event and returns the invalidated entity slugs.
func (h *Handler) Handle(ctx context.Context, value []byte) ([]string, error) {
	var event TransferIngested
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	addrs := event.Addresses()
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no addresses", ErrMalformedEvent)
	}

	slugs, err := h.entities.EntitiesByAddress(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("lookup entities: %w", err)
	}

	for _, slug := range slugs {
		removed, err := h.invalidator.Invalidate(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("invalidate %s: %w", slug, err)
		}
		h.logger.Debug().Str("entity", slug).Int("keys", removed).Str("chain", event.Chain).Msg("invalidated cached aggregates")
	}
	return slugs, nil
}
