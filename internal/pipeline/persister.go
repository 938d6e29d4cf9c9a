package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/BICAS-web3/Backend/internal/model"
)

// Store is the narrow persistence surface the single-writer task needs.
type Store interface {
	PlaceBet(ctx context.Context, bet model.Bet) error
	SetTokenPrice(ctx context.Context, tokenName string, price float64) error
}

// Persister drains the persistence queue and issues storage writes
// sequentially. It is the sole writer of bet and price rows, so chain-speed
// ingestion never races storage latency.
type Persister struct {
	queue  *Queue
	store  Store
	logger zerolog.Logger
}

// NewPersister wires the consumer end of the queue to storage.
func NewPersister(queue *Queue, store Store, logger zerolog.Logger) *Persister {
	return &Persister{
		queue:  queue,
		store:  store,
		logger: logger.With().Str("component", "persister").Logger(),
	}
}

// Run consumes messages until the queue closes or the context is cancelled.
// A failed write is logged and the message is lost; the watcher's checkpoint
// discipline means the source event can only be recovered by a backfill.
func (p *Persister) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-p.queue.C():
			if !ok {
				return nil
			}
			p.handle(ctx, msg)
		}
	}
}

func (p *Persister) handle(ctx context.Context, msg Message) {
	switch m := msg.(type) {
	case PlaceBet:
		if err := p.store.PlaceBet(ctx, m.Bet); err != nil {
			p.logger.Error().Err(err).
				Str("transaction_hash", m.Bet.TransactionHash).
				Msg("failed to place bet")
		}
	case PriceUpdate:
		if err := p.store.SetTokenPrice(ctx, m.Price.TokenName, m.Price.Price); err != nil {
			p.logger.Error().Err(err).
				Str("token", m.Price.TokenName).
				Msg("failed to update token price")
		}
	default:
		p.logger.Error().Msgf("unknown persistence message %T", msg)
	}
}
