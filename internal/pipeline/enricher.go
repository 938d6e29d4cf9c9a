package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/BICAS-web3/Backend/internal/model"
)

// Directory resolves the display names attached to a bet before broadcast.
type Directory interface {
	TokenByAddress(ctx context.Context, address string) (*model.Token, error)
	NicknameByAddress(ctx context.Context, address string) (*model.Nickname, error)
}

// Enricher sits between the chain watchers and the broadcaster. It resolves
// the wager token's name and the player's nickname once per propagated bet,
// so realtime clients never re-resolve them.
type Enricher struct {
	in     chan model.PropagatedBet
	bc     *Broadcaster
	dir    Directory
	logger zerolog.Logger
}

// NewEnricher builds an enricher feeding the given broadcaster.
func NewEnricher(bc *Broadcaster, dir Directory, buffer int, logger zerolog.Logger) *Enricher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Enricher{
		in:     make(chan model.PropagatedBet, buffer),
		bc:     bc,
		dir:    dir,
		logger: logger.With().Str("component", "enricher").Logger(),
	}
}

// In returns the send side used by the chain watchers.
func (e *Enricher) In() chan<- model.PropagatedBet {
	return e.in
}

// Run consumes propagated bets until the context is cancelled.
func (e *Enricher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case bet := <-e.in:
			e.propagate(ctx, bet)
		}
	}
}

func (e *Enricher) propagate(ctx context.Context, prop model.PropagatedBet) {
	token, err := e.dir.TokenByAddress(ctx, prop.Bet.TokenAddress)
	if err != nil || token == nil {
		e.logger.Error().Err(err).
			Str("token_address", prop.Bet.TokenAddress).
			Msg("wager token not found, dropping broadcast")
		return
	}

	detail := model.BetDetail{
		TransactionHash: prop.Bet.TransactionHash,
		Player:          prop.Bet.Player,
		Timestamp:       prop.Bet.Timestamp,
		GameID:          prop.Bet.GameID,
		GameName:        prop.GameName,
		Wager:           prop.Bet.Wager,
		TokenAddress:    prop.Bet.TokenAddress,
		TokenName:       token.Name,
		NetworkID:       prop.Bet.NetworkID,
		NetworkName:     prop.NetworkName,
		Bets:            prop.Bet.Bets,
		Multiplier:      prop.Bet.Multiplier,
		Profit:          prop.Bet.Profit,
	}

	// Nickname is optional; a lookup failure only means the raw address is
	// shown.
	if nick, err := e.dir.NicknameByAddress(ctx, prop.Bet.Player); err == nil && nick != nil {
		detail.PlayerNickname = &nick.Nickname
	}

	e.bc.Publish(detail)
}
