package decoder

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/BICAS-web3/Backend/internal/model"
)

// Registry holds the compiled schemas for one network, keyed by event
// signature hash. Built once per watcher at connect time and read-only
// afterwards.
type Registry struct {
	bySig map[common.Hash]*Schema
}

// NewRegistry compiles the given game descriptors. A descriptor that fails
// validation is logged and skipped; it never aborts the remaining games.
func NewRegistry(games []model.Game, logger zerolog.Logger) *Registry {
	r := &Registry{bySig: make(map[common.Hash]*Schema, len(games))}
	for _, game := range games {
		schema, err := ParseSchema(game)
		if err != nil {
			logger.Error().Err(err).Int64("game_id", game.ID).Str("game", game.Name).Msg("rejecting game schema")
			continue
		}
		r.bySig[schema.SigHash] = schema
	}
	return r
}

// Lookup finds the schema for a log's first topic.
func (r *Registry) Lookup(sig common.Hash) (*Schema, bool) {
	s, ok := r.bySig[sig]
	return s, ok
}

// Addresses returns the contract addresses of every registered game, for
// building the log filter query.
func (r *Registry) Addresses() []common.Address {
	seen := make(map[common.Address]struct{}, len(r.bySig))
	addrs := make([]common.Address, 0, len(r.bySig))
	for _, s := range r.bySig {
		if _, ok := seen[s.Address]; ok {
			continue
		}
		seen[s.Address] = struct{}{}
		addrs = append(addrs, s.Address)
	}
	return addrs
}

// Len reports the number of registered schemas.
func (r *Registry) Len() int {
	return len(r.bySig)
}
