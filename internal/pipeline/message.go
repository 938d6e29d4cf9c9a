package pipeline

import "github.com/BICAS-web3/Backend/internal/model"

// Message is the closed set of commands accepted by the persistence queue.
// The persister consumes it with an exhaustive type switch; adding a variant
// means extending that switch.
type Message interface {
	isMessage()
}

// PlaceBet asks the persister to record a finalized bet.
type PlaceBet struct {
	Bet model.Bet
}

// PriceUpdate asks the persister to overwrite a token's last-known price.
type PriceUpdate struct {
	Price model.TokenPrice
}

func (PlaceBet) isMessage()    {}
func (PriceUpdate) isMessage() {}
