package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Network describes an EVM network tracked by the backend. Loaded once at
// startup and immutable for the process lifetime.
type Network struct {
	ID             int64  `json:"network_id"`
	Name           string `json:"network_name"`
	CurrencyName   string `json:"currency_name"`
	CurrencySymbol string `json:"currency_symbol"`
	Decimals       int64  `json:"decimals"`
}

// RPCEndpoint is one of possibly several RPC URLs for a network. The first
// reachable one is used per connection attempt.
type RPCEndpoint struct {
	ID        int64  `json:"id"`
	NetworkID int64  `json:"network_id"`
	URL       string `json:"url"`
}

// Game binds a deployed game contract to its runtime decoding schema.
//
// EventTypes is a JSON array of primitive ABI type strings and EventNames a
// space-separated list of field names of the same length. Schemas are only
// known at runtime; two games on the same network may emit entirely different
// event shapes.
type Game struct {
	ID             int64  `json:"id"`
	NetworkID      int64  `json:"network_id"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	EventSignature string `json:"event_signature"`
	EventTypes     string `json:"event_types"`
	EventNames     string `json:"event_names"`
}

// Token is an ERC-20 token accepted as wager currency.
type Token struct {
	ID              int64  `json:"id"`
	NetworkID       int64  `json:"network_id"`
	Name            string `json:"name"`
	Icon            string `json:"icon"`
	ContractAddress string `json:"contract_address"`
}

// Nickname maps a player address to a chosen display name.
type Nickname struct {
	ID       int64  `json:"id"`
	Address  string `json:"address"`
	Nickname string `json:"nickname"`
}

// Bet identifies a finalized wager decoded from a game contract event.
//
// Wager and Profit carry the token's native fixed-point integers as
// arbitrary-precision decimals so on-chain amounts never round through
// floats. A Bet is never mutated after the watcher creates it.
type Bet struct {
	ID              int64           `json:"id"`
	TransactionHash string          `json:"transaction_hash"`
	Player          string          `json:"player"`
	Timestamp       time.Time       `json:"timestamp"`
	GameID          int64           `json:"game_id"`
	Wager           decimal.Decimal `json:"wager"`
	TokenAddress    string          `json:"token_address"`
	NetworkID       int64           `json:"network_id"`
	Bets            int64           `json:"bets"`
	Multiplier      float64         `json:"multiplier"`
	Profit          decimal.Decimal `json:"profit"`
}

// PropagatedBet is a Bet annotated with the names realtime clients filter by.
// It exists only on the broadcast path and is never persisted.
type PropagatedBet struct {
	Bet         Bet
	GameName    string
	NetworkName string
}

// BetDetail is the fully resolved record delivered to websocket clients:
// a propagated bet plus token name and, when known, the player's nickname.
type BetDetail struct {
	TransactionHash string          `json:"transaction_hash"`
	Player          string          `json:"player"`
	PlayerNickname  *string         `json:"player_nickname"`
	Timestamp       time.Time       `json:"timestamp"`
	GameID          int64           `json:"game_id"`
	GameName        string          `json:"game_name"`
	Wager           decimal.Decimal `json:"wager"`
	TokenAddress    string          `json:"token_address"`
	TokenName       string          `json:"token_name"`
	NetworkID       int64           `json:"network_id"`
	NetworkName     string          `json:"network_name"`
	Bets            int64           `json:"bets"`
	Multiplier      float64         `json:"multiplier"`
	Profit          decimal.Decimal `json:"profit"`
}

// TokenPrice is one oracle sample: the token's price in the stable reference
// asset. Each sample overwrites the token's previous price.
type TokenPrice struct {
	ID        int64   `json:"id"`
	TokenName string  `json:"token_name"`
	Price     float64 `json:"price"`
}
