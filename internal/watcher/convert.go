package watcher

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/BICAS-web3/Backend/internal/decoder"
	"github.com/BICAS-web3/Backend/internal/model"
)

// Field names game schemas must use for the values the pipeline depends on.
// Which of them are required depends on the event phase: a start event has no
// payout yet, an end event carries it.
const (
	fieldWager        = "wager"
	fieldTokenAddress = "tokenAddress"
	fieldNumGames     = "numGames"
	fieldPayout       = "payout"
)

var (
	errNoPlayerTopic = errors.New("log has no player topic")
	errNoWager       = errors.New("missing required field `wager`")
	errNoToken       = errors.New("missing required field `tokenAddress`")
	errNoNumGames    = errors.New("missing required field `numGames`")
)

// buildBet converts decoded event fields into a Bet. The second return value
// reports whether the event carries a payout, i.e. whether the wager is final
// and persist-worthy.
func buildBet(network model.Network, schema *decoder.Schema, log types.Log, fields decoder.Fields, ts time.Time) (model.Bet, bool, error) {
	if len(log.Topics) < 2 {
		return model.Bet{}, false, errNoPlayerTopic
	}
	player := common.BytesToAddress(log.Topics[1].Bytes())

	wager, ok := fields.Uint(fieldWager)
	if !ok {
		return model.Bet{}, false, errNoWager
	}
	tokenAddr, ok := fields.Address(fieldTokenAddress)
	if !ok {
		return model.Bet{}, false, errNoToken
	}
	numGames, ok := fields.Uint(fieldNumGames)
	if !ok {
		return model.Bet{}, false, errNoNumGames
	}

	profit := decimal.Zero
	payout, completed := fields.Uint(fieldPayout)
	if completed {
		profit = decimal.NewFromBigInt(payout, 0)
	}

	bet := model.Bet{
		TransactionHash: log.TxHash.Hex(),
		Player:          strings.ToLower(player.Hex()),
		Timestamp:       ts,
		GameID:          schema.Game.ID,
		Wager:           decimal.NewFromBigInt(wager, 0),
		TokenAddress:    strings.ToLower(tokenAddr.Hex()),
		NetworkID:       network.ID,
		Bets:            int64(numGames.Uint64()),
		Multiplier:      1.0,
		Profit:          profit,
	}
	return bet, completed, nil
}
