package watcher

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/BICAS-web3/Backend/internal/decoder"
	"github.com/BICAS-web3/Backend/internal/model"
	"github.com/BICAS-web3/Backend/internal/pipeline"
)

// Client is the slice of the Ethereum RPC surface the watcher uses.
// *ethclient.Client satisfies it; tests substitute a fake.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Close()
}

// Checkpoints persists per-network polling progress so restarts resume where
// the last successful batch ended.
type Checkpoints interface {
	GetCheckpoint(ctx context.Context, networkID int64) (uint64, bool, error)
	SetCheckpoint(ctx context.Context, networkID int64, block uint64) error
}

// DialFunc opens an RPC connection. Injectable for tests.
type DialFunc func(ctx context.Context, url string) (Client, error)

// Options tune the polling loop.
type Options struct {
	PollInterval time.Duration
	Backoff      time.Duration
	BlockWindow  uint64
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.PollInterval <= 0 {
		out.PollInterval = 30 * time.Second
	}
	if out.Backoff <= 0 {
		out.Backoff = 10 * time.Second
	}
	if out.BlockWindow == 0 {
		out.BlockWindow = 1000
	}
	return out
}

// Watcher polls one network's logs for the configured game contracts,
// decodes them and feeds the ingestion pipeline. Its lifecycle is a permanent
// connect/poll/back-off loop; it only stops with the process.
type Watcher struct {
	network     model.Network
	rpcURLs     []string
	registry    *decoder.Registry
	checkpoints Checkpoints
	queue       *pipeline.Queue
	feed        chan<- model.PropagatedBet
	opts        Options
	dial        DialFunc
	now         func() time.Time
	logger      zerolog.Logger
}

// New builds a watcher for one network.
func New(
	network model.Network,
	rpcURLs []string,
	registry *decoder.Registry,
	checkpoints Checkpoints,
	queue *pipeline.Queue,
	feed chan<- model.PropagatedBet,
	opts Options,
	logger zerolog.Logger,
) *Watcher {
	return &Watcher{
		network:     network,
		rpcURLs:     rpcURLs,
		registry:    registry,
		checkpoints: checkpoints,
		queue:       queue,
		feed:        feed,
		opts:        opts.withDefaults(),
		dial:        dialEthclient,
		now:         time.Now,
		logger: logger.With().
			Str("component", "watcher").
			Int64("network_id", network.ID).
			Str("network", network.Name).
			Logger(),
	}
}

func dialEthclient(ctx context.Context, url string) (Client, error) {
	return ethclient.DialContext(ctx, url)
}

// Run loops forever through {Connecting, Polling, BackingOff} until the
// context is cancelled. RPC failures are transient by definition: they cost a
// back-off delay and a reconnect, never the task.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		client, from, err := w.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error().Err(err).Msg("connect failed, backing off")
			if err := sleep(ctx, w.opts.Backoff); err != nil {
				return err
			}
			continue
		}

		err = w.pollLoop(ctx, client, from)
		client.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Error().Err(err).Msg("polling failed, backing off")
		if err := sleep(ctx, w.opts.Backoff); err != nil {
			return err
		}
	}
}

// connect dials the first reachable RPC endpoint and determines the starting
// block: the block after the persisted checkpoint, or the chain head when no
// checkpoint exists yet.
func (w *Watcher) connect(ctx context.Context) (Client, uint64, error) {
	var client Client
	for _, url := range w.rpcURLs {
		c, err := w.dial(ctx, url)
		if err != nil {
			w.logger.Warn().Err(err).Str("rpc", url).Msg("rpc endpoint unreachable")
			continue
		}
		w.logger.Debug().Str("rpc", url).Msg("connected to rpc endpoint")
		client = c
		break
	}
	if client == nil {
		return nil, 0, errors.New("no reachable rpc endpoint")
	}

	last, ok, err := w.checkpoints.GetCheckpoint(ctx, w.network.ID)
	if err != nil {
		client.Close()
		return nil, 0, err
	}
	if ok {
		w.logger.Info().Uint64("checkpoint", last).Msg("resuming from checkpoint")
		return client, last + 1, nil
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		client.Close()
		return nil, 0, err
	}
	w.logger.Info().Uint64("head", head).Msg("no checkpoint, starting at chain head")
	return client, head, nil
}

func (w *Watcher) pollLoop(ctx context.Context, client Client, from uint64) error {
	for {
		next, err := w.poll(ctx, client, from)
		if err != nil {
			return err
		}
		from = next
		if err := sleep(ctx, w.opts.PollInterval); err != nil {
			return err
		}
	}
}

// poll processes at most one block window and returns the next starting
// block. The checkpoint only advances after every log in the batch has been
// handled, so a crash in between reprocesses the batch (at-least-once;
// persistence dedupes bets by transaction hash).
func (w *Watcher) poll(ctx context.Context, client Client, from uint64) (uint64, error) {
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return from, err
	}
	if from > head {
		return from, nil
	}

	to := from + w.opts.BlockWindow - 1
	if to > head {
		to = head
	}

	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: w.registry.Addresses(),
	})
	if err != nil {
		return from, err
	}

	for _, log := range logs {
		w.handleLog(ctx, log)
	}

	if err := w.checkpoints.SetCheckpoint(ctx, w.network.ID, to); err != nil {
		return from, err
	}

	w.logger.Debug().Uint64("from", from).Uint64("to", to).Int("logs", len(logs)).Msg("batch complete")
	return to + 1, nil
}

// handleLog decodes a single raw log. Unknown signatures and malformed
// payloads are expected on watched addresses; they cost a log line, not the
// batch.
func (w *Watcher) handleLog(ctx context.Context, log types.Log) {
	if len(log.Topics) == 0 {
		return
	}

	schema, ok := w.registry.Lookup(log.Topics[0])
	if !ok {
		w.logger.Warn().Str("topic0", log.Topics[0].Hex()).Msg("no schema for event signature")
		return
	}

	fields, err := schema.Decode(log.Data)
	if err != nil {
		w.logger.Error().Err(err).
			Str("game", schema.Game.Name).
			Str("transaction_hash", log.TxHash.Hex()).
			Msg("failed to decode event data")
		return
	}

	bet, completed, err := buildBet(w.network, schema, log, fields, w.now().UTC())
	if err != nil {
		w.logger.Error().Err(err).
			Str("game", schema.Game.Name).
			Str("transaction_hash", log.TxHash.Hex()).
			Msg("dropping malformed game event")
		return
	}

	if completed {
		w.queue.Push(pipeline.PlaceBet{Bet: bet})
	}

	prop := model.PropagatedBet{
		Bet:         bet,
		GameName:    schema.Game.Name,
		NetworkName: w.network.Name,
	}
	select {
	case w.feed <- prop:
	case <-ctx.Done():
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
