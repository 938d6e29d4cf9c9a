package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/BICAS-web3/Backend/internal/model"
	"github.com/BICAS-web3/Backend/internal/pipeline"
	"github.com/BICAS-web3/Backend/internal/scheduler"
)

// routerABIJSON covers the single swap-router view the oracle needs. A full
// router interface description can be supplied via Options.RouterABIPath.
const routerABIJSON = `[{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}]`

// Caller is the contract-call surface of an RPC client. *ethclient.Client
// satisfies it; tests substitute a fake.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// DialFunc opens an RPC connection. Injectable for tests.
type DialFunc func(ctx context.Context, url string) (Caller, error)

// TokenSource lists the tokens whose prices the oracle tracks.
type TokenSource interface {
	ListPriceSourceTokens(ctx context.Context, networkID int64) ([]model.Token, error)
}

// Options parameterise the oracle.
type Options struct {
	NetworkID     int64
	RPCURLs       []string
	RouterAddress string
	BridgeAddress string
	StableAddress string
	RouterABIPath string
	// AmountInDecimals is the fixed-point scale of the probe amount, 18 on
	// most chains.
	AmountInDecimals int32
	Interval         time.Duration
	RetryDelay       time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.AmountInDecimals <= 0 {
		out.AmountInDecimals = 18
	}
	if out.Interval <= 0 {
		out.Interval = 3 * time.Minute
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 3 * time.Minute
	}
	return out
}

// Oracle derives a stable-asset reference price for each tracked token via a
// two-hop path through the bridge asset, since most tokens have no direct
// liquidity pool against the stable asset. Samples go to the persistence
// queue only; prices are never broadcast.
type Oracle struct {
	opts   Options
	tokens TokenSource
	queue  *pipeline.Queue
	logger zerolog.Logger

	dial      DialFunc
	caller    Caller
	callerMux sync.Mutex

	routerABI abi.ABI
	router    common.Address
	bridge    common.Address
	stable    common.Address
	amountIn  *big.Int
}

// New validates addresses, loads the router interface description and builds
// the oracle.
func New(opts Options, tokens TokenSource, queue *pipeline.Queue, logger zerolog.Logger) (*Oracle, error) {
	opts = opts.withDefaults()

	for name, addr := range map[string]string{
		"router": opts.RouterAddress,
		"bridge": opts.BridgeAddress,
		"stable": opts.StableAddress,
	} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("oracle: invalid %s address %q", name, addr)
		}
	}
	if len(opts.RPCURLs) == 0 {
		return nil, errors.New("oracle: at least one rpc url is required")
	}

	routerABI, err := loadRouterABI(opts.RouterABIPath)
	if err != nil {
		return nil, err
	}

	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(opts.AmountInDecimals)), nil)

	return &Oracle{
		opts:      opts,
		tokens:    tokens,
		queue:     queue,
		logger:    logger.With().Str("component", "oracle").Logger(),
		dial:      dialEthclient,
		routerABI: routerABI,
		router:    common.HexToAddress(opts.RouterAddress),
		bridge:    common.HexToAddress(opts.BridgeAddress),
		stable:    common.HexToAddress(opts.StableAddress),
		amountIn:  exp,
	}, nil
}

func loadRouterABI(path string) (abi.ABI, error) {
	if path == "" {
		return abi.JSON(strings.NewReader(routerABIJSON))
	}
	file, err := os.Open(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("oracle: open router abi: %w", err)
	}
	defer file.Close()
	parsed, err := abi.JSON(file)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("oracle: parse router abi: %w", err)
	}
	return parsed, nil
}

func dialEthclient(ctx context.Context, url string) (Caller, error) {
	return ethclient.DialContext(ctx, url)
}

// Run samples prices on a fixed cycle for the process lifetime. Failed
// cycles are logged by the scheduler and cost nothing but the cycle;
// on-chain price queries are rate- and cost-sensitive, hence the minutes,
// not seconds, interval.
func (o *Oracle) Run(ctx context.Context) error {
	sched := scheduler.New(scheduler.Options{Interval: o.opts.Interval}, o.logger)
	return sched.Run(ctx, o.tick)
}

func (o *Oracle) tick(ctx context.Context, _ time.Time) error {
	caller, err := o.getCaller(ctx)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}

	tokens, err := o.tokens.ListPriceSourceTokens(ctx, o.opts.NetworkID)
	if err != nil {
		return fmt.Errorf("list tracked tokens: %w", err)
	}

	return o.runCycle(ctx, caller, tokens)
}

// getCaller returns the cached RPC client, dialing the first reachable
// endpoint when there is none yet.
func (o *Oracle) getCaller(ctx context.Context) (Caller, error) {
	o.callerMux.Lock()
	defer o.callerMux.Unlock()

	if o.caller != nil {
		return o.caller, nil
	}

	for _, url := range o.opts.RPCURLs {
		caller, err := o.dial(ctx, url)
		if err != nil {
			o.logger.Warn().Err(err).Str("rpc", url).Msg("rpc endpoint unreachable")
			continue
		}
		o.logger.Debug().Str("rpc", url).Msg("connected to rpc endpoint")
		o.caller = caller
		return caller, nil
	}
	return nil, errors.New("no reachable rpc endpoint")
}

// dropCaller discards the cached client so the next cycle redials.
func (o *Oracle) dropCaller() {
	o.callerMux.Lock()
	defer o.callerMux.Unlock()
	if o.caller != nil {
		o.caller.Close()
		o.caller = nil
	}
}

// runCycle emits one price sample per token. A failed hop is retried next
// cycle for that token only, after the fixed retry delay; the remaining
// tokens in the batch still get sampled.
func (o *Oracle) runCycle(ctx context.Context, caller Caller, tokens []model.Token) error {
	bridgeRate, err := o.quote(ctx, caller, []common.Address{o.bridge, o.stable})
	if err != nil {
		o.dropCaller()
		o.logger.Error().Err(err).Msg("bridge to stable quote failed, skipping cycle")
		return sleep(ctx, o.opts.RetryDelay)
	}

	for _, token := range tokens {
		if !common.IsHexAddress(token.ContractAddress) {
			o.logger.Error().Str("token", token.Name).Str("address", token.ContractAddress).Msg("invalid token address")
			continue
		}
		tokenRate, err := o.quote(ctx, caller, []common.Address{common.HexToAddress(token.ContractAddress), o.bridge})
		if err != nil {
			o.logger.Error().Err(err).Str("token", token.Name).Msg("token to bridge quote failed")
			if err := sleep(ctx, o.opts.RetryDelay); err != nil {
				return err
			}
			continue
		}

		// Both hops stay in decimal; only the final product degrades to a
		// float for storage.
		price := tokenRate.Mul(bridgeRate)
		o.queue.Push(pipeline.PriceUpdate{Price: model.TokenPrice{
			TokenName: token.Name,
			Price:     price.InexactFloat64(),
		}})

		o.logger.Debug().Str("token", token.Name).Str("price", price.String()).Msg("price sampled")
	}
	return nil
}

// quote asks the router how much of the last path element one whole unit of
// the first buys, as a fixed-point decimal.
func (o *Oracle) quote(ctx context.Context, caller Caller, path []common.Address) (decimal.Decimal, error) {
	payload, err := o.routerABI.Pack("getAmountsOut", o.amountIn, path)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pack getAmountsOut: %w", err)
	}

	res, err := caller.CallContract(ctx, ethereum.CallMsg{To: &o.router, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("call getAmountsOut: %w", err)
	}

	outputs, err := o.routerABI.Unpack("getAmountsOut", res)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unpack getAmountsOut: %w", err)
	}
	if len(outputs) != 1 {
		return decimal.Decimal{}, errors.New("unexpected getAmountsOut response shape")
	}

	amounts, ok := outputs[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return decimal.Decimal{}, errors.New("failed to decode getAmountsOut amounts")
	}

	return decimal.NewFromBigInt(amounts[len(amounts)-1], -o.opts.AmountInDecimals), nil
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
