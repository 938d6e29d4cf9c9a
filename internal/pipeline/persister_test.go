package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/BICAS-web3/Backend/internal/model"
)

type fakeStore struct {
	mu     sync.Mutex
	bets   []model.Bet
	prices map[string]float64
	fail   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{prices: make(map[string]float64)}
}

func (f *fakeStore) PlaceBet(_ context.Context, bet model.Bet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("storage down")
	}
	f.bets = append(f.bets, bet)
	return nil
}

func (f *fakeStore) SetTokenPrice(_ context.Context, tokenName string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("storage down")
	}
	f.prices[tokenName] = price
	return nil
}

func TestPersisterWritesAllMessageKinds(t *testing.T) {
	store := newFakeStore()
	q := NewQueue()
	p := NewPersister(q, store, zerolog.Nop())

	q.Push(PlaceBet{Bet: model.Bet{
		TransactionHash: "0xdead",
		Wager:           decimal.NewFromInt(100),
		Profit:          decimal.NewFromInt(150),
	}})
	q.Push(PriceUpdate{Price: model.TokenPrice{TokenName: "CAKE", Price: 2.5}})
	q.Close()

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("队列关闭后 Run 应正常返回: %v", err)
	}

	if len(store.bets) != 1 || store.bets[0].TransactionHash != "0xdead" {
		t.Fatalf("投注未写入: %#v", store.bets)
	}
	if store.prices["CAKE"] != 2.5 {
		t.Fatalf("价格未写入: %#v", store.prices)
	}
}

func TestPersisterSurvivesWriteFailure(t *testing.T) {
	store := newFakeStore()
	store.fail = true
	q := NewQueue()
	p := NewPersister(q, store, zerolog.Nop())

	q.Push(PlaceBet{Bet: model.Bet{TransactionHash: "0x1"}})
	q.Push(PriceUpdate{Price: model.TokenPrice{TokenName: "BNB", Price: 1}})
	q.Close()

	// 单条写入失败只记日志, 不应中止消费。
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("写入失败不应终止 Run: %v", err)
	}
}

func TestPersisterStopsOnContextCancel(t *testing.T) {
	store := newFakeStore()
	q := NewQueue()
	defer q.Close()
	p := NewPersister(q, store, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
	}
}
