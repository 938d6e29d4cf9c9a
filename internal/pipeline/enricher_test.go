package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/BICAS-web3/Backend/internal/model"
)

type fakeDirectory struct {
	tokens    map[string]*model.Token
	nicknames map[string]*model.Nickname
}

func (f *fakeDirectory) TokenByAddress(_ context.Context, address string) (*model.Token, error) {
	return f.tokens[address], nil
}

func (f *fakeDirectory) NicknameByAddress(_ context.Context, address string) (*model.Nickname, error) {
	return f.nicknames[address], nil
}

func propagated() model.PropagatedBet {
	return model.PropagatedBet{
		Bet: model.Bet{
			TransactionHash: "0xfeed",
			Player:          "0xabc",
			Wager:           decimal.NewFromInt(10),
			TokenAddress:    "0xtoken",
			Profit:          decimal.NewFromInt(15),
		},
		GameName:    "Dice",
		NetworkName: "BSC",
	}
}

func runEnricher(t *testing.T, dir *fakeDirectory) (*Enricher, *Subscription, context.CancelFunc) {
	t.Helper()
	bc := NewBroadcaster(4)
	sub := bc.Subscribe()
	e := NewEnricher(bc, dir, 4, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = e.Run(ctx) }()
	return e, sub, cancel
}

func TestEnricherResolvesNames(t *testing.T) {
	dir := &fakeDirectory{
		tokens:    map[string]*model.Token{"0xtoken": {Name: "CAKE"}},
		nicknames: map[string]*model.Nickname{"0xabc": {Nickname: "lucky"}},
	}
	enricher, sub, cancel := runEnricher(t, dir)
	defer cancel()
	defer sub.Cancel()

	enricher.In() <- propagated()

	select {
	case detail := <-sub.C():
		if detail.TokenName != "CAKE" {
			t.Fatalf("代币名未解析: %#v", detail)
		}
		if detail.PlayerNickname == nil || *detail.PlayerNickname != "lucky" {
			t.Fatalf("昵称未解析: %#v", detail.PlayerNickname)
		}
		if detail.GameName != "Dice" || detail.NetworkName != "BSC" {
			t.Fatalf("传播名称丢失: %#v", detail)
		}
	case <-time.After(time.Second):
		t.Fatal("富化后的事件未广播")
	}
}

func TestEnricherDropsUnknownToken(t *testing.T) {
	dir := &fakeDirectory{tokens: map[string]*model.Token{}}
	enricher, sub, cancel := runEnricher(t, dir)
	defer cancel()
	defer sub.Cancel()

	enricher.In() <- propagated()

	select {
	case detail := <-sub.C():
		t.Fatalf("未知代币的投注不应广播: %#v", detail)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEnricherNicknameOptional(t *testing.T) {
	dir := &fakeDirectory{
		tokens:    map[string]*model.Token{"0xtoken": {Name: "CAKE"}},
		nicknames: map[string]*model.Nickname{},
	}
	enricher, sub, cancel := runEnricher(t, dir)
	defer cancel()
	defer sub.Cancel()

	enricher.In() <- propagated()

	select {
	case detail := <-sub.C():
		if detail.PlayerNickname != nil {
			t.Fatalf("无昵称时应保留原地址: %#v", detail.PlayerNickname)
		}
		if detail.Player != "0xabc" {
			t.Fatalf("玩家地址丢失: %s", detail.Player)
		}
	case <-time.After(time.Second):
		t.Fatal("事件未广播")
	}
}
