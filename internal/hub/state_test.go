package hub

import (
	"fmt"
	"testing"
)

func TestSubscriptionStateFiltering(t *testing.T) {
	s := NewSubscriptionState(100)
	if s.Wants("Dice") {
		t.Fatal("初始状态不应匹配任何游戏")
	}

	s.Apply(ControlMessage{Type: TypeSubscribe, Payload: []string{"Dice", "Crash"}})
	if !s.Wants("Dice") || !s.Wants("Crash") {
		t.Fatal("订阅的游戏应被匹配")
	}
	if s.Wants("Roulette") {
		t.Fatal("未订阅的游戏不应匹配")
	}

	s.Apply(ControlMessage{Type: TypeUnsubscribe, Payload: []string{"Dice"}})
	if s.Wants("Dice") {
		t.Fatal("退订后不应再匹配")
	}
	if !s.Wants("Crash") {
		t.Fatal("退订单个游戏不应影响其它订阅")
	}
}

func TestSubscriptionStateAllFlag(t *testing.T) {
	s := NewSubscriptionState(100)
	s.Apply(ControlMessage{Type: TypeSubscribe, Payload: []string{"Dice"}})

	s.Apply(ControlMessage{Type: TypeSubscribeAll})
	if !s.Wants("Roulette") {
		t.Fatal("全量模式下任何游戏都应匹配")
	}

	// 全量模式期间离散集合仍被维护。
	s.Apply(ControlMessage{Type: TypeUnsubscribe, Payload: []string{"Dice"}})
	s.Apply(ControlMessage{Type: TypeUnsubscribeAll})
	if s.Wants("Dice") {
		t.Fatal("退出全量模式后应回到离散集合")
	}
}

func TestSubscriptionStateCapTruncates(t *testing.T) {
	s := NewSubscriptionState(3)

	var names []string
	for i := 0; i < 5; i++ {
		names = append(names, fmt.Sprintf("Game%d", i))
	}
	s.Apply(ControlMessage{Type: TypeSubscribe, Payload: names})

	if s.Count() != 3 {
		t.Fatalf("超限订阅应被静默截断到 3, 实际 %d", s.Count())
	}
	if !s.Wants("Game0") || !s.Wants("Game2") {
		t.Fatal("截断应保留前三个名称")
	}
	if s.Wants("Game3") {
		t.Fatal("超出上限的名称不应被订阅")
	}

	// 截断不是拒绝: 腾出空间后可以继续订阅。
	s.Apply(ControlMessage{Type: TypeUnsubscribe, Payload: []string{"Game0"}})
	s.Apply(ControlMessage{Type: TypeSubscribe, Payload: []string{"Game4"}})
	if !s.Wants("Game4") {
		t.Fatal("集合未满时应接受新订阅")
	}
}

func TestSubscriptionStateUnknownTypeIgnored(t *testing.T) {
	s := NewSubscriptionState(10)
	s.Apply(ControlMessage{Type: "Bogus", Payload: []string{"Dice"}})
	if s.Count() != 0 {
		t.Fatalf("未知控制类型应被忽略, 实际 %d", s.Count())
	}
}
