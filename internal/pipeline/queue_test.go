package pipeline

import (
	"testing"
	"time"

	"github.com/BICAS-web3/Backend/internal/model"
)

func TestQueuePreservesOrder(t *testing.T) {
	q := NewQueue()

	for i := 0; i < 10; i++ {
		q.Push(PriceUpdate{Price: model.TokenPrice{TokenName: "BNB", Price: float64(i)}})
	}
	q.Close()

	var got []float64
	for msg := range q.C() {
		update, ok := msg.(PriceUpdate)
		if !ok {
			t.Fatalf("期望 PriceUpdate, 实际 %T", msg)
		}
		got = append(got, update.Price.Price)
	}

	if len(got) != 10 {
		t.Fatalf("期望 10 条消息, 实际 %d", len(got))
	}
	for i, price := range got {
		if price != float64(i) {
			t.Fatalf("第 %d 条消息乱序: %v", i, price)
		}
	}
}

func TestQueueProducerNeverBlocks(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	done := make(chan struct{})
	go func() {
		// 无消费者时写入大量消息, 验证积压不会阻塞生产者。
		for i := 0; i < 10000; i++ {
			q.Push(PlaceBet{Bet: model.Bet{TransactionHash: "0xabc"}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("生产者被积压阻塞")
	}
}

func TestQueueCloseDrainsBacklog(t *testing.T) {
	q := NewQueue()
	q.Push(PlaceBet{Bet: model.Bet{TransactionHash: "0x1"}})
	q.Push(PlaceBet{Bet: model.Bet{TransactionHash: "0x2"}})
	q.Close()

	var hashes []string
	for msg := range q.C() {
		hashes = append(hashes, msg.(PlaceBet).Bet.TransactionHash)
	}
	if len(hashes) != 2 || hashes[0] != "0x1" || hashes[1] != "0x2" {
		t.Fatalf("关闭后应按序送达积压消息, 实际 %v", hashes)
	}
}
