package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BICAS-web3/Backend/internal/model"
	"github.com/BICAS-web3/Backend/internal/pipeline"
)

// dialHub spins up an httptest server whose handler upgrades and serves each
// connection off the given broadcaster, then dials it.
func dialHub(t *testing.T, bc *pipeline.Broadcaster, opts Options) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("升级失败: %v", err)
			return
		}
		Serve(r.Context(), ws, bc, opts, zerolog.Nop())
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// roundTripPing 确认此前发送的控制帧都已被分发循环处理。
func roundTripPing(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if err := conn.WriteJSON(ControlMessage{Type: TypePing}); err != nil {
		t.Fatalf("发送 Ping 失败: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ControlMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("读取 Ping 回应失败: %v", err)
	}
	if msg.Type != TypePing {
		t.Fatalf("期望 Ping 回应, 实际 %#v", msg)
	}
}

func TestConnectionFiltersBySubscription(t *testing.T) {
	bc := pipeline.NewBroadcaster(16)
	// 保活间隔拉长, 测试期间不会有 Ping 混入数据流。
	conn := dialHub(t, bc, Options{KeepaliveInterval: time.Minute})

	if err := conn.WriteJSON(ControlMessage{Type: TypeSubscribe, Payload: []string{"Dice"}}); err != nil {
		t.Fatalf("发送订阅失败: %v", err)
	}
	roundTripPing(t, conn)

	bc.Publish(model.BetDetail{TransactionHash: "0x1", GameName: "Roulette"})
	bc.Publish(model.BetDetail{TransactionHash: "0x2", GameName: "Dice"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var bet model.BetDetail
	if err := conn.ReadJSON(&bet); err != nil {
		t.Fatalf("读取事件失败: %v", err)
	}
	if bet.TransactionHash != "0x2" || bet.GameName != "Dice" {
		t.Fatalf("应只送达订阅的游戏, 实际 %#v", bet)
	}
}

func TestConnectionSubscribeAll(t *testing.T) {
	bc := pipeline.NewBroadcaster(16)
	conn := dialHub(t, bc, Options{KeepaliveInterval: time.Minute})

	if err := conn.WriteJSON(ControlMessage{Type: TypeSubscribeAll}); err != nil {
		t.Fatalf("发送订阅失败: %v", err)
	}
	roundTripPing(t, conn)

	bc.Publish(model.BetDetail{TransactionHash: "0x1", GameName: "Roulette"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var bet model.BetDetail
	if err := conn.ReadJSON(&bet); err != nil {
		t.Fatalf("读取事件失败: %v", err)
	}
	if bet.TransactionHash != "0x1" {
		t.Fatalf("全量订阅应收到任何游戏, 实际 %#v", bet)
	}
}

func TestConnectionIgnoresMalformedFrames(t *testing.T) {
	bc := pipeline.NewBroadcaster(16)
	conn := dialHub(t, bc, Options{KeepaliveInterval: time.Minute})

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("发送非法帧失败: %v", err)
	}
	// 连接应存活并继续处理后续控制帧。
	roundTripPing(t, conn)
}

func TestConnectionKeepalive(t *testing.T) {
	bc := pipeline.NewBroadcaster(16)
	conn := dialHub(t, bc, Options{KeepaliveInterval: 20 * time.Millisecond})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ControlMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("读取保活帧失败: %v", err)
	}
	if msg.Type != TypePing {
		t.Fatalf("期望保活 Ping, 实际 %#v", msg)
	}
}

func TestConnectionCloseCancelsSubscription(t *testing.T) {
	bc := pipeline.NewBroadcaster(16)
	conn := dialHub(t, bc, Options{KeepaliveInterval: time.Minute})
	roundTripPing(t, conn)

	if bc.Subscribers() != 1 {
		t.Fatalf("连接建立后应有 1 个订阅, 实际 %d", bc.Subscribers())
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for bc.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("连接关闭后订阅未清理, 剩余 %d", bc.Subscribers())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	bc := pipeline.NewBroadcaster(16)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		Serve(ctx, ws, bc, Options{KeepaliveInterval: time.Minute}, zerolog.Nop())
		close(done)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer conn.Close()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("取消上下文后 Serve 未退出")
	}
}
