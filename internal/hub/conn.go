package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BICAS-web3/Backend/internal/pipeline"
)

// Options tune per-connection behaviour.
type Options struct {
	// KeepaliveInterval is how often a ping control frame is written so
	// intermediaries do not time the connection out.
	KeepaliveInterval time.Duration
	// MaxSubscriptions caps the discrete game-name subscription set.
	MaxSubscriptions int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.KeepaliveInterval <= 0 {
		out.KeepaliveInterval = 5 * time.Second
	}
	if out.MaxSubscriptions <= 0 {
		out.MaxSubscriptions = 100
	}
	return out
}

// Serve owns one websocket connection for its lifetime. It runs the reader in
// a second goroutine and the dispatcher in the calling one; either side
// failing cancels the shared context so both exit. Other connections and the
// broadcast producers are unaffected.
func Serve(ctx context.Context, ws *websocket.Conn, bc *pipeline.Broadcaster, opts Options, logger zerolog.Logger) {
	opts = opts.withDefaults()
	logger = logger.With().Str("component", "hub").Str("remote", ws.RemoteAddr().String()).Logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Closing the socket is what unblocks a reader stuck in ReadMessage.
	defer ws.Close()

	ctrl := make(chan ControlMessage, 16)
	go readLoop(ctx, ws, ctrl, cancel, logger)

	dispatch(ctx, ws, bc, ctrl, opts, logger)
}

// readLoop parses inbound control frames and forwards them to the
// dispatcher. Malformed frames are logged and ignored. Exits on socket close
// or context cancellation.
func readLoop(ctx context.Context, ws *websocket.Conn, ctrl chan<- ControlMessage, cancel context.CancelFunc, logger zerolog.Logger) {
	defer cancel()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			logger.Debug().Err(err).Msg("websocket read ended")
			return
		}

		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn().Err(err).Str("frame", string(data)).Msg("ignoring malformed control frame")
			continue
		}

		select {
		case ctrl <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// dispatch is the connection's event loop, multiplexing the broadcast feed,
// the keepalive timer and parsed control messages.
func dispatch(ctx context.Context, ws *websocket.Conn, bc *pipeline.Broadcaster, ctrl <-chan ControlMessage, opts Options, logger zerolog.Logger) {
	sub := bc.Subscribe()
	defer sub.Cancel()

	state := NewSubscriptionState(opts.MaxSubscriptions)

	keepalive := time.NewTicker(opts.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case bet, ok := <-sub.C():
			if !ok {
				return
			}
			if !state.Wants(bet.GameName) {
				continue
			}
			if err := ws.WriteJSON(bet); err != nil {
				logger.Debug().Err(err).Msg("bet delivery failed, closing connection")
				return
			}

		case <-keepalive.C:
			if err := ws.WriteJSON(ControlMessage{Type: TypePing}); err != nil {
				logger.Debug().Err(err).Msg("keepalive failed, closing connection")
				return
			}

		case msg := <-ctrl:
			if msg.Type == TypePing {
				if err := ws.WriteJSON(ControlMessage{Type: TypePing}); err != nil {
					return
				}
				continue
			}
			state.Apply(msg)
		}
	}
}
