package hub

// Control frame types accepted from and sent to realtime clients.
const (
	TypeSubscribe      = "Subscribe"
	TypeUnsubscribe    = "Unsubscribe"
	TypeSubscribeAll   = "SubscribeAll"
	TypeUnsubscribeAll = "UnsubscribeAll"
	TypePing           = "Ping"
)

// ControlMessage is the JSON shape of an inbound control frame, e.g.
// {"type":"Subscribe","payload":["Dice","Crash"]}. Outbound keepalive pings
// reuse the same shape.
type ControlMessage struct {
	Type    string   `json:"type"`
	Payload []string `json:"payload,omitempty"`
}
