package engine

// PacketType indicates the engine.io envelope of a Packet
type PacketType int

const (
	PacketTypeOpen PacketType = iota
	PacketTypeClose
	PacketTypePing
	PacketTypePong
	PacketTypeMessage
	PacketTypeUpgrade
	PacketTypeNoop
)

// Sentinels lie outside the range reachable from a single wire byte.
const (
	// PacketTypeServerOK is the bare "ok" a server answers to a POST.
	PacketTypeServerOK PacketType = 0x100 + iota
	// PacketTypeNone marks a packet whose type has not been parsed.
	PacketTypeNone
)

// String returns string representation of a PacketType
func (p PacketType) String() string {
	switch p {
	case PacketTypeOpen:
		return "open"
	case PacketTypeClose:
		return "close"
	case PacketTypePing:
		return "ping"
	case PacketTypePong:
		return "pong"
	case PacketTypeMessage:
		return "message"
	case PacketTypeUpgrade:
		return "upgrade"
	case PacketTypeNoop:
		return "noop"
	case PacketTypeServerOK:
		return "ok"
	case PacketTypeNone:
		return "none"
	}
	return "invalid"
}

// EventType indicates the socket.io envelope nested in a message Packet
type EventType int

const (
	EventTypeConnect EventType = iota
	EventTypeDisconnect
	EventTypeEvent
	EventTypeAck
	EventTypeConnectError
	EventTypeBinaryEvent
	EventTypeBinaryAck
)

// EventTypeNone is carried by every packet that is not a message.
const EventTypeNone EventType = 0x100

// String returns string representation of an EventType
func (e EventType) String() string {
	switch e {
	case EventTypeConnect:
		return "connect"
	case EventTypeDisconnect:
		return "disconnect"
	case EventTypeEvent:
		return "event"
	case EventTypeAck:
		return "ack"
	case EventTypeConnectError:
		return "connect_error"
	case EventTypeBinaryEvent:
		return "binary_event"
	case EventTypeBinaryAck:
		return "binary_ack"
	case EventTypeNone:
		return "none"
	}
	return "invalid"
}

// Parameters describes engine.io connection attributes, sending from server to client upon handshaking.
type Parameters struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

const (
	queryTransport = "transport"
	querySession   = "sid"
	queryEIO       = "EIO"
	queryToken     = "t"

	// Version is the default engine.io-protocol version
	Version = 4

	// RecordSeparator delimits packets batched in one EIO4 polling payload.
	RecordSeparator byte = 0x1e
)
