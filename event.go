package sioclient

import (
	"strconv"
	"time"

	"github.com/zyxar/sioclient/engine"
)

// EventType identifies a notification posted to the application
type EventType int

const (
	EventReady EventType = iota
	EventConnected
	EventReceivedMessage
	EventConnectError
	EventUpgradeTransportError
	EventDisconnected
)

func (e EventType) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventConnected:
		return "connected"
	case EventReceivedMessage:
		return "message"
	case EventConnectError:
		return "connect_error"
	case EventUpgradeTransportError:
		return "upgrade_transport_error"
	case EventDisconnected:
		return "disconnected"
	}
	return "event(" + strconv.Itoa(int(e)) + ")"
}

// Event is a notification about one connection. For EventReceivedMessage the
// consumer owns Packets.
type Event struct {
	Type    EventType
	Handle  Handle
	Packets []*engine.Packet
	Count   int
}

// Sink accepts notifications. Post must not block for long and reports
// whether e was accepted.
type Sink interface {
	Post(e Event) bool
}

// SinkFunc is a Sink func, called synchronously from the posting goroutine
type SinkFunc func(e Event)

// Post implements Sink interface
func (f SinkFunc) Post(e Event) bool {
	f(e)
	return true
}

// Discard drops every notification.
var Discard Sink = discard{}

type discard struct{}

func (discard) Post(Event) bool { return true }

// DefaultPostTimeout bounds how long a ChanSink waits for room.
const DefaultPostTimeout = 50 * time.Millisecond

// ChanSink delivers notifications through a buffered channel
type ChanSink struct {
	events  chan Event
	timeout time.Duration
}

// NewChanSink creates a ChanSink buffering size events; a non-positive timeout
// selects DefaultPostTimeout.
func NewChanSink(size int, timeout time.Duration) *ChanSink {
	if timeout <= 0 {
		timeout = DefaultPostTimeout
	}
	return &ChanSink{events: make(chan Event, size), timeout: timeout}
}

// Post implements Sink interface
func (s *ChanSink) Post(e Event) bool {
	select {
	case s.events <- e:
		return true
	default:
	}
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case s.events <- e:
		return true
	case <-timer.C:
		return false
	}
}

// Events returns the channel notifications are delivered on.
func (s *ChanSink) Events() <-chan Event {
	return s.events
}
