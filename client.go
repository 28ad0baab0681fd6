package sioclient

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zyxar/sioclient/engine"
)

// Handle identifies a connection slot in a Registry
type Handle int

// Status is the lifecycle state of a connection
type Status int

const (
	StatusInited Status = iota
	StatusStarting
	StatusHandshaking
	StatusConnected
	StatusClosing
	StatusClosed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusInited:
		return "inited"
	case StatusStarting:
		return "starting"
	case StatusHandshaking:
		return "handshaking"
	case StatusConnected:
		return "connected"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Client is the state of one logical connection. Obtain it through
// Registry.GetAndLock and release it with Unlock; accessors require the lock.
type Client struct {
	mu sync.Mutex
	// sendMu serialises POSTs of this connection; taken without mu held.
	sendMu sync.Mutex

	handle       Handle
	config       Config
	status       Status
	sid          string
	pingInterval time.Duration
	pingTimeout  time.Duration
	lastPong     time.Time
	transport    engine.Transport
	worker       *worker
	destroyed    bool
	token        func() string
	log          zerolog.Logger
	baseLog      zerolog.Logger
}

// worker records the poll goroutine of one connection cycle.
type worker struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Unlock releases the client obtained from GetAndLock.
func (c *Client) Unlock() { c.mu.Unlock() }

// Handle returns the slot of c.
func (c *Client) Handle() Handle { return c.handle }

// Status returns the lifecycle state.
func (c *Client) Status() Status { return c.status }

// SID returns the negotiated session id, empty outside a connection cycle.
func (c *Client) SID() string { return c.sid }

// PingInterval returns the negotiated ping interval.
func (c *Client) PingInterval() time.Duration { return c.pingInterval }

// PingTimeout returns the negotiated ping timeout.
func (c *Client) PingTimeout() time.Duration { return c.pingTimeout }

// Config returns a copy of the connection configuration.
func (c *Client) Config() Config { return c.config }

func (c *Client) statusIn(allowed ...Status) bool {
	for _, s := range allowed {
		if c.status == s {
			return true
		}
	}
	return false
}

func (c *Client) session() *engine.Session {
	return &engine.Session{
		Secure:  c.config.Secure,
		Server:  c.config.ServerAddress,
		Path:    c.config.URLPath,
		Version: c.config.EIOVersion,
		SID:     c.sid,
		Header:  c.config.Header,
		Timeout: c.config.RequestTimeout,
		Token:   c.token,
	}
}

// clearSession drops everything negotiated by the last handshake.
func (c *Client) clearSession() {
	c.sid = ""
	c.pingInterval = 0
	c.pingTimeout = 0
	c.log = c.baseLog
}
