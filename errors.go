package sioclient

import "errors"

var (
	// ErrNoServerAddress indicates a Config without a server to talk to; fatal.
	ErrNoServerAddress = errors.New("no server address")
	// ErrInvalidConfig indicates a Config value outside its accepted range; fatal.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrNoFreeSlot indicates the registry is at capacity.
	ErrNoFreeSlot = errors.New("no free connection slot")
	// ErrNoClient indicates an unknown or destroyed handle.
	ErrNoClient = errors.New("no such client")
	// ErrInvalidState indicates an operation not allowed in the current status.
	ErrInvalidState = errors.New("invalid state")
	// ErrProtocol indicates the server violated the engine.io/socket.io protocol.
	ErrProtocol = errors.New("protocol violation")
	// ErrClosedByServer implies the server sent CLOSE; the cycle ends.
	ErrClosedByServer = errors.New("closed by server")
)
