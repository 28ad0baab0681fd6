package engine

import (
	"context"
	"time"
)

// websocketTransport exists so configurations naming it fail uniformly.
type websocketTransport struct{}

func (websocketTransport) Name() string {
	return transportWebsocket
}

func (websocketTransport) Handshake(context.Context, *Session) (*Response, error) {
	return nil, ErrTransportUnsupported
}

func (websocketTransport) Send(context.Context, *Session, *Packet) error {
	return ErrTransportUnsupported
}

func (websocketTransport) Poll(context.Context, *Session, time.Duration) (*Response, error) {
	return nil, ErrTransportUnsupported
}

func (websocketTransport) Close() error {
	return nil
}
