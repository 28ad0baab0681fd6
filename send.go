package sioclient

import (
	"context"
	"fmt"

	"github.com/zyxar/sioclient/engine"
)

// Send transmits p on the connection of h. Only Connected and Closing
// connections may send; failures are returned, never retried.
func (r *Registry) Send(ctx context.Context, h Handle, p *engine.Packet) error {
	return r.send(ctx, h, p, StatusConnected, StatusClosing)
}

// SendEvent transmits body as a socket.io EVENT, named event unless event is
// empty, in the namespace of h.
func (r *Registry) SendEvent(ctx context.Context, h Handle, body, event string) error {
	c := r.GetAndLock(h)
	if c == nil {
		return ErrNoClient
	}
	ns := c.config.Namespace
	c.Unlock()

	p := engine.EncodeEvent(body, event)
	if ns != DefaultNamespace {
		p = engine.EncodeNamespaced(ns, string(p.Bytes()[2:]))
		p.SetEventType(engine.EventTypeEvent)
	}
	return r.Send(ctx, h, p)
}

// SendRaw transmits b verbatim as one packet.
func (r *Registry) SendRaw(ctx context.Context, h Handle, b []byte) error {
	if len(b) == 0 {
		return engine.ErrInvalidPayload
	}
	return r.Send(ctx, h, engine.NewRawPacket(b))
}

// send delivers p while h is in one of allowed. The state lock is released
// for the request; the send lock keeps POSTs of one connection in order.
func (r *Registry) send(ctx context.Context, h Handle, p *engine.Packet, allowed ...Status) error {
	c := r.GetAndLock(h)
	if c == nil {
		return ErrNoClient
	}
	if !c.statusIn(allowed...) || c.transport == nil {
		st := c.status
		c.Unlock()
		return fmt.Errorf("%w: send while %s", ErrInvalidState, st)
	}
	tr, sess, sendMu, logger := c.transport, c.session(), &c.sendMu, c.log
	c.Unlock()

	sendMu.Lock()
	err := tr.Send(ctx, sess, p)
	sendMu.Unlock()
	if err != nil {
		logger.Error().Err(err).Stringer("packet", p).Msg("send failed")
		return err
	}
	r.metrics.packetSent(p.Type())
	logger.Debug().Stringer("packet", p).Msg("sent")
	return nil
}
