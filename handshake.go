package sioclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/zyxar/sioclient/engine"
)

const emptyAuth = "{}"

// Handshake opens an engine.io session for h and joins its namespace. h must
// be Starting. On failure h is left in Error and its transport is closed.
func (r *Registry) Handshake(ctx context.Context, h Handle) (err error) {
	c := r.GetAndLock(h)
	if c == nil {
		return ErrNoClient
	}
	if c.status != StatusStarting {
		st := c.status
		c.Unlock()
		return fmt.Errorf("%w: handshake from %s", ErrInvalidState, st)
	}
	tr, err := engine.NewTransport(c.config.Transport, r.doer, c.config.RebuildPost)
	if err != nil {
		c.status = StatusError
		c.Unlock()
		return err
	}
	c.status = StatusHandshaking
	c.transport = tr
	sess := c.session()
	cfg := c.config
	logger := c.log
	c.Unlock()

	defer func() {
		if err != nil {
			r.failHandshake(h, tr, logger, err)
		}
	}()

	resp, err := r.open(ctx, h, tr, sess, cfg, logger)
	if err != nil {
		return err
	}
	param, err := parseOpen(cfg.EIOVersion, resp)
	if err != nil {
		return err
	}

	auth := emptyAuth
	if cfg.Auth != nil {
		if a := cfg.Auth(h); a != "" {
			auth = a
		}
	}

	if c = r.GetAndLock(h); c == nil {
		return ErrNoClient
	}
	if c.status != StatusHandshaking || c.transport != tr {
		st := c.status
		c.Unlock()
		return fmt.Errorf("%w: left handshaking for %s", ErrInvalidState, st)
	}
	c.sid = param.SID
	c.pingInterval = time.Duration(param.PingInterval) * time.Millisecond
	c.pingTimeout = time.Duration(param.PingTimeout) * time.Millisecond
	c.log = c.baseLog.With().Str("sid", param.SID).Logger()
	logger = c.log
	c.Unlock()

	if err = r.send(ctx, h, connectPacket(cfg.Namespace, auth), StatusHandshaking); err != nil {
		return fmt.Errorf("connect packet: %w", err)
	}
	r.metrics.handshakes.WithLabelValues("ok").Inc()
	logger.Info().
		Int("ping_interval", param.PingInterval).
		Int("ping_timeout", param.PingTimeout).
		Msg("handshake ok")
	return nil
}

// open issues the handshake GET, retrying transient failures.
func (r *Registry) open(ctx context.Context, h Handle, tr engine.Transport, sess *engine.Session, cfg Config, logger zerolog.Logger) (*engine.Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := tr.Handshake(ctx, sess)
		if err == nil {
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("%w: handshake status %d", engine.ErrUnexpectedResponse, resp.StatusCode)
			}
			return resp, nil
		}
		if !engine.IsTransient(err) || (cfg.MaxConnectRetries > 0 && attempt >= cfg.MaxConnectRetries) {
			return nil, err
		}
		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", cfg.RetryInterval).Msg("handshake retry")
		timer := time.NewTimer(cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		st, err := r.Status(h)
		if err != nil {
			return nil, err
		}
		if st != StatusHandshaking {
			return nil, fmt.Errorf("%w: left handshaking for %s", ErrInvalidState, st)
		}
	}
}

func parseOpen(version int, resp *engine.Response) (*engine.Parameters, error) {
	packets, discarded := engine.DecodePayload(version, resp.Body)
	if len(packets) != 1 || len(discarded) != 0 {
		return nil, fmt.Errorf("%w: handshake carried %d packets, %d undecodable", ErrProtocol, len(packets), len(discarded))
	}
	if t := packets[0].Type(); t != engine.PacketTypeOpen {
		return nil, fmt.Errorf("%w: handshake answered with %s", ErrProtocol, t)
	}
	var param engine.Parameters
	if err := json.Unmarshal(packets[0].Body(), &param); err != nil {
		return nil, fmt.Errorf("%w: handshake body: %v", ErrProtocol, err)
	}
	if param.SID == "" {
		return nil, fmt.Errorf("%w: handshake without sid", ErrProtocol)
	}
	return &param, nil
}

// connectPacket builds the socket.io CONNECT for namespace ns.
func connectPacket(ns, auth string) *engine.Packet {
	var p *engine.Packet
	if ns == DefaultNamespace {
		p = engine.EncodeEvent(auth, "")
	} else {
		p = engine.EncodeNamespaced(ns, auth)
	}
	p.SetEventType(engine.EventTypeConnect)
	return p
}

func (r *Registry) failHandshake(h Handle, tr engine.Transport, logger zerolog.Logger, err error) {
	if c := r.GetAndLock(h); c != nil {
		if c.transport == tr {
			if c.status == StatusHandshaking {
				c.status = StatusError
				c.clearSession()
			}
			c.transport = nil
		}
		c.Unlock()
	}
	tr.Close()
	r.metrics.handshakes.WithLabelValues("error").Inc()
	logger.Error().Err(err).Msg("handshake failed")
}

// Connect runs the transport-specific connect step after a successful
// Handshake: for polling it starts the poll worker and marks h Connected.
func (r *Registry) Connect(ctx context.Context, h Handle) error {
	c := r.GetAndLock(h)
	if c == nil {
		return ErrNoClient
	}
	if c.status != StatusHandshaking || c.transport == nil {
		st := c.status
		c.Unlock()
		return fmt.Errorf("%w: connect from %s", ErrInvalidState, st)
	}
	if c.transport.Name() != engine.Polling.String() {
		c.status = StatusError
		c.Unlock()
		return engine.ErrTransportUnsupported
	}
	if prev := c.worker; prev != nil {
		c.Unlock()
		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if c = r.GetAndLock(h); c == nil {
			return ErrNoClient
		}
		if c.status != StatusHandshaking || c.transport == nil {
			st := c.status
			c.Unlock()
			return fmt.Errorf("%w: connect from %s", ErrInvalidState, st)
		}
	}
	wctx, cancel := context.WithCancel(r.ctx)
	w := &worker{ctx: wctx, cancel: cancel, done: make(chan struct{})}
	c.worker = w
	c.status = StatusConnected
	tr := c.transport
	logger := c.log
	c.Unlock()

	r.wg.Add(1)
	go r.poll(h, w, tr, logger)
	r.metrics.connected.Inc()
	logger.Info().Msg("connected")
	r.post(Event{Type: EventConnected, Handle: h})
	return nil
}
