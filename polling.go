package sioclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/zyxar/sioclient/engine"
)

// poll runs the long-poll loop of one connection cycle until it ends.
func (r *Registry) poll(h Handle, w *worker, tr engine.Transport, logger zerolog.Logger) {
	defer r.wg.Done()
	logger.Debug().Msg("poll worker started")
	err := r.pollLoop(h, w, tr, logger)
	r.finishPoll(h, w, tr, logger, err)
}

func (r *Registry) pollLoop(h Handle, w *worker, tr engine.Transport, logger zerolog.Logger) error {
	for {
		c := r.GetAndLock(h)
		if c == nil {
			return ErrNoClient
		}
		if c.worker != w || c.status != StatusConnected {
			c.Unlock()
			return nil
		}
		sess := c.session()
		timeout := c.pingInterval + c.pingTimeout
		c.Unlock()
		if timeout <= 0 {
			timeout = r.pollTimeout
		}

		start := time.Now()
		resp, err := tr.Poll(w.ctx, sess, timeout)
		r.metrics.pollDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: poll status %d", engine.ErrUnexpectedResponse, resp.StatusCode)
		}
		if resp.ContentLength <= 0 {
			return fmt.Errorf("%w: poll without content", engine.ErrUnexpectedResponse)
		}

		if c = r.GetAndLock(h); c == nil {
			return ErrNoClient
		}
		current := c.worker == w && c.status == StatusConnected
		c.Unlock()
		if !current {
			logger.Debug().Msg("poll answer dropped, cycle ended")
			return nil
		}

		packets, discarded := engine.DecodePayload(sess.Version, resp.Body)
		for _, err := range discarded {
			logger.Warn().Err(err).Msg("frame discarded")
		}
		messages, err := r.dispatch(h, w, packets, logger)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			continue
		}
		r.post(Event{Type: EventReceivedMessage, Handle: h, Packets: messages, Count: len(messages)})
	}
}

// dispatch answers protocol-level packets and returns the messages left for
// the application.
func (r *Registry) dispatch(h Handle, w *worker, packets []*engine.Packet, logger zerolog.Logger) ([]*engine.Packet, error) {
	var messages []*engine.Packet
	for _, p := range packets {
		r.metrics.packetReceived(p.Type())
		logger.Debug().Stringer("packet", p).Msg("received")
		switch p.Type() {
		case engine.PacketTypePing:
			pong := engine.NewPacket(engine.PacketTypePong, string(p.Body()))
			if err := r.send(w.ctx, h, pong, StatusConnected); err != nil {
				return nil, fmt.Errorf("pong: %w", err)
			}
			if c := r.GetAndLock(h); c != nil {
				c.lastPong = time.Now()
				c.Unlock()
			}
		case engine.PacketTypeClose:
			return nil, ErrClosedByServer
		case engine.PacketTypeMessage:
			messages = append(messages, p)
		default:
			logger.Debug().Stringer("packet", p).Msg("ignored")
		}
	}
	return messages, nil
}

// finishPoll tears the cycle down; DISCONNECTED is posted exactly once per worker.
func (r *Registry) finishPoll(h Handle, w *worker, tr engine.Transport, logger zerolog.Logger, err error) {
	restart := false
	if c := r.GetAndLock(h); c != nil {
		// a Closing cycle is finished by Close itself
		if c.worker == w && c.status == StatusConnected {
			c.status = StatusClosed
			c.clearSession()
			if c.transport == tr {
				c.transport = nil
			}
			if c.config.Reconnect && r.ctx.Err() == nil {
				c.status = StatusStarting
				restart = true
			}
		}
		c.Unlock()
	}
	tr.Close()
	w.cancel()
	defer close(w.done)

	r.metrics.connected.Dec()
	r.metrics.disconnects.Inc()
	switch {
	case err == nil:
		logger.Info().Msg("disconnected")
	case errors.Is(err, ErrClosedByServer):
		logger.Info().Msg("disconnected by server")
	default:
		logger.Error().Err(err).Msg("disconnected")
	}
	if restart {
		logger.Info().Msg("scheduled for reconnect")
	}
	r.post(Event{Type: EventDisconnected, Handle: h})
}
