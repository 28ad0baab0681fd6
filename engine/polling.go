package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type pollingTransport struct {
	doer        Doer
	rebuildPost bool
}

func (pollingTransport) Name() string {
	return transportPolling
}

// Handshake opens a session: GET without sid, answered by an OPEN packet.
func (t *pollingTransport) Handshake(ctx context.Context, s *Session) (*Response, error) {
	return t.doer.Do(ctx, &Request{
		Method:  http.MethodGet,
		URL:     s.URL(),
		Header:  s.header("Content-Type", "text/html", "Accept", "text/plain"),
		Timeout: s.Timeout,
	})
}

// Send POSTs p and expects exactly one "ok" back. It never retries.
func (t *pollingTransport) Send(ctx context.Context, s *Session, p *Packet) error {
	p.sent = true
	resp, err := t.doer.Do(ctx, &Request{
		Method:  http.MethodPost,
		URL:     s.URL(),
		Header:  s.header("Content-Type", "text/plain;charset=UTF-8", "Accept", "*/*"),
		Body:    EncodePayload(s.Version, p),
		Timeout: s.Timeout,
	})
	if t.rebuildPost {
		t.closeIdle()
	}
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: post status %d", ErrUnexpectedResponse, resp.StatusCode)
	}
	if isServerOK(s.Version, resp.Body) {
		return nil
	}
	return fmt.Errorf("%w: post answered %q", ErrUnexpectedResponse, resp.Body)
}

// isServerOK accepts a bare "ok", as every server version sends it, or a
// payload framing exactly one "ok".
func isServerOK(version int, body []byte) bool {
	if p, err := Decode(body); err == nil && p.Type() == PacketTypeServerOK {
		return true
	}
	packets, _ := DecodePayload(version, body)
	return len(packets) == 1 && packets[0].Type() == PacketTypeServerOK
}

// Poll issues one long-poll GET bounded by timeout.
func (t *pollingTransport) Poll(ctx context.Context, s *Session, timeout time.Duration) (*Response, error) {
	return t.doer.Do(ctx, &Request{
		Method:  http.MethodGet,
		URL:     s.URL(),
		Header:  s.header("Accept", "text/plain"),
		Timeout: timeout,
	})
}

// Close releases idle keep-alive connections; safe to call more than once.
func (t *pollingTransport) Close() error {
	t.closeIdle()
	return nil
}

func (t *pollingTransport) closeIdle() {
	if c, ok := t.doer.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
