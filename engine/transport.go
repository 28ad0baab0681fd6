package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Transport carries engine.io packets for one connection cycle
type Transport interface {
	Name() string
	Handshake(ctx context.Context, s *Session) (*Response, error)
	Send(ctx context.Context, s *Session, p *Packet) error
	Poll(ctx context.Context, s *Session, timeout time.Duration) (*Response, error)
	Close() error
}

// Kind selects a Transport implementation
type Kind int

const (
	// Polling is HTTP long-polling
	Polling Kind = iota
	// Websocket is declared but not implemented; every operation fails
	Websocket
)

const (
	transportPolling   string = "polling"
	transportWebsocket string = "websocket"
)

var (
	// ErrTransportUnsupported indicates a transport variant without an implementation
	ErrTransportUnsupported = errors.New("transport unsupported")
	// ErrUnexpectedResponse indicates the server answered a request with something other than expected
	ErrUnexpectedResponse = errors.New("unexpected response")
)

func (k Kind) String() string {
	switch k {
	case Polling:
		return transportPolling
	case Websocket:
		return transportWebsocket
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind is the inverse of Kind.String
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case transportPolling, "":
		return Polling, nil
	case transportWebsocket:
		return Websocket, nil
	}
	return Polling, fmt.Errorf("%w: %q", ErrTransportUnsupported, s)
}

// NewTransport creates a Transport of kind, issuing requests through doer.
// With rebuildPost the polling transport drops idle keep-alive connections
// after every POST.
func NewTransport(kind Kind, doer Doer, rebuildPost bool) (Transport, error) {
	switch kind {
	case Polling:
		if doer == nil {
			doer = DefaultDoer
		}
		return &pollingTransport{doer: doer, rebuildPost: rebuildPost}, nil
	case Websocket:
		return websocketTransport{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTransportUnsupported, kind)
}

// Session is the addressing state shared by every request of a connection cycle
type Session struct {
	Secure  bool
	Server  string
	Path    string
	Version int
	SID     string
	Header  http.Header
	Timeout time.Duration
	Token   func() string
}

// URL returns the polling endpoint for s; the sid is appended once known.
func (s *Session) URL() string {
	scheme := "http"
	if s.Secure {
		scheme = "https"
	}
	version := s.Version
	if version == 0 {
		version = Version
	}
	token := Token
	if s.Token != nil {
		token = s.Token
	}
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(s.Server)
	b.WriteString(strings.TrimSuffix(s.Path, "/"))
	b.WriteString("/?")
	b.WriteString(queryEIO + "=" + strconv.Itoa(version))
	b.WriteString("&" + queryTransport + "=" + transportPolling)
	b.WriteString("&" + queryToken + "=" + url.QueryEscape(token()))
	if s.SID != "" {
		b.WriteString("&" + querySession + "=" + url.QueryEscape(s.SID))
	}
	return b.String()
}

func (s *Session) header(pairs ...string) http.Header {
	h := cloneHTTPHeader(s.Header)
	if h == nil {
		h = make(http.Header)
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

func cloneHTTPHeader(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	h2 := make(http.Header, len(h))
	for k, vv := range h {
		vv2 := make([]string, len(vv))
		copy(vv2, vv)
		h2[k] = vv2
	}
	return h2
}
