package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

var (
	// ErrChunkedResponse indicates a response using chunked transfer encoding, which is not accepted
	ErrChunkedResponse = errors.New("chunked response unsupported")
	// ErrTimeout indicates a request that did not complete in time
	ErrTimeout = errors.New("request timeout")
)

// Request is one HTTP exchange issued by a Transport
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Response carries the fully read answer to a Request
type Response struct {
	StatusCode    int
	ContentLength int64
	Body          []byte
}

// Doer performs HTTP requests on behalf of transports
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// DefaultDoer is shared by transports created without a Doer.
var DefaultDoer = NewHTTPDoer()

// HTTPDoer is a Doer backed by net/http
type HTTPDoer struct {
	Client *http.Client
}

// NewHTTPDoer creates an HTTPDoer that never follows redirects.
func NewHTTPDoer() *HTTPDoer {
	return &HTTPDoer{Client: &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

// Do implements Doer.
func (d *HTTPDoer) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	r, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vv := range req.Header {
		r.Header[k] = vv
	}
	resp, err := d.Client.Do(r)
	if err != nil {
		return nil, timeoutError(err)
	}
	defer resp.Body.Close()
	for _, te := range resp.TransferEncoding {
		if te == "chunked" {
			return nil, ErrChunkedResponse
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, timeoutError(err)
	}
	n := resp.ContentLength
	if n < 0 {
		n = int64(len(data))
	}
	return &Response{StatusCode: resp.StatusCode, ContentLength: n, Body: data}, nil
}

// timeoutError marks deadline failures with ErrTimeout, keeping err in the chain.
func timeoutError(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// CloseIdleConnections drops keep-alive connections not in use.
func (d *HTTPDoer) CloseIdleConnections() {
	d.Client.CloseIdleConnections()
}

// IsTransient reports whether err is worth retrying: timeouts and refused dials.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe) && oe.Op == "dial"
}
