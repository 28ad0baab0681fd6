package sioclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/zyxar/sioclient/engine"
)

func TestHandshake(t *testing.T) {
	d := &fakeDoer{}
	r := newTestRegistry(t, d, Discard)
	h, _ := r.Create(testConfig())
	r.Begin(h)

	if err := r.Handshake(context.Background(), h); err != nil {
		t.Fatal(err)
	}
	if r.IsLocked(h) {
		t.Error("lock leaked")
	}
	c := r.GetAndLock(h)
	if c.Status() != StatusHandshaking || c.SID() != "abc123" {
		t.Errorf("unexpected state: %s %q", c.Status(), c.SID())
	}
	if c.PingInterval() != 25*time.Second || c.PingTimeout() != 20*time.Second {
		t.Errorf("unexpected ping: %s %s", c.PingInterval(), c.PingTimeout())
	}
	c.Unlock()

	if posts := d.sent(); len(posts) != 1 || posts[0] != "40{}" {
		t.Errorf("should send one connect packet, but: %q", posts)
	}
	if v := testutil.ToFloat64(r.metrics.handshakes.WithLabelValues("ok")); v != 1 {
		t.Errorf("handshakes ok = %v", v)
	}
}

func TestHandshakeConnectPacket(t *testing.T) {
	var testData = []struct {
		namespace string
		auth      AuthFunc
		version   int
		post      string
	}{
		{"/", nil, 4, "40{}"},
		{"/", func(Handle) string { return "" }, 4, "40{}"},
		{"/", func(Handle) string { return `{"token":"x"}` }, 4, `40{"token":"x"}`},
		{"/admin", nil, 4, "40/admin,{}"},
		{"/admin", func(Handle) string { return `{"token":"x"}` }, 4, `40/admin,{"token":"x"}`},
		{"/", nil, 3, "4:40{}"},
	}
	for i, td := range testData {
		d := &fakeDoer{}
		if td.version == 3 {
			d.open = func(int) (*engine.Response, error) {
				return textResponse(fmt.Sprintf("%d:%s", len(openBody), openBody)), nil
			}
		}
		r := newTestRegistry(t, d, Discard)
		cfg := testConfig()
		cfg.Namespace, cfg.Auth, cfg.EIOVersion = td.namespace, td.auth, td.version
		h, _ := r.Create(cfg)
		r.Begin(h)
		if err := r.Handshake(context.Background(), h); err != nil {
			t.Errorf("%d: handshake error: %s", i, err)
			continue
		}
		if posts := d.sent(); len(posts) != 1 || posts[0] != td.post {
			t.Errorf("%d: %q != %q", i, posts, td.post)
		}
	}
}

func TestHandshakeRequiresStarting(t *testing.T) {
	d := &fakeDoer{}
	r := newTestRegistry(t, d, Discard)
	h, _ := r.Create(testConfig())
	ctx := context.Background()

	if err := r.Handshake(ctx, h); !errors.Is(err, ErrInvalidState) {
		t.Error("should be invalid state, but:", err)
	}
	r.Begin(h)
	if err := r.Handshake(ctx, h); err != nil {
		t.Fatal(err)
	}
	if err := r.Handshake(ctx, h); !errors.Is(err, ErrInvalidState) {
		t.Error("re-entrant handshake should be invalid state, but:", err)
	}
	if st, _ := r.Status(h); st != StatusHandshaking {
		t.Errorf("rejected handshake changed status to %s", st)
	}
	if err := r.Handshake(ctx, 3); err != ErrNoClient {
		t.Error("should be no client, but:", err)
	}
	if hs, _ := d.counts(); hs != 1 {
		t.Errorf("%d handshakes issued", hs)
	}
}

func TestHandshakeProtocolViolation(t *testing.T) {
	var testData = []string{
		"2",
		`0{"sid":""}`,
		`0{"pingInterval":25000}`,
		"0not-json",
		"0",
		openBody + "\x1e" + openBody,
		"42[\"hello\"]",
	}
	for i, body := range testData {
		body := body
		d := &fakeDoer{open: func(int) (*engine.Response, error) { return textResponse(body), nil }}
		r := newTestRegistry(t, d, Discard)
		h, _ := r.Create(testConfig())
		r.Begin(h)
		if err := r.Handshake(context.Background(), h); !errors.Is(err, ErrProtocol) {
			t.Errorf("%d: should be protocol violation, but: %v", i, err)
		}
		c := r.GetAndLock(h)
		if c.Status() != StatusError || c.SID() != "" || c.transport != nil {
			t.Errorf("%d: unexpected state %s %q", i, c.Status(), c.SID())
		}
		c.Unlock()
		if posts := d.sent(); len(posts) != 0 {
			t.Errorf("%d: nothing should be posted: %q", i, posts)
		}
		if v := testutil.ToFloat64(r.metrics.handshakes.WithLabelValues("error")); v != 1 {
			t.Errorf("%d: handshakes error = %v", i, v)
		}
	}
}

func TestHandshakeFailures(t *testing.T) {
	var testData = []struct {
		open func(int) (*engine.Response, error)
		post func(*engine.Request) (*engine.Response, error)
		err  error
	}{
		{open: func(int) (*engine.Response, error) {
			return &engine.Response{StatusCode: http.StatusBadRequest}, nil
		}, err: engine.ErrUnexpectedResponse},
		{post: func(*engine.Request) (*engine.Response, error) {
			return textResponse("nope"), nil
		}, err: engine.ErrUnexpectedResponse},
		{post: func(*engine.Request) (*engine.Response, error) {
			return nil, engine.ErrTimeout
		}, err: engine.ErrTimeout},
	}
	for i, td := range testData {
		d := &fakeDoer{open: td.open, post: td.post}
		r := newTestRegistry(t, d, Discard)
		h, _ := r.Create(testConfig())
		r.Begin(h)
		if err := r.Handshake(context.Background(), h); !errors.Is(err, td.err) {
			t.Errorf("%d: should be %v, but: %v", i, td.err, err)
		}
		if st, _ := r.Status(h); st != StatusError {
			t.Errorf("%d: status %s", i, st)
		}
	}
}

func TestHandshakeRetry(t *testing.T) {
	boom := errors.New("connection reset by peer")
	var testData = []struct {
		retries    int
		failures   int
		fail       error
		ok         bool
		handshakes int
	}{
		{3, 2, engine.ErrTimeout, true, 3},
		{2, 2, engine.ErrTimeout, false, 2},
		{0, 5, context.DeadlineExceeded, true, 6},
		{3, 1, boom, false, 1},
	}
	for i, td := range testData {
		td := td
		d := &fakeDoer{open: func(n int) (*engine.Response, error) {
			if n <= td.failures {
				return nil, td.fail
			}
			return textResponse(openBody), nil
		}}
		r := newTestRegistry(t, d, Discard)
		cfg := testConfig()
		cfg.MaxConnectRetries = td.retries
		h, _ := r.Create(cfg)
		r.Begin(h)
		err := r.Handshake(context.Background(), h)
		if (err == nil) != td.ok {
			t.Errorf("%d: unexpected result %v", i, err)
		}
		if !td.ok && !errors.Is(err, td.fail) {
			t.Errorf("%d: should be %v, but: %v", i, td.fail, err)
		}
		if hs, _ := d.counts(); hs != td.handshakes {
			t.Errorf("%d: %d handshakes, want %d", i, hs, td.handshakes)
		}
	}
}

func TestHandshakeRetryCancelled(t *testing.T) {
	d := &fakeDoer{open: func(int) (*engine.Response, error) { return nil, engine.ErrTimeout }}
	r := newTestRegistry(t, d, Discard)
	cfg := testConfig()
	cfg.MaxConnectRetries = 0
	cfg.RetryInterval = time.Hour
	h, _ := r.Create(cfg)
	r.Begin(h)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Handshake(ctx, h); !errors.Is(err, context.DeadlineExceeded) {
		t.Error("should give up with the context, but:", err)
	}
	if st, _ := r.Status(h); st != StatusError {
		t.Errorf("status %s", st)
	}
}

func TestHandshakeClosedMeanwhile(t *testing.T) {
	d := &fakeDoer{}
	r := newTestRegistry(t, d, Discard)
	h, _ := r.Create(testConfig())
	d.open = func(int) (*engine.Response, error) {
		r.Close(context.Background(), h)
		return textResponse(openBody), nil
	}
	r.Begin(h)
	if err := r.Handshake(context.Background(), h); !errors.Is(err, ErrInvalidState) {
		t.Error("should be invalid state, but:", err)
	}
	if st, _ := r.Status(h); st != StatusClosed {
		t.Errorf("close should win, but status %s", st)
	}
	if posts := d.sent(); len(posts) != 0 {
		t.Errorf("nothing should be posted: %q", posts)
	}
}

func TestHandshakeWebsocket(t *testing.T) {
	d := &fakeDoer{}
	r := newTestRegistry(t, d, Discard)
	cfg := testConfig()
	cfg.Transport = engine.Websocket
	h, _ := r.Create(cfg)
	r.Begin(h)
	if err := r.Handshake(context.Background(), h); err != engine.ErrTransportUnsupported {
		t.Error("should be unsupported, but:", err)
	}
	if st, _ := r.Status(h); st != StatusError {
		t.Errorf("status %s", st)
	}
	if hs, _ := d.counts(); hs != 0 {
		t.Errorf("%d requests issued", hs)
	}
}
