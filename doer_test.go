package sioclient

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zyxar/sioclient/engine"
)

const openBody = `0{"sid":"abc123","upgrades":[],"pingInterval":25000,"pingTimeout":20000}`

// fakeDoer scripts the server side: GET without sid is a handshake, GET with
// sid a long-poll, POST a send.
type fakeDoer struct {
	mu   sync.Mutex
	open func(n int) (*engine.Response, error)
	poll func(ctx context.Context, n int, req *engine.Request) (*engine.Response, error)
	post func(req *engine.Request) (*engine.Response, error)

	postDelay   time.Duration
	handshakes  int
	polls       int
	posts       []string
	inflight    int
	maxInflight int
}

func textResponse(body string) *engine.Response {
	return &engine.Response{StatusCode: http.StatusOK, ContentLength: int64(len(body)), Body: []byte(body)}
}

func (f *fakeDoer) Do(ctx context.Context, req *engine.Request) (*engine.Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	sid := u.Query().Get("sid")

	f.mu.Lock()
	switch {
	case req.Method == http.MethodPost:
		f.inflight++
		if f.inflight > f.maxInflight {
			f.maxInflight = f.inflight
		}
		f.posts = append(f.posts, string(req.Body))
		post, delay := f.post, f.postDelay
		f.mu.Unlock()
		defer func() {
			f.mu.Lock()
			f.inflight--
			f.mu.Unlock()
		}()
		if delay > 0 {
			time.Sleep(delay)
		}
		if post != nil {
			return post(req)
		}
		return textResponse("ok"), nil
	case sid == "":
		f.handshakes++
		n, open := f.handshakes, f.open
		f.mu.Unlock()
		if open != nil {
			return open(n)
		}
		return textResponse(openBody), nil
	default:
		f.polls++
		n, poll := f.polls, f.poll
		f.mu.Unlock()
		if poll != nil {
			return poll(ctx, n, req)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func (f *fakeDoer) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posts...)
}

func (f *fakeDoer) counts() (handshakes, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handshakes, f.polls
}

func newTestRegistry(t *testing.T, d *fakeDoer, sink Sink, opts ...Option) *Registry {
	opts = append([]Option{
		WithDoer(d),
		WithSink(sink),
		WithLogger(zerolog.Nop()),
		WithTokenSource(func() string { return "tok" }),
	}, opts...)
	r := NewRegistry(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Shutdown(ctx); err != nil {
			t.Error("shutdown:", err)
		}
	})
	return r
}

func testConfig() Config {
	cfg := NewConfig("device.local:3000")
	cfg.RetryInterval = time.Millisecond
	return cfg
}

// waitEvent skips notifications until one of typ arrives.
func waitEvent(t *testing.T, sink *ChanSink, typ EventType) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-sink.Events():
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s notification", typ)
			return Event{}
		}
	}
}

// start drives h from Inited to Connected.
func start(t *testing.T, r *Registry, h Handle) {
	t.Helper()
	ctx := context.Background()
	if err := r.Begin(h); err != nil {
		t.Fatal("begin:", err)
	}
	if err := r.Handshake(ctx, h); err != nil {
		t.Fatal("handshake:", err)
	}
	if err := r.Connect(ctx, h); err != nil {
		t.Fatal("connect:", err)
	}
}

func waitStatus(t *testing.T, r *Registry, h Handle, want Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		st, err := r.Status(h)
		if err == nil && st == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status %s (%v), want %s", st, err, want)
		}
		time.Sleep(time.Millisecond)
	}
}
