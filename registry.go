package sioclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zyxar/sioclient/engine"
)

const (
	DefaultCapacity    = 4
	DefaultPollTimeout = 30 * time.Second
)

// Registry is a fixed-capacity table of connections addressed by Handle.
//
// Lock order: the table lock is never requested while a client lock is held.
// A client's send lock may be taken before its state lock, never after.
type Registry struct {
	mu       sync.RWMutex
	slots    []*Client
	capacity int

	log         zerolog.Logger
	sink        Sink
	doer        engine.Doer
	token       func() string
	metrics     *metrics
	pollTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Registry
type Option func(*Registry)

// WithCapacity sets the number of connection slots.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithLogger sets the logger; connection lines carry a handle field.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

// WithSink sets where notifications go.
func WithSink(s Sink) Option {
	return func(r *Registry) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithDoer sets the HTTP collaborator shared by every transport.
func WithDoer(d engine.Doer) Option {
	return func(r *Registry) {
		r.doer = d
	}
}

// WithTokenSource sets the generator of cache-busting query tokens.
func WithTokenSource(f func() string) Option {
	return func(r *Registry) {
		r.token = f
	}
}

// WithMetrics registers the registry's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Registry) {
		r.metrics = newMetrics(reg)
	}
}

// WithPollTimeout sets the long-poll timeout used when the server did not
// negotiate ping parameters.
func WithPollTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.pollTimeout = d
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		capacity:    DefaultCapacity,
		log:         log.Logger.With().Str("component", "sioclient").Logger(),
		sink:        Discard,
		doer:        engine.DefaultDoer,
		token:       engine.Token,
		pollTimeout: DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = newMetrics(nil)
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Capacity returns the number of slots.
func (r *Registry) Capacity() int { return r.capacity }

// Create stores cfg in the lowest free slot and returns its handle.
func (r *Registry) Create(cfg Config) (Handle, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return -1, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots == nil {
		r.slots = make([]*Client, r.capacity)
	}
	for i, c := range r.slots {
		if c != nil {
			continue
		}
		h := Handle(i)
		logger := r.log.With().Int("handle", i).Str("server", cfg.ServerAddress).Logger()
		r.slots[i] = &Client{
			handle:  h,
			config:  cfg,
			status:  StatusInited,
			token:   r.token,
			log:     logger,
			baseLog: logger,
		}
		r.log.Debug().Int("handle", i).Str("server", cfg.ServerAddress).Msg("client created")
		return h, nil
	}
	return -1, ErrNoFreeSlot
}

func (r *Registry) lookup(h Handle) *Client {
	if h < 0 || int(h) >= len(r.slots) {
		return nil
	}
	return r.slots[h]
}

// GetAndLock returns the client in slot h with its lock held, or nil when h
// is unknown or destroyed. The caller must Unlock it.
func (r *Registry) GetAndLock(h Handle) *Client {
	r.mu.RLock()
	c := r.lookup(h)
	r.mu.RUnlock()
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	return c
}

// IsLocked reports whether the client in slot h is currently locked.
func (r *Registry) IsLocked(h Handle) bool {
	r.mu.RLock()
	c := r.lookup(h)
	r.mu.RUnlock()
	if c == nil {
		return false
	}
	if c.mu.TryLock() {
		c.mu.Unlock()
		return false
	}
	return true
}

// Handles returns the occupied slots.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var hs []Handle
	for i, c := range r.slots {
		if c != nil {
			hs = append(hs, Handle(i))
		}
	}
	return hs
}

// Status returns the lifecycle state of h.
func (r *Registry) Status(h Handle) (Status, error) {
	c := r.GetAndLock(h)
	if c == nil {
		return 0, ErrNoClient
	}
	defer c.Unlock()
	return c.status, nil
}

// Connected reports whether h has a running connection cycle.
func (r *Registry) Connected(h Handle) bool {
	st, err := r.Status(h)
	return err == nil && st == StatusConnected
}

// ClientInfo is a point-in-time view of one connection
type ClientInfo struct {
	Handle       Handle
	Server       string
	Namespace    string
	Status       Status
	SID          string
	PingInterval time.Duration
	PingTimeout  time.Duration
	LastPong     time.Time
}

// Snapshot returns a view of every occupied slot.
func (r *Registry) Snapshot() []ClientInfo {
	var infos []ClientInfo
	for _, h := range r.Handles() {
		c := r.GetAndLock(h)
		if c == nil {
			continue
		}
		infos = append(infos, ClientInfo{
			Handle:       h,
			Server:       c.config.ServerAddress,
			Namespace:    c.config.Namespace,
			Status:       c.status,
			SID:          c.sid,
			PingInterval: c.pingInterval,
			PingTimeout:  c.pingTimeout,
			LastPong:     c.lastPong,
		})
		c.Unlock()
	}
	return infos
}

// Begin marks h Starting so the Supervisor picks it up.
func (r *Registry) Begin(h Handle) error {
	c := r.GetAndLock(h)
	if c == nil {
		return ErrNoClient
	}
	defer c.Unlock()
	if !c.statusIn(StatusInited, StatusClosed) {
		return fmt.Errorf("%w: begin from %s", ErrInvalidState, c.status)
	}
	c.status = StatusStarting
	c.log.Info().Msg("starting")
	return nil
}

// Close ends the connection cycle of h. Closing a closed client is a no-op.
// A CLOSE packet is sent when a session exists; failing to deliver it is
// tolerated.
func (r *Registry) Close(ctx context.Context, h Handle) error {
	c := r.GetAndLock(h)
	if c == nil {
		return ErrNoClient
	}
	switch c.status {
	case StatusClosed:
		c.Unlock()
		return nil
	case StatusHandshaking, StatusConnected:
	default:
		c.status = StatusClosed
		c.clearSession()
		c.log.Info().Msg("closed")
		c.Unlock()
		return nil
	}
	c.status = StatusClosing
	hasSession := c.sid != ""
	logger := c.log
	c.Unlock()

	if hasSession {
		if err := r.send(ctx, h, engine.NewPacket(engine.PacketTypeClose, ""), StatusClosing); err != nil {
			logger.Warn().Err(err).Msg("close packet not delivered")
		}
	}

	if c = r.GetAndLock(h); c == nil {
		return nil
	}
	if c.status == StatusClosing {
		c.status = StatusClosed
		c.clearSession()
		c.transport = nil
	}
	c.Unlock()
	logger.Info().Msg("closed")
	return nil
}

// Destroy closes h if needed, waits for its poll worker, releases its
// transport and frees the slot. The handle is invalid afterwards. If ctx ends
// before the worker does, h is left closed but not destroyed.
func (r *Registry) Destroy(ctx context.Context, h Handle) error {
	st, err := r.Status(h)
	if err != nil {
		return err
	}
	if st != StatusClosed {
		r.log.Warn().Int("handle", int(h)).Stringer("status", st).Msg("destroying client that is not closed")
		if err := r.Close(ctx, h); err != nil && !errors.Is(err, ErrNoClient) {
			return err
		}
	}
	if err := r.join(ctx, h); err != nil {
		return err
	}

	r.mu.Lock()
	c := r.lookup(h)
	if c == nil {
		r.mu.Unlock()
		return ErrNoClient
	}
	c.mu.Lock()
	c.destroyed = true
	tr := c.transport
	c.transport = nil
	c.worker = nil
	c.clearSession()
	c.mu.Unlock()
	r.slots[h] = nil
	empty := true
	for _, other := range r.slots {
		if other != nil {
			empty = false
			break
		}
	}
	if empty {
		r.slots = nil
	}
	r.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
	r.log.Debug().Int("handle", int(h)).Msg("client destroyed")
	return nil
}

// join stops the poll worker of h and waits for it to post DISCONNECTED, so a
// slot is never reused while its previous worker runs.
func (r *Registry) join(ctx context.Context, h Handle) error {
	c := r.GetAndLock(h)
	if c == nil {
		return ErrNoClient
	}
	w := c.worker
	c.Unlock()
	if w == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes and destroys every client and waits for poll workers.
func (r *Registry) Shutdown(ctx context.Context) error {
	hs := r.Handles()
	for _, h := range hs {
		if err := r.Close(ctx, h); err != nil && !errors.Is(err, ErrNoClient) {
			r.log.Warn().Err(err).Int("handle", int(h)).Msg("close on shutdown")
		}
	}
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, h := range hs {
		if err := r.Destroy(ctx, h); err != nil && !errors.Is(err, ErrNoClient) {
			return err
		}
	}
	return nil
}

func (r *Registry) post(e Event) {
	if r.sink.Post(e) {
		return
	}
	r.metrics.dropped.WithLabelValues(e.Type.String()).Inc()
	r.log.Warn().Int("handle", int(e.Handle)).Stringer("event", e.Type).Msg("notification dropped")
}
