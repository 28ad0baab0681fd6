package sioclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zyxar/sioclient/engine"
)

// DefaultSupervisorInterval is the period between registry sweeps.
const DefaultSupervisorInterval = time.Second

// Supervisor starts Starting connections and clears failed ones, one at a
// time, while the network is available.
type Supervisor struct {
	registry *Registry
	interval time.Duration

	mu     sync.Mutex
	online bool
	wake   chan struct{}
}

// NewSupervisor creates a Supervisor for r; a non-positive interval selects
// DefaultSupervisorInterval. The network starts out unavailable.
func NewSupervisor(r *Registry, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = DefaultSupervisorInterval
	}
	return &Supervisor{
		registry: r,
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
}

// SetNetworkAvailable records the network state. Going offline closes every
// connection.
func (s *Supervisor) SetNetworkAvailable(ctx context.Context, up bool) {
	s.mu.Lock()
	changed := s.online != up
	s.online = up
	s.mu.Unlock()
	if !changed {
		return
	}
	s.registry.log.Info().Bool("available", up).Msg("network state")
	if up {
		select {
		case s.wake <- struct{}{}:
		default:
		}
		return
	}
	for _, h := range s.registry.Handles() {
		if err := s.registry.Close(ctx, h); err != nil && !errors.Is(err, ErrNoClient) {
			s.registry.log.Warn().Err(err).Int("handle", int(h)).Msg("close on network loss")
		}
	}
}

func (s *Supervisor) available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Run sweeps the registry until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	s.registry.post(Event{Type: EventReady, Handle: -1})
	for {
		var tick <-chan time.Time
		if s.available() {
			s.Sweep(ctx)
			tick = time.After(s.interval)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-tick:
		}
	}
}

// Sweep visits every occupied slot once.
func (s *Supervisor) Sweep(ctx context.Context) {
	r := s.registry
	for _, h := range r.Handles() {
		if ctx.Err() != nil {
			return
		}
		st, err := r.Status(h)
		if err != nil {
			continue
		}
		switch st {
		case StatusStarting:
			s.start(ctx, h)
		case StatusError:
			if err := r.Close(ctx, h); err != nil && !errors.Is(err, ErrNoClient) {
				r.log.Warn().Err(err).Int("handle", int(h)).Msg("close failed connection")
			}
		}
	}
}

func (s *Supervisor) start(ctx context.Context, h Handle) {
	r := s.registry
	err := r.Handshake(ctx, h)
	if err == nil {
		err = r.Connect(ctx, h)
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNoClient), errors.Is(err, context.Canceled):
		r.log.Debug().Err(err).Int("handle", int(h)).Msg("start skipped")
	case errors.Is(err, engine.ErrTransportUnsupported):
		r.post(Event{Type: EventUpgradeTransportError, Handle: h})
	default:
		r.post(Event{Type: EventConnectError, Handle: h})
	}
}
