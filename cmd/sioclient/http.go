package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zyxar/sioclient"
)

type statusEntry struct {
	Handle       int    `json:"handle"`
	Server       string `json:"server"`
	Namespace    string `json:"namespace"`
	Status       string `json:"status"`
	SID          string `json:"sid,omitempty"`
	PingInterval int64  `json:"ping_interval_ms,omitempty"`
	PingTimeout  int64  `json:"ping_timeout_ms,omitempty"`
	LastPong     string `json:"last_pong,omitempty"`
}

// newHandler serves /metrics from reg and /status from r.
func newHandler(r *sioclient.Registry, reg *prometheus.Registry) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		infos := r.Snapshot()
		entries := make([]statusEntry, 0, len(infos))
		for _, info := range infos {
			e := statusEntry{
				Handle:       int(info.Handle),
				Server:       info.Server,
				Namespace:    info.Namespace,
				Status:       info.Status.String(),
				SID:          info.SID,
				PingInterval: info.PingInterval.Milliseconds(),
				PingTimeout:  info.PingTimeout.Milliseconds(),
			}
			if !info.LastPong.IsZero() {
				e.LastPong = info.LastPong.UTC().Format(time.RFC3339)
			}
			entries = append(entries, e)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	})
	return mux
}
