package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/zyxar/sioclient"
	"github.com/zyxar/sioclient/internal/bridge"
)

type runOptions struct {
	configPath     string
	conn           connectionConfig
	retries        int
	retryInterval  time.Duration
	metricsAddr    string
	mqttBroker     string
	mqttTopic      string
	statusInterval time.Duration
}

func runCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the configured servers and report notifications",
		Long: `Connect to every server listed in the config file, plus the one given
with --server, and keep the connections alive until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "JSON config file")
	f.StringVarP(&opts.conn.Server, "server", "s", "", "server address, host[:port]")
	f.StringVar(&opts.conn.Path, "path", sioclient.DefaultURLPath, "engine.io URL path")
	f.StringVar(&opts.conn.Namespace, "namespace", sioclient.DefaultNamespace, "socket.io namespace")
	f.IntVar(&opts.conn.EIO, "eio", 4, "engine.io protocol version (3 or 4)")
	f.IntVar(&opts.retries, "retries", sioclient.DefaultMaxConnectRetries, "handshake attempts, 0 for unlimited")
	f.DurationVar(&opts.retryInterval, "retry-interval", sioclient.DefaultRetryInterval, "pause between handshake attempts")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /status on this address")
	f.StringVar(&opts.mqttBroker, "mqtt-broker", "", "forward notifications to this MQTT broker, e.g. tcp://localhost:1883")
	f.StringVar(&opts.mqttTopic, "mqtt-topic", "", "MQTT topic prefix")
	f.DurationVar(&opts.statusInterval, "status-interval", 0, "print a connection table at this interval")

	return cmd
}

// resolve merges the config file with flags; flags win when set.
func (o *runOptions) resolve(cmd *cobra.Command) (fileConfig, error) {
	cfg := defaultFileConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = loadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}
	f := cmd.Flags()
	if o.conn.Server != "" {
		conn := o.conn
		conn.Retries = &o.retries
		conn.RetryInterval = duration(o.retryInterval)
		cfg.Connections = append(cfg.Connections, conn)
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if f.Changed("mqtt-broker") {
		cfg.MQTT.Broker = o.mqttBroker
	}
	if f.Changed("mqtt-topic") {
		cfg.MQTT.Topic = o.mqttTopic
	}
	if f.Changed("status-interval") {
		cfg.StatusInterval = duration(o.statusInterval)
	}
	if len(cfg.Connections) == 0 {
		return cfg, errors.New("no server configured, use --server or --config")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg fileConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	events := sioclient.NewChanSink(64, 0)
	router := sioclient.NewRouter(events)
	capacity := cfg.Capacity
	if capacity < len(cfg.Connections) {
		capacity = len(cfg.Connections)
	}
	r := sioclient.NewRegistry(
		sioclient.WithCapacity(capacity),
		sioclient.WithSink(router),
		sioclient.WithMetrics(reg),
		sioclient.WithLogger(log.Logger.With().Str("component", "sioclient").Logger()),
	)
	router.Bind(r)
	router.OnError(func(h sioclient.Handle, err error) {
		log.Warn().Err(err).Int("handle", int(h)).Msg("event not dispatched")
	})

	for i, cc := range cfg.Connections {
		c, err := cc.clientConfig()
		if err != nil {
			return fmt.Errorf("connection %d: %w", i, err)
		}
		h, err := r.Create(c)
		if err != nil {
			return fmt.Errorf("connection %d: %w", i, err)
		}
		if err := r.Begin(h); err != nil {
			return err
		}
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: newHandler(r, reg)}
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics and status")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
		defer srv.Close()
	}

	var br *bridge.Bridge
	if cfg.MQTT.Broker != "" {
		client, err := bridge.Dial(cfg.MQTT.Broker, cfg.MQTT.ClientID, log.Logger)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		br = bridge.New(client, cfg.MQTT.Topic, log.Logger)
	}

	sup := sioclient.NewSupervisor(r, 0)
	go sup.Run(ctx)
	sup.SetNetworkAvailable(ctx, true)

	var status <-chan time.Time
	if cfg.StatusInterval > 0 {
		ticker := time.NewTicker(time.Duration(cfg.StatusInterval))
		defer ticker.Stop()
		status = ticker.C
	}

	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case e := <-events.Events():
			log.Info().Int("handle", int(e.Handle)).Stringer("event", e.Type).Int("count", e.Count).Msg("notification")
			if br != nil {
				br.Forward(e)
			}
		case <-status:
			printStatus(os.Stdout, r.Snapshot())
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}
