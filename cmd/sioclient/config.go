package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/zyxar/sioclient"
	"github.com/zyxar/sioclient/engine"
)

// duration reads "3s"-style strings from JSON.
type duration time.Duration

func (d *duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

type connectionConfig struct {
	Server        string            `json:"server"`
	Path          string            `json:"path"`
	Namespace     string            `json:"namespace"`
	Transport     string            `json:"transport"`
	EIO           int               `json:"eio"`
	Secure        bool              `json:"secure"`
	Retries       *int              `json:"retries"`
	RetryInterval duration          `json:"retry_interval"`
	Timeout       duration          `json:"timeout"`
	RebuildPost   bool              `json:"rebuild_post"`
	Reconnect     bool              `json:"reconnect"`
	Headers       map[string]string `json:"headers"`
	Auth          json.RawMessage   `json:"auth"`
}

type mqttConfig struct {
	Broker   string `json:"broker"`
	Topic    string `json:"topic"`
	ClientID string `json:"client_id"`
}

type fileConfig struct {
	Connections    []connectionConfig `json:"connections"`
	Capacity       int                `json:"capacity"`
	MetricsAddr    string             `json:"metrics_addr"`
	StatusInterval duration           `json:"status_interval"`
	MQTT           mqttConfig         `json:"mqtt"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		StatusInterval: duration(30 * time.Second),
		MQTT:           mqttConfig{Topic: "sioclient", ClientID: "sioclient"},
	}
}

func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// clientConfig converts one connection entry into a registry Config.
func (cc connectionConfig) clientConfig() (sioclient.Config, error) {
	cfg := sioclient.NewConfig(cc.Server)
	kind, err := engine.ParseKind(cc.Transport)
	if err != nil {
		return cfg, err
	}
	cfg.Transport = kind
	if cc.Path != "" {
		cfg.URLPath = cc.Path
	}
	if cc.Namespace != "" {
		cfg.Namespace = cc.Namespace
	}
	if cc.EIO != 0 {
		cfg.EIOVersion = cc.EIO
	}
	if cc.Retries != nil {
		cfg.MaxConnectRetries = *cc.Retries
	}
	if cc.RetryInterval > 0 {
		cfg.RetryInterval = time.Duration(cc.RetryInterval)
	}
	if cc.Timeout > 0 {
		cfg.RequestTimeout = time.Duration(cc.Timeout)
	}
	cfg.Secure = cc.Secure
	cfg.RebuildPost = cc.RebuildPost
	cfg.Reconnect = cc.Reconnect
	if len(cc.Headers) > 0 {
		cfg.Header = make(http.Header, len(cc.Headers))
		for k, v := range cc.Headers {
			cfg.Header.Set(k, v)
		}
	}
	if len(cc.Auth) > 0 {
		auth := string(cc.Auth)
		cfg.Auth = func(sioclient.Handle) string { return auth }
	}
	return cfg, nil
}
