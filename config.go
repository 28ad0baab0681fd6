package sioclient

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zyxar/sioclient/engine"
)

const (
	DefaultURLPath           = "/socket.io"
	DefaultNamespace         = "/"
	DefaultMaxConnectRetries = 3
	DefaultRetryInterval     = 3 * time.Second
	DefaultRequestTimeout    = 5 * time.Second
)

// AuthFunc returns the JSON object carried by the CONNECT packet of h.
type AuthFunc func(h Handle) string

// Config describes one logical connection. It is copied on Create and never
// changes afterwards.
type Config struct {
	ServerAddress string
	URLPath       string
	Namespace     string
	Transport     engine.Kind
	EIOVersion    int
	Secure        bool
	// MaxConnectRetries bounds handshake attempts; 0 means unlimited.
	MaxConnectRetries int
	RetryInterval     time.Duration
	RequestTimeout    time.Duration
	// RebuildPost drops idle keep-alive connections after every POST.
	RebuildPost bool
	// Reconnect puts a cycle that failed back to Starting.
	Reconnect bool
	Header    http.Header
	Auth      AuthFunc
}

// NewConfig returns a polling Config for server with every default filled in.
func NewConfig(server string) Config {
	return Config{
		ServerAddress:     server,
		URLPath:           DefaultURLPath,
		Namespace:         DefaultNamespace,
		Transport:         engine.Polling,
		EIOVersion:        engine.Version,
		MaxConnectRetries: DefaultMaxConnectRetries,
		RetryInterval:     DefaultRetryInterval,
		RequestTimeout:    DefaultRequestTimeout,
	}
}

func (c Config) normalize() (Config, error) {
	if c.ServerAddress == "" {
		return c, ErrNoServerAddress
	}
	if c.URLPath == "" {
		c.URLPath = DefaultURLPath
	}
	if !strings.HasPrefix(c.URLPath, "/") {
		c.URLPath = "/" + c.URLPath
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if !strings.HasPrefix(c.Namespace, "/") {
		c.Namespace = "/" + c.Namespace
	}
	switch c.EIOVersion {
	case 0:
		c.EIOVersion = engine.Version
	case 3, 4:
	default:
		return c, fmt.Errorf("%w: engine.io version %d", ErrInvalidConfig, c.EIOVersion)
	}
	if c.MaxConnectRetries < 0 {
		return c, fmt.Errorf("%w: max connect retries %d", ErrInvalidConfig, c.MaxConnectRetries)
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	c.Header = c.Header.Clone()
	return c, nil
}
