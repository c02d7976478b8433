// Package config handles theomcp configuration via environment variables.
//
// Configuration is loaded from environment variables using LoadFromEnv() and
// checked with Validate() before use. The CLI loads an optional .env file
// first, and its serve flags override individual values afterwards.
//
// Example Usage:
//
//	cfg, err := config.LoadFromEnv()
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg)
//
// Environment Variables:
//
// Graph store:
//   - THEO_STORE="gremlin", "badger" or "memory"
//   - GREMLIN_URL="ws://localhost:8182/gremlin"
//   - GREMLIN_TRAVERSAL_SOURCE="g"
//   - THEO_DATA_DIR="./data"
//   - THEO_SCHEMA_FILE="" (built-in schema when empty)
//   - THEO_REQUIRE_ID=false
//
// Tool transport:
//   - MCP_TRANSPORT="stdio" or "streamable-http"
//   - MCP_HTTP_ADDRESS="localhost"
//   - MCP_HTTP_PORT=8765
//   - MCP_HTTP_ENDPOINT="/mcp"
//   - MCP_ENABLE_CORS=false
//   - MCP_TOOLS="" (all tools; or a list such as "read,create_vertex")
//   - METRICS_ENABLED=true
//
// Logging:
//   - LOG_LEVEL="info"
//   - LOG_FORMAT="json" or "console"
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store kinds.
const (
	StoreGremlin = "gremlin"
	StoreBadger  = "badger"
	StoreMemory  = "memory"
)

// Transports.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// Config holds all theomcp configuration loaded from environment variables.
//
// Configuration is organized into logical sections:
//   - Store: which graph store to open and how
//   - Server: MCP transport settings
//   - Logging: log level and encoding
type Config struct {
	// Graph store settings
	Store StoreConfig

	// MCP transport settings
	Server ServerConfig

	// Logging
	Logging LoggingConfig
}

// StoreConfig holds graph store settings.
type StoreConfig struct {
	// Kind is gremlin, badger or memory
	Kind string `env:"THEO_STORE" envDefault:"gremlin"`
	// GremlinURL is the websocket endpoint of the Gremlin server
	GremlinURL string `env:"GREMLIN_URL" envDefault:"ws://localhost:8182/gremlin"`
	// TraversalSource is the traversal source name bound on the server
	TraversalSource string `env:"GREMLIN_TRAVERSAL_SOURCE" envDefault:"g"`
	// DataDir is the Badger directory
	DataDir string `env:"THEO_DATA_DIR" envDefault:"./data"`
	// SchemaFile optionally replaces the built-in schema
	SchemaFile string `env:"THEO_SCHEMA_FILE"`
	// RequireID makes the business id required and unique on every label
	RequireID bool `env:"THEO_REQUIRE_ID" envDefault:"false"`
}

// ServerConfig holds MCP transport settings.
type ServerConfig struct {
	Transport  string `env:"MCP_TRANSPORT" envDefault:"stdio"`
	Address    string `env:"MCP_HTTP_ADDRESS" envDefault:"localhost"`
	Port       int    `env:"MCP_HTTP_PORT" envDefault:"8765"`
	Endpoint   string `env:"MCP_HTTP_ENDPOINT" envDefault:"/mcp"`
	EnableCORS bool   `env:"MCP_ENABLE_CORS" envDefault:"false"`
	// Tools is a comma separated allow-list of tool and profile names
	Tools          string        `env:"MCP_TOOLS"`
	MetricsEnabled bool          `env:"METRICS_ENABLED" envDefault:"true"`
	ReadTimeout    time.Duration `env:"MCP_HTTP_READ_TIMEOUT" envDefault:"30s"`
	// ShutdownTimeout bounds graceful shutdown of the HTTP transport
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (debug, info, warn, error)
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	// Format (json, console)
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// LoadFromEnv loads configuration from environment variables.
//
// All values have defaults, so LoadFromEnv() can be called without any
// environment variables set. An error is returned only when a variable is set
// to a value of the wrong type, such as MCP_HTTP_PORT=abc.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case StoreGremlin:
		u, err := url.Parse(c.Store.GremlinURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("invalid gremlin url %q: want ws:// or wss://host[:port]/path", c.Store.GremlinURL)
		}
		if c.Store.TraversalSource == "" {
			return fmt.Errorf("gremlin traversal source must not be empty")
		}
	case StoreBadger:
		if c.Store.DataDir == "" {
			return fmt.Errorf("badger store requires a data directory")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid store %q: want %s, %s or %s", c.Store.Kind, StoreGremlin, StoreBadger, StoreMemory)
	}

	switch c.Server.Transport {
	case TransportStdio:
	case TransportStreamableHTTP:
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("invalid http port: %d", c.Server.Port)
		}
		if !strings.HasPrefix(c.Server.Endpoint, "/") {
			return fmt.Errorf("http endpoint must start with /: %q", c.Server.Endpoint)
		}
	default:
		return fmt.Errorf("invalid transport %q: want %s or %s", c.Server.Transport, TransportStdio, TransportStreamableHTTP)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q: want json or console", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}

	return nil
}

// String returns a one-line summary. Credentials in the Gremlin URL are
// redacted.
func (c *Config) String() string {
	store := c.Store.Kind
	switch c.Store.Kind {
	case StoreGremlin:
		store = fmt.Sprintf("%s %s (%s)", c.Store.Kind, redactURL(c.Store.GremlinURL), c.Store.TraversalSource)
	case StoreBadger:
		store = fmt.Sprintf("%s %s", c.Store.Kind, c.Store.DataDir)
	}
	transport := c.Server.Transport
	if c.Server.Transport == TransportStreamableHTTP {
		transport = fmt.Sprintf("%s %s:%d%s", transport, c.Server.Address, c.Server.Port, c.Server.Endpoint)
	}
	tools := c.Server.Tools
	if tools == "" {
		tools = "all"
	}
	return fmt.Sprintf("Config{Store: %s, RequireID: %v, Transport: %s, Tools: %s, Log: %s/%s}",
		store, c.Store.RequireID, transport, tools, c.Logging.Level, c.Logging.Format)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	if u.User != nil {
		u.User = url.User("xxxxx")
	}
	return u.String()
}
