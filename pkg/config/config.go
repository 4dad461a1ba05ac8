package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for the rtmplink library
type Config struct {
	// Client configuration
	Client ClientConfig `json:"client" yaml:"client"`

	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Chunk stream configuration
	Chunk ChunkConfig `json:"chunk" yaml:"chunk"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ClientConfig holds the connection parameters that appear verbatim in the
// NetConnection "connect" command object.
type ClientConfig struct {
	// IP is the server host address
	IP string `json:"ip" yaml:"ip"`

	// Port is the server port
	Port int `json:"port" yaml:"port"`

	// TCURL is the tcUrl connect parameter
	TCURL string `json:"tc_url" yaml:"tc_url"`

	// PageURL is the pageUrl connect parameter
	PageURL string `json:"page_url" yaml:"page_url"`

	// SWFURL is the swfUrl connect parameter
	SWFURL string `json:"swf_url" yaml:"swf_url"`

	// App is the application name
	App string `json:"app" yaml:"app"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	// Host is the listen host address
	Host string `json:"host" yaml:"host"`

	// Port is the listen port
	Port int `json:"port" yaml:"port"`

	// ReadTimeout is a read timeout setting; the server does not apply it
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is a write timeout setting; the server does not apply it
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// MaxConnections is a connection limit setting; the server does not
	// enforce it
	MaxConnections int `json:"max_connections" yaml:"max_connections"`
}

// ChunkConfig holds chunk stream configuration. The chunk readers and
// writers do not read it; they always start at the 128 byte default.
type ChunkConfig struct {
	// InboundSize is the inbound chunk size setting
	InboundSize uint32 `json:"inbound_size" yaml:"inbound_size"`

	// OutboundSize is the outbound chunk size setting
	OutboundSize uint32 `json:"outbound_size" yaml:"outbound_size"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error)
	Level string `json:"level" yaml:"level"`

	// Format is the log format (json, text)
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			IP:   "127.0.0.1",
			Port: 1935,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           1935,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxConnections: 1000,
		},
		Chunk: ChunkConfig{
			InboundSize:  128,
			OutboundSize: 128,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override from environment variables
	cfg.loadFromEnv()

	return cfg, nil
}

// loadFromEnv overrides config from environment variables
func (c *Config) loadFromEnv() {
	if host := os.Getenv("RTMPLINK_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("RTMPLINK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if level := os.Getenv("RTMPLINK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
