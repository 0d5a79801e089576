package config

import (
	"net"
	"strconv"
)

// Config is the top-level configuration for a Zaku server process: where
// the Redis backing store lives, the optional shared-secret credentials
// checked during the AUTH handshake, and the process-level listen/queue
// limits.
type Config struct {
	// Host/port the server listens on for client connections.
	Host string `json:"host"`
	Port int    `json:"port"`
	// FreePort, when true, kills the prior holder of Port before binding.
	FreePort bool `json:"freePort"`
	Verbose  bool `json:"verbose"`

	Redis RedisConfig `json:"redis"`

	// Auth holds the optional shared-secret credentials for the AUTH
	// handshake. Both fields empty disables authentication entirely.
	Auth AuthConfig `json:"auth"`

	// QueueLen bounds the number of pending tasks a single queue may hold;
	// ADD returns INVALID_ARGUMENT once this cap is reached.
	QueueLen int `json:"queueLen"`

	// KeyPrefix namespaces every Redis key Zaku writes, so one Redis
	// instance can be shared by multiple Zaku deployments.
	KeyPrefix string `json:"keyPrefix"`

	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"`

	// Blob configures the optional S3-backed bulk payload store. An empty
	// Blob.Bucket disables it and every payload stays inline in Redis.
	Blob BlobConfig `json:"blob"`
}

// BlobConfig mirrors store.BlobStoreConfig plus the size threshold past
// which the queue engine offloads a payload to it instead of storing it
// inline in the task's Redis hash entry.
type BlobConfig struct {
	Bucket      string `json:"bucket"`
	Region      string `json:"region"`
	Endpoint    string `json:"endpoint"`
	PathStyle   bool   `json:"pathStyle"`
	ThresholdKB int    `json:"thresholdKB"`
}

// RedisConfig describes how to reach the backing Redis instance.
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Addr returns the host:port address go-redis expects.
func (r RedisConfig) Addr() string {
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(r.Port))
}

// AuthConfig holds the shared-secret credentials checked by the AUTH frame.
type AuthConfig struct {
	User string `json:"user"`
	Key  string `json:"key"`
}

// Enabled reports whether the server should enforce the AUTH handshake.
func (a AuthConfig) Enabled() bool {
	return a.User != "" || a.Key != ""
}

// Default returns the built-in baseline configuration.
func Default() Config {
	return Config{
		Host:      "0.0.0.0",
		Port:      9000,
		FreePort:  true,
		Redis:     RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		QueueLen:  10000,
		KeyPrefix: "zaku",
		LogLevel:  "info",
		LogFormat: "text",
		Blob:      BlobConfig{ThresholdKB: 256},
	}
}
