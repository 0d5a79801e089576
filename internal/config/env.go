package config

import (
	"os"
	"strconv"
)

// FromEnv overlays ZAKU_*/REDIS_* environment variables onto cfg: REDIS_*
// for the backing store, ZAKU_* for everything Zaku-specific.
func FromEnv(cfg *Config) {
	if v := os.Getenv("ZAKU_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("ZAKU_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("ZAKU_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Verbose = b
		}
	}
	if v := os.Getenv("ZAKU_FREE_PORT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FreePort = b
		}
	}
	if v := os.Getenv("ZAKU_KEY_PREFIX"); v != "" {
		cfg.KeyPrefix = v
	}
	if v := os.Getenv("ZAKU_QUEUE_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueLen = n
		}
	}
	if v := os.Getenv("ZAKU_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ZAKU_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("ZAKU_USER"); v != "" {
		cfg.Auth.User = v
	}
	if v := os.Getenv("ZAKU_KEY"); v != "" {
		cfg.Auth.Key = v
	}

	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = n
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}

	if v := os.Getenv("ZAKU_BLOB_BUCKET"); v != "" {
		cfg.Blob.Bucket = v
	}
	if v := os.Getenv("ZAKU_BLOB_REGION"); v != "" {
		cfg.Blob.Region = v
	}
	if v := os.Getenv("ZAKU_BLOB_ENDPOINT"); v != "" {
		cfg.Blob.Endpoint = v
	}
	if v := os.Getenv("ZAKU_BLOB_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Blob.PathStyle = b
		}
	}
	if v := os.Getenv("ZAKU_BLOB_THRESHOLD_KB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Blob.ThresholdKB = n
		}
	}
}
