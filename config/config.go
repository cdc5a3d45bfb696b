package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	RemoteDB   RemoteStoreConfig `yaml:"remote_store"`
	Mirror     MirrorConfig      `yaml:"mirror"`
	Sync       SyncConfig        `yaml:"sync"`
	Blob       BlobConfig        `yaml:"blob"`
	Push       PushConfig        `yaml:"push"`
	WorkerPool WorkerPoolConfig  `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// RemoteStoreConfig holds the connection settings for the hosted record
// store. An empty DSN is the deliberate way to run cache-only; nothing else
// decides remote availability.
type RemoteStoreConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Enabled reports whether a remote store is configured at all.
func (c *RemoteStoreConfig) Enabled() bool {
	return c.DSN != ""
}

// MirrorConfig holds the local cache mirror settings. The namespace scopes
// the mirrored rows so the key never appears as a literal at call sites.
type MirrorConfig struct {
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// SyncConfig holds the synchronization loop settings.
type SyncConfig struct {
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
	Channel         string        `yaml:"channel"`
}

// BlobConfig holds the attachment object store settings. Credentials come
// from the environment so they stay out of the config file.
type BlobConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// Enabled reports whether an object store is configured.
func (c *BlobConfig) Enabled() bool {
	return c.Endpoint != ""
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Mirror.Path == "" {
		cfg.Mirror.Path = "./ledger-mirror.db"
	}
	if cfg.Mirror.Namespace == "" {
		cfg.Mirror.Namespace = "asset-ledger:v1"
	}

	if cfg.Sync.IntervalSeconds <= 0 {
		cfg.Sync.IntervalSeconds = 30
	}
	cfg.Sync.Interval = time.Duration(cfg.Sync.IntervalSeconds) * time.Second
	if cfg.Sync.Channel == "" {
		cfg.Sync.Channel = "asset_changes"
	}

	if cfg.Blob.Bucket == "" {
		cfg.Blob.Bucket = "asset-attachments"
	}
	cfg.Blob.AccessKey = os.Getenv("BLOB_ACCESS_KEY")
	cfg.Blob.SecretKey = os.Getenv("BLOB_SECRET_KEY")

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
