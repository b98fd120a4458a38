package storage

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/docker/go-units"
)

// Backend kinds accepted by Config.Backend.
const (
	KindFilesystem = "filesystem"
	KindRemote     = "remote"
	KindCached     = "cached"
	KindDeferred   = "deferred"
)

// Cache store kinds accepted by CacheConfig.Store.
const (
	CacheLRU        = "lru"
	CacheRedis      = "redis"
	CacheFilesystem = "filesystem"
)

// Queue kinds accepted by DeferredConfig.Queue.
const (
	QueueMemory   = "memory"
	QueuePostgres = "postgres"
)

// Config contains attachment storage configuration. Backend selects one of
// the closed set of variants: filesystem, remote, cached (remote fronted by
// a cache store) or deferred (remote fed through a local staging area).
type Config struct {
	Backend string `toml:"backend"`
	// BasePath is the root directory for filesystem storage.
	// Default: ".data/attachments"
	BasePath         string         `toml:"base_path"`
	MaxUploadSize    string         `toml:"max_upload_size"`
	Remote           RemoteConfig   `toml:"remote"`
	Cache            CacheConfig    `toml:"cache"`
	Deferred         DeferredConfig `toml:"deferred"`
	maxUploadSizeVal int64
}

// RemoteConfig describes an S3-compatible endpoint.
type RemoteConfig struct {
	Endpoint    string `toml:"endpoint"`
	Region      string `toml:"region"`
	Bucket      string `toml:"bucket"`
	AccessKey   string `toml:"access_key"`
	SecretKey   string `toml:"secret_key"`
	UseSSL      bool   `toml:"use_ssl"`
	PathStyle   bool   `toml:"path_style"`
	ACL         string `toml:"acl"`
	PartSize    string `toml:"part_size"`
	partSizeVal int64
}

// CacheConfig configures the cache tier of the cached backend.
type CacheConfig struct {
	Store        string `toml:"store"`
	Entries      int    `toml:"entries"`
	MaxEntrySize string `toml:"max_entry_size"`
	Path         string `toml:"path"`
	RedisAddr    string `toml:"redis_addr"`
	RedisDB      int    `toml:"redis_db"`
	RedisPass    string `toml:"redis_password"`
	Prefix       string `toml:"prefix"`
	TTL          string `toml:"ttl"`
	maxEntryVal  int64
}

// DeferredConfig configures staging and the upload workers.
type DeferredConfig struct {
	StagingPath  string `toml:"staging_path"`
	Queue        string `toml:"queue"`
	Workers      int    `toml:"workers"`
	MaxAttempts  int    `toml:"max_attempts"`
	RetryFor     string `toml:"retry_for"`
	PollInterval string `toml:"poll_interval"`
	ReapAfter    string `toml:"reap_after"`
	ReapSchedule string `toml:"reap_schedule"`
}

// Env maps environment variable names for storage configuration.
type Env struct {
	Backend         string
	BasePath        string
	MaxUploadSize   string
	RemoteEndpoint  string
	RemoteBucket    string
	RemoteAccessKey string
	RemoteSecretKey string
	RemoteUseSSL    string
	CacheRedisAddr  string
}

// MaxUploadSizeBytes returns the parsed upload limit.
func (c *Config) MaxUploadSizeBytes() int64 {
	return c.maxUploadSizeVal
}

// PartSizeBytes returns the parsed multipart chunk size.
func (c *RemoteConfig) PartSizeBytes() int64 {
	return c.partSizeVal
}

// MaxEntryBytes returns the largest object the cache tier will hold.
func (c *CacheConfig) MaxEntryBytes() int64 {
	return c.maxEntryVal
}

// TTLDuration parses the cache entry lifetime.
func (c *CacheConfig) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}

// RetryForDuration parses the upload retry budget.
func (c *DeferredConfig) RetryForDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryFor)
	return d
}

// PollIntervalDuration parses the queue polling interval.
func (c *DeferredConfig) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

// ReapAfterDuration parses the age after which staged files are requeued.
func (c *DeferredConfig) ReapAfterDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReapAfter)
	return d
}

// Finalize applies defaults, loads environment overrides, and validates the storage configuration.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *Config) Merge(overlay *Config) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if size, err := units.FromHumanSize(overlay.MaxUploadSize); err == nil {
		c.MaxUploadSize = overlay.MaxUploadSize
		c.maxUploadSizeVal = size
	}
	c.Remote.merge(&overlay.Remote)
	c.Cache.merge(&overlay.Cache)
	c.Deferred.merge(&overlay.Deferred)
}

func (c *RemoteConfig) merge(overlay *RemoteConfig) {
	if overlay.Endpoint != "" {
		c.Endpoint = overlay.Endpoint
	}
	if overlay.Region != "" {
		c.Region = overlay.Region
	}
	if overlay.Bucket != "" {
		c.Bucket = overlay.Bucket
	}
	if overlay.AccessKey != "" {
		c.AccessKey = overlay.AccessKey
	}
	if overlay.SecretKey != "" {
		c.SecretKey = overlay.SecretKey
	}
	if overlay.UseSSL {
		c.UseSSL = true
	}
	if overlay.PathStyle {
		c.PathStyle = true
	}
	if overlay.ACL != "" {
		c.ACL = overlay.ACL
	}
	if overlay.PartSize != "" {
		c.PartSize = overlay.PartSize
	}
}

func (c *CacheConfig) merge(overlay *CacheConfig) {
	if overlay.Store != "" {
		c.Store = overlay.Store
	}
	if overlay.Entries != 0 {
		c.Entries = overlay.Entries
	}
	if overlay.MaxEntrySize != "" {
		c.MaxEntrySize = overlay.MaxEntrySize
	}
	if overlay.Path != "" {
		c.Path = overlay.Path
	}
	if overlay.RedisAddr != "" {
		c.RedisAddr = overlay.RedisAddr
	}
	if overlay.RedisDB != 0 {
		c.RedisDB = overlay.RedisDB
	}
	if overlay.RedisPass != "" {
		c.RedisPass = overlay.RedisPass
	}
	if overlay.Prefix != "" {
		c.Prefix = overlay.Prefix
	}
	if overlay.TTL != "" {
		c.TTL = overlay.TTL
	}
}

func (c *DeferredConfig) merge(overlay *DeferredConfig) {
	if overlay.StagingPath != "" {
		c.StagingPath = overlay.StagingPath
	}
	if overlay.Queue != "" {
		c.Queue = overlay.Queue
	}
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.RetryFor != "" {
		c.RetryFor = overlay.RetryFor
	}
	if overlay.PollInterval != "" {
		c.PollInterval = overlay.PollInterval
	}
	if overlay.ReapAfter != "" {
		c.ReapAfter = overlay.ReapAfter
	}
	if overlay.ReapSchedule != "" {
		c.ReapSchedule = overlay.ReapSchedule
	}
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = KindFilesystem
	}
	if c.BasePath == "" {
		c.BasePath = ".data/attachments"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "100MB"
	}
	if c.Remote.PartSize == "" {
		c.Remote.PartSize = "16MiB"
	}
	if c.Cache.Store == "" {
		c.Cache.Store = CacheLRU
	}
	if c.Cache.Entries == 0 {
		c.Cache.Entries = 512
	}
	if c.Cache.MaxEntrySize == "" {
		c.Cache.MaxEntrySize = "4MiB"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = ".data/cache"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "paperclip:"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "1h"
	}
	if c.Deferred.StagingPath == "" {
		c.Deferred.StagingPath = ".data/staging"
	}
	if c.Deferred.Queue == "" {
		c.Deferred.Queue = QueueMemory
	}
	if c.Deferred.Workers == 0 {
		c.Deferred.Workers = 2
	}
	if c.Deferred.MaxAttempts == 0 {
		c.Deferred.MaxAttempts = 5
	}
	if c.Deferred.RetryFor == "" {
		c.Deferred.RetryFor = "1m"
	}
	if c.Deferred.PollInterval == "" {
		c.Deferred.PollInterval = "2s"
	}
	if c.Deferred.ReapAfter == "" {
		c.Deferred.ReapAfter = "15m"
	}
	if c.Deferred.ReapSchedule == "" {
		c.Deferred.ReapSchedule = "@every 5m"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Backend != "" {
		if v := os.Getenv(env.Backend); v != "" {
			c.Backend = v
		}
	}
	if env.BasePath != "" {
		if v := os.Getenv(env.BasePath); v != "" {
			c.BasePath = v
		}
	}
	if env.MaxUploadSize != "" {
		if v := os.Getenv(env.MaxUploadSize); v != "" {
			c.MaxUploadSize = v
		}
	}
	if env.RemoteEndpoint != "" {
		if v := os.Getenv(env.RemoteEndpoint); v != "" {
			c.Remote.Endpoint = v
		}
	}
	if env.RemoteBucket != "" {
		if v := os.Getenv(env.RemoteBucket); v != "" {
			c.Remote.Bucket = v
		}
	}
	if env.RemoteAccessKey != "" {
		if v := os.Getenv(env.RemoteAccessKey); v != "" {
			c.Remote.AccessKey = v
		}
	}
	if env.RemoteSecretKey != "" {
		if v := os.Getenv(env.RemoteSecretKey); v != "" {
			c.Remote.SecretKey = v
		}
	}
	if env.RemoteUseSSL != "" {
		if v := os.Getenv(env.RemoteUseSSL); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Remote.UseSSL = b
			}
		}
	}
	if env.CacheRedisAddr != "" {
		if v := os.Getenv(env.CacheRedisAddr); v != "" {
			c.Cache.RedisAddr = v
		}
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case KindFilesystem, KindRemote, KindCached, KindDeferred:
	default:
		return fmt.Errorf("invalid backend: %s (must be filesystem, remote, cached, or deferred)", c.Backend)
	}

	if c.BasePath == "" {
		return fmt.Errorf("base_path required")
	}

	size, err := units.FromHumanSize(c.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("max_upload_size must be positive")
	}
	c.maxUploadSizeVal = size

	part, err := units.RAMInBytes(c.Remote.PartSize)
	if err != nil {
		return fmt.Errorf("invalid remote.part_size: %w", err)
	}
	c.Remote.partSizeVal = part

	if c.Backend != KindFilesystem {
		if c.Remote.Endpoint == "" {
			return fmt.Errorf("remote.endpoint required for %s backend", c.Backend)
		}
		if c.Remote.Bucket == "" {
			return fmt.Errorf("remote.bucket required for %s backend", c.Backend)
		}
	}

	if err := c.Cache.validate(c.Backend == KindCached); err != nil {
		return err
	}
	return c.Deferred.validate()
}

func (c *CacheConfig) validate(active bool) error {
	entry, err := units.RAMInBytes(c.MaxEntrySize)
	if err != nil {
		return fmt.Errorf("invalid cache.max_entry_size: %w", err)
	}
	c.maxEntryVal = entry

	if _, err := time.ParseDuration(c.TTL); err != nil {
		return fmt.Errorf("invalid cache.ttl: %w", err)
	}

	if !active {
		return nil
	}

	switch c.Store {
	case CacheLRU:
		if c.Entries <= 0 {
			return fmt.Errorf("cache.entries must be positive")
		}
	case CacheRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr required for redis cache")
		}
	case CacheFilesystem:
		if c.Path == "" {
			return fmt.Errorf("cache.path required for filesystem cache")
		}
	default:
		return fmt.Errorf("invalid cache.store: %s (must be lru, redis, or filesystem)", c.Store)
	}
	return nil
}

func (c *DeferredConfig) validate() error {
	switch c.Queue {
	case QueueMemory, QueuePostgres:
	default:
		return fmt.Errorf("invalid deferred.queue: %s (must be memory or postgres)", c.Queue)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("deferred.workers must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("deferred.max_attempts must be positive")
	}
	for name, v := range map[string]string{
		"retry_for":     c.RetryFor,
		"poll_interval": c.PollInterval,
		"reap_after":    c.ReapAfter,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid deferred.%s: %w", name, err)
		}
	}
	return nil
}
