package config

import (
	"time"
)

type AppConfig struct {
	LogLevel       string        `yaml:"log_level" env:"TNFS_LOG_LEVEL" env-default:"debug"`
	LogFormat      string        `yaml:"log_format" env:"TNFS_LOG_FORMAT" env-default:"pretty"`
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"TNFS_DEFAULT_TIMEOUT" env-default:"5s"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	Driver string `yaml:"driver" env:"TNFS_STORAGE_DRIVER" env-default:"postgres"`
}

type SecurityConfig struct {
	Mode         string `yaml:"mode" env:"TNFS_SELINUX_MODE" env-default:"enforcing"`
	PolicyMirror string `yaml:"policy_mirror" env:"TNFS_POLICY_MIRROR" env-default:"data/selinux_policies.json"`
}

type CacheConfig struct {
	// MaxEntries bounds the content cache; 0 leaves it unbounded.
	MaxEntries int `yaml:"max_entries" env:"TNFS_CACHE_MAX_ENTRIES" env-default:"0"`
}
