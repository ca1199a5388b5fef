// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const envPrefix = "SHF"

// DefaultRegionSize is used when Attach is called with zero size.
const DefaultRegionSize = 64 << 20

// Config holds process-wide settings. It is read from SHF_* environment variables.
type Config struct {
	// Dir is the directory of hash files, when an empty path is passed. "" means the shm directory.
	Dir            string        `envconfig:"DIR"`
	RegionSize     int64         `envconfig:"REGION_SIZE" default:"67108864"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"warn"`
	LogDevelopment bool          `envconfig:"LOG_DEVELOPMENT" default:"false"`
	LockSpinMax    int           `envconfig:"LOCK_SPIN_MAX" default:"1000000"`
	AttachWait     time.Duration `envconfig:"ATTACH_WAIT" default:"2s"`
	// TransferSpins is the number of retries a pull makes
	// while a producer finishes linking an item.
	TransferSpins int `envconfig:"TRANSFER_SPINS" default:"64"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RegionSize:    DefaultRegionSize,
		LogLevel:      "warn",
		LockSpinMax:   1000000,
		AttachWait:    2 * time.Second,
		TransferSpins: 64,
	}
}

// LoadConfig loads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return DefaultConfig(), errors.Wrap(err, "failed to load config")
	}
	return cfg, nil
}

var (
	configOnce sync.Once
	configMu   sync.RWMutex
	config     Config
	configErr  error
)

func loadProcessConfig() {
	cfg, err := LoadConfig()
	configMu.Lock()
	config, configErr = cfg, err
	configMu.Unlock()
}

func currentConfig() Config {
	configOnce.Do(loadProcessConfig)
	configMu.RLock()
	defer configMu.RUnlock()
	return config
}

// SetConfig replaces the process-wide configuration.
// It affects hash files attached after the call.
func SetConfig(cfg Config) {
	configOnce.Do(func() {})
	configMu.Lock()
	config, configErr = cfg, nil
	configMu.Unlock()
	if level, err := parseLevel(cfg.LogLevel); err == nil {
		SetVerbosity(level)
	}
}
