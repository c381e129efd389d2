// Package config provides the configuration of a btsense node
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fako1024/btsense"
	defaults "github.com/mcuadros/go-defaults"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (

	// TransportGATT selects the HCI user channel transport
	TransportGATT = "gatt"

	// TransportBlueZ selects the BlueZ D-Bus transport
	TransportBlueZ = "bluez"
)

// Config holds the node configuration
type Config struct {
	DeviceName string `yaml:"device_name" default:"ESP32 Sensor"`
	Transport  string `yaml:"transport" default:"gatt"`
	Debug      bool   `yaml:"debug"`

	SampleInterval     time.Duration `yaml:"sample_interval" default:"1s"`
	CollectionInterval time.Duration `yaml:"collection_interval" default:"60s"`
	PacingDelay        time.Duration `yaml:"pacing_delay" default:"100ms"`
	ChunkSize          int           `yaml:"chunk_size" default:"10"`
	BufferCapacity     int           `yaml:"buffer_capacity" default:"3600"`
	FaultThreshold     int           `yaml:"fault_threshold" default:"5"`

	Simulation Simulation `yaml:"simulation"`
}

// Simulation holds the parameters of the simulated sensor
type Simulation struct {
	Temperature  float64 `yaml:"temperature" default:"21.5"`
	Humidity     float64 `yaml:"humidity" default:"45"`
	FaultRate    float64 `yaml:"fault_rate"`
	SentinelRate float64 `yaml:"sentinel_rate"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := new(Config)
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML configuration file on top of the defaults. A missing
// path yields the defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file `%s`: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file `%s`: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	var errs []error

	if c.Transport != TransportGATT && c.Transport != TransportBlueZ {
		errs = append(errs, fmt.Errorf("invalid transport `%s` (must be %s or %s)", c.Transport, TransportGATT, TransportBlueZ))
	}
	if c.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("invalid sample interval %v", c.SampleInterval))
	}
	if c.CollectionInterval < c.SampleInterval {
		errs = append(errs, fmt.Errorf("collection interval %v must not be shorter than sample interval %v", c.CollectionInterval, c.SampleInterval))
	}
	if c.PacingDelay < 0 {
		errs = append(errs, fmt.Errorf("invalid pacing delay %v", c.PacingDelay))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("invalid chunk size %d", c.ChunkSize))
	}
	if c.BufferCapacity < c.ChunkSize {
		errs = append(errs, fmt.Errorf("buffer capacity %d must hold at least one chunk of %d", c.BufferCapacity, c.ChunkSize))
	}
	if c.FaultThreshold <= 0 {
		errs = append(errs, fmt.Errorf("invalid fault threshold %d", c.FaultThreshold))
	}

	return multierr.Combine(errs...)
}

// NodeOptions translates the configuration into node options
func (c *Config) NodeOptions() []func(*btsense.Node) {
	return []func(*btsense.Node){
		btsense.WithSampleInterval(c.SampleInterval),
		btsense.WithCollectionInterval(c.CollectionInterval),
		btsense.WithPacingDelay(c.PacingDelay),
		btsense.WithChunkSize(c.ChunkSize),
		btsense.WithBufferCapacity(c.BufferCapacity),
		btsense.WithFaultThreshold(c.FaultThreshold),
	}
}
