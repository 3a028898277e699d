// Package config loads rndisctl configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/softrndis/pkg"
	"github.com/ardnew/softrndis/rndis"
)

// Defaults.
const (
	DefaultVendorDescription = "softrndis"
	DefaultMedium            = "802.3"
	DefaultLinkSpeedBps      = 100_000_000
	DefaultMTU               = 1500
	DefaultMAC               = "02:00:5e:00:53:01"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// Config is the top-level configuration.
type Config struct {
	Instances    int           `yaml:"instances"`
	MaxResponses int           `yaml:"max_responses"`
	Vendor       VendorConfig  `yaml:"vendor"`
	Medium       string        `yaml:"medium"`
	LinkSpeedBps uint64        `yaml:"link_speed_bps"`
	Device       DeviceConfig  `yaml:"device"`
	Log          LogConfig     `yaml:"log"`
	Metrics      MetricsConfig `yaml:"metrics"`
}

// VendorConfig is reported through OID_GEN_VENDOR_ID and
// OID_GEN_VENDOR_DESCRIPTION.
type VendorConfig struct {
	ID          uint32 `yaml:"id"`
	Description string `yaml:"description"`
}

// DeviceConfig describes the network device behind the link.
type DeviceConfig struct {
	MTU int    `yaml:"mtu"`
	MAC string `yaml:"mac"`
}

// LogConfig configures the pkg logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig enables Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration for one 100 Mbit/s Ethernet instance.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Instances == 0 {
		cfg.Instances = rndis.DefaultCapacity
	}
	if cfg.MaxResponses == 0 {
		cfg.MaxResponses = rndis.DefaultMaxResponses
	}
	if cfg.Vendor.Description == "" {
		cfg.Vendor.Description = DefaultVendorDescription
	}
	if cfg.Medium == "" {
		cfg.Medium = DefaultMedium
	}
	if cfg.LinkSpeedBps == 0 {
		cfg.LinkSpeedBps = DefaultLinkSpeedBps
	}
	if cfg.Device.MTU == 0 {
		cfg.Device.MTU = DefaultMTU
	}
	if cfg.Device.MAC == "" {
		cfg.Device.MAC = DefaultMAC
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// Load reads the configuration at path. Omitted fields take their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pkg.LogDebug(pkg.ComponentConfig, "loaded config", "path", path)
	return cfg, nil
}

// Parse decodes YAML configuration. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	if c.Instances < 1 {
		return fmt.Errorf("instances must be >= 1, got %d", c.Instances)
	}
	if c.MaxResponses < 0 {
		return fmt.Errorf("max_responses must be >= 0, got %d", c.MaxResponses)
	}
	if _, err := c.medium(); err != nil {
		return err
	}
	if c.LinkSpeedBps/100 > math.MaxUint32 {
		return fmt.Errorf("link_speed_bps %d exceeds %d", c.LinkSpeedBps, uint64(math.MaxUint32)*100)
	}
	if c.Device.MTU < 68 || c.Device.MTU > 9000 {
		return fmt.Errorf("device.mtu must be in [68, 9000], got %d", c.Device.MTU)
	}
	if _, err := c.HardwareAddr(); err != nil {
		return err
	}
	if _, err := pkg.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := pkg.ParseLogFormat(c.Log.Format); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}
	return nil
}

func (c *Config) medium() (rndis.Medium, error) {
	switch c.Medium {
	case "802.3", "ethernet":
		return rndis.Medium8023, nil
	default:
		return 0, fmt.Errorf("medium %q: %w", c.Medium, pkg.ErrNotSupported)
	}
}

// HardwareAddr parses device.mac.
func (c *Config) HardwareAddr() (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(c.Device.MAC)
	if err != nil {
		return nil, fmt.Errorf("device.mac: %w", err)
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("device.mac %q is not a 48-bit address", c.Device.MAC)
	}
	return mac, nil
}

// LinkSpeed returns the link speed in the 100 bit/s units NDIS reports.
func (c *Config) LinkSpeed() uint32 {
	return uint32(min(c.LinkSpeedBps/100, math.MaxUint32))
}

// RegistryOptions returns the registry options the configuration selects.
func (c *Config) RegistryOptions() []rndis.Option {
	return []rndis.Option{
		rndis.WithCapacity(c.Instances),
		rndis.WithMaxResponses(c.MaxResponses),
	}
}

// Apply sets the vendor and medium of instance id.
func (c *Config) Apply(reg *rndis.Registry, id rndis.ID) error {
	medium, err := c.medium()
	if err != nil {
		return err
	}
	if err := reg.SetVendor(id, c.Vendor.ID, c.Vendor.Description); err != nil {
		return err
	}
	return reg.SetMedium(id, medium, c.LinkSpeed())
}

// ApplyLogging configures the pkg logger.
func (c *Config) ApplyLogging(w io.Writer) error {
	level, err := pkg.ParseLogLevel(c.Log.Level)
	if err != nil {
		return err
	}
	format, err := pkg.ParseLogFormat(c.Log.Format)
	if err != nil {
		return err
	}
	pkg.SetLogOutput(w, format)
	pkg.SetLogLevel(level)
	return nil
}
