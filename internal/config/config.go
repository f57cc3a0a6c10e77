// Package config loads server settings and the device inventory. Settings
// come from an optional YAML config file plus LANWARDEN_* environment
// overrides; the device inventory is a separate YAML file, validated at load
// so the scan engine never sees a malformed device.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/HerbHall/lanwarden/pkg/models"
)

// ErrInvalid marks configuration rejected at load time.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the server settings.
type Config struct {
	ListenAddr    string
	DevicesFile   string
	ScanInterval  time.Duration
	CycleTimeout  time.Duration
	MaxConcurrent int
	PingTimeout   time.Duration
	SSHTimeout    time.Duration
	GNS3Timeout   time.Duration
}

// Load reads settings from the given config file (optional; empty path means
// defaults plus environment only). Environment variables use the LANWARDEN_
// prefix with underscores, e.g. LANWARDEN_SCAN_INTERVAL=15s.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", "0.0.0.0:8000")
	v.SetDefault("devices_file", "config/devices.yaml")
	v.SetDefault("scan_interval", "30s")
	v.SetDefault("cycle_timeout", "20s")
	v.SetDefault("max_concurrent", 16)
	v.SetDefault("ping_timeout", "1s")
	v.SetDefault("ssh_timeout", "4s")
	v.SetDefault("gns3_timeout", "3s")

	v.SetEnvPrefix("LANWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	cfg := &Config{
		ListenAddr:    v.GetString("listen_addr"),
		DevicesFile:   v.GetString("devices_file"),
		ScanInterval:  v.GetDuration("scan_interval"),
		CycleTimeout:  v.GetDuration("cycle_timeout"),
		MaxConcurrent: v.GetInt("max_concurrent"),
		PingTimeout:   v.GetDuration("ping_timeout"),
		SSHTimeout:    v.GetDuration("ssh_timeout"),
		GNS3Timeout:   v.GetDuration("gns3_timeout"),
	}

	if cfg.ScanInterval < 5*time.Second {
		cfg.ScanInterval = 5 * time.Second
	}
	if cfg.MaxConcurrent < 0 {
		return nil, fmt.Errorf("%w: max_concurrent must not be negative", ErrInvalid)
	}
	return cfg, nil
}

// devicesFile is the on-disk shape of the inventory.
type devicesFile struct {
	Devices []models.DeviceConfig `yaml:"devices"`
}

// LoadDevices reads and validates the device inventory. Devices without an
// explicit id get their list index; the resulting list order is the
// configuration order every fleet snapshot preserves.
func LoadDevices(path string) ([]models.DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read devices file %q: %w", path, err)
	}

	var file devicesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse %q: %v", ErrInvalid, path, err)
	}

	seen := make(map[string]struct{}, len(file.Devices))
	devices := make([]models.DeviceConfig, 0, len(file.Devices))
	for i, d := range file.Devices {
		if d.ID == "" {
			d.ID = fmt.Sprintf("%d", i)
		}
		if d.Name == "" {
			d.Name = fmt.Sprintf("device-%d", i)
		}
		if err := validateDevice(d); err != nil {
			return nil, fmt.Errorf("%w: device %q: %v", ErrInvalid, d.ID, err)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate device id %q", ErrInvalid, d.ID)
		}
		seen[d.ID] = struct{}{}
		d.MAC = models.NormalizeMAC(d.MAC)
		devices = append(devices, d)
	}
	return devices, nil
}

func validateDevice(d models.DeviceConfig) error {
	if d.IP == "" {
		return errors.New("ip is required")
	}
	if net.ParseIP(d.IP) == nil {
		return fmt.Errorf("ip %q is not a valid address", d.IP)
	}
	if d.MAC != "" {
		if _, err := net.ParseMAC(models.NormalizeMAC(d.MAC)); err != nil {
			return fmt.Errorf("mac %q: %v", d.MAC, err)
		}
	}
	if d.Broadcast != "" && net.ParseIP(d.Broadcast) == nil {
		return fmt.Errorf("broadcast %q is not a valid address", d.Broadcast)
	}
	if d.SSH != nil && d.SSH.Username != "" && d.SSH.Password == "" {
		return errors.New("ssh password is required when a username is set")
	}
	if d.GNS3 != nil && d.GNS3.ServerURL != "" && !strings.Contains(d.GNS3.ServerURL, "://") {
		return fmt.Errorf("gns3 server_url %q must include a scheme", d.GNS3.ServerURL)
	}
	return nil
}
