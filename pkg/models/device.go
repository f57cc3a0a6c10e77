package models

import "strings"

// SSHCredentials holds login details for the SSH metrics probe.
// Host defaults to the device's primary IP, Port to 22.
type SSHCredentials struct {
	Host     string `yaml:"host,omitempty" json:"-"`
	Port     int    `yaml:"port,omitempty" json:"-"`
	Username string `yaml:"username" json:"-"`
	Password string `yaml:"password" json:"-"`
}

// GNS3Endpoint holds access details for an authenticated GNS3 server API.
type GNS3Endpoint struct {
	ServerURL   string `yaml:"server_url" json:"-"`
	AccessToken string `yaml:"access_token" json:"-"`
	TokenType   string `yaml:"token_type,omitempty" json:"-"`
}

// DeviceConfig describes one monitored device. Loaded once at startup and
// immutable for the process lifetime.
type DeviceConfig struct {
	ID        string          `yaml:"id" json:"id"`
	Name      string          `yaml:"name" json:"name"`
	IP        string          `yaml:"ip" json:"ip"`
	MAC       string          `yaml:"mac,omitempty" json:"mac,omitempty"`
	Broadcast string          `yaml:"broadcast,omitempty" json:"broadcast,omitempty"`
	SSH       *SSHCredentials `yaml:"ssh,omitempty" json:"-"`
	GNS3      *GNS3Endpoint   `yaml:"gns3,omitempty" json:"-"`
}

// HasSSH reports whether SSH credentials are configured for the device.
func (c DeviceConfig) HasSSH() bool {
	return c.SSH != nil && c.SSH.Username != "" && c.SSH.Password != ""
}

// HasGNS3API reports whether an authenticated GNS3 endpoint is configured.
func (c DeviceConfig) HasGNS3API() bool {
	return c.GNS3 != nil && c.GNS3.ServerURL != "" && c.GNS3.AccessToken != ""
}

// SSHHost returns the target host for the SSH probe.
func (c DeviceConfig) SSHHost() string {
	if c.SSH != nil && c.SSH.Host != "" {
		return c.SSH.Host
	}
	return c.IP
}

// SSHPort returns the configured SSH port, defaulting to 22.
func (c DeviceConfig) SSHPort() int {
	if c.SSH != nil && c.SSH.Port > 0 {
		return c.SSH.Port
	}
	return 22
}

// NormalizeMAC lowercases a MAC address and converts dash separators to
// colons. Returns the empty string unchanged.
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
}
