package testutil

import (
	"time"

	"github.com/HerbHall/lanwarden/pkg/models"
)

// NewDeviceConfig returns a DeviceConfig with sensible defaults, suitable for
// test fixtures. Override individual fields via the functional options.
func NewDeviceConfig(opts ...func(*models.DeviceConfig)) models.DeviceConfig {
	d := models.DeviceConfig{
		ID:   "dev-1",
		Name: "test-device",
		IP:   "192.0.2.10",
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithID sets the device id.
func WithID(id string) func(*models.DeviceConfig) {
	return func(d *models.DeviceConfig) { d.ID = id }
}

// WithIP sets the device's primary IP.
func WithIP(ip string) func(*models.DeviceConfig) {
	return func(d *models.DeviceConfig) { d.IP = ip }
}

// WithMAC sets the device's static MAC address.
func WithMAC(mac string) func(*models.DeviceConfig) {
	return func(d *models.DeviceConfig) { d.MAC = mac }
}

// WithSSH configures SSH credentials.
func WithSSH(user, password string) func(*models.DeviceConfig) {
	return func(d *models.DeviceConfig) {
		d.SSH = &models.SSHCredentials{Username: user, Password: password}
	}
}

// WithGNS3 configures an authenticated GNS3 endpoint.
func WithGNS3(serverURL, token string) func(*models.DeviceConfig) {
	return func(d *models.DeviceConfig) {
		d.GNS3 = &models.GNS3Endpoint{ServerURL: serverURL, AccessToken: token}
	}
}

// NewDeviceSnapshot returns a previous-cycle snapshot for carry-forward
// tests: the device was up and fully identified at seen.
func NewDeviceSnapshot(id string, seen time.Time) *models.DeviceSnapshot {
	return &models.DeviceSnapshot{
		ID:       id,
		Name:     "test-device",
		IP:       "192.0.2.10",
		Up:       true,
		Hostname: "test-device.lan",
		MAC:      "aa:bb:cc:dd:ee:ff",
		IPs:      []string{"192.0.2.10", "10.0.0.10"},
		LastSeen: &seen,
	}
}
