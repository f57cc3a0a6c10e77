package models

import (
	"math"
	"time"
)

// SSHMetrics holds system metrics collected over an SSH session. Every field
// is optional: a metric whose introspection command failed to run or parse is
// simply absent.
type SSHMetrics struct {
	UsersActive *int     `json:"users_active,omitempty"`
	CPUPercent  *float64 `json:"cpu_percent,omitempty"`
	MemPercent  *float64 `json:"mem_percent,omitempty"`
	DiskPercent *float64 `json:"disk_percent,omitempty"`
}

// GNS3Status describes the GNS3 orchestration state of a device. Active may
// be true with APIOk false when a well-known port answers but no API token is
// configured (or the token is rejected).
type GNS3Status struct {
	Active       bool     `json:"active"`
	APIOk        bool     `json:"api_ok"`
	Port         int      `json:"port,omitempty"`
	URL          string   `json:"url,omitempty"`
	ProjectsOpen int      `json:"projects_open"`
	CPUPercent   *float64 `json:"cpu_percent,omitempty"`
	MemPercent   *float64 `json:"mem_percent,omitempty"`
}

// DeviceSnapshot is the per-device result of one scan cycle. Snapshots are
// built fresh each cycle and never mutated after being folded into a
// FleetSnapshot.
type DeviceSnapshot struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	IP          string          `json:"ip"`
	Broadcast   string          `json:"broadcast,omitempty"`
	Up          bool            `json:"up"`
	Hostname    string          `json:"hostname,omitempty"`
	MAC         string          `json:"mac,omitempty"`
	IPs         []string        `json:"ips"`
	LastSeen    *time.Time      `json:"last_seen,omitempty"`
	LastChecked *time.Time      `json:"last_checked,omitempty"`
	SSH         *SSHMetrics     `json:"ssh,omitempty"`
	GNS3        *GNS3Status     `json:"gns3,omitempty"`
}

// FleetSnapshot is the complete result of one scan cycle across every
// configured device. Devices appear in configuration order. A published
// snapshot is immutable; the orchestrator replaces it wholesale.
type FleetSnapshot struct {
	CycleID             string           `json:"cycle_id"`
	GeneratedAt         time.Time        `json:"generated_at"`
	ScanIntervalSeconds int              `json:"scan_interval_seconds"`
	Devices             []DeviceSnapshot `json:"devices"`
}

// Device returns the snapshot for the given device ID, or nil if absent.
func (f *FleetSnapshot) Device(id string) *DeviceSnapshot {
	if f == nil {
		return nil
	}
	for i := range f.Devices {
		if f.Devices[i].ID == id {
			return &f.Devices[i]
		}
	}
	return nil
}

// ValidPercent reports whether v is a finite percentage in [0, 100].
// Both boundaries are valid.
func ValidPercent(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 100
}

// Percent returns a pointer to v if it is a valid percentage, nil otherwise.
// Out-of-range values are dropped, never clamped.
func Percent(v float64) *float64 {
	if !ValidPercent(v) {
		return nil
	}
	return &v
}
