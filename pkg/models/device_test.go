package models

import "testing"

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff"},
		{"AA-BB-CC-DD-EE-FF", "aa:bb:cc:dd:ee:ff"},
		{"aa:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee:ff"},
		{"  aa:bb:cc:dd:ee:ff  ", "aa:bb:cc:dd:ee:ff"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeMAC(tt.in); got != tt.want {
			t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeviceConfig_HasSSH(t *testing.T) {
	tests := []struct {
		name string
		ssh  *SSHCredentials
		want bool
	}{
		{"nil", nil, false},
		{"empty", &SSHCredentials{}, false},
		{"username only", &SSHCredentials{Username: "admin"}, false},
		{"complete", &SSHCredentials{Username: "admin", Password: "pw"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DeviceConfig{SSH: tt.ssh}
			if got := c.HasSSH(); got != tt.want {
				t.Errorf("HasSSH() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeviceConfig_HasGNS3API(t *testing.T) {
	tests := []struct {
		name string
		gns3 *GNS3Endpoint
		want bool
	}{
		{"nil", nil, false},
		{"url only", &GNS3Endpoint{ServerURL: "https://host:3443"}, false},
		{"complete", &GNS3Endpoint{ServerURL: "https://host:3443", AccessToken: "tok"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DeviceConfig{GNS3: tt.gns3}
			if got := c.HasGNS3API(); got != tt.want {
				t.Errorf("HasGNS3API() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeviceConfig_SSHTargetDefaults(t *testing.T) {
	c := DeviceConfig{IP: "192.0.2.10", SSH: &SSHCredentials{Username: "admin", Password: "pw"}}
	if got := c.SSHHost(); got != "192.0.2.10" {
		t.Errorf("SSHHost() = %q, want the device IP", got)
	}
	if got := c.SSHPort(); got != 22 {
		t.Errorf("SSHPort() = %d, want 22", got)
	}

	c.SSH.Host = "10.0.0.5"
	c.SSH.Port = 2222
	if got := c.SSHHost(); got != "10.0.0.5" {
		t.Errorf("SSHHost() = %q, want the override", got)
	}
	if got := c.SSHPort(); got != 2222 {
		t.Errorf("SSHPort() = %d, want 2222", got)
	}
}
