package probe

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// gns3Binaries are the executables whose presence marks a local GNS3 install.
var gns3Binaries = []string{"gns3", "gns3server", "gns3-gui"}

// LocalGNS3Install reports which GNS3 executables exist on the monitoring
// host itself.
type LocalGNS3Install struct {
	Installed bool              `json:"installed"`
	Found     map[string]bool   `json:"found"`
	Versions  map[string]string `json:"versions"`
}

// CheckLocalGNS3 looks for GNS3 executables on PATH and captures their
// reported versions. Each version query is bounded by a short deadline.
func CheckLocalGNS3(ctx context.Context) LocalGNS3Install {
	result := LocalGNS3Install{
		Found:    make(map[string]bool),
		Versions: make(map[string]string),
	}
	for _, bin := range gns3Binaries {
		path, err := exec.LookPath(bin)
		result.Found[bin] = err == nil
		if err != nil {
			continue
		}
		result.Installed = true

		verCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		out, err := exec.CommandContext(verCtx, path, "--version").CombinedOutput()
		cancel()
		if err != nil {
			result.Versions[bin] = "installed (version unknown)"
			continue
		}
		line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
		result.Versions[bin] = line
	}
	return result
}
