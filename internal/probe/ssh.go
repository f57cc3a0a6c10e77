package probe

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/HerbHall/lanwarden/pkg/models"
)

// MetricsCollector gathers system metrics from a device over SSH. Discovered
// global-scope IPv4 addresses ride along with the metrics. A non-nil error
// means the session could not be established at all; once a session is up,
// individual metric failures degrade to absent fields.
type MetricsCollector interface {
	Collect(ctx context.Context, cfg models.DeviceConfig) (*models.SSHMetrics, []string, error)
}

// Introspection commands run over the session. The CPU sample reads
// /proc/stat twice so utilization can be computed from the counter delta.
const (
	cmdWho      = "who"
	cmdCPUStat  = "grep '^cpu ' /proc/stat; sleep 0.4; grep '^cpu ' /proc/stat"
	cmdMemInfo  = "cat /proc/meminfo"
	cmdDiskRoot = "df -P /"
	cmdAddrs    = "ip -4 -o addr show scope global || hostname -I"
)

// SSHCollector opens a short-lived password-authenticated session per device
// per cycle.
type SSHCollector struct {
	timeout time.Duration
	logger  *zap.Logger
}

// Compile-time interface guard.
var _ MetricsCollector = (*SSHCollector)(nil)

// NewSSHCollector creates a collector whose dial, handshake, and per-command
// waits are each bounded by timeout.
func NewSSHCollector(timeout time.Duration, logger *zap.Logger) *SSHCollector {
	return &SSHCollector{timeout: timeout, logger: logger}
}

// Collect connects to the device and runs the fixed introspection command
// set. Returned failure kinds: KindUnreachable, KindTimeout, KindAuthFailed.
func (c *SSHCollector) Collect(ctx context.Context, cfg models.DeviceConfig) (*models.SSHMetrics, []string, error) {
	if !cfg.HasSSH() {
		return nil, nil, Errf(KindProbeError, "device %s has no ssh credentials", cfg.ID)
	}

	client, err := c.dial(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	defer client.Close()

	// Tear the connection down if the probe deadline expires mid-command so
	// a stalled session cannot outlive its bound.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-watchDone:
		}
	}()

	run := func(cmd string) (string, bool) {
		session, err := client.NewSession()
		if err != nil {
			c.logger.Debug("ssh session open failed",
				zap.String("device", cfg.ID), zap.Error(err))
			return "", false
		}
		defer session.Close()
		out, err := session.Output(cmd)
		if err != nil {
			c.logger.Debug("ssh command failed",
				zap.String("device", cfg.ID), zap.String("cmd", cmd), zap.Error(err))
			return "", false
		}
		return string(out), true
	}

	metrics := &models.SSHMetrics{}
	if out, ok := run(cmdWho); ok {
		metrics.UsersActive = parseActiveUsers(out, cfg.SSH.Username)
	}
	if out, ok := run(cmdCPUStat); ok {
		metrics.CPUPercent = parseCPUPercent(out)
	}
	if out, ok := run(cmdMemInfo); ok {
		metrics.MemPercent = parseMemPercent(out)
	}
	if out, ok := run(cmdDiskRoot); ok {
		metrics.DiskPercent = parseDiskPercent(out)
	}

	var ips []string
	if out, ok := run(cmdAddrs); ok {
		ips = parseGlobalIPv4s(out)
	}

	return metrics, ips, nil
}

// dial establishes the TCP connection and SSH handshake under the collector's
// timeout.
func (c *SSHCollector) dial(ctx context.Context, cfg models.DeviceConfig) (*ssh.Client, error) {
	conf := &ssh.ClientConfig{
		User: cfg.SSH.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.SSH.Password),
		},
		// Fleet devices are not expected to have pinned host keys.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.timeout,
	}

	addr := net.JoinHostPort(cfg.SSHHost(), strconv.Itoa(cfg.SSHPort()))
	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return nil, Wrap(KindTimeout, err, "dial %s", addr)
		}
		return nil, Wrap(KindUnreachable, err, "dial %s", addr)
	}

	// ClientConfig.Timeout only bounds ssh.Dial; the handshake itself needs a
	// deadline on the raw connection or a mute peer stalls it forever.
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	conn.SetDeadline(deadline) //nolint:errcheck

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, conf)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, Wrap(KindAuthFailed, err, "authenticate to %s as %s", addr, cfg.SSH.Username)
		}
		return nil, Wrap(KindTimeout, err, "ssh handshake with %s", addr)
	}
	conn.SetDeadline(time.Time{}) //nolint:errcheck

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// parseActiveUsers counts login sessions in `who` output, excluding those of
// the monitoring account itself.
func parseActiveUsers(out, monitorUser string) *int {
	count := 0
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == monitorUser {
			continue
		}
		count++
	}
	return &count
}

// parseCPUPercent computes utilization from two aggregate /proc/stat samples.
// Idle time includes iowait.
func parseCPUPercent(out string) *float64 {
	var samples [][2]uint64 // idle, total
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)[1:]
		var idle, total uint64
		for i, f := range fields {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return nil
			}
			total += v
			if i == 3 || i == 4 { // idle + iowait
				idle += v
			}
		}
		samples = append(samples, [2]uint64{idle, total})
	}
	if len(samples) < 2 {
		return nil
	}
	deltaIdle := float64(samples[1][0]) - float64(samples[0][0])
	deltaTotal := float64(samples[1][1]) - float64(samples[0][1])
	if deltaTotal <= 0 {
		return nil
	}
	if deltaIdle < 0 {
		deltaIdle = 0
	}
	return models.Percent(100.0 * (1.0 - deltaIdle/deltaTotal))
}

// parseMemPercent derives used-memory percentage from /proc/meminfo
// MemTotal and MemAvailable.
func parseMemPercent(out string) *float64 {
	var total, avail float64
	for _, line := range strings.Split(out, "\n") {
		key, rest, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(key) {
		case "MemTotal":
			total = v
		case "MemAvailable":
			avail = v
		}
	}
	if total <= 0 {
		return nil
	}
	return models.Percent(100.0 * (1.0 - avail/total))
}

// parseDiskPercent reads the use% column of `df -P /`.
func parseDiskPercent(out string) *float64 {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return nil
	}
	fields := strings.Fields(lines[1])
	if len(fields) < 5 {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(fields[4], "%"), 64)
	if err != nil {
		return nil
	}
	return models.Percent(v)
}

var ipv4Pattern = regexp.MustCompile(`^(?:\d{1,3}\.){3}\d{1,3}$`)

// parseGlobalIPv4s extracts IPv4 addresses from `ip -4 -o addr` (or
// `hostname -I`) output, dropping loopback and link-local ranges and
// preserving first-seen order. For `ip` output only the inet field counts,
// so broadcast tokens are not mistaken for addresses.
func parseGlobalIPv4s(out string) []string {
	seen := make(map[string]struct{})
	var addrs []string
	add := func(token string) {
		token, _, _ = strings.Cut(token, "/")
		if !ipv4Pattern.MatchString(token) {
			return
		}
		if strings.HasPrefix(token, "127.") || strings.HasPrefix(token, "169.254.") {
			return
		}
		if _, ok := seen[token]; ok {
			return
		}
		seen[token] = struct{}{}
		addrs = append(addrs, token)
	}

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		inet := false
		for i, f := range fields {
			if f == "inet" && i+1 < len(fields) {
				add(fields[i+1])
				inet = true
				break
			}
		}
		if inet {
			continue
		}
		// hostname -I fallback: bare addresses.
		for _, f := range fields {
			add(f)
		}
	}
	return addrs
}
