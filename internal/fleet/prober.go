package fleet

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/lanwarden/internal/probe"
	"github.com/HerbHall/lanwarden/pkg/models"
)

// ProbeTimeouts bounds each protocol probe independently. A stalled probe for
// one protocol never delays the others beyond its own bound.
type ProbeTimeouts struct {
	Ping     time.Duration
	Neighbor time.Duration
	SSH      time.Duration
	GNS3     time.Duration
}

// DefaultTimeouts mirrors the short waits suited to a LAN: devices either
// answer quickly or not at all.
func DefaultTimeouts() ProbeTimeouts {
	return ProbeTimeouts{
		Ping:     1 * time.Second,
		Neighbor: 1 * time.Second,
		SSH:      4 * time.Second,
		GNS3:     3 * time.Second,
	}
}

// DeviceProber runs the applicable probes for one device and folds their
// results into a snapshot. An invocation never fails as a whole: individual
// probe failures degrade specific fields to absent or carried-forward values.
type DeviceProber struct {
	pinger   probe.Pinger
	resolver probe.MACResolver
	dns      probe.HostnameResolver
	ssh      probe.MetricsCollector
	gns3     probe.GNS3Prober
	timeouts ProbeTimeouts
	metrics  *Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewDeviceProber wires the probe implementations into a device prober.
// metrics may be nil.
func NewDeviceProber(
	pinger probe.Pinger,
	resolver probe.MACResolver,
	dns probe.HostnameResolver,
	ssh probe.MetricsCollector,
	gns3 probe.GNS3Prober,
	timeouts ProbeTimeouts,
	metrics *Metrics,
	logger *zap.Logger,
) *DeviceProber {
	return &DeviceProber{
		pinger:   pinger,
		resolver: resolver,
		dns:      dns,
		ssh:      ssh,
		gns3:     gns3,
		timeouts: timeouts,
		metrics:  metrics,
		now:      time.Now,
		logger:   logger,
	}
}

// observeFailure records a probe failure in the metrics, when wired.
func (p *DeviceProber) observeFailure(protocol string, err error) {
	if p.metrics != nil {
		p.metrics.ObserveProbeFailure(protocol, string(probe.KindOf(err)))
	}
}

type sshOutcome struct {
	metrics *models.SSHMetrics
	ips     []string
	err     error
}

type gns3Outcome struct {
	status *models.GNS3Status
	err    error
}

// Probe builds the device's snapshot for this cycle. Reachability and
// neighbor resolution run sequentially; the SSH and GNS3 probes run
// concurrently with them and with each other, since a device may answer SSH
// or HTTP while dropping ICMP.
func (p *DeviceProber) Probe(ctx context.Context, cfg models.DeviceConfig, prev *models.DeviceSnapshot) models.DeviceSnapshot {
	snap := models.DeviceSnapshot{
		ID:        cfg.ID,
		Name:      cfg.Name,
		IP:        cfg.IP,
		Broadcast: cfg.Broadcast,
		MAC:       models.NormalizeMAC(cfg.MAC),
		IPs:       []string{},
	}

	var sshCh chan sshOutcome
	if cfg.HasSSH() {
		sshCh = make(chan sshOutcome, 1)
		go func() {
			sshCtx, cancel := context.WithTimeout(ctx, p.timeouts.SSH)
			defer cancel()
			metrics, ips, err := p.ssh.Collect(sshCtx, cfg)
			sshCh <- sshOutcome{metrics: metrics, ips: ips, err: err}
		}()
	}

	gns3Ch := make(chan gns3Outcome, 1)
	go func() {
		gns3Ctx, cancel := context.WithTimeout(ctx, p.timeouts.GNS3)
		defer cancel()
		status, err := p.gns3.Probe(gns3Ctx, cfg)
		gns3Ch <- gns3Outcome{status: status, err: err}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, p.timeouts.Ping)
	pingErr := p.pinger.Ping(pingCtx, cfg.IP)
	cancel()

	now := p.now()
	snap.LastChecked = &now

	if pingErr == nil {
		snap.Up = true
		seen := now
		snap.LastSeen = &seen
		dnsCtx, cancel := context.WithTimeout(ctx, p.timeouts.Neighbor)
		snap.Hostname = p.dns.Hostname(dnsCtx, cfg.IP)
		cancel()
	} else {
		p.observeFailure("icmp", pingErr)
		p.logger.Debug("reachability probe failed",
			zap.String("device", cfg.ID),
			zap.String("kind", string(probe.KindOf(pingErr))),
			zap.Error(pingErr),
		)
		if prev != nil {
			snap.LastSeen = prev.LastSeen
			snap.Hostname = prev.Hostname
		}
	}

	// Identity carry-forward: keep everything the previous cycle knew.
	if prev != nil {
		if prev.MAC != "" {
			snap.MAC = prev.MAC
		}
		snap.IPs = mergeOrdered(snap.IPs, prev.IPs...)
	}

	// Neighbor resolution is only meaningful once the device is reachable or
	// was seen before; the neighbor table cannot know a host that never
	// answered.
	if snap.Up || (prev != nil && prev.LastSeen != nil) {
		macCtx, cancel := context.WithTimeout(ctx, p.timeouts.Neighbor)
		mac, err := p.resolver.Resolve(macCtx, cfg.IP)
		cancel()
		if err != nil {
			p.observeFailure("neighbor", err)
			p.logger.Debug("mac resolution failed",
				zap.String("device", cfg.ID), zap.Error(err))
		} else if mac != "" {
			snap.MAC = mac
		}
	}

	if snap.Up {
		snap.IPs = mergeOrdered(snap.IPs, cfg.IP)
	}

	if sshCh != nil {
		out := <-sshCh
		if out.err != nil {
			p.observeFailure("ssh", out.err)
			p.logger.Debug("ssh metrics probe failed",
				zap.String("device", cfg.ID),
				zap.String("kind", string(probe.KindOf(out.err))),
				zap.Error(out.err),
			)
		} else {
			snap.SSH = out.metrics
			snap.IPs = mergeOrdered(snap.IPs, out.ips...)
		}
	}

	out := <-gns3Ch
	if out.err != nil {
		p.observeFailure("gns3", out.err)
		p.logger.Debug("gns3 probe degraded",
			zap.String("device", cfg.ID),
			zap.String("kind", string(probe.KindOf(out.err))),
			zap.Error(out.err),
		)
	}
	if out.status != nil {
		snap.GNS3 = out.status
	}

	return snap
}

// mergeOrdered appends addrs to base, preserving first-seen order and
// dropping duplicates and empty strings. base is never mutated in place.
func mergeOrdered(base []string, addrs ...string) []string {
	merged := make([]string, 0, len(base)+len(addrs))
	seen := make(map[string]struct{}, len(base)+len(addrs))
	for _, a := range base {
		if _, ok := seen[a]; ok || a == "" {
			continue
		}
		seen[a] = struct{}{}
		merged = append(merged, a)
	}
	for _, a := range addrs {
		if _, ok := seen[a]; ok || a == "" {
			continue
		}
		seen[a] = struct{}{}
		merged = append(merged, a)
	}
	return merged
}
