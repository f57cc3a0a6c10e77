package probe

import (
	"context"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Pinger checks network-layer reachability of a single target. A nil error
// means at least one echo reply arrived within the probe's deadline.
type Pinger interface {
	Ping(ctx context.Context, target string) error
}

// ICMPPinger pings targets using ICMP via pro-bing.
type ICMPPinger struct {
	timeout time.Duration
	count   int
}

// Compile-time interface guard.
var _ Pinger = (*ICMPPinger)(nil)

// NewICMPPinger creates an ICMP pinger that sends count echo requests and
// waits at most timeout for replies.
func NewICMPPinger(timeout time.Duration, count int) *ICMPPinger {
	if count <= 0 {
		count = 1
	}
	return &ICMPPinger{timeout: timeout, count: count}
}

// Ping sends echo requests to the target. It returns nil on any reply,
// KindUnreachable when every packet is lost, KindTimeout on context expiry,
// and KindProbeError when the pinger itself cannot run.
func (p *ICMPPinger) Ping(ctx context.Context, target string) error {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return Wrap(KindProbeError, err, "create pinger for %s", target)
	}

	pinger.Count = p.count
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	// Run pinger in a goroutine for context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case runErr := <-done:
		if runErr != nil {
			return Wrap(KindProbeError, runErr, "ping %s", target)
		}
		if pinger.Statistics().PacketsRecv == 0 {
			return Errf(KindUnreachable, "no echo reply from %s", target)
		}
		return nil

	case <-ctx.Done():
		pinger.Stop()
		return Wrap(KindTimeout, ctx.Err(), "ping %s cancelled", target)
	}
}
