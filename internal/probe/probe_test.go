package probe

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorFormatting(t *testing.T) {
	plain := Errf(KindUnreachable, "no echo reply from %s", "10.0.0.5")
	if plain.Error() != "unreachable: no echo reply from 10.0.0.5" {
		t.Errorf("Error() = %q", plain.Error())
	}

	cause := errors.New("connection refused")
	wrapped := Wrap(KindAPIUnreachable, cause, "get %s", "http://10.0.0.5:3080")
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error should match its cause via errors.Is")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{name: "direct", err: Errf(KindAuthFailed, "nope"), want: KindAuthFailed},
		{name: "wrapped once more", err: fmt.Errorf("outer: %w", Errf(KindTimeout, "slow")), want: KindTimeout},
		{name: "foreign error", err: errors.New("plain"), want: KindProbeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewICMPPinger_Defaults(t *testing.T) {
	p := NewICMPPinger(time.Second, 0)
	if p.count != 1 {
		t.Errorf("count = %d, want 1 (zero is coerced)", p.count)
	}
	if p.timeout != time.Second {
		t.Errorf("timeout = %v, want 1s", p.timeout)
	}
}

// ICMPPinger.Ping needs raw socket permissions, so only the interface
// contract is verified here; fleet tests use mock pingers.
func TestICMPPinger_InterfaceCompliance(t *testing.T) {
	var _ Pinger = (*ICMPPinger)(nil)
}
