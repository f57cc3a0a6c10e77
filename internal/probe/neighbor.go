package probe

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/lanwarden/pkg/models"
)

// MACResolver resolves a device's current hardware address from the local
// host's neighbor state. An empty MAC with a nil error is a valid outcome:
// no method knew the address.
type MACResolver interface {
	Resolve(ctx context.Context, ip string) (string, error)
}

// ResolveStrategy is one method of looking up a MAC for an IP.
type ResolveStrategy interface {
	Name() string
	Lookup(ctx context.Context, ip string) (string, error)
}

// ChainResolver tries an ordered list of strategies until one yields a
// non-empty MAC or the list is exhausted. Strategy errors are logged and
// treated the same as empty results.
type ChainResolver struct {
	strategies []ResolveStrategy
	logger     *zap.Logger
}

// Compile-time interface guard.
var _ MACResolver = (*ChainResolver)(nil)

// NewChainResolver builds the platform-default resolution chain: neighbor
// table query, then ARP command, then the static /proc/net/arp table on
// Linux.
func NewChainResolver(logger *zap.Logger) *ChainResolver {
	strategies := []ResolveStrategy{arpCommandStrategy{}}
	if runtime.GOOS == "linux" {
		strategies = []ResolveStrategy{
			neighborTableStrategy{},
			arpCommandStrategy{},
			procARPStrategy{path: "/proc/net/arp"},
		}
	}
	return &ChainResolver{strategies: strategies, logger: logger}
}

// NewChainResolverWith builds a resolver over an explicit strategy list.
func NewChainResolverWith(logger *zap.Logger, strategies ...ResolveStrategy) *ChainResolver {
	return &ChainResolver{strategies: strategies, logger: logger}
}

// Resolve walks the strategy chain and returns the first non-empty MAC,
// normalized to lowercase colon form.
func (r *ChainResolver) Resolve(ctx context.Context, ip string) (string, error) {
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return "", Wrap(KindTimeout, err, "resolve %s cancelled", ip)
		}
		mac, err := s.Lookup(ctx, ip)
		if err != nil {
			r.logger.Debug("mac resolution strategy failed",
				zap.String("strategy", s.Name()),
				zap.String("ip", ip),
				zap.Error(err),
			)
			continue
		}
		if mac != "" {
			return models.NormalizeMAC(mac), nil
		}
	}
	return "", nil
}

// neighborTableStrategy queries the kernel neighbor table via `ip neigh`.
type neighborTableStrategy struct{}

func (neighborTableStrategy) Name() string { return "ip-neigh" }

func (neighborTableStrategy) Lookup(ctx context.Context, ip string) (string, error) {
	out, err := exec.CommandContext(ctx, "ip", "-o", "neigh", "show", ip).Output()
	if err != nil {
		return "", Wrap(KindProbeError, err, "ip neigh show %s", ip)
	}
	return parseNeighborOutput(string(out)), nil
}

// parseNeighborOutput scans `ip neigh` output for the first MAC-shaped token.
func parseNeighborOutput(out string) string {
	for _, token := range strings.Fields(out) {
		if looksLikeMAC(token) {
			return token
		}
	}
	return ""
}

// arpCommandStrategy shells out to the platform arp tool and reads its table.
type arpCommandStrategy struct{}

func (arpCommandStrategy) Name() string { return "arp-command" }

func (arpCommandStrategy) Lookup(ctx context.Context, ip string) (string, error) {
	args := []string{"-n", ip}
	if runtime.GOOS == "windows" {
		args = []string{"-a", ip}
	}
	out, err := exec.CommandContext(ctx, "arp", args...).Output()
	if err != nil {
		return "", Wrap(KindProbeError, err, "arp %s", ip)
	}
	for _, token := range strings.Fields(strings.ToLower(strings.ReplaceAll(string(out), "-", ":"))) {
		if looksLikeMAC(token) && token != "00:00:00:00:00:00" && token != "ff:ff:ff:ff:ff:ff" {
			return token, nil
		}
	}
	return "", nil
}

// procARPStrategy scans the static ARP table exposed by the kernel.
type procARPStrategy struct {
	path string
}

func (procARPStrategy) Name() string { return "proc-net-arp" }

func (s procARPStrategy) Lookup(_ context.Context, ip string) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", Wrap(KindProbeError, err, "read %s", s.path)
	}
	table := ParseARPOutput(string(data), "linux")
	return table[ip], nil
}

// ParseARPOutput parses an ARP table dump into an IP -> MAC map. The platform
// argument selects the expected format: "linux" (/proc/net/arp columns),
// "windows" (arp -a), or "darwin" (arp -an). Incomplete, zero, and broadcast
// entries are skipped. MACs are normalized to uppercase colon form.
func ParseARPOutput(output, platform string) map[string]string {
	table := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		var ip, mac string
		switch platform {
		case "linux":
			// IP address / HW type / Flags / HW address / Mask / Device
			if len(fields) < 4 || !looksLikeIPv4(fields[0]) {
				continue
			}
			if fields[2] == "0x0" { // incomplete entry
				continue
			}
			ip, mac = fields[0], fields[3]
		case "windows":
			// Internet Address / Physical Address / Type
			if len(fields) < 3 || !looksLikeIPv4(fields[0]) {
				continue
			}
			ip, mac = fields[0], strings.ReplaceAll(fields[1], "-", ":")
		case "darwin":
			// ? (ip) at mac on ifname ...
			if len(fields) < 4 || fields[2] != "at" {
				continue
			}
			ip = strings.Trim(fields[1], "()")
			mac = fields[3]
		default:
			return table
		}

		mac = strings.ToUpper(mac)
		if !looksLikeMAC(mac) || mac == "00:00:00:00:00:00" || mac == "FF:FF:FF:FF:FF:FF" {
			continue
		}
		table[ip] = mac
	}
	return table
}

// looksLikeMAC reports whether s has the aa:bb:cc:dd:ee:ff shape. Case is
// not inspected.
func looksLikeMAC(s string) bool {
	return len(s) == 17 && strings.Count(s, ":") == 5
}

// looksLikeIPv4 is a cheap structural check, not a full validation.
func looksLikeIPv4(s string) bool {
	return strings.Count(s, ".") == 3 && !strings.ContainsAny(s, ":abcdefABCDEF")
}
