package probe

import (
	"context"
	"net"
	"strings"
)

// HostnameResolver maps an IP address back to a DNS name. Lookup failures
// yield the empty string; reverse DNS is best-effort identity data.
type HostnameResolver interface {
	Hostname(ctx context.Context, ip string) string
}

// DNSResolver resolves hostnames via the system resolver.
type DNSResolver struct{}

// Compile-time interface guard.
var _ HostnameResolver = DNSResolver{}

// Hostname returns the first PTR record for ip without the trailing dot, or
// "" when the lookup fails or yields nothing.
func (DNSResolver) Hostname(ctx context.Context, ip string) string {
	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}
