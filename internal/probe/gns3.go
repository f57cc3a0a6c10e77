package probe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/lanwarden/pkg/models"
)

// GNS3Prober determines the GNS3 orchestration status of a device. A non-nil
// status may accompany a non-nil error: the port scan can establish
// active=true even when the configured API rejects or drops the query.
type GNS3Prober interface {
	Probe(ctx context.Context, cfg models.DeviceConfig) (*models.GNS3Status, error)
}

// gns3Ports is the well-known port order for the no-token fallback check,
// GNS3-specific ports first.
var gns3Ports = []int{3080, 3443, 80, 443}

// apiRoots lists known GNS3 API version prefixes, newest preferred.
var apiRoots = []string{"/v3", "/v2"}

// HTTPGNS3Prober probes GNS3 servers over TCP and the REST API.
type HTTPGNS3Prober struct {
	client      *http.Client
	dialTimeout time.Duration
	ports       []int
	logger      *zap.Logger
}

// Compile-time interface guard.
var _ GNS3Prober = (*HTTPGNS3Prober)(nil)

// NewGNS3Prober creates a prober whose API requests are bounded by timeout
// and whose per-port TCP checks are bounded by a fraction of it. Lab servers
// commonly run self-signed certificates, so TLS verification is disabled.
func NewGNS3Prober(timeout time.Duration, logger *zap.Logger) *HTTPGNS3Prober {
	dialTimeout := timeout / 4
	if dialTimeout < 200*time.Millisecond {
		dialTimeout = 200 * time.Millisecond
	}
	return &HTTPGNS3Prober{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
		dialTimeout: dialTimeout,
		ports:       gns3Ports,
		logger:      logger,
	}
}

// Probe checks the device's well-known GNS3 ports and, when an API endpoint
// is configured, issues an authenticated status query. Returns a nil status
// only when neither method found anything.
func (p *HTTPGNS3Prober) Probe(ctx context.Context, cfg models.DeviceConfig) (*models.GNS3Status, error) {
	status := &models.GNS3Status{}

	if port := p.scanPorts(ctx, cfg.IP); port > 0 {
		status.Active = true
		status.Port = port
		scheme := "http"
		if port == 443 || port == 3443 {
			scheme = "https"
		}
		status.URL = fmt.Sprintf("%s://%s:%d", scheme, cfg.IP, port)
	}

	if !cfg.HasGNS3API() {
		if !status.Active {
			return nil, Errf(KindUnreachable, "no gns3 ports open on %s", cfg.IP)
		}
		return status, nil
	}

	err := p.queryAPI(ctx, cfg.GNS3, status)
	if err != nil && !status.Active {
		return nil, err
	}
	return status, err
}

// scanPorts returns the first well-known port accepting TCP connections,
// or 0.
func (p *HTTPGNS3Prober) scanPorts(ctx context.Context, ip string) int {
	dialer := &net.Dialer{Timeout: p.dialTimeout}
	for _, port := range p.ports {
		if ctx.Err() != nil {
			return 0
		}
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		conn.Close()
		return port
	}
	return 0
}

// queryAPI fills status from the authenticated GNS3 REST API: version check,
// open project count, and server CPU/memory statistics. The configured server
// URL takes precedence over the port-scan URL for linking.
func (p *HTTPGNS3Prober) queryAPI(ctx context.Context, ep *models.GNS3Endpoint, status *models.GNS3Status) error {
	base := strings.TrimRight(ep.ServerURL, "/")

	root, err := p.detectAPIRoot(ctx, base, ep)
	if err != nil {
		return err
	}

	status.APIOk = true
	status.Active = true
	status.URL = ep.ServerURL

	status.ProjectsOpen = p.countOpenProjects(ctx, base, root, ep)
	p.fillStatistics(ctx, base, root, ep, status)
	return nil
}

// detectAPIRoot finds the first API version prefix that answers the version
// endpoint.
func (p *HTTPGNS3Prober) detectAPIRoot(ctx context.Context, base string, ep *models.GNS3Endpoint) (string, error) {
	var lastErr error
	unauthorized := false
	for _, root := range apiRoots {
		resp, err := p.get(ctx, base+root+"/version", ep)
		if err != nil {
			lastErr = err
			continue
		}
		code := resp.StatusCode
		resp.Body.Close()
		switch {
		case code >= 200 && code < 300:
			return root, nil
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			unauthorized = true
		}
	}
	if unauthorized {
		return "", Errf(KindAPIUnauthorized, "gns3 api at %s rejected the access token", base)
	}
	if lastErr != nil {
		return "", Wrap(KindAPIUnreachable, lastErr, "gns3 api at %s", base)
	}
	return "", Errf(KindAPIError, "gns3 api at %s answered no known version endpoint", base)
}

// countOpenProjects asks for opened projects, filtering client-side because
// some servers ignore the query parameter. v3 filters by state, v2 by status.
func (p *HTTPGNS3Prober) countOpenProjects(ctx context.Context, base, root string, ep *models.GNS3Endpoint) int {
	for _, path := range []string{
		root + "/projects?state=opened",
		root + "/projects?status=opened",
		root + "/projects",
	} {
		items, err := p.getJSONList(ctx, base+path, ep)
		if err != nil {
			continue
		}
		if n := countOpenStates(items); n > 0 {
			return n
		}
	}
	return 0
}

// countOpenStates counts entries whose state or status field is open/opened.
func countOpenStates(items []map[string]any) int {
	n := 0
	for _, it := range items {
		st, ok := it["state"].(string)
		if !ok {
			st, _ = it["status"].(string)
		}
		switch strings.ToLower(st) {
		case "open", "opened":
			n++
		}
	}
	return n
}

// statisticsPaths returns the known statistics endpoints for an API root,
// most likely first.
func statisticsPaths(root string) []string {
	if root == "/v3" {
		return []string{"/v3/system/statistics", "/v3/statistics", "/v3/compute/statistics"}
	}
	return []string{"/v2/compute/statistics", "/v2/statistics", "/v2/compute/stats", "/v2/system/statistics"}
}

// Statistics field names vary across GNS3 versions; these are the observed
// spellings.
var (
	statCPUKeys      = []string{"cpu_percent", "cpu_usage_percent", "system_cpu_percent", "cpu_usage"}
	statMemKeys      = []string{"memory_percent", "mem_percent", "system_memory_percent"}
	statMemUsedKeys  = []string{"memory_used", "mem_used", "system_memory_used"}
	statMemTotalKeys = []string{"memory_total", "mem_total", "system_memory_total"}
)

// fillStatistics parses server load from whichever statistics endpoint
// answers. Missing or out-of-range values leave the fields absent.
func (p *HTTPGNS3Prober) fillStatistics(ctx context.Context, base, root string, ep *models.GNS3Endpoint, status *models.GNS3Status) {
	var stats map[string]any
	for _, path := range statisticsPaths(root) {
		m, err := p.getJSONMap(ctx, base+path, ep)
		if err != nil {
			continue
		}
		stats = m
		break
	}
	if stats == nil {
		return
	}

	if v, ok := firstNumber(stats, statCPUKeys); ok {
		status.CPUPercent = models.Percent(v)
	}
	if v, ok := firstNumber(stats, statMemKeys); ok {
		status.MemPercent = models.Percent(v)
	} else {
		used, okU := firstNumber(stats, statMemUsedKeys)
		total, okT := firstNumber(stats, statMemTotalKeys)
		if okU && okT && total > 0 {
			status.MemPercent = models.Percent(used / total * 100.0)
		}
	}
}

// firstNumber returns the first numeric value found under any of the keys.
func firstNumber(m map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k].(float64); ok {
			return v, true
		}
	}
	return 0, false
}

// get issues an authenticated GET against the GNS3 API.
func (p *HTTPGNS3Prober) get(ctx context.Context, url string, ep *models.GNS3Endpoint) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}
	auth := ep.AccessToken
	if strings.ToLower(ep.TokenType) == "bearer" || ep.TokenType == "" {
		auth = "Bearer " + ep.AccessToken
	}
	req.Header.Set("Authorization", auth)
	return p.client.Do(req)
}

func (p *HTTPGNS3Prober) getJSONList(ctx context.Context, url string, ep *models.GNS3Endpoint) ([]map[string]any, error) {
	body, err := p.getOK(ctx, url, ep)
	if err != nil {
		return nil, err
	}
	var items []map[string]any
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, Wrap(KindParseError, err, "decode %s", url)
	}
	return items, nil
}

func (p *HTTPGNS3Prober) getJSONMap(ctx context.Context, url string, ep *models.GNS3Endpoint) (map[string]any, error) {
	body, err := p.getOK(ctx, url, ep)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, Wrap(KindParseError, err, "decode %s", url)
	}
	return m, nil
}

// getOK performs a GET and returns the body only for 2xx responses.
func (p *HTTPGNS3Prober) getOK(ctx context.Context, url string, ep *models.GNS3Endpoint) ([]byte, error) {
	resp, err := p.get(ctx, url, ep)
	if err != nil {
		return nil, Wrap(KindAPIUnreachable, err, "get %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, Errf(KindAPIError, "get %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
