package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dockhand/dockhand/pkg/log"
	"github.com/dockhand/dockhand/pkg/metrics"
	"github.com/dockhand/dockhand/pkg/types"
)

// maxRouteRetries bounds the read-modify-write retry loop for a domain's
// route list. The admin API is the only source of truth and other workers
// may rewrite the list between our read and our write.
const maxRouteRetries = 3

// Manager maintains the reverse proxy's routing tree through its admin
// API. Every operation is idempotent with respect to the target route id.
type Manager struct {
	baseURL        string
	serverName     string
	serverNodeID   string
	appUpstream    string
	introspectPath string

	client *http.Client
	logger zerolog.Logger
}

// Settings carries what the Manager needs to talk to the admin API.
type Settings struct {
	AdminURL       string
	ServerName     string
	ServerNodeID   string
	AppUpstream    string
	IntrospectPath string
	Timeout        time.Duration
}

// NewManager builds a Manager from settings. A zero Timeout gets a 5s
// default; admin calls are short synchronous HTTP requests.
func NewManager(settings Settings) *Manager {
	timeout := settings.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		baseURL:        settings.AdminURL,
		serverName:     settings.ServerName,
		serverNodeID:   settings.ServerNodeID,
		appUpstream:    settings.AppUpstream,
		introspectPath: settings.IntrospectPath,
		client:         &http.Client{Timeout: timeout},
		logger:         log.WithComponent("proxy"),
	}
}

// do issues one admin API call. The returned status code carries the
// outcome; an error is returned only for transport failures. A 404 on GET
// is a normal "not present yet" signal for callers.
func (m *Manager) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		metrics.ProxyRequestsTotal.WithLabelValues(method, "error").Inc()
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.ProxyRequestsTotal.WithLabelValues(method, fmt.Sprintf("%dxx", resp.StatusCode/100)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%s %s: read response: %w", method, path, err)
	}
	if out != nil && resp.StatusCode < http.StatusBadRequest && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func idPath(id string) string {
	return "/id/" + id
}

func (m *Manager) domainRoutesPath(domain string) string {
	return fmt.Sprintf("/id/%s/handle/0/routes", domain)
}

func (m *Manager) loggerPath(domain string) string {
	return fmt.Sprintf("/id/%s/logs/logger_names/%s", m.serverNodeID, domain)
}

// EnsureDomain creates the domain's empty subroute container node and its
// log channel when they do not exist yet.
func (m *Manager) EnsureDomain(ctx context.Context, domain string) error {
	status, err := m.do(ctx, http.MethodGet, idPath(domain), nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		node := DomainRoute(domain)
		status, err = m.do(ctx, http.MethodPost,
			fmt.Sprintf("/config/apps/http/servers/%s/routes", m.serverName), node, nil)
		if err != nil {
			return err
		}
		if status >= http.StatusBadRequest {
			return fmt.Errorf("create domain %s: admin API returned %d", domain, status)
		}
		m.logger.Info().Str("domain", domain).Msg("registered domain")
	}
	return m.ensureLogChannel(ctx, domain)
}

// ensureLogChannel registers the domain's log channel when absent. The
// admin API answers null for an unregistered channel.
func (m *Manager) ensureLogChannel(ctx context.Context, domain string) error {
	var current any
	if _, err := m.do(ctx, http.MethodGet, m.loggerPath(domain), nil, &current); err != nil {
		return err
	}
	if current != nil {
		return nil
	}
	status, err := m.do(ctx, http.MethodPost, m.loggerPath(domain), "", nil)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("register log channel for %s: admin API returned %d", domain, status)
	}
	return nil
}

// EnsureURLRoute exposes a workload port under the route's domain and base
// path. The domain's full route list is re-read, extended, re-sorted and
// replaced in a single PATCH; a verification read catches lost updates
// from concurrent writers and retries the whole read-modify-write.
func (m *Manager) EnsureURLRoute(ctx context.Context, spec types.RouteSpec, workloadName string, port uint16) error {
	if err := m.EnsureDomain(ctx, spec.Domain); err != nil {
		return err
	}

	routeID := RouteID(spec.Domain, spec.BasePath)
	status, err := m.do(ctx, http.MethodGet, idPath(routeID), nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNotFound {
		return nil
	}

	for attempt := 1; attempt <= maxRouteRetries; attempt++ {
		var routes []Route
		status, err = m.do(ctx, http.MethodGet, m.domainRoutesPath(spec.Domain), nil, &routes)
		if err != nil {
			return err
		}
		if status >= http.StatusBadRequest {
			return fmt.Errorf("read routes of %s: admin API returned %d", spec.Domain, status)
		}

		routes = SortRoutes(append(routes, URLRoute(spec, workloadName, port)))
		status, err = m.do(ctx, http.MethodPatch, m.domainRoutesPath(spec.Domain), routes, nil)
		if err != nil {
			return err
		}
		if status >= http.StatusBadRequest {
			return fmt.Errorf("replace routes of %s: admin API returned %d", spec.Domain, status)
		}

		status, err = m.do(ctx, http.MethodGet, idPath(routeID), nil, nil)
		if err != nil {
			return err
		}
		if status < http.StatusBadRequest {
			m.logger.Info().Str("route_id", routeID).Str("workload", workloadName).Msg("registered route")
			return nil
		}
		m.logger.Warn().Str("route_id", routeID).Int("attempt", attempt).Msg("route missing after patch, retrying")
	}
	return fmt.Errorf("route %s still absent after %d attempts", routeID, maxRouteRetries)
}

// EnsurePreviewRoute registers a whole domain for a preview deployment
// URL, gated by a live auth check on every request.
func (m *Manager) EnsurePreviewRoute(ctx context.Context, previewURL, workloadName string, port uint16) error {
	status, err := m.do(ctx, http.MethodGet, idPath(previewURL), nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		node := PreviewRoute(previewURL, workloadName, port, m.appUpstream, m.introspectPath)
		status, err = m.do(ctx, http.MethodPost,
			fmt.Sprintf("/config/apps/http/servers/%s/routes", m.serverName), node, nil)
		if err != nil {
			return err
		}
		if status >= http.StatusBadRequest {
			return fmt.Errorf("create preview route %s: admin API returned %d", previewURL, status)
		}
		m.logger.Info().Str("preview_url", previewURL).Msg("registered preview route")
	}
	return m.ensureLogChannel(ctx, previewURL)
}

// RemoveURLRoute detaches a workload's route. Removing the last route
// under a domain removes the domain node and its log channel with it.
func (m *Manager) RemoveURLRoute(ctx context.Context, spec types.RouteSpec) error {
	var routes []Route
	status, err := m.do(ctx, http.MethodGet, m.domainRoutesPath(spec.Domain), nil, &routes)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("read routes of %s: admin API returned %d", spec.Domain, status)
	}

	routeID := RouteID(spec.Domain, spec.BasePath)
	remaining := routes[:0:0]
	for _, r := range routes {
		if r.ID != routeID {
			remaining = append(remaining, r)
		}
	}

	if len(remaining) == 0 {
		return m.RemoveDomain(ctx, spec.Domain)
	}
	if len(remaining) == len(routes) {
		// Route already gone, nothing to delete.
		return nil
	}
	status, err = m.do(ctx, http.MethodDelete, idPath(routeID), nil, nil)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest && status != http.StatusNotFound {
		return fmt.Errorf("delete route %s: admin API returned %d", routeID, status)
	}
	m.logger.Info().Str("route_id", routeID).Msg("removed route")
	return nil
}

// RemoveDomain unconditionally deletes a domain node and its log channel.
func (m *Manager) RemoveDomain(ctx context.Context, domain string) error {
	status, err := m.do(ctx, http.MethodDelete, idPath(domain), nil, nil)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest && status != http.StatusNotFound {
		return fmt.Errorf("delete domain %s: admin API returned %d", domain, status)
	}
	status, err = m.do(ctx, http.MethodDelete, m.loggerPath(domain), nil, nil)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest && status != http.StatusNotFound {
		return fmt.Errorf("delete log channel of %s: admin API returned %d", domain, status)
	}
	m.logger.Info().Str("domain", domain).Msg("removed domain")
	return nil
}

// RemovePreviewRoute deletes a preview URL, which owns its whole domain.
func (m *Manager) RemovePreviewRoute(ctx context.Context, previewURL string) error {
	return m.RemoveDomain(ctx, previewURL)
}
