package proxy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dockhand/dockhand/pkg/types"
)

// Route is a node in the reverse proxy's configuration tree. The @id field
// makes the node addressable through the admin API.
type Route struct {
	ID       string    `json:"@id,omitempty"`
	Match    []Match   `json:"match,omitempty"`
	Handle   []Handler `json:"handle,omitempty"`
	Terminal bool      `json:"terminal,omitempty"`
}

// Match selects requests by host or path.
type Match struct {
	Host []string `json:"host,omitempty"`
	Path []string `json:"path,omitempty"`
}

// Handler is one element of a route's handler chain. The proxy dispatches
// on the Handler name; only the fields for that handler are set.
type Handler struct {
	Handler string `json:"handler"`

	// subroute
	Routes []Route `json:"routes,omitempty"`

	// rewrite
	StripPathPrefix string `json:"strip_path_prefix,omitempty"`

	// reverse_proxy
	Upstreams      []Upstream        `json:"upstreams,omitempty"`
	FlushInterval  int               `json:"flush_interval,omitempty"`
	Headers        *HeaderConfig     `json:"headers,omitempty"`
	Rewrite        *RewriteConfig    `json:"rewrite,omitempty"`
	HandleResponse []ResponseHandler `json:"handle_response,omitempty"`

	// headers
	Request *HeaderOps `json:"request,omitempty"`
}

// Upstream is a reverse-proxy backend address.
type Upstream struct {
	Dial string `json:"dial"`
}

// HeaderConfig carries request header operations for a reverse_proxy
// handler.
type HeaderConfig struct {
	Request *HeaderOps `json:"request,omitempty"`
}

// HeaderOps sets request headers.
type HeaderOps struct {
	Set map[string][]string `json:"set,omitempty"`
}

// RewriteConfig rewrites the request before proxying.
type RewriteConfig struct {
	Method string `json:"method,omitempty"`
	URI    string `json:"uri,omitempty"`
}

// ResponseHandler intercepts upstream responses matching a status class.
type ResponseHandler struct {
	Match  *ResponseMatch `json:"match,omitempty"`
	Routes []Route        `json:"routes,omitempty"`
}

// ResponseMatch selects upstream responses by status code class.
type ResponseMatch struct {
	StatusCode []int `json:"status_code,omitempty"`
}

// RouteID derives the stable node id for a route from its domain and base
// path. The root path maps to the wildcard id so "example.com-*" is the
// domain's catch-all. Identical inputs always yield the same id.
func RouteID(domain, basePath string) string {
	normalized := strings.ReplaceAll(strings.Trim(basePath, "/"), "/", "-")
	if normalized == "" {
		normalized = "*"
	}
	return fmt.Sprintf("%s-%s", domain, normalized)
}

// trimBase strips the trailing slash from a base path while keeping the
// leading one, so "/api/" and "/api" both become "/api" and "/" becomes "".
func trimBase(basePath string) string {
	trimmed := strings.TrimRight(basePath, "/")
	if trimmed != "" && !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return trimmed
}

// DomainRoute builds an empty subroute container node for a domain. URL
// routes for the domain are appended under its first handler.
func DomainRoute(domain string) Route {
	return Route{
		ID:       domain,
		Match:    []Match{{Host: []string{domain}}},
		Handle:   []Handler{{Handler: "subroute", Routes: []Route{}}},
		Terminal: true,
	}
}

// URLRoute builds the route node proxying a base path to a workload. When
// StripPrefix is set, the base path is stripped before proxying.
// Response streaming is unbuffered so server-sent events and long polls
// pass through.
func URLRoute(spec types.RouteSpec, workloadName string, port uint16) Route {
	base := trimBase(spec.BasePath)

	var chain []Handler
	if spec.StripPrefix && base != "" {
		chain = append(chain, Handler{Handler: "rewrite", StripPathPrefix: base})
	}
	chain = append(chain, Handler{
		Handler:       "reverse_proxy",
		FlushInterval: -1,
		Upstreams:     []Upstream{{Dial: fmt.Sprintf("%s:%d", workloadName, port)}},
	})

	return Route{
		ID:    RouteID(spec.Domain, spec.BasePath),
		Match: []Match{{Path: []string{base + "/*"}}},
		Handle: []Handler{{
			Handler: "subroute",
			Routes:  []Route{{Handle: chain}},
		}},
	}
}

// PreviewRoute builds the route node for a preview deployment URL. Every
// request is first replayed against the platform's auth endpoint (method
// rewritten to GET, original method and URI forwarded as headers); only a
// 2xx verdict lets the second stage proxy to the workload.
func PreviewRoute(previewURL, workloadName string, port uint16, appUpstream, introspectPath string) Route {
	authStage := Handler{
		Handler: "reverse_proxy",
		HandleResponse: []ResponseHandler{{
			Match: &ResponseMatch{StatusCode: []int{2}},
			Routes: []Route{{
				Handle: []Handler{{Handler: "headers", Request: &HeaderOps{}}},
			}},
		}},
		Headers: &HeaderConfig{
			Request: &HeaderOps{
				Set: map[string][]string{
					"X-Forwarded-Method": {"{http.request.method}"},
					"X-Forwarded-Uri":    {"{http.request.uri}"},
				},
			},
		},
		Rewrite:   &RewriteConfig{Method: "GET", URI: introspectPath},
		Upstreams: []Upstream{{Dial: appUpstream}},
	}
	proxyStage := Handler{
		Handler:       "reverse_proxy",
		FlushInterval: -1,
		Upstreams:     []Upstream{{Dial: fmt.Sprintf("%s:%d", workloadName, port)}},
	}

	return Route{
		ID:    previewURL,
		Match: []Match{{Host: []string{previewURL}}},
		Handle: []Handler{{
			Handler: "subroute",
			Routes:  []Route{{Handle: []Handler{authStage, proxyStage}}},
		}},
		Terminal: true,
	}
}

// matchPath extracts the path a route matches on, empty when the route has
// no path matcher.
func matchPath(r Route) string {
	if len(r.Match) > 0 && len(r.Match[0].Path) > 0 {
		return r.Match[0].Path[0]
	}
	return ""
}

// SortRoutes orders routes the way the proxy evaluates them: most specific
// path first. The key is (longest path after stripping a trailing
// wildcard, exact paths before wildcard paths, longest raw path). The
// proxy walks the list in order and the first match wins, so this ordering
// is what makes "/api/v1/*" shadow "/api/*" shadow "/*".
func SortRoutes(routes []Route) []Route {
	sorted := append([]Route(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := matchPath(sorted[i]), matchPath(sorted[j])
		ni, nj := len(strings.TrimRight(pi, "*")), len(strings.TrimRight(pj, "*"))
		if ni != nj {
			return ni > nj
		}
		wi, wj := strings.HasSuffix(pi, "*"), strings.HasSuffix(pj, "*")
		if wi != wj {
			return !wi
		}
		return len(pi) > len(pj)
	})
	return sorted
}
