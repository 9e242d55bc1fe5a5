package proxy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockhand/dockhand/pkg/types"
)

func pathRoute(path string) Route {
	return Route{Match: []Match{{Path: []string{path}}}}
}

func sortedPaths(routes []Route) []string {
	paths := make([]string, 0, len(routes))
	for _, r := range routes {
		paths = append(paths, matchPath(r))
	}
	return paths
}

func TestRouteIDIsPure(t *testing.T) {
	assert.Equal(t, RouteID("example.com", "/api/v1"), RouteID("example.com", "/api/v1"))
	assert.Equal(t, "example.com-api-v1", RouteID("example.com", "/api/v1/"))
	assert.Equal(t, "example.com-api-v1", RouteID("example.com", "api/v1"))
}

func TestRouteIDRootIsWildcard(t *testing.T) {
	assert.Equal(t, "example.com-*", RouteID("example.com", "/"))
	assert.Equal(t, "example.com-*", RouteID("example.com", ""))
}

func TestSortRoutesMostSpecificFirst(t *testing.T) {
	routes := []Route{
		pathRoute("/*"),
		pathRoute("/api/*"),
		pathRoute("/api/foo/*"),
	}

	sorted := SortRoutes(routes)
	assert.Equal(t, []string{"/api/foo/*", "/api/*", "/*"}, sortedPaths(sorted))
}

func TestSortRoutesExactBeforeWildcard(t *testing.T) {
	routes := []Route{
		pathRoute("/api/*"),
		pathRoute("/api/"),
	}

	sorted := SortRoutes(routes)
	assert.Equal(t, []string{"/api/", "/api/*"}, sortedPaths(sorted))
}

func TestSortRoutesIsIdempotent(t *testing.T) {
	routes := []Route{
		pathRoute("/api/*"),
		pathRoute("/*"),
		pathRoute("/assets/img/*"),
		pathRoute("/api/"),
		pathRoute("/assets/*"),
	}

	once := SortRoutes(routes)
	twice := SortRoutes(once)
	assert.Equal(t, once, twice)
}

func TestSortRoutesDoesNotMutateInput(t *testing.T) {
	routes := []Route{
		pathRoute("/*"),
		pathRoute("/api/*"),
	}
	_ = SortRoutes(routes)
	assert.Equal(t, "/*", matchPath(routes[0]))
}

func TestURLRouteStripPrefix(t *testing.T) {
	route := URLRoute(types.RouteSpec{
		Domain:      "example.com",
		BasePath:    "/api/",
		StripPrefix: true,
	}, "srv-prj-svc", 8080)

	assert.Equal(t, "example.com-api", route.ID)
	assert.Equal(t, []string{"/api/*"}, route.Match[0].Path)

	require.Len(t, route.Handle, 1)
	require.Len(t, route.Handle[0].Routes, 1)
	chain := route.Handle[0].Routes[0].Handle
	require.Len(t, chain, 2)
	assert.Equal(t, "rewrite", chain[0].Handler)
	assert.Equal(t, "/api", chain[0].StripPathPrefix)
	assert.Equal(t, "reverse_proxy", chain[1].Handler)
	assert.Equal(t, "srv-prj-svc:8080", chain[1].Upstreams[0].Dial)
	assert.Equal(t, -1, chain[1].FlushInterval)
}

func TestURLRouteRootNoRewrite(t *testing.T) {
	route := URLRoute(types.RouteSpec{
		Domain:      "example.com",
		BasePath:    "/",
		StripPrefix: true,
	}, "srv-prj-svc", 3000)

	assert.Equal(t, []string{"/*"}, route.Match[0].Path)
	chain := route.Handle[0].Routes[0].Handle
	require.Len(t, chain, 1)
	assert.Equal(t, "reverse_proxy", chain[0].Handler)
}

func TestPreviewRouteChain(t *testing.T) {
	route := PreviewRoute("abc123.preview.example.com", "srv-prj-svc", 8080,
		"dockhand-api:8000", "/api/auth/me/with-token")

	assert.Equal(t, "abc123.preview.example.com", route.ID)
	assert.True(t, route.Terminal)

	chain := route.Handle[0].Routes[0].Handle
	require.Len(t, chain, 2)

	auth := chain[0]
	assert.Equal(t, "reverse_proxy", auth.Handler)
	assert.Equal(t, "dockhand-api:8000", auth.Upstreams[0].Dial)
	assert.Equal(t, "GET", auth.Rewrite.Method)
	assert.Equal(t, "/api/auth/me/with-token", auth.Rewrite.URI)
	assert.Equal(t, []int{2}, auth.HandleResponse[0].Match.StatusCode)
	assert.Equal(t, []string{"{http.request.method}"}, auth.Headers.Request.Set["X-Forwarded-Method"])

	backend := chain[1]
	assert.Equal(t, "srv-prj-svc:8080", backend.Upstreams[0].Dial)
	assert.Equal(t, -1, backend.FlushInterval)
}

func TestPreviewRouteAuthStageJSONShape(t *testing.T) {
	route := PreviewRoute("p.example.com", "srv-x", 80, "app:8000", "/auth")
	data, err := json.Marshal(route.Handle[0].Routes[0].Handle[0])
	require.NoError(t, err)

	// The headers handler nested in handle_response must serialize an
	// explicit empty request object, which is what the proxy expects.
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	handleResponse := decoded["handle_response"].([]any)[0].(map[string]any)
	inner := handleResponse["routes"].([]any)[0].(map[string]any)
	headers := inner["handle"].([]any)[0].(map[string]any)
	assert.Equal(t, "headers", headers["handler"])
	assert.Equal(t, map[string]any{}, headers["request"])
}
