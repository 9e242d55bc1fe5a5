package config

import (
	"os"
	"strconv"
	"time"

	"github.com/dockhand/dockhand/pkg/log"
)

// Defaults for the orchestration timeouts. The healthcheck values apply
// when a service has no custom health check spec.
const (
	DefaultHealthTimeout  = 30 * time.Second
	DefaultHealthInterval = 5 * time.Second
	DefaultClusterTimeout = 10 * time.Second
	DefaultProxyTimeout   = 5 * time.Second
)

// Config carries every tunable the orchestrator needs. It is assembled
// once at startup and passed by reference to the components.
type Config struct {
	// DockerHost overrides the Docker daemon address; empty means the
	// standard DOCKER_HOST environment handling.
	DockerHost string

	// ProxyAdminURL is the base URL of the reverse proxy's admin API.
	ProxyAdminURL string
	// ProxyServerName is the proxy's HTTP server name in its config tree.
	ProxyServerName string
	// ProxyServerNodeID is the @id of the proxy's server node, the parent
	// of per-domain log channels.
	ProxyServerNodeID string

	// AppUpstream is the dial address of the platform's own API as seen
	// from inside the proxy, used by preview routes for auth checks.
	AppUpstream string
	// AuthIntrospectPath is the platform endpoint preview routes call to
	// validate the requester's session.
	AuthIntrospectPath string

	// PrivateDomain qualifies service network aliases.
	PrivateDomain string
	// PreviewRootDomain is the parent domain preview URLs are minted under.
	PreviewRootDomain string
	// ProbeScheme is the scheme used for path health probes.
	ProbeScheme string

	HealthTimeout  time.Duration
	HealthInterval time.Duration
	// ClusterTimeout bounds waits on asynchronous cluster transitions:
	// task drain and proxy network-detach events.
	ClusterTimeout time.Duration
	// ProxyTimeout bounds individual proxy admin API calls.
	ProxyTimeout time.Duration

	// DataDir holds the local bolt database.
	DataDir string

	// MetricsAddr enables a Prometheus /metrics listener when non-empty.
	MetricsAddr string

	LogLevel log.Level
	LogJSON  bool
}

// Load builds a Config from the environment, applying defaults for
// everything unset.
func Load() Config {
	return Config{
		DockerHost:         GetString("DOCKHAND_DOCKER_HOST", ""),
		ProxyAdminURL:      GetString("DOCKHAND_PROXY_ADMIN_URL", "http://127.0.0.1:2019"),
		ProxyServerName:    GetString("DOCKHAND_PROXY_SERVER", "dockhand"),
		ProxyServerNodeID:  GetString("DOCKHAND_PROXY_SERVER_ID", "dockhand-server"),
		AppUpstream:        GetString("DOCKHAND_APP_UPSTREAM", "dockhand-api:8000"),
		AuthIntrospectPath: GetString("DOCKHAND_AUTH_INTROSPECT_PATH", "/api/auth/me/with-token"),
		PrivateDomain:      GetString("DOCKHAND_PRIVATE_DOMAIN", "internal.dockhand.local"),
		PreviewRootDomain:  GetString("DOCKHAND_PREVIEW_ROOT_DOMAIN", "preview.dockhand.local"),
		ProbeScheme:        GetString("DOCKHAND_PROBE_SCHEME", "http"),
		HealthTimeout:      GetDuration("DOCKHAND_HEALTH_TIMEOUT", DefaultHealthTimeout),
		HealthInterval:     GetDuration("DOCKHAND_HEALTH_INTERVAL", DefaultHealthInterval),
		ClusterTimeout:     GetDuration("DOCKHAND_CLUSTER_TIMEOUT", DefaultClusterTimeout),
		ProxyTimeout:       GetDuration("DOCKHAND_PROXY_TIMEOUT", DefaultProxyTimeout),
		DataDir:            GetString("DOCKHAND_DATA_DIR", "/var/lib/dockhand"),
		MetricsAddr:        GetString("DOCKHAND_METRICS_ADDR", ""),
		LogLevel:           log.Level(GetString("DOCKHAND_LOG_LEVEL", "info")),
		LogJSON:            GetBool("DOCKHAND_LOG_JSON", false),
	}
}

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetDuration retrieves an environment variable as a duration. Plain
// integers are taken as seconds.
func GetDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
