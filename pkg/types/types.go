package types

import (
	"fmt"
	"strings"
	"time"
)

// ServiceDefinition describes a service deployed from an already-built
// container image. It is a snapshot of the platform's metadata for one
// service; the orchestrator never mutates it.
type ServiceDefinition struct {
	ID        string
	ProjectID string
	Slug      string

	ImageRepository string
	ImageTag        string
	Command         []string

	Credentials *RegistryCredentials

	Ports        []PortBinding
	Volumes      []VolumeMount
	EnvVariables []EnvVar
	Routes       []RouteSpec
	HealthCheck  *HealthCheckSpec

	// NetworkAlias is the stable DNS name other services use to reach this
	// one on the project network. Unique across the platform, may be empty.
	NetworkAlias string

	CreatedAt time.Time
}

// Image returns the full image reference with the tag pinned by the
// given deployment, falling back to the definition's own tag.
func (s *ServiceDefinition) Image() string {
	tag := s.ImageTag
	if tag == "" {
		tag = "latest"
	}
	return fmt.Sprintf("%s:%s", s.ImageRepository, tag)
}

// ImageForTag returns the image reference pinned to a specific tag.
func (s *ServiceDefinition) ImageForTag(tag string) string {
	if tag == "" {
		return s.Image()
	}
	return fmt.Sprintf("%s:%s", s.ImageRepository, tag)
}

// NetworkAliases returns the base aliases for this service: the raw alias
// plus its private-domain qualified form. Empty when no alias is set.
func (s *ServiceDefinition) NetworkAliases(privateDomain string) []string {
	if s.NetworkAlias == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s.%s", s.NetworkAlias, privateDomain),
		s.NetworkAlias,
	}
}

// HTTPPort returns the first port binding with no host port, which is the
// port traffic is proxied to. Returns nil when the service exposes none.
func (s *ServiceDefinition) HTTPPort() *PortBinding {
	for i := range s.Ports {
		if s.Ports[i].Host == nil {
			return &s.Ports[i]
		}
	}
	return nil
}

// RegistryCredentials authenticate image pulls against a private registry.
type RegistryCredentials struct {
	Username string
	Password string
}

// PortBinding maps an optional host port to a container port. A nil host
// port means the port is HTTP-routed through the proxy instead of being
// published on the host.
type PortBinding struct {
	Host      *uint16
	Container uint16
}

// VolumeMode is the access mode of a volume mount.
type VolumeMode string

const (
	VolumeModeReadOnly  VolumeMode = "READ_ONLY"
	VolumeModeReadWrite VolumeMode = "READ_WRITE"
)

// VolumeMount attaches either a named volume (HostPath empty) or a host
// directory (HostPath set) to a path inside the container.
type VolumeMount struct {
	ID            string
	Name          string
	ContainerPath string
	HostPath      string
	Mode          VolumeMode
	CreatedAt     time.Time
}

// IsHostPath reports whether the mount binds a host directory rather than
// a named volume.
func (v *VolumeMount) IsHostPath() bool {
	return v.HostPath != ""
}

// EnvVar is a single environment variable passed to the workload.
type EnvVar struct {
	Key   string
	Value string
}

// HealthCheckKind selects how a custom health probe is executed.
type HealthCheckKind string

const (
	// HealthCheckCommand runs a command inside the workload's container;
	// exit code zero means healthy.
	HealthCheckCommand HealthCheckKind = "COMMAND"
	// HealthCheckPath issues an authenticated HTTP GET against the
	// deployment URL; a 200 response means healthy.
	HealthCheckPath HealthCheckKind = "PATH"
)

// HealthCheckSpec is the user-defined health probe for a service.
type HealthCheckSpec struct {
	Kind            HealthCheckKind
	Value           string
	IntervalSeconds int
	TimeoutSeconds  int
}

// Interval returns the poll interval, falling back to the given default.
func (h *HealthCheckSpec) Interval(fallback time.Duration) time.Duration {
	if h == nil || h.IntervalSeconds <= 0 {
		return fallback
	}
	return time.Duration(h.IntervalSeconds) * time.Second
}

// Timeout returns the total time budget, falling back to the given default.
func (h *HealthCheckSpec) Timeout(fallback time.Duration) time.Duration {
	if h == nil || h.TimeoutSeconds <= 0 {
		return fallback
	}
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// RouteSpec exposes the service's HTTP port under a domain and base path.
type RouteSpec struct {
	Domain      string
	BasePath    string
	StripPrefix bool
}

// NormalizedPath returns the base path without leading or trailing slashes.
func (r RouteSpec) NormalizedPath() string {
	return strings.Trim(r.BasePath, "/")
}

// DeploymentSlot distinguishes concurrently-existing deployment generations
// of the same service for zero-downtime cutover.
type DeploymentSlot string

const (
	SlotBlue  DeploymentSlot = "BLUE"
	SlotGreen DeploymentSlot = "GREEN"
)

// NextSlot returns the slot a redeploy should use.
func NextSlot(current DeploymentSlot) DeploymentSlot {
	if current == SlotBlue {
		return SlotGreen
	}
	return SlotBlue
}

// DeploymentStatus is the state machine for a deployment's health.
type DeploymentStatus string

const (
	StatusQueued     DeploymentStatus = "QUEUED"
	StatusCancelled  DeploymentStatus = "CANCELLED"
	StatusFailed     DeploymentStatus = "FAILED"
	StatusPreparing  DeploymentStatus = "PREPARING"
	StatusStarting   DeploymentStatus = "STARTING"
	StatusRestarting DeploymentStatus = "RESTARTING"
	StatusHealthy    DeploymentStatus = "HEALTHY"
	StatusUnhealthy  DeploymentStatus = "UNHEALTHY"
	StatusOffline    DeploymentStatus = "OFFLINE"
)

// IsTerminal reports whether a deployment in this status will never be
// polled again.
func (s DeploymentStatus) IsTerminal() bool {
	switch s {
	case StatusHealthy, StatusUnhealthy, StatusOffline, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Deployment is one immutable attempt at running a service. The image tag
// is pinned at deploy time so later pushes to the same tag cannot change
// what this deployment runs.
type Deployment struct {
	Hash      string
	ServiceID string
	ProjectID string

	Slot                DeploymentSlot
	Status              DeploymentStatus
	StatusReason        string
	IsCurrentProduction bool
	ImageTag            string

	// PreviewURL is set for deployments exposed at their own auth-gated
	// URL, empty otherwise.
	PreviewURL string

	// RedeployOf is the hash of the deployment this one replaces, empty
	// for a first deploy.
	RedeployOf string

	CreatedAt time.Time
}

// UnprefixedHash strips the deployment hash prefix, used where the hash is
// embedded in DNS names.
func (d *Deployment) UnprefixedHash() string {
	return strings.TrimPrefix(d.Hash, DeploymentHashPrefix)
}

// NetworkAliases derives every alias this deployment answers to on the
// project network: the service's base aliases plus a slot-qualified alias.
// Aliases are always recomputed from service and slot, never stored.
func (d *Deployment) NetworkAliases(def *ServiceDefinition, privateDomain string) []string {
	base := def.NetworkAliases(privateDomain)
	if len(base) == 0 {
		return nil
	}
	slotAlias := fmt.Sprintf("%s.%s.%s",
		def.NetworkAlias, strings.ToLower(string(d.Slot)), privateDomain)
	return append(base, slotAlias)
}

// WorkloadHandle is the cluster's runtime identity for a provisioned
// workload. Deployments of the same service share one workload and are
// distinguished by the deployment-hash label on its tasks.
type WorkloadHandle struct {
	ID   string
	Name string
}
