package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Label keys stamped on every cluster resource Dockhand manages. They are
// the only query mechanism teardown has once the live records are gone.
const (
	LabelManaged        = "dockhand.managed"
	LabelProject        = "dockhand.project"
	LabelParent         = "dockhand.parent"
	LabelDeploymentHash = "dockhand.deployment_hash"
	LabelRole           = "dockhand.role"

	RoleProxy = "proxy"
)

// DeploymentHashPrefix marks deployment hashes of image-based deployments.
const DeploymentHashPrefix = "dpl_dkr_"

// NewDeploymentHash generates a fresh unique deployment hash.
func NewDeploymentHash() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return DeploymentHashPrefix + raw[:11]
}

// NetworkName returns the cluster name of a project's overlay network.
// It is a pure function of the project id so teardown can locate the
// network from an archived snapshot alone.
func NetworkName(projectID string) string {
	return fmt.Sprintf("net-%s", projectID)
}

// WorkloadName returns the stable cluster name for a service's workload.
// Repeated provisioning of the same service targets the same workload.
func WorkloadName(projectID, serviceID string) string {
	return fmt.Sprintf("srv-%s-%s", projectID, serviceID)
}

// VolumeResourceName returns the cluster-scoped name of a named volume.
// The creation timestamp is folded in so a recreated volume with the same
// id never collides with a leftover from a previous life.
func VolumeResourceName(volumeID string, createdAt time.Time) string {
	ts := fmt.Sprintf("%d%06d", createdAt.Unix(), createdAt.Nanosecond()/1000)
	return fmt.Sprintf("vol-%s-%s", volumeID, ts)
}

// ResourceLabels returns the base label set for a project's resources.
// Extra key/value pairs are merged in.
func ResourceLabels(projectID string, extra ...map[string]string) map[string]string {
	labels := map[string]string{
		LabelManaged: "true",
		LabelProject: projectID,
	}
	for _, m := range extra {
		for k, v := range m {
			labels[k] = v
		}
	}
	return labels
}

// VolumeLabels returns the label set for a service's named volumes.
func VolumeLabels(projectID, serviceID string) map[string]string {
	return ResourceLabels(projectID, map[string]string{LabelParent: serviceID})
}

// WorkloadLabels returns the label set for a service's workload.
func WorkloadLabels(projectID, deploymentHash string) map[string]string {
	return ResourceLabels(projectID, map[string]string{LabelDeploymentHash: deploymentHash})
}
