package swarm

import (
	"context"
	"errors"
	"time"

	"github.com/dockhand/dockhand/pkg/types"
)

// ErrNotFound is returned when a cluster resource does not exist. Teardown
// treats it as already-satisfied; provisioning reads treat it as an unmet
// precondition.
var ErrNotFound = errors.New("resource not found")

// IsNotFound reports whether err means the resource is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// TaskState mirrors the cluster's task lifecycle states.
type TaskState string

const (
	TaskStateNew       TaskState = "new"
	TaskStatePending   TaskState = "pending"
	TaskStateAssigned  TaskState = "assigned"
	TaskStateAccepted  TaskState = "accepted"
	TaskStateReady     TaskState = "ready"
	TaskStatePreparing TaskState = "preparing"
	TaskStateStarting  TaskState = "starting"
	TaskStateRunning   TaskState = "running"
	TaskStateComplete  TaskState = "complete"
	TaskStateShutdown  TaskState = "shutdown"
	TaskStateFailed    TaskState = "failed"
	TaskStateRejected  TaskState = "rejected"
	TaskStateRemove    TaskState = "remove"
	TaskStateOrphaned  TaskState = "orphaned"
)

// Task is one scheduled instance of a workload.
type Task struct {
	ID string
	// VersionIndex is the cluster's write version for the task record;
	// the highest index is the most recent write.
	VersionIndex uint64
	State        TaskState
	Message      string
	Err          string
	ContainerID  string
	ExitCode     *int
	Timestamp    time.Time
}

// Network is a cluster network.
type Network struct {
	ID   string
	Name string
}

// Volume is a cluster volume.
type Volume struct {
	Name   string
	Labels map[string]string
}

// Workload is the cluster's view of a provisioned service.
type Workload struct {
	ID   string
	Name string
	// NetworkIDs are the networks the workload's tasks attach to.
	NetworkIDs []string
}

// MountKind selects between a named volume and a host directory bind.
type MountKind string

const (
	MountKindVolume MountKind = "volume"
	MountKindBind   MountKind = "bind"
)

// MountSpec attaches a volume or host path to the workload's containers.
type MountSpec struct {
	Kind     MountKind
	Source   string
	Target   string
	ReadOnly bool
}

// PortSpec publishes a container port on the cluster's ingress.
type PortSpec struct {
	Published uint16
	Target    uint16
}

// NetworkAttachment attaches the workload to a network under a set of
// DNS aliases.
type NetworkAttachment struct {
	Target  string
	Aliases []string
}

// RestartPolicySpec bounds how the cluster restarts failing tasks.
type RestartPolicySpec struct {
	Delay       time.Duration
	MaxAttempts uint64
}

// WorkloadSpec is the declarative description of a workload submitted to
// the cluster.
type WorkloadSpec struct {
	Name          string
	Image         string
	Command       []string
	Env           []string
	Labels        map[string]string
	Mounts        []MountSpec
	Ports         []PortSpec
	Networks      []NetworkAttachment
	RestartPolicy *RestartPolicySpec
}

// Client is the contract against the container cluster. One Client is
// constructed at startup and injected into every component; there is no
// hidden shared connection.
type Client interface {
	// EnsureNetwork creates the named attachable overlay network if it
	// does not exist and returns its id.
	EnsureNetwork(ctx context.Context, name string, labels map[string]string) (string, error)
	// InspectNetwork looks up a network by name or id.
	InspectNetwork(ctx context.Context, name string) (Network, error)
	RemoveNetwork(ctx context.Context, id string) error

	CreateVolume(ctx context.Context, name string, labels map[string]string) error
	// ListVolumesByLabel returns the volumes matching every label in the
	// selector.
	ListVolumesByLabel(ctx context.Context, selector map[string]string) ([]Volume, error)
	RemoveVolume(ctx context.Context, name string, force bool) error

	// CreateWorkload submits a new workload to the cluster.
	CreateWorkload(ctx context.Context, spec WorkloadSpec) (types.WorkloadHandle, error)
	// UpdateWorkload replaces the spec of an existing workload.
	UpdateWorkload(ctx context.Context, name string, spec WorkloadSpec) (types.WorkloadHandle, error)
	// InspectWorkload looks up a workload by its stable name.
	InspectWorkload(ctx context.Context, name string) (Workload, error)
	// FindWorkloadByLabel returns the first workload carrying the label.
	FindWorkloadByLabel(ctx context.Context, key, value string) (Workload, error)
	ScaleWorkload(ctx context.Context, name string, replicas uint64) error
	RemoveWorkload(ctx context.Context, name string) error
	// UpdateWorkloadNetworks rewrites the workload's network attachment
	// list.
	UpdateWorkloadNetworks(ctx context.Context, id string, networkIDs []string) error

	// ListTasks returns the tasks of a workload, optionally filtered by
	// labels on the task's service spec.
	ListTasks(ctx context.Context, workloadName string, labelSelector map[string]string) ([]Task, error)

	// ExecInContainer runs a command inside a running container and
	// returns its exit code and combined output.
	ExecInContainer(ctx context.Context, containerID string, cmd []string) (int, string, error)

	// PullImage pulls an image, authenticating when credentials are given.
	PullImage(ctx context.Context, ref string, creds *types.RegistryCredentials) error
	// ImageExists checks the image manifest against its registry without
	// pulling.
	ImageExists(ctx context.Context, ref string, creds *types.RegistryCredentials) bool

	// AwaitWorkloadUpdate blocks until the cluster reports that an update
	// of the given workload completed, or the context expires.
	AwaitWorkloadUpdate(ctx context.Context, workloadID string) error

	Close() error
}
