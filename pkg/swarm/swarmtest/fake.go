// Package swarmtest provides a scriptable in-memory implementation of
// swarm.Client for component tests.
package swarmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dockhand/dockhand/pkg/swarm"
	"github.com/dockhand/dockhand/pkg/types"
)

// Fake implements swarm.Client. Each method records its invocation and
// then delegates to the corresponding Fn field when set, or falls back to
// a benign default. Tests script behavior by assigning the Fn fields and
// assert on the recorded calls.
type Fake struct {
	mu    sync.Mutex
	calls []string

	EnsureNetworkFn          func(ctx context.Context, name string, labels map[string]string) (string, error)
	InspectNetworkFn         func(ctx context.Context, name string) (swarm.Network, error)
	RemoveNetworkFn          func(ctx context.Context, id string) error
	CreateVolumeFn           func(ctx context.Context, name string, labels map[string]string) error
	ListVolumesByLabelFn     func(ctx context.Context, selector map[string]string) ([]swarm.Volume, error)
	RemoveVolumeFn           func(ctx context.Context, name string, force bool) error
	CreateWorkloadFn         func(ctx context.Context, spec swarm.WorkloadSpec) (types.WorkloadHandle, error)
	UpdateWorkloadFn         func(ctx context.Context, name string, spec swarm.WorkloadSpec) (types.WorkloadHandle, error)
	InspectWorkloadFn        func(ctx context.Context, name string) (swarm.Workload, error)
	FindWorkloadByLabelFn    func(ctx context.Context, key, value string) (swarm.Workload, error)
	ScaleWorkloadFn          func(ctx context.Context, name string, replicas uint64) error
	RemoveWorkloadFn         func(ctx context.Context, name string) error
	UpdateWorkloadNetworksFn func(ctx context.Context, id string, networkIDs []string) error
	ListTasksFn              func(ctx context.Context, workloadName string, labelSelector map[string]string) ([]swarm.Task, error)
	ExecInContainerFn        func(ctx context.Context, containerID string, cmd []string) (int, string, error)
	PullImageFn              func(ctx context.Context, ref string, creds *types.RegistryCredentials) error
	ImageExistsFn            func(ctx context.Context, ref string, creds *types.RegistryCredentials) bool
	AwaitWorkloadUpdateFn    func(ctx context.Context, workloadID string) error
}

func (f *Fake) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// Calls returns the recorded invocations in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) EnsureNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	f.record("EnsureNetwork(%s)", name)
	if f.EnsureNetworkFn != nil {
		return f.EnsureNetworkFn(ctx, name, labels)
	}
	return "net-id", nil
}

func (f *Fake) InspectNetwork(ctx context.Context, name string) (swarm.Network, error) {
	f.record("InspectNetwork(%s)", name)
	if f.InspectNetworkFn != nil {
		return f.InspectNetworkFn(ctx, name)
	}
	return swarm.Network{}, swarm.ErrNotFound
}

func (f *Fake) RemoveNetwork(ctx context.Context, id string) error {
	f.record("RemoveNetwork(%s)", id)
	if f.RemoveNetworkFn != nil {
		return f.RemoveNetworkFn(ctx, id)
	}
	return nil
}

func (f *Fake) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	f.record("CreateVolume(%s)", name)
	if f.CreateVolumeFn != nil {
		return f.CreateVolumeFn(ctx, name, labels)
	}
	return nil
}

func (f *Fake) ListVolumesByLabel(ctx context.Context, selector map[string]string) ([]swarm.Volume, error) {
	f.record("ListVolumesByLabel")
	if f.ListVolumesByLabelFn != nil {
		return f.ListVolumesByLabelFn(ctx, selector)
	}
	return nil, nil
}

func (f *Fake) RemoveVolume(ctx context.Context, name string, force bool) error {
	f.record("RemoveVolume(%s)", name)
	if f.RemoveVolumeFn != nil {
		return f.RemoveVolumeFn(ctx, name, force)
	}
	return nil
}

func (f *Fake) CreateWorkload(ctx context.Context, spec swarm.WorkloadSpec) (types.WorkloadHandle, error) {
	f.record("CreateWorkload(%s)", spec.Name)
	if f.CreateWorkloadFn != nil {
		return f.CreateWorkloadFn(ctx, spec)
	}
	return types.WorkloadHandle{ID: "wl-id", Name: spec.Name}, nil
}

func (f *Fake) UpdateWorkload(ctx context.Context, name string, spec swarm.WorkloadSpec) (types.WorkloadHandle, error) {
	f.record("UpdateWorkload(%s)", name)
	if f.UpdateWorkloadFn != nil {
		return f.UpdateWorkloadFn(ctx, name, spec)
	}
	return types.WorkloadHandle{ID: "wl-id", Name: name}, nil
}

func (f *Fake) InspectWorkload(ctx context.Context, name string) (swarm.Workload, error) {
	f.record("InspectWorkload(%s)", name)
	if f.InspectWorkloadFn != nil {
		return f.InspectWorkloadFn(ctx, name)
	}
	return swarm.Workload{}, swarm.ErrNotFound
}

func (f *Fake) FindWorkloadByLabel(ctx context.Context, key, value string) (swarm.Workload, error) {
	f.record("FindWorkloadByLabel(%s=%s)", key, value)
	if f.FindWorkloadByLabelFn != nil {
		return f.FindWorkloadByLabelFn(ctx, key, value)
	}
	return swarm.Workload{}, swarm.ErrNotFound
}

func (f *Fake) ScaleWorkload(ctx context.Context, name string, replicas uint64) error {
	f.record("ScaleWorkload(%s,%d)", name, replicas)
	if f.ScaleWorkloadFn != nil {
		return f.ScaleWorkloadFn(ctx, name, replicas)
	}
	return nil
}

func (f *Fake) RemoveWorkload(ctx context.Context, name string) error {
	f.record("RemoveWorkload(%s)", name)
	if f.RemoveWorkloadFn != nil {
		return f.RemoveWorkloadFn(ctx, name)
	}
	return nil
}

func (f *Fake) UpdateWorkloadNetworks(ctx context.Context, id string, networkIDs []string) error {
	f.record("UpdateWorkloadNetworks(%s,%v)", id, networkIDs)
	if f.UpdateWorkloadNetworksFn != nil {
		return f.UpdateWorkloadNetworksFn(ctx, id, networkIDs)
	}
	return nil
}

func (f *Fake) ListTasks(ctx context.Context, workloadName string, labelSelector map[string]string) ([]swarm.Task, error) {
	f.record("ListTasks(%s)", workloadName)
	if f.ListTasksFn != nil {
		return f.ListTasksFn(ctx, workloadName, labelSelector)
	}
	return nil, nil
}

func (f *Fake) ExecInContainer(ctx context.Context, containerID string, cmd []string) (int, string, error) {
	f.record("ExecInContainer(%s)", containerID)
	if f.ExecInContainerFn != nil {
		return f.ExecInContainerFn(ctx, containerID, cmd)
	}
	return 0, "", nil
}

func (f *Fake) PullImage(ctx context.Context, ref string, creds *types.RegistryCredentials) error {
	f.record("PullImage(%s)", ref)
	if f.PullImageFn != nil {
		return f.PullImageFn(ctx, ref, creds)
	}
	return nil
}

func (f *Fake) ImageExists(ctx context.Context, ref string, creds *types.RegistryCredentials) bool {
	f.record("ImageExists(%s)", ref)
	if f.ImageExistsFn != nil {
		return f.ImageExistsFn(ctx, ref, creds)
	}
	return true
}

func (f *Fake) AwaitWorkloadUpdate(ctx context.Context, workloadID string) error {
	f.record("AwaitWorkloadUpdate(%s)", workloadID)
	if f.AwaitWorkloadUpdateFn != nil {
		return f.AwaitWorkloadUpdateFn(ctx, workloadID)
	}
	return nil
}

func (f *Fake) Close() error { return nil }

var _ swarm.Client = (*Fake)(nil)
