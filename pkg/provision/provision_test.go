package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockhand/dockhand/pkg/swarm"
	"github.com/dockhand/dockhand/pkg/swarm/swarmtest"
	"github.com/dockhand/dockhand/pkg/types"
)

func uint16Ptr(v uint16) *uint16 { return &v }

func testDefinition() *types.ServiceDefinition {
	return &types.ServiceDefinition{
		ID:              "svc-1",
		ProjectID:       "prj-1",
		Slug:            "web",
		ImageRepository: "registry.example.com/web",
		ImageTag:        "latest",
		NetworkAlias:    "web",
		EnvVariables: []types.EnvVar{
			{Key: "PORT", Value: "8080"},
		},
	}
}

func testDeployment() *types.Deployment {
	return &types.Deployment{
		Hash:      "dpl_dkr_abc123",
		ServiceID: "svc-1",
		ProjectID: "prj-1",
		Slot:      types.SlotBlue,
		ImageTag:  "v2",
	}
}

func TestProvisionCreatesWorkload(t *testing.T) {
	fake := &swarmtest.Fake{}
	var created swarm.WorkloadSpec
	fake.CreateWorkloadFn = func(ctx context.Context, spec swarm.WorkloadSpec) (types.WorkloadHandle, error) {
		created = spec
		return types.WorkloadHandle{ID: "wl-1", Name: spec.Name}, nil
	}

	p := NewProvisioner(fake, "internal.example")
	handle, err := p.Provision(context.Background(), testDefinition(), testDeployment())
	require.NoError(t, err)
	assert.Equal(t, "srv-prj-1-svc-1", handle.Name)

	assert.Equal(t, "registry.example.com/web:v2", created.Image)
	assert.Equal(t, []string{"PORT=8080"}, created.Env)
	assert.Equal(t, "dpl_dkr_abc123", created.Labels[types.LabelDeploymentHash])
	assert.Equal(t, "prj-1", created.Labels[types.LabelProject])

	require.NotNil(t, created.RestartPolicy)
	assert.Equal(t, 5*time.Second, created.RestartPolicy.Delay)
	assert.Equal(t, uint64(3), created.RestartPolicy.MaxAttempts)

	require.Len(t, created.Networks, 1)
	assert.Equal(t, "net-prj-1", created.Networks[0].Target)
	assert.Equal(t, []string{"web.internal.example", "web", "web.blue.internal.example"},
		created.Networks[0].Aliases)
}

func TestProvisionUpdatesExistingWorkload(t *testing.T) {
	fake := &swarmtest.Fake{}
	fake.InspectWorkloadFn = func(ctx context.Context, name string) (swarm.Workload, error) {
		return swarm.Workload{ID: "wl-1", Name: name}, nil
	}

	p := NewProvisioner(fake, "internal.example")
	_, err := p.Provision(context.Background(), testDefinition(), testDeployment())
	require.NoError(t, err)

	calls := fake.Calls()
	assert.Contains(t, calls, "UpdateWorkload(srv-prj-1-svc-1)")
	assert.NotContains(t, calls, "CreateWorkload(srv-prj-1-svc-1)")
}

func TestProvisionAbortsOnPullFailure(t *testing.T) {
	fake := &swarmtest.Fake{}
	fake.PullImageFn = func(ctx context.Context, ref string, creds *types.RegistryCredentials) error {
		return errors.New("manifest unknown")
	}

	p := NewProvisioner(fake, "internal.example")
	_, err := p.Provision(context.Background(), testDefinition(), testDeployment())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pull image")

	for _, call := range fake.Calls() {
		assert.NotContains(t, call, "CreateWorkload")
		assert.NotContains(t, call, "UpdateWorkload")
	}
}

func TestProvisionPortResolution(t *testing.T) {
	def := testDefinition()
	def.Ports = []types.PortBinding{
		{Host: nil, Container: 8080},           // proxy-routed
		{Host: uint16Ptr(80), Container: 80},   // well-known, proxy-routed
		{Host: uint16Ptr(443), Container: 443}, // well-known, proxy-routed
		{Host: uint16Ptr(5432), Container: 5432},
	}

	fake := &swarmtest.Fake{}
	var created swarm.WorkloadSpec
	fake.CreateWorkloadFn = func(ctx context.Context, spec swarm.WorkloadSpec) (types.WorkloadHandle, error) {
		created = spec
		return types.WorkloadHandle{ID: "wl-1", Name: spec.Name}, nil
	}

	p := NewProvisioner(fake, "internal.example")
	_, err := p.Provision(context.Background(), def, testDeployment())
	require.NoError(t, err)

	require.Len(t, created.Ports, 1)
	assert.Equal(t, uint16(5432), created.Ports[0].Published)
	assert.Equal(t, uint16(5432), created.Ports[0].Target)
}

func TestProvisionMountOrdering(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	def := testDefinition()
	def.Volumes = []types.VolumeMount{
		{ID: "vol-b", ContainerPath: "/data/b", Mode: types.VolumeModeReadWrite, CreatedAt: created},
		{ID: "host-1", ContainerPath: "/etc/conf", HostPath: "/srv/conf", Mode: types.VolumeModeReadOnly},
		{ID: "vol-a", ContainerPath: "/data/a", Mode: types.VolumeModeReadOnly, CreatedAt: created},
	}

	nameA := types.VolumeResourceName("vol-a", created)
	nameB := types.VolumeResourceName("vol-b", created)

	fake := &swarmtest.Fake{}
	fake.ListVolumesByLabelFn = func(ctx context.Context, selector map[string]string) ([]swarm.Volume, error) {
		return []swarm.Volume{{Name: nameA}, {Name: nameB}}, nil
	}
	var spec swarm.WorkloadSpec
	fake.CreateWorkloadFn = func(ctx context.Context, s swarm.WorkloadSpec) (types.WorkloadHandle, error) {
		spec = s
		return types.WorkloadHandle{ID: "wl-1", Name: s.Name}, nil
	}

	p := NewProvisioner(fake, "internal.example")
	_, err := p.Provision(context.Background(), def, testDeployment())
	require.NoError(t, err)

	// Named volumes first, in lookup order, then host paths.
	require.Len(t, spec.Mounts, 3)
	assert.Equal(t, swarm.MountSpec{Kind: swarm.MountKindVolume, Source: nameA, Target: "/data/a", ReadOnly: true}, spec.Mounts[0])
	assert.Equal(t, swarm.MountSpec{Kind: swarm.MountKindVolume, Source: nameB, Target: "/data/b"}, spec.Mounts[1])
	assert.Equal(t, swarm.MountSpec{Kind: swarm.MountKindBind, Source: "/srv/conf", Target: "/etc/conf", ReadOnly: true}, spec.Mounts[2])
}

func TestCreateProjectResourcesAttachesProxy(t *testing.T) {
	fake := &swarmtest.Fake{}
	fake.EnsureNetworkFn = func(ctx context.Context, name string, labels map[string]string) (string, error) {
		assert.Equal(t, "net-prj-1", name)
		return "net-id-1", nil
	}
	fake.FindWorkloadByLabelFn = func(ctx context.Context, key, value string) (swarm.Workload, error) {
		return swarm.Workload{ID: "proxy-id", Name: "proxy", NetworkIDs: []string{"net-id-0"}}, nil
	}
	var attached []string
	fake.UpdateWorkloadNetworksFn = func(ctx context.Context, id string, networkIDs []string) error {
		attached = networkIDs
		return nil
	}

	p := NewProvisioner(fake, "internal.example")
	require.NoError(t, p.CreateProjectResources(context.Background(), "prj-1"))
	assert.Equal(t, []string{"net-id-0", "net-id-1"}, attached)
}

func TestCreateProjectResourcesIsIdempotent(t *testing.T) {
	fake := &swarmtest.Fake{}
	fake.EnsureNetworkFn = func(ctx context.Context, name string, labels map[string]string) (string, error) {
		return "net-id-1", nil
	}
	fake.FindWorkloadByLabelFn = func(ctx context.Context, key, value string) (swarm.Workload, error) {
		return swarm.Workload{ID: "proxy-id", NetworkIDs: []string{"net-id-1"}}, nil
	}

	p := NewProvisioner(fake, "internal.example")
	require.NoError(t, p.CreateProjectResources(context.Background(), "prj-1"))
	assert.NotContains(t, fake.Calls(), "UpdateWorkloadNetworks(proxy-id,[net-id-1])")
}

func TestCreateServiceVolumesSkipsHostPaths(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	def := testDefinition()
	def.Volumes = []types.VolumeMount{
		{ID: "vol-a", ContainerPath: "/data", CreatedAt: created},
		{ID: "host-1", ContainerPath: "/etc/conf", HostPath: "/srv/conf"},
	}

	fake := &swarmtest.Fake{}
	var createdNames []string
	fake.CreateVolumeFn = func(ctx context.Context, name string, labels map[string]string) error {
		createdNames = append(createdNames, name)
		assert.Equal(t, "svc-1", labels[types.LabelParent])
		return nil
	}

	p := NewProvisioner(fake, "internal.example")
	require.NoError(t, p.CreateServiceVolumes(context.Background(), def))
	assert.Equal(t, []string{types.VolumeResourceName("vol-a", created)}, createdNames)
}

func TestScaleDownToleratesMissingWorkload(t *testing.T) {
	fake := &swarmtest.Fake{}
	fake.ScaleWorkloadFn = func(ctx context.Context, name string, replicas uint64) error {
		return swarm.ErrNotFound
	}

	p := NewProvisioner(fake, "internal.example")
	assert.NoError(t, p.ScaleDown(context.Background(), testDefinition()))
}
