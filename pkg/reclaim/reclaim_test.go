package reclaim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockhand/dockhand/pkg/swarm"
	"github.com/dockhand/dockhand/pkg/swarm/swarmtest"
	"github.com/dockhand/dockhand/pkg/types"
)

type fakeDetacher struct {
	routes   []types.RouteSpec
	previews []string
}

func (f *fakeDetacher) RemoveURLRoute(ctx context.Context, spec types.RouteSpec) error {
	f.routes = append(f.routes, spec)
	return nil
}

func (f *fakeDetacher) RemovePreviewRoute(ctx context.Context, previewURL string) error {
	f.previews = append(f.previews, previewURL)
	return nil
}

func newTestReclaimer(fake *swarmtest.Fake, detacher *fakeDetacher) *Reclaimer {
	r := NewReclaimer(fake, detacher, 5*time.Second)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }
	r.sleep = func(d time.Duration) { clock = clock.Add(d) }
	return r
}

func serviceSnapshot() *types.ArchivedService {
	return &types.ArchivedService{
		OriginalID: "svc-1",
		ProjectID:  "prj-1",
		Slug:       "web",
		Routes: []types.ArchivedRoute{
			{Domain: "app.example.com", BasePath: "/", StripPrefix: false},
		},
		PreviewURLs: []string{"abc.preview.example.com"},
		ArchivedAt:  time.Now().UTC(),
	}
}

func TestReclaimServiceAlreadyGone(t *testing.T) {
	fake := &swarmtest.Fake{} // InspectWorkload defaults to not found
	detacher := &fakeDetacher{}

	r := newTestReclaimer(fake, detacher)
	require.NoError(t, r.ReclaimService(context.Background(), serviceSnapshot()))

	// Routes are always detached, but no cluster mutation happens beyond
	// the initial lookup.
	assert.Len(t, detacher.routes, 1)
	assert.Equal(t, []string{"abc.preview.example.com"}, detacher.previews)
	assert.Equal(t, []string{"InspectWorkload(srv-prj-1-svc-1)"}, fake.Calls())
}

func TestReclaimServiceFullTeardown(t *testing.T) {
	fake := &swarmtest.Fake{}
	fake.InspectWorkloadFn = func(ctx context.Context, name string) (swarm.Workload, error) {
		return swarm.Workload{ID: "wl-1", Name: name}, nil
	}
	polls := 0
	fake.ListTasksFn = func(ctx context.Context, workloadName string, selector map[string]string) ([]swarm.Task, error) {
		polls++
		if polls < 3 {
			return []swarm.Task{{ID: "t1", State: swarm.TaskStateShutdown}}, nil
		}
		return nil, nil
	}
	fake.ListVolumesByLabelFn = func(ctx context.Context, selector map[string]string) ([]swarm.Volume, error) {
		assert.Equal(t, "prj-1", selector[types.LabelProject])
		assert.Equal(t, "svc-1", selector[types.LabelParent])
		return []swarm.Volume{{Name: "vol-data-123"}}, nil
	}

	r := newTestReclaimer(fake, &fakeDetacher{})
	require.NoError(t, r.ReclaimService(context.Background(), serviceSnapshot()))

	calls := fake.Calls()
	assert.Contains(t, calls, "ScaleWorkload(srv-prj-1-svc-1,0)")
	assert.Contains(t, calls, "RemoveVolume(vol-data-123)")
	assert.Contains(t, calls, "RemoveWorkload(srv-prj-1-svc-1)")
}

func TestReclaimServiceDrainTimeout(t *testing.T) {
	fake := &swarmtest.Fake{}
	fake.InspectWorkloadFn = func(ctx context.Context, name string) (swarm.Workload, error) {
		return swarm.Workload{ID: "wl-1", Name: name}, nil
	}
	fake.ListTasksFn = func(ctx context.Context, workloadName string, selector map[string]string) ([]swarm.Task, error) {
		return []swarm.Task{{ID: "t1", State: swarm.TaskStateRunning}}, nil
	}

	r := newTestReclaimer(fake, &fakeDetacher{})
	err := r.ReclaimService(context.Background(), serviceSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still has 1 tasks")

	// The workload must not be removed while tasks remain.
	assert.NotContains(t, fake.Calls(), "RemoveWorkload(srv-prj-1-svc-1)")
}

func TestReclaimProjectAlreadyGone(t *testing.T) {
	fake := &swarmtest.Fake{} // InspectNetwork defaults to not found

	r := newTestReclaimer(fake, &fakeDetacher{})
	require.NoError(t, r.ReclaimProject(context.Background(), &types.ArchivedProject{OriginalID: "prj-1"}))
	assert.Equal(t, []string{"InspectNetwork(net-prj-1)"}, fake.Calls())
}

func TestReclaimProjectDetachesProxy(t *testing.T) {
	fake := &swarmtest.Fake{}
	fake.InspectNetworkFn = func(ctx context.Context, name string) (swarm.Network, error) {
		return swarm.Network{ID: "net-id-1", Name: name}, nil
	}
	fake.FindWorkloadByLabelFn = func(ctx context.Context, key, value string) (swarm.Workload, error) {
		return swarm.Workload{ID: "proxy-id", NetworkIDs: []string{"net-id-0", "net-id-1"}}, nil
	}
	var detached []string
	fake.UpdateWorkloadNetworksFn = func(ctx context.Context, id string, networkIDs []string) error {
		detached = networkIDs
		return nil
	}

	r := newTestReclaimer(fake, &fakeDetacher{})
	require.NoError(t, r.ReclaimProject(context.Background(), &types.ArchivedProject{OriginalID: "prj-1"}))

	assert.Equal(t, []string{"net-id-0"}, detached)
	calls := fake.Calls()
	assert.Contains(t, calls, "AwaitWorkloadUpdate(proxy-id)")
	assert.Contains(t, calls, "RemoveNetwork(net-id-1)")
}

func TestReclaimProjectSkipsWaitWhenNotAttached(t *testing.T) {
	fake := &swarmtest.Fake{}
	fake.InspectNetworkFn = func(ctx context.Context, name string) (swarm.Network, error) {
		return swarm.Network{ID: "net-id-1", Name: name}, nil
	}
	fake.FindWorkloadByLabelFn = func(ctx context.Context, key, value string) (swarm.Workload, error) {
		return swarm.Workload{ID: "proxy-id", NetworkIDs: []string{"net-id-0"}}, nil
	}

	r := newTestReclaimer(fake, &fakeDetacher{})
	require.NoError(t, r.ReclaimProject(context.Background(), &types.ArchivedProject{OriginalID: "prj-1"}))

	calls := fake.Calls()
	assert.NotContains(t, calls, "AwaitWorkloadUpdate(proxy-id)")
	assert.Contains(t, calls, "RemoveNetwork(net-id-1)")
}
