package reclaim

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dockhand/dockhand/pkg/log"
	"github.com/dockhand/dockhand/pkg/metrics"
	"github.com/dockhand/dockhand/pkg/swarm"
	"github.com/dockhand/dockhand/pkg/types"
)

// drainPollInterval is how often the task list is re-read while waiting
// for a scaled-down workload to drain.
const drainPollInterval = time.Second

// RouteDetacher is the slice of the proxy manager teardown needs.
type RouteDetacher interface {
	RemoveURLRoute(ctx context.Context, spec types.RouteSpec) error
	RemovePreviewRoute(ctx context.Context, previewURL string) error
}

// Reclaimer destroys the cluster resources of archived services and
// projects. It works entirely from archival snapshots; the live records
// may be long gone by the time it runs.
type Reclaimer struct {
	cluster swarm.Client
	proxy   RouteDetacher
	// waitTimeout bounds the task drain and the proxy network-detach
	// confirmation.
	waitTimeout time.Duration
	logger      zerolog.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewReclaimer builds a Reclaimer. waitTimeout bounds every internal
// wait; zero gets a 60s default.
func NewReclaimer(cluster swarm.Client, proxy RouteDetacher, waitTimeout time.Duration) *Reclaimer {
	if waitTimeout == 0 {
		waitTimeout = 60 * time.Second
	}
	return &Reclaimer{
		cluster:     cluster,
		proxy:       proxy,
		waitTimeout: waitTimeout,
		logger:      log.WithComponent("reclaim"),
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// ReclaimService tears down everything an archived service owned: its
// proxy routes, its workload and tasks, and its named volumes. An absent
// workload means a previous run already finished; that is success, not an
// error.
func (r *Reclaimer) ReclaimService(ctx context.Context, snapshot *types.ArchivedService) (err error) {
	start := r.now()
	defer func() {
		metrics.ReclaimDuration.WithLabelValues("service").Observe(r.now().Sub(start).Seconds())
		metrics.ReclaimsTotal.WithLabelValues("service", outcome(err)).Inc()
	}()

	for _, route := range snapshot.Routes {
		if err := r.proxy.RemoveURLRoute(ctx, route.RouteSpec()); err != nil {
			return fmt.Errorf("detach route %s%s: %w", route.Domain, route.BasePath, err)
		}
	}
	for _, previewURL := range snapshot.PreviewURLs {
		if err := r.proxy.RemovePreviewRoute(ctx, previewURL); err != nil {
			return fmt.Errorf("detach preview route %s: %w", previewURL, err)
		}
	}

	name := snapshot.WorkloadName()
	workload, err := r.cluster.InspectWorkload(ctx, name)
	if swarm.IsNotFound(err) {
		r.logger.Info().Str("workload", name).Msg("workload already gone")
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect workload %s: %w", name, err)
	}

	if err := r.cluster.ScaleWorkload(ctx, workload.Name, 0); err != nil {
		return fmt.Errorf("scale down %s: %w", name, err)
	}
	if err := r.drainTasks(ctx, name); err != nil {
		return err
	}

	volumes, err := r.cluster.ListVolumesByLabel(ctx, types.VolumeLabels(snapshot.ProjectID, snapshot.OriginalID))
	if err != nil {
		return fmt.Errorf("list volumes of %s: %w", snapshot.OriginalID, err)
	}
	for _, volume := range volumes {
		if err := r.cluster.RemoveVolume(ctx, volume.Name, true); err != nil && !swarm.IsNotFound(err) {
			return fmt.Errorf("remove volume %s: %w", volume.Name, err)
		}
	}

	if err := r.cluster.RemoveWorkload(ctx, name); err != nil && !swarm.IsNotFound(err) {
		return fmt.Errorf("remove workload %s: %w", name, err)
	}
	r.logger.Info().Str("workload", name).Int("volumes", len(volumes)).Msg("service resources reclaimed")
	return nil
}

// ReclaimProject removes the project's overlay network after detaching it
// from the shared proxy workload. An absent network means the project was
// already cleaned up.
func (r *Reclaimer) ReclaimProject(ctx context.Context, snapshot *types.ArchivedProject) (err error) {
	start := r.now()
	defer func() {
		metrics.ReclaimDuration.WithLabelValues("project").Observe(r.now().Sub(start).Seconds())
		metrics.ReclaimsTotal.WithLabelValues("project", outcome(err)).Inc()
	}()

	name := types.NetworkName(snapshot.OriginalID)
	network, err := r.cluster.InspectNetwork(ctx, name)
	if swarm.IsNotFound(err) {
		r.logger.Info().Str("network", name).Msg("network already gone")
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect network %s: %w", name, err)
	}

	if err := r.detachFromProxy(ctx, network.ID); err != nil {
		return err
	}

	if err := r.cluster.RemoveNetwork(ctx, network.ID); err != nil && !swarm.IsNotFound(err) {
		return fmt.Errorf("remove network %s: %w", name, err)
	}
	r.logger.Info().Str("network", name).Msg("project resources reclaimed")
	return nil
}

// detachFromProxy drops the network from the proxy workload's attachment
// list and waits for the cluster to confirm the proxy's update, so the
// network is free of endpoints before it is removed. The wait only
// happens when an update was actually issued.
func (r *Reclaimer) detachFromProxy(ctx context.Context, networkID string) error {
	proxy, err := r.cluster.FindWorkloadByLabel(ctx, types.LabelRole, types.RoleProxy)
	if swarm.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("locate proxy workload: %w", err)
	}

	remaining := proxy.NetworkIDs[:0:0]
	for _, id := range proxy.NetworkIDs {
		if id != networkID {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) == len(proxy.NetworkIDs) {
		return nil
	}

	if err := r.cluster.UpdateWorkloadNetworks(ctx, proxy.ID, remaining); err != nil {
		return fmt.Errorf("detach network from proxy: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.waitTimeout)
	defer cancel()
	if err := r.cluster.AwaitWorkloadUpdate(waitCtx, proxy.ID); err != nil {
		return fmt.Errorf("proxy update after network detach: %w", err)
	}
	return nil
}

// drainTasks polls until the workload has no tasks left. The wait is
// bounded; a workload that refuses to drain is an error the caller must
// see, never something to ignore.
func (r *Reclaimer) drainTasks(ctx context.Context, workloadName string) error {
	deadline := r.now().Add(r.waitTimeout)
	for {
		tasks, err := r.cluster.ListTasks(ctx, workloadName, nil)
		if err != nil {
			return fmt.Errorf("list tasks of %s: %w", workloadName, err)
		}
		if len(tasks) == 0 {
			return nil
		}
		if !r.now().Before(deadline) {
			return fmt.Errorf("workload %s still has %d tasks after %s", workloadName, len(tasks), r.waitTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.sleep(drainPollInterval)
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
