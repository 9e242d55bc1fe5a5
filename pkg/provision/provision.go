package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dockhand/dockhand/pkg/log"
	"github.com/dockhand/dockhand/pkg/swarm"
	"github.com/dockhand/dockhand/pkg/types"
)

// Restart policy for every provisioned workload: a task that keeps
// failing is left stopped instead of crash-looping.
const (
	restartDelay       = 5 * time.Second
	maxRestartAttempts = 3
)

// Provisioner turns service definitions into running cluster workloads.
type Provisioner struct {
	cluster       swarm.Client
	privateDomain string
	logger        zerolog.Logger
}

// NewProvisioner builds a Provisioner on the given cluster client.
func NewProvisioner(cluster swarm.Client, privateDomain string) *Provisioner {
	return &Provisioner{
		cluster:       cluster,
		privateDomain: privateDomain,
		logger:        log.WithComponent("provision"),
	}
}

// CreateProjectResources creates the project's overlay network and
// attaches it to the shared proxy workload so the proxy can reach the
// project's services.
func (p *Provisioner) CreateProjectResources(ctx context.Context, projectID string) error {
	networkID, err := p.cluster.EnsureNetwork(ctx, types.NetworkName(projectID), types.ResourceLabels(projectID))
	if err != nil {
		return fmt.Errorf("create network for project %s: %w", projectID, err)
	}

	proxy, err := p.cluster.FindWorkloadByLabel(ctx, types.LabelRole, types.RoleProxy)
	if err != nil {
		return fmt.Errorf("locate proxy workload: %w", err)
	}
	for _, id := range proxy.NetworkIDs {
		if id == networkID {
			return nil
		}
	}
	if err := p.cluster.UpdateWorkloadNetworks(ctx, proxy.ID, append(proxy.NetworkIDs, networkID)); err != nil {
		return fmt.Errorf("attach network to proxy: %w", err)
	}
	p.logger.Info().Str("project_id", projectID).Str("network_id", networkID).Msg("project network attached to proxy")
	return nil
}

// CreateServiceVolumes creates the service's named volumes with parent
// labels so teardown can find them later. Host-path mounts need no
// cluster resource.
func (p *Provisioner) CreateServiceVolumes(ctx context.Context, def *types.ServiceDefinition) error {
	labels := types.VolumeLabels(def.ProjectID, def.ID)
	for i := range def.Volumes {
		mount := &def.Volumes[i]
		if mount.IsHostPath() {
			continue
		}
		name := types.VolumeResourceName(mount.ID, mount.CreatedAt)
		if err := p.cluster.CreateVolume(ctx, name, labels); err != nil {
			return fmt.Errorf("create volume %s: %w", name, err)
		}
	}
	return nil
}

// Provision creates or updates the deployment's workload. The workload
// name is a pure function of project and service id, so repeated calls
// for the same service converge on one workload.
//
// The image is pulled before anything is submitted to the cluster; a
// pull failure aborts provisioning without touching the workload.
func (p *Provisioner) Provision(ctx context.Context, def *types.ServiceDefinition, deployment *types.Deployment) (types.WorkloadHandle, error) {
	image := def.ImageForTag(deployment.ImageTag)
	if err := p.cluster.PullImage(ctx, image, def.Credentials); err != nil {
		return types.WorkloadHandle{}, fmt.Errorf("pull image %s: %w", image, err)
	}

	mounts, err := p.resolveMounts(ctx, def)
	if err != nil {
		return types.WorkloadHandle{}, err
	}

	spec := swarm.WorkloadSpec{
		Name:    types.WorkloadName(def.ProjectID, def.ID),
		Image:   image,
		Command: def.Command,
		Env:     envList(def.EnvVariables),
		Labels:  types.WorkloadLabels(def.ProjectID, deployment.Hash),
		Mounts:  mounts,
		Ports:   resolvePorts(def.Ports),
		Networks: []swarm.NetworkAttachment{{
			Target:  types.NetworkName(def.ProjectID),
			Aliases: deployment.NetworkAliases(def, p.privateDomain),
		}},
		RestartPolicy: &swarm.RestartPolicySpec{
			Delay:       restartDelay,
			MaxAttempts: maxRestartAttempts,
		},
	}

	existing, err := p.cluster.InspectWorkload(ctx, spec.Name)
	switch {
	case swarm.IsNotFound(err):
		handle, err := p.cluster.CreateWorkload(ctx, spec)
		if err != nil {
			return types.WorkloadHandle{}, fmt.Errorf("create workload %s: %w", spec.Name, err)
		}
		p.logger.Info().Str("workload", spec.Name).Str("deployment_hash", deployment.Hash).Msg("workload created")
		return handle, nil
	case err != nil:
		return types.WorkloadHandle{}, fmt.Errorf("inspect workload %s: %w", spec.Name, err)
	default:
		handle, err := p.cluster.UpdateWorkload(ctx, existing.Name, spec)
		if err != nil {
			return types.WorkloadHandle{}, fmt.Errorf("update workload %s: %w", spec.Name, err)
		}
		p.logger.Info().Str("workload", spec.Name).Str("deployment_hash", deployment.Hash).Msg("workload updated")
		return handle, nil
	}
}

// ScaleDown scales a service's workload to zero replicas without removing
// it. An absent workload is already scaled down.
func (p *Provisioner) ScaleDown(ctx context.Context, def *types.ServiceDefinition) error {
	name := types.WorkloadName(def.ProjectID, def.ID)
	if err := p.cluster.ScaleWorkload(ctx, name, 0); err != nil && !swarm.IsNotFound(err) {
		return fmt.Errorf("scale down %s: %w", name, err)
	}
	return nil
}

// resolveMounts builds the workload's mount list: named volumes first, in
// the order the cluster lists them, then host-path binds in definition
// order. The ordering is deterministic so repeated provisioning produces
// identical specs.
func (p *Provisioner) resolveMounts(ctx context.Context, def *types.ServiceDefinition) ([]swarm.MountSpec, error) {
	byName := make(map[string]*types.VolumeMount)
	for i := range def.Volumes {
		mount := &def.Volumes[i]
		if !mount.IsHostPath() {
			byName[types.VolumeResourceName(mount.ID, mount.CreatedAt)] = mount
		}
	}

	var mounts []swarm.MountSpec
	if len(byName) > 0 {
		volumes, err := p.cluster.ListVolumesByLabel(ctx, types.VolumeLabels(def.ProjectID, def.ID))
		if err != nil {
			return nil, fmt.Errorf("list volumes of service %s: %w", def.ID, err)
		}
		for _, volume := range volumes {
			mount, ok := byName[volume.Name]
			if !ok {
				continue
			}
			mounts = append(mounts, swarm.MountSpec{
				Kind:     swarm.MountKindVolume,
				Source:   volume.Name,
				Target:   mount.ContainerPath,
				ReadOnly: mount.Mode == types.VolumeModeReadOnly,
			})
		}
	}

	for i := range def.Volumes {
		mount := &def.Volumes[i]
		if !mount.IsHostPath() {
			continue
		}
		mounts = append(mounts, swarm.MountSpec{
			Kind:     swarm.MountKindBind,
			Source:   mount.HostPath,
			Target:   mount.ContainerPath,
			ReadOnly: mount.Mode == types.VolumeModeReadOnly,
		})
	}
	return mounts, nil
}

// resolvePorts keeps only the bindings published directly on the host.
// Ports without a host port, or bound to the well-known HTTP ports, are
// reached through the proxy instead.
func resolvePorts(bindings []types.PortBinding) []swarm.PortSpec {
	var ports []swarm.PortSpec
	for _, binding := range bindings {
		if binding.Host == nil || *binding.Host == 80 || *binding.Host == 443 {
			continue
		}
		ports = append(ports, swarm.PortSpec{Published: *binding.Host, Target: binding.Container})
	}
	return ports
}

func envList(vars []types.EnvVar) []string {
	env := make([]string, 0, len(vars))
	for _, v := range vars {
		env = append(env, fmt.Sprintf("%s=%s", v.Key, v.Value))
	}
	return env
}
