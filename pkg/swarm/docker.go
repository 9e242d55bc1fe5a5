package swarm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/registry"
	dockerswarm "github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	dtypes "github.com/dockhand/dockhand/pkg/types"
)

// DockerClient implements Client against the Docker Swarm API.
type DockerClient struct {
	inner *client.Client
}

// NewDockerClient connects to the Docker daemon. The host may be empty, in
// which case the standard environment handling applies.
func NewDockerClient(host string) (*DockerClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerClient{inner: inner}, nil
}

// Close releases the underlying connection.
func (c *DockerClient) Close() error {
	return c.inner.Close()
}

func wrapNotFound(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errdefs.IsNotFound(err) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func labelArgs(selector map[string]string) filters.Args {
	args := filters.NewArgs()
	for k, v := range selector {
		args.Add("label", fmt.Sprintf("%s=%s", k, v))
	}
	return args
}

// EnsureNetwork creates the attachable overlay network if absent and
// returns its id.
func (c *DockerClient) EnsureNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	existing, err := c.inner.NetworkInspect(ctx, name, types.NetworkInspectOptions{})
	if err == nil {
		return existing.ID, nil
	}
	if !errdefs.IsNotFound(err) {
		return "", fmt.Errorf("inspect network %s: %w", name, err)
	}
	resp, err := c.inner.NetworkCreate(ctx, name, types.NetworkCreate{
		Driver:     "overlay",
		Scope:      "swarm",
		Attachable: true,
		Labels:     labels,
	})
	if err != nil {
		return "", fmt.Errorf("create network %s: %w", name, err)
	}
	return resp.ID, nil
}

// InspectNetwork looks up a network by name or id.
func (c *DockerClient) InspectNetwork(ctx context.Context, name string) (Network, error) {
	resource, err := c.inner.NetworkInspect(ctx, name, types.NetworkInspectOptions{})
	if err != nil {
		return Network{}, wrapNotFound(err, "inspect network %s", name)
	}
	return Network{ID: resource.ID, Name: resource.Name}, nil
}

// RemoveNetwork deletes a network.
func (c *DockerClient) RemoveNetwork(ctx context.Context, id string) error {
	if err := c.inner.NetworkRemove(ctx, id); err != nil {
		return wrapNotFound(err, "remove network %s", id)
	}
	return nil
}

// CreateVolume creates a local named volume.
func (c *DockerClient) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	_, err := c.inner.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Driver: "local",
		Labels: labels,
	})
	if err != nil {
		return fmt.Errorf("create volume %s: %w", name, err)
	}
	return nil
}

// ListVolumesByLabel returns the volumes matching every label in selector.
func (c *DockerClient) ListVolumesByLabel(ctx context.Context, selector map[string]string) ([]Volume, error) {
	resp, err := c.inner.VolumeList(ctx, volume.ListOptions{Filters: labelArgs(selector)})
	if err != nil {
		return nil, fmt.Errorf("list volumes: %w", err)
	}
	volumes := make([]Volume, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		volumes = append(volumes, Volume{Name: v.Name, Labels: v.Labels})
	}
	return volumes, nil
}

// RemoveVolume deletes a volume.
func (c *DockerClient) RemoveVolume(ctx context.Context, name string, force bool) error {
	if err := c.inner.VolumeRemove(ctx, name, force); err != nil {
		return wrapNotFound(err, "remove volume %s", name)
	}
	return nil
}

func toServiceSpec(spec WorkloadSpec) dockerswarm.ServiceSpec {
	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		kind := mount.TypeVolume
		if m.Kind == MountKindBind {
			kind = mount.TypeBind
		}
		mounts = append(mounts, mount.Mount{
			Type:     kind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	networks := make([]dockerswarm.NetworkAttachmentConfig, 0, len(spec.Networks))
	for _, n := range spec.Networks {
		networks = append(networks, dockerswarm.NetworkAttachmentConfig{
			Target:  n.Target,
			Aliases: n.Aliases,
		})
	}

	serviceSpec := dockerswarm.ServiceSpec{
		Annotations: dockerswarm.Annotations{
			Name:   spec.Name,
			Labels: spec.Labels,
		},
		TaskTemplate: dockerswarm.TaskSpec{
			ContainerSpec: &dockerswarm.ContainerSpec{
				Image:  spec.Image,
				Args:   spec.Command,
				Env:    spec.Env,
				Labels: spec.Labels,
				Mounts: mounts,
			},
			Networks: networks,
		},
	}

	if spec.RestartPolicy != nil {
		delay := spec.RestartPolicy.Delay
		attempts := spec.RestartPolicy.MaxAttempts
		serviceSpec.TaskTemplate.RestartPolicy = &dockerswarm.RestartPolicy{
			Condition:   dockerswarm.RestartPolicyConditionOnFailure,
			Delay:       &delay,
			MaxAttempts: &attempts,
		}
	}

	if len(spec.Ports) > 0 {
		ports := make([]dockerswarm.PortConfig, 0, len(spec.Ports))
		for _, p := range spec.Ports {
			ports = append(ports, dockerswarm.PortConfig{
				Protocol:      dockerswarm.PortConfigProtocolTCP,
				TargetPort:    uint32(p.Target),
				PublishedPort: uint32(p.Published),
				PublishMode:   dockerswarm.PortConfigPublishModeIngress,
			})
		}
		serviceSpec.EndpointSpec = &dockerswarm.EndpointSpec{Ports: ports}
	}

	return serviceSpec
}

// CreateWorkload submits a new workload.
func (c *DockerClient) CreateWorkload(ctx context.Context, spec WorkloadSpec) (dtypes.WorkloadHandle, error) {
	resp, err := c.inner.ServiceCreate(ctx, toServiceSpec(spec), types.ServiceCreateOptions{})
	if err != nil {
		return dtypes.WorkloadHandle{}, fmt.Errorf("create workload %s: %w", spec.Name, err)
	}
	return dtypes.WorkloadHandle{ID: resp.ID, Name: spec.Name}, nil
}

// UpdateWorkload replaces the spec of an existing workload.
func (c *DockerClient) UpdateWorkload(ctx context.Context, name string, spec WorkloadSpec) (dtypes.WorkloadHandle, error) {
	current, _, err := c.inner.ServiceInspectWithRaw(ctx, name, types.ServiceInspectOptions{})
	if err != nil {
		return dtypes.WorkloadHandle{}, wrapNotFound(err, "inspect workload %s", name)
	}
	_, err = c.inner.ServiceUpdate(ctx, current.ID, current.Version, toServiceSpec(spec), types.ServiceUpdateOptions{})
	if err != nil {
		return dtypes.WorkloadHandle{}, fmt.Errorf("update workload %s: %w", name, err)
	}
	return dtypes.WorkloadHandle{ID: current.ID, Name: name}, nil
}

func toWorkload(service dockerswarm.Service) Workload {
	w := Workload{ID: service.ID, Name: service.Spec.Name}
	for _, n := range service.Spec.TaskTemplate.Networks {
		w.NetworkIDs = append(w.NetworkIDs, n.Target)
	}
	return w
}

// InspectWorkload looks up a workload by its stable name.
func (c *DockerClient) InspectWorkload(ctx context.Context, name string) (Workload, error) {
	service, _, err := c.inner.ServiceInspectWithRaw(ctx, name, types.ServiceInspectOptions{})
	if err != nil {
		return Workload{}, wrapNotFound(err, "inspect workload %s", name)
	}
	return toWorkload(service), nil
}

// FindWorkloadByLabel returns the first workload carrying the given label.
func (c *DockerClient) FindWorkloadByLabel(ctx context.Context, key, value string) (Workload, error) {
	args := filters.NewArgs(filters.Arg("label", fmt.Sprintf("%s=%s", key, value)))
	services, err := c.inner.ServiceList(ctx, types.ServiceListOptions{Filters: args})
	if err != nil {
		return Workload{}, fmt.Errorf("list workloads by label %s=%s: %w", key, value, err)
	}
	if len(services) == 0 {
		return Workload{}, fmt.Errorf("workload with label %s=%s: %w", key, value, ErrNotFound)
	}
	return toWorkload(services[0]), nil
}

// ScaleWorkload sets the replica count of a workload.
func (c *DockerClient) ScaleWorkload(ctx context.Context, name string, replicas uint64) error {
	service, _, err := c.inner.ServiceInspectWithRaw(ctx, name, types.ServiceInspectOptions{})
	if err != nil {
		return wrapNotFound(err, "inspect workload %s", name)
	}
	spec := service.Spec
	spec.Mode = dockerswarm.ServiceMode{
		Replicated: &dockerswarm.ReplicatedService{Replicas: &replicas},
	}
	_, err = c.inner.ServiceUpdate(ctx, service.ID, service.Version, spec, types.ServiceUpdateOptions{})
	if err != nil {
		return fmt.Errorf("scale workload %s to %d: %w", name, replicas, err)
	}
	return nil
}

// RemoveWorkload deletes a workload.
func (c *DockerClient) RemoveWorkload(ctx context.Context, name string) error {
	if err := c.inner.ServiceRemove(ctx, name); err != nil {
		return wrapNotFound(err, "remove workload %s", name)
	}
	return nil
}

// UpdateWorkloadNetworks rewrites the workload's network attachment list.
func (c *DockerClient) UpdateWorkloadNetworks(ctx context.Context, id string, networkIDs []string) error {
	service, _, err := c.inner.ServiceInspectWithRaw(ctx, id, types.ServiceInspectOptions{})
	if err != nil {
		return wrapNotFound(err, "inspect workload %s", id)
	}
	spec := service.Spec
	networks := make([]dockerswarm.NetworkAttachmentConfig, 0, len(networkIDs))
	for _, netID := range networkIDs {
		networks = append(networks, dockerswarm.NetworkAttachmentConfig{Target: netID})
	}
	spec.TaskTemplate.Networks = networks
	_, err = c.inner.ServiceUpdate(ctx, service.ID, service.Version, spec, types.ServiceUpdateOptions{})
	if err != nil {
		return fmt.Errorf("update networks of workload %s: %w", id, err)
	}
	return nil
}

// ListTasks returns the tasks of a workload, optionally filtered by label.
func (c *DockerClient) ListTasks(ctx context.Context, workloadName string, labelSelector map[string]string) ([]Task, error) {
	args := labelArgs(labelSelector)
	args.Add("service", workloadName)
	raw, err := c.inner.TaskList(ctx, types.TaskListOptions{Filters: args})
	if err != nil {
		return nil, fmt.Errorf("list tasks of %s: %w", workloadName, err)
	}
	tasks := make([]Task, 0, len(raw))
	for _, t := range raw {
		task := Task{
			ID:           t.ID,
			VersionIndex: t.Version.Index,
			State:        TaskState(t.Status.State),
			Message:      t.Status.Message,
			Err:          t.Status.Err,
			Timestamp:    t.Status.Timestamp,
		}
		if t.Status.ContainerStatus != nil {
			task.ContainerID = t.Status.ContainerStatus.ContainerID
			exitCode := t.Status.ContainerStatus.ExitCode
			task.ExitCode = &exitCode
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// ExecInContainer runs a command in a running container and returns the
// exit code and combined stdout/stderr.
func (c *DockerClient) ExecInContainer(ctx context.Context, containerID string, cmd []string) (int, string, error) {
	created, err := c.inner.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return 0, "", wrapNotFound(err, "exec create in %s", containerID)
	}

	attach, err := c.inner.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return 0, "", fmt.Errorf("exec attach in %s: %w", containerID, err)
	}
	defer attach.Close()

	var output bytes.Buffer
	if _, err := stdcopy.StdCopy(&output, &output, attach.Reader); err != nil && ctx.Err() == nil {
		return 0, "", fmt.Errorf("exec read in %s: %w", containerID, err)
	}
	if ctx.Err() != nil {
		return 0, output.String(), ctx.Err()
	}

	inspect, err := c.inner.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return 0, output.String(), fmt.Errorf("exec inspect in %s: %w", containerID, err)
	}
	return inspect.ExitCode, output.String(), nil
}

func encodeAuth(creds *dtypes.RegistryCredentials) (string, error) {
	if creds == nil {
		return "", nil
	}
	return registry.EncodeAuthConfig(registry.AuthConfig{
		Username: creds.Username,
		Password: creds.Password,
	})
}

type pullMessage struct {
	Error string `json:"error"`
}

// PullImage pulls an image, authenticating when credentials are given. The
// pull stream is consumed to completion; an in-stream error fails the pull.
func (c *DockerClient) PullImage(ctx context.Context, ref string, creds *dtypes.RegistryCredentials) error {
	auth, err := encodeAuth(creds)
	if err != nil {
		return fmt.Errorf("encode registry auth: %w", err)
	}
	body, err := c.inner.ImagePull(ctx, ref, image.PullOptions{RegistryAuth: auth})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer body.Close()

	decoder := json.NewDecoder(body)
	for {
		var msg pullMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("pull image %s: decode progress: %w", ref, err)
		}
		if msg.Error != "" {
			return fmt.Errorf("pull image %s: %s", ref, msg.Error)
		}
	}
}

// ImageExists checks the image manifest against its registry.
func (c *DockerClient) ImageExists(ctx context.Context, ref string, creds *dtypes.RegistryCredentials) bool {
	auth, err := encodeAuth(creds)
	if err != nil {
		return false
	}
	if _, err := c.inner.DistributionInspect(ctx, ref, auth); err != nil {
		return false
	}
	return true
}

// AwaitWorkloadUpdate blocks until the cluster emits an event confirming
// that an update of the workload completed. The caller bounds the wait via
// the context; the event read itself never blocks past it.
func (c *DockerClient) AwaitWorkloadUpdate(ctx context.Context, workloadID string) error {
	args := filters.NewArgs(filters.Arg("service", workloadID))
	messages, errs := c.inner.Events(ctx, types.EventsOptions{Filters: args})
	for {
		select {
		case msg := <-messages:
			if msg.Type == events.ServiceEventType &&
				msg.Action == events.ActionUpdate &&
				msg.Actor.Attributes["updatestate.new"] == "completed" {
				return nil
			}
		case err := <-errs:
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return fmt.Errorf("waiting for update of workload %s: %w", workloadID, ctx.Err())
			}
			return fmt.Errorf("waiting for update of workload %s: %w", workloadID, err)
		case <-ctx.Done():
			return fmt.Errorf("waiting for update of workload %s: %w", workloadID, ctx.Err())
		}
	}
}

var _ Client = (*DockerClient)(nil)
