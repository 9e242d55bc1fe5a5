package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dockhand/dockhand/pkg/log"
	"github.com/dockhand/dockhand/pkg/metrics"
	"github.com/dockhand/dockhand/pkg/swarm"
	"github.com/dockhand/dockhand/pkg/types"
)

// probeCap bounds a single probe attempt. The probe's own deadline is
// min(remaining budget, probeCap) so an inner attempt can never outlive
// the outer loop's wall-clock budget.
const probeCap = 5 * time.Second

// DefaultUnhealthyReason is reported when the time budget runs out before
// the deployment ever looked healthy.
const DefaultUnhealthyReason = "the service failed to meet the healthcheck requirements when starting the service"

// ErrNoStatus is returned when the budget elapsed before a single task
// observation could be made.
var ErrNoStatus = errors.New("health monitor ran out of time before observing any task")

// Settings tunes the Monitor. Zero values get sensible defaults.
type Settings struct {
	DefaultTimeout  time.Duration
	DefaultInterval time.Duration
	// ProbeScheme is the URL scheme for path probes, "http" by default.
	ProbeScheme string
	// PrivateDomain qualifies the fallback probe host when a deployment
	// exposes no route of its own.
	PrivateDomain string
}

// Monitor polls a deployment's tasks until it can report a final status.
type Monitor struct {
	cluster  swarm.Client
	settings Settings
	client   *http.Client
	logger   zerolog.Logger

	// Injected for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewMonitor builds a Monitor on the given cluster client.
func NewMonitor(cluster swarm.Client, settings Settings) *Monitor {
	if settings.DefaultTimeout == 0 {
		settings.DefaultTimeout = 30 * time.Second
	}
	if settings.DefaultInterval == 0 {
		settings.DefaultInterval = 5 * time.Second
	}
	if settings.ProbeScheme == "" {
		settings.ProbeScheme = "http"
	}
	return &Monitor{
		cluster:  cluster,
		settings: settings,
		client:   &http.Client{},
		logger:   log.WithComponent("health"),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Await blocks until the deployment reaches a reportable status or the
// health check's time budget runs out. The returned reason is a
// human-readable explanation for non-healthy outcomes.
//
// With retryUntilHealthy set, non-healthy observations are re-polled
// until the budget ends; otherwise the first observation is returned.
// Cancellation is honored between iterations only, never mid-probe.
func (m *Monitor) Await(ctx context.Context, def *types.ServiceDefinition, deployment *types.Deployment, token string, retryUntilHealthy bool) (types.DeploymentStatus, string, error) {
	timeout := def.HealthCheck.Timeout(m.settings.DefaultTimeout)
	interval := def.HealthCheck.Interval(m.settings.DefaultInterval)
	workloadName := types.WorkloadName(def.ProjectID, def.ID)

	start := m.now()
	attempts := 0
	var status types.DeploymentStatus
	var reason string

	defer func() {
		metrics.HealthcheckAttempts.Observe(float64(attempts))
		metrics.HealthcheckDuration.Observe(m.now().Sub(start).Seconds())
	}()

	for {
		left := timeout - m.now().Sub(start)
		if left < time.Second {
			break
		}
		select {
		case <-ctx.Done():
			return status, reason, ctx.Err()
		default:
		}

		attempts++
		observed, observedReason, final, err := m.observe(ctx, def, deployment, workloadName, token, left)
		if err != nil {
			// Transient cluster errors are absorbed into the loop; the
			// budget decides when to give up.
			m.logger.Warn().Err(err).Str("deployment_hash", deployment.Hash).Msg("task poll failed")
		} else {
			status, reason = observed, observedReason
		}
		if final {
			return status, fillReason(status, reason), nil
		}
		if status == types.StatusHealthy || !retryUntilHealthy {
			if status != "" {
				return status, fillReason(status, reason), nil
			}
		}

		left = timeout - m.now().Sub(start)
		m.sleep(minDuration(interval, left-time.Second, left))
	}

	if status == "" {
		return types.StatusUnhealthy, DefaultUnhealthyReason, ErrNoStatus
	}
	return status, fillReason(status, reason), nil
}

func fillReason(status types.DeploymentStatus, reason string) string {
	if status != types.StatusHealthy && reason == "" {
		return DefaultUnhealthyReason
	}
	return reason
}

// observe takes one snapshot of the deployment's tasks and maps it to a
// status. final reports that the loop must stop immediately, regardless
// of the retry flag.
func (m *Monitor) observe(ctx context.Context, def *types.ServiceDefinition, deployment *types.Deployment, workloadName, token string, left time.Duration) (status types.DeploymentStatus, reason string, final bool, err error) {
	tasks, err := m.cluster.ListTasks(ctx, workloadName, map[string]string{
		types.LabelDeploymentHash: deployment.Hash,
	})
	if err != nil {
		return "", "", false, err
	}

	if len(tasks) == 0 {
		switch deployment.Status {
		case types.StatusHealthy, types.StatusStarting, types.StatusRestarting:
			return types.StatusUnhealthy, "manually scaled down", true, nil
		}
		return "", "", false, nil
	}

	task := mostRecentTask(tasks)
	status = mapTaskState(task.State)
	if status == types.StatusStarting && len(tasks) > 1 {
		status = types.StatusRestarting
	}

	// The cluster's own words about the task, error first.
	reason = task.Err
	if reason == "" {
		reason = task.Message
	}

	// A shutdown task that exited non-zero or carries a task error is a
	// failure, whatever the base mapping says.
	if task.State == swarm.TaskStateShutdown {
		if (task.ExitCode != nil && *task.ExitCode != 0) || task.Err != "" {
			return types.StatusUnhealthy, reason, false, nil
		}
	}

	if status == types.StatusHealthy && def.HealthCheck != nil {
		return m.probe(ctx, def, deployment, token, task.ContainerID, left)
	}
	if status == types.StatusUnhealthy || status == types.StatusOffline {
		return status, reason, false, nil
	}
	return status, "", false, nil
}

// probe runs the service's custom health check under a deadline of
// min(left, probeCap). A probe that exceeds its deadline ends the whole
// loop with a timeout reason.
func (m *Monitor) probe(ctx context.Context, def *types.ServiceDefinition, deployment *types.Deployment, token, containerID string, left time.Duration) (types.DeploymentStatus, string, bool, error) {
	budget := minDuration(left, probeCap)
	probeCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	switch def.HealthCheck.Kind {
	case types.HealthCheckCommand:
		exitCode, output, err := m.cluster.ExecInContainer(probeCtx, containerID, []string{"sh", "-c", def.HealthCheck.Value})
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return types.StatusUnhealthy, fmt.Sprintf("healthcheck timed out after %s", budget), true, nil
		}
		if err != nil {
			return types.StatusUnhealthy, err.Error(), false, nil
		}
		if exitCode == 0 {
			return types.StatusHealthy, "", false, nil
		}
		return types.StatusUnhealthy, strings.TrimSpace(output), false, nil

	case types.HealthCheckPath:
		url := fmt.Sprintf("%s://%s%s", m.settings.ProbeScheme, m.probeHost(def, deployment), def.HealthCheck.Value)
		req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
		if err != nil {
			return types.StatusUnhealthy, err.Error(), false, nil
		}
		req.Header.Set("Authorization", "Token "+token)

		resp, err := m.client.Do(req)
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return types.StatusUnhealthy, fmt.Sprintf("healthcheck timed out after %s", budget), true, nil
		}
		if err != nil {
			return types.StatusUnhealthy, err.Error(), false, nil
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusOK {
			return types.StatusHealthy, "", false, nil
		}
		return types.StatusUnhealthy, strings.TrimSpace(string(body)), false, nil
	}
	return types.StatusUnhealthy, fmt.Sprintf("unknown healthcheck kind %q", def.HealthCheck.Kind), false, nil
}

// probeHost picks the host a path probe targets: the deployment's own
// preview URL when it has one, else the service's first routed domain,
// else the slot-qualified alias on the project network.
func (m *Monitor) probeHost(def *types.ServiceDefinition, deployment *types.Deployment) string {
	if deployment.PreviewURL != "" {
		return deployment.PreviewURL
	}
	if len(def.Routes) > 0 {
		return def.Routes[0].Domain
	}
	return fmt.Sprintf("%s.%s.%s", def.NetworkAlias,
		strings.ToLower(string(deployment.Slot)), m.settings.PrivateDomain)
}

// mostRecentTask picks the task with the highest cluster write version.
// Ties on the version index are broken by the greatest task id, which is
// deterministic where iteration order is not.
func mostRecentTask(tasks []swarm.Task) swarm.Task {
	sorted := append([]swarm.Task(nil), tasks...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].VersionIndex != sorted[j].VersionIndex {
			return sorted[i].VersionIndex > sorted[j].VersionIndex
		}
		return sorted[i].ID > sorted[j].ID
	})
	return sorted[0]
}

// mapTaskState is the base task-state to deployment-status mapping,
// before restart detection and probe refinements.
func mapTaskState(state swarm.TaskState) types.DeploymentStatus {
	switch state {
	case swarm.TaskStateNew, swarm.TaskStatePending, swarm.TaskStateAssigned,
		swarm.TaskStateAccepted, swarm.TaskStateReady, swarm.TaskStatePreparing,
		swarm.TaskStateStarting:
		return types.StatusStarting
	case swarm.TaskStateRunning:
		return types.StatusHealthy
	case swarm.TaskStateComplete, swarm.TaskStateShutdown, swarm.TaskStateRemove:
		return types.StatusOffline
	case swarm.TaskStateFailed, swarm.TaskStateRejected, swarm.TaskStateOrphaned:
		return types.StatusUnhealthy
	}
	return types.StatusUnhealthy
}

func minDuration(ds ...time.Duration) time.Duration {
	min := ds[0]
	for _, d := range ds[1:] {
		if d < min {
			min = d
		}
	}
	return min
}
