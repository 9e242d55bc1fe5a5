package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dockhand/dockhand/pkg/log"
	"github.com/dockhand/dockhand/pkg/metrics"
	"github.com/dockhand/dockhand/pkg/types"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a service from a manifest",
	Long: `Deploy a service described by a YAML manifest.

The full pipeline runs as one unit of work: project network and
volumes, workload create-or-update, proxy routes, then the health
watch that decides the deployment's final status.

Examples:
  # Deploy a service
  dockhand deploy -f service.yaml

  # Deploy with an auth-gated preview URL
  dockhand deploy -f service.yaml --preview`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringP("file", "f", "", "Service manifest to deploy (required)")
	deployCmd.Flags().Bool("preview", false, "Expose the deployment at its own preview URL")
	deployCmd.Flags().String("healthcheck-token", "", "Credential passed to path health probes")
	_ = deployCmd.MarkFlagRequired("file")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	preview, _ := cmd.Flags().GetBool("preview")
	token, _ := cmd.Flags().GetString("healthcheck-token")

	def, err := loadManifest(filename)
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	deployment, err := prepareDeployment(rt, def, preview)
	if err != nil {
		return err
	}
	fmt.Printf("Deploying %s/%s as %s (slot %s)\n", def.ProjectID, def.Slug, deployment.Hash, deployment.Slot)

	logger := log.WithDeployment(deployment.Hash)
	status, reason, err := executeDeployment(ctx, rt, def, deployment, token)
	logger.Info().Str("status", string(status)).Str("reason", reason).Msg("deployment finished")
	metrics.DeploymentsTotal.WithLabelValues(strings.ToLower(string(status))).Inc()
	if recordErr := rt.db.SetDeploymentStatus(deployment.Hash, status, reason); recordErr != nil {
		return recordErr
	}
	if err != nil {
		return fmt.Errorf("deployment %s failed: %w", deployment.Hash, err)
	}

	if status == types.StatusHealthy {
		if err := rt.db.MarkCurrentProduction(def.ID, deployment.Hash); err != nil {
			return err
		}
		fmt.Printf("✓ Deployment %s is healthy\n", deployment.Hash)
		if deployment.PreviewURL != "" {
			fmt.Printf("  Preview URL: %s\n", deployment.PreviewURL)
		}
		return nil
	}

	fmt.Printf("✗ Deployment %s finished %s: %s\n", deployment.Hash, status, reason)
	return nil
}

// prepareDeployment mints the deployment record: fresh hash, the slot
// opposite the current production one, and a preview URL when asked for.
func prepareDeployment(rt *runtime, def *types.ServiceDefinition, preview bool) (*types.Deployment, error) {
	history, err := rt.db.ListDeploymentsByService(def.ID)
	if err != nil {
		return nil, err
	}

	slot := types.SlotBlue
	redeployOf := ""
	for i := range history {
		if history[i].IsCurrentProduction {
			slot = types.NextSlot(history[i].Slot)
			redeployOf = history[i].Hash
			break
		}
	}

	deployment := &types.Deployment{
		Hash:       types.NewDeploymentHash(),
		ServiceID:  def.ID,
		ProjectID:  def.ProjectID,
		Slot:       slot,
		Status:     types.StatusQueued,
		ImageTag:   def.ImageTag,
		RedeployOf: redeployOf,
		CreatedAt:  time.Now().UTC(),
	}
	if preview {
		deployment.PreviewURL = fmt.Sprintf("%s.%s", deployment.UnprefixedHash(), cfg.PreviewRootDomain)
	}
	if err := rt.db.SaveDeployment(deployment); err != nil {
		return nil, err
	}
	return deployment, nil
}

// executeDeployment runs the provisioning pipeline and health watch. The
// returned status and reason are what gets recorded, whether or not err
// is set.
func executeDeployment(ctx context.Context, rt *runtime, def *types.ServiceDefinition, deployment *types.Deployment, token string) (types.DeploymentStatus, string, error) {
	if err := rt.db.SetDeploymentStatus(deployment.Hash, types.StatusPreparing, ""); err != nil {
		return types.StatusFailed, err.Error(), err
	}

	image := def.ImageForTag(deployment.ImageTag)
	if !rt.cluster.ImageExists(ctx, image, def.Credentials) {
		err := fmt.Errorf("image %s not found in its registry", image)
		return types.StatusFailed, err.Error(), err
	}

	if err := rt.provisioner.CreateProjectResources(ctx, def.ProjectID); err != nil {
		return types.StatusFailed, err.Error(), err
	}
	if err := rt.provisioner.CreateServiceVolumes(ctx, def); err != nil {
		return types.StatusFailed, err.Error(), err
	}

	handle, err := rt.provisioner.Provision(ctx, def, deployment)
	if err != nil {
		return types.StatusFailed, err.Error(), err
	}

	if port := def.HTTPPort(); port != nil {
		for _, route := range def.Routes {
			if err := rt.proxy.EnsureURLRoute(ctx, route, handle.Name, port.Container); err != nil {
				return types.StatusFailed, err.Error(), err
			}
		}
		if deployment.PreviewURL != "" {
			if err := rt.proxy.EnsurePreviewRoute(ctx, deployment.PreviewURL, handle.Name, port.Container); err != nil {
				return types.StatusFailed, err.Error(), err
			}
		}
	}

	if err := rt.db.SetDeploymentStatus(deployment.Hash, types.StatusStarting, ""); err != nil {
		return types.StatusFailed, err.Error(), err
	}
	deployment.Status = types.StatusStarting

	status, reason, err := rt.monitor.Await(ctx, def, deployment, token, true)
	if err != nil {
		return status, reason, err
	}
	return status, reason, nil
}
