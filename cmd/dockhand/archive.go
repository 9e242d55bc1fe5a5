package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dockhand/dockhand/pkg/log"
	"github.com/dockhand/dockhand/pkg/types"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive services and projects, reclaiming their resources",
}

var archiveServiceCmd = &cobra.Command{
	Use:   "service",
	Short: "Archive a service and tear down its cluster resources",
	Long: `Archive a service: snapshot what it owns, then destroy its proxy
routes, workload and volumes. The snapshot is consumed exactly once,
so re-running after a partial failure is safe.`,
	RunE: runArchiveService,
}

var archiveProjectCmd = &cobra.Command{
	Use:   "project PROJECT_ID",
	Short: "Archive a project and remove its overlay network",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveProject,
}

func init() {
	archiveServiceCmd.Flags().StringP("file", "f", "", "Manifest of the service to archive (required)")
	_ = archiveServiceCmd.MarkFlagRequired("file")

	archiveProjectCmd.Flags().String("slug", "", "Project slug recorded in the snapshot")

	archiveCmd.AddCommand(archiveServiceCmd)
	archiveCmd.AddCommand(archiveProjectCmd)
}

func runArchiveService(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
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

	deployments, err := rt.db.ListDeploymentsByService(def.ID)
	if err != nil {
		return err
	}

	snapshot := types.SnapshotService(def, deployments, time.Now().UTC())
	if err := rt.db.PutServiceSnapshot(&snapshot); err != nil {
		return err
	}

	consumed, err := rt.db.PopServiceSnapshot(def.ID)
	if err != nil {
		return err
	}
	logger := log.WithService(def.ID)
	logger.Info().Str("workload", consumed.WorkloadName()).Msg("reclaiming service resources")
	if err := rt.reclaimer.ReclaimService(ctx, consumed); err != nil {
		return fmt.Errorf("reclaim service %s: %w", def.ID, err)
	}

	for i := range deployments {
		if deployments[i].Status.IsTerminal() {
			continue
		}
		if err := rt.db.SetDeploymentStatus(deployments[i].Hash, types.StatusOffline, "service archived"); err != nil {
			return err
		}
	}

	fmt.Printf("✓ Service %s archived\n", def.Slug)
	return nil
}

func runArchiveProject(cmd *cobra.Command, args []string) error {
	projectID := args[0]
	slug, _ := cmd.Flags().GetString("slug")

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()
	ctx := cmd.Context()

	snapshot := types.SnapshotProject(projectID, slug, nil, time.Now().UTC())
	if err := rt.db.PutProjectSnapshot(&snapshot); err != nil {
		return err
	}

	consumed, err := rt.db.PopProjectSnapshot(projectID)
	if err != nil {
		return err
	}
	logger := log.WithProject(projectID)
	logger.Info().Msg("reclaiming project network")
	if err := rt.reclaimer.ReclaimProject(ctx, consumed); err != nil {
		return fmt.Errorf("reclaim project %s: %w", projectID, err)
	}

	fmt.Printf("✓ Project %s archived\n", projectID)
	return nil
}
