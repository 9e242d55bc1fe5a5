package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dockhand/dockhand/pkg/config"
	"github.com/dockhand/dockhand/pkg/health"
	"github.com/dockhand/dockhand/pkg/log"
	"github.com/dockhand/dockhand/pkg/metrics"
	"github.com/dockhand/dockhand/pkg/provision"
	"github.com/dockhand/dockhand/pkg/proxy"
	"github.com/dockhand/dockhand/pkg/reclaim"
	"github.com/dockhand/dockhand/pkg/store"
	"github.com/dockhand/dockhand/pkg/swarm"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfg config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dockhand",
	Short: "Dockhand - deployment control plane for container clusters",
	Long: `Dockhand turns service definitions into running cluster workloads:
it provisions Swarm services, wires them into the reverse proxy,
watches their health, and reclaims everything when a service or
project is archived.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.LogLevel = log.Level(level)
		}
		if cmd.Flags().Changed("log-json") {
			cfg.LogJSON, _ = cmd.Flags().GetBool("log-json")
		}
		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			cfg.MetricsAddr = addr
		}

		log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
		metrics.Register()
		if cfg.MetricsAddr != "" {
			go func() {
				logger := log.WithComponent("metrics")
				if err := metrics.Serve(cfg.MetricsAddr); err != nil {
					logger.Error().Err(err).Msg("metrics listener stopped")
				}
			}()
		}
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Dockhand version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit JSON logs")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Expose Prometheus metrics on this address")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(statusCmd)
}

// runtime bundles the long-lived clients a command needs. Everything is
// constructed once per invocation and passed by reference; there is no
// lazy global handle.
type runtime struct {
	cluster     *swarm.DockerClient
	db          *store.BoltStore
	proxy       *proxy.Manager
	provisioner *provision.Provisioner
	monitor     *health.Monitor
	reclaimer   *reclaim.Reclaimer
}

func newRuntime() (*runtime, error) {
	cluster, err := swarm.NewDockerClient(cfg.DockerHost)
	if err != nil {
		return nil, fmt.Errorf("connect to cluster: %w", err)
	}

	db, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		cluster.Close()
		return nil, fmt.Errorf("open local store: %w", err)
	}

	routes := proxy.NewManager(proxy.Settings{
		AdminURL:       cfg.ProxyAdminURL,
		ServerName:     cfg.ProxyServerName,
		ServerNodeID:   cfg.ProxyServerNodeID,
		AppUpstream:    cfg.AppUpstream,
		IntrospectPath: cfg.AuthIntrospectPath,
		Timeout:        cfg.ProxyTimeout,
	})

	return &runtime{
		cluster:     cluster,
		db:          db,
		proxy:       routes,
		provisioner: provision.NewProvisioner(cluster, cfg.PrivateDomain),
		monitor: health.NewMonitor(cluster, health.Settings{
			DefaultTimeout:  cfg.HealthTimeout,
			DefaultInterval: cfg.HealthInterval,
			ProbeScheme:     cfg.ProbeScheme,
			PrivateDomain:   cfg.PrivateDomain,
		}),
		reclaimer: reclaim.NewReclaimer(cluster, routes, cfg.ClusterTimeout),
	}, nil
}

func (r *runtime) close() {
	r.db.Close()
	r.cluster.Close()
}

var statusCmd = &cobra.Command{
	Use:   "status HASH",
	Short: "Show a deployment's recorded status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		deployment, err := rt.db.GetDeployment(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Deployment: %s\n", deployment.Hash)
		fmt.Printf("  Service:    %s\n", deployment.ServiceID)
		fmt.Printf("  Project:    %s\n", deployment.ProjectID)
		fmt.Printf("  Slot:       %s\n", deployment.Slot)
		fmt.Printf("  Status:     %s\n", deployment.Status)
		if deployment.StatusReason != "" {
			fmt.Printf("  Reason:     %s\n", deployment.StatusReason)
		}
		fmt.Printf("  Image tag:  %s\n", deployment.ImageTag)
		if deployment.PreviewURL != "" {
			fmt.Printf("  Preview:    %s\n", deployment.PreviewURL)
		}
		fmt.Printf("  Production: %v\n", deployment.IsCurrentProduction)
		return nil
	},
}
