package types

import "time"

// Archived snapshots are point-in-time copies taken the moment a project or
// service is marked archived. They are the sole input to resource
// reclamation: by the time teardown runs, the live records may already be
// gone, so a snapshot must carry everything needed to locate and destroy
// the cluster resources it refers to.

// ArchivedProject is the snapshot of a project at archival time.
type ArchivedProject struct {
	OriginalID string
	Slug       string
	Services   []ArchivedService
	ArchivedAt time.Time
}

// ArchivedService is the snapshot of a service at archival time.
type ArchivedService struct {
	OriginalID string
	ProjectID  string
	Slug       string

	ImageRepository string
	ImageTag        string
	Command         []string

	Volumes []ArchivedVolume
	Ports   []ArchivedPortBinding
	EnvVars []ArchivedEnvVar
	Routes  []ArchivedRoute

	// PreviewURLs are the preview-deployment domains this service owned;
	// each one is a whole proxy domain to delete.
	PreviewURLs []string

	ArchivedAt time.Time
}

// WorkloadName returns the cluster name of the archived service's workload.
func (s *ArchivedService) WorkloadName() string {
	return WorkloadName(s.ProjectID, s.OriginalID)
}

// ArchivedVolume is the snapshot of a volume mount.
type ArchivedVolume struct {
	OriginalID    string
	Name          string
	ContainerPath string
	HostPath      string
	Mode          VolumeMode
}

// ArchivedPortBinding is the snapshot of a port binding.
type ArchivedPortBinding struct {
	Host      *uint16
	Container uint16
}

// ArchivedRoute is the snapshot of a proxy route.
type ArchivedRoute struct {
	Domain      string
	BasePath    string
	StripPrefix bool
}

// RouteSpec converts the archived route back to a live route spec for
// proxy teardown.
func (r ArchivedRoute) RouteSpec() RouteSpec {
	return RouteSpec{Domain: r.Domain, BasePath: r.BasePath, StripPrefix: r.StripPrefix}
}

// ArchivedEnvVar is the snapshot of an environment variable.
type ArchivedEnvVar struct {
	Key   string
	Value string
}

// SnapshotService captures a service definition and the preview URLs of its
// deployments into an archival snapshot. The image tag is taken from the
// current production deployment when one exists.
func SnapshotService(def *ServiceDefinition, deployments []Deployment, now time.Time) ArchivedService {
	snap := ArchivedService{
		OriginalID:      def.ID,
		ProjectID:       def.ProjectID,
		Slug:            def.Slug,
		ImageRepository: def.ImageRepository,
		ImageTag:        def.ImageTag,
		Command:         append([]string(nil), def.Command...),
		ArchivedAt:      now,
	}
	for _, d := range deployments {
		if d.IsCurrentProduction && d.ImageTag != "" {
			snap.ImageTag = d.ImageTag
		}
		if d.PreviewURL != "" {
			snap.PreviewURLs = append(snap.PreviewURLs, d.PreviewURL)
		}
	}
	for _, v := range def.Volumes {
		snap.Volumes = append(snap.Volumes, ArchivedVolume{
			OriginalID:    v.ID,
			Name:          v.Name,
			ContainerPath: v.ContainerPath,
			HostPath:      v.HostPath,
			Mode:          v.Mode,
		})
	}
	for _, p := range def.Ports {
		snap.Ports = append(snap.Ports, ArchivedPortBinding{Host: p.Host, Container: p.Container})
	}
	for _, e := range def.EnvVariables {
		snap.EnvVars = append(snap.EnvVars, ArchivedEnvVar{Key: e.Key, Value: e.Value})
	}
	for _, r := range def.Routes {
		snap.Routes = append(snap.Routes, ArchivedRoute{
			Domain:      r.Domain,
			BasePath:    r.BasePath,
			StripPrefix: r.StripPrefix,
		})
	}
	return snap
}

// SnapshotProject captures a project and its services into an archival
// snapshot.
func SnapshotProject(projectID, slug string, services []ArchivedService, now time.Time) ArchivedProject {
	return ArchivedProject{
		OriginalID: projectID,
		Slug:       slug,
		Services:   services,
		ArchivedAt: now,
	}
}
