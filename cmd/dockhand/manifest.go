package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dockhand/dockhand/pkg/types"
)

// Manifest is the YAML envelope for a service definition.
type Manifest struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ManifestMetadata `yaml:"metadata"`
	Spec       ServiceSpec      `yaml:"spec"`
}

type ManifestMetadata struct {
	ID      string `yaml:"id"`
	Project string `yaml:"project"`
	Slug    string `yaml:"slug"`
}

type ServiceSpec struct {
	Image        ImageSpec         `yaml:"image"`
	Command      []string          `yaml:"command,omitempty"`
	Alias        string            `yaml:"alias,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
	Ports        []PortSpec        `yaml:"ports,omitempty"`
	Volumes      []VolumeSpec      `yaml:"volumes,omitempty"`
	Routes       []RouteYAML       `yaml:"routes,omitempty"`
	Healthcheck  *HealthcheckYAML  `yaml:"healthcheck,omitempty"`
	RegistryAuth *RegistryAuthYAML `yaml:"registryAuth,omitempty"`
}

type ImageSpec struct {
	Repository string `yaml:"repository"`
	Tag        string `yaml:"tag,omitempty"`
}

type PortSpec struct {
	Host      *uint16 `yaml:"host,omitempty"`
	Container uint16  `yaml:"container"`
}

type VolumeSpec struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name,omitempty"`
	ContainerPath string `yaml:"containerPath"`
	HostPath      string `yaml:"hostPath,omitempty"`
	Mode          string `yaml:"mode,omitempty"`
	CreatedAt     string `yaml:"createdAt,omitempty"`
}

type RouteYAML struct {
	Domain      string `yaml:"domain"`
	BasePath    string `yaml:"basePath,omitempty"`
	StripPrefix bool   `yaml:"stripPrefix,omitempty"`
}

type HealthcheckYAML struct {
	Type            string `yaml:"type"`
	Value           string `yaml:"value"`
	IntervalSeconds int    `yaml:"intervalSeconds,omitempty"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds,omitempty"`
}

type RegistryAuthYAML struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// loadManifest reads and validates a service manifest file.
func loadManifest(filename string) (*types.ServiceDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if manifest.Kind != "Service" {
		return nil, fmt.Errorf("unsupported resource kind: %s", manifest.Kind)
	}
	return manifestToDefinition(&manifest)
}

func manifestToDefinition(manifest *Manifest) (*types.ServiceDefinition, error) {
	meta := manifest.Metadata
	spec := manifest.Spec

	if meta.ID == "" || meta.Project == "" {
		return nil, fmt.Errorf("metadata.id and metadata.project are required")
	}
	if spec.Image.Repository == "" {
		return nil, fmt.Errorf("spec.image.repository is required")
	}

	def := &types.ServiceDefinition{
		ID:              meta.ID,
		ProjectID:       meta.Project,
		Slug:            meta.Slug,
		ImageRepository: spec.Image.Repository,
		ImageTag:        spec.Image.Tag,
		Command:         spec.Command,
		NetworkAlias:    spec.Alias,
	}

	if spec.RegistryAuth != nil {
		def.Credentials = &types.RegistryCredentials{
			Username: spec.RegistryAuth.Username,
			Password: spec.RegistryAuth.Password,
		}
	}

	envKeys := make([]string, 0, len(spec.Env))
	for key := range spec.Env {
		envKeys = append(envKeys, key)
	}
	sort.Strings(envKeys)
	for _, key := range envKeys {
		def.EnvVariables = append(def.EnvVariables, types.EnvVar{Key: key, Value: spec.Env[key]})
	}

	for _, port := range spec.Ports {
		def.Ports = append(def.Ports, types.PortBinding{Host: port.Host, Container: port.Container})
	}

	for _, volume := range spec.Volumes {
		mode := types.VolumeMode(volume.Mode)
		if mode == "" {
			mode = types.VolumeModeReadWrite
		}
		createdAt := time.Time{}
		if volume.CreatedAt != "" {
			parsed, err := time.Parse(time.RFC3339, volume.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("volume %s: bad createdAt: %w", volume.ID, err)
			}
			createdAt = parsed
		}
		def.Volumes = append(def.Volumes, types.VolumeMount{
			ID:            volume.ID,
			Name:          volume.Name,
			ContainerPath: volume.ContainerPath,
			HostPath:      volume.HostPath,
			Mode:          mode,
			CreatedAt:     createdAt,
		})
	}

	for _, route := range spec.Routes {
		basePath := route.BasePath
		if basePath == "" {
			basePath = "/"
		}
		def.Routes = append(def.Routes, types.RouteSpec{
			Domain:      route.Domain,
			BasePath:    basePath,
			StripPrefix: route.StripPrefix,
		})
	}

	if spec.Healthcheck != nil {
		kind := types.HealthCheckKind(spec.Healthcheck.Type)
		if kind != types.HealthCheckCommand && kind != types.HealthCheckPath {
			return nil, fmt.Errorf("unsupported healthcheck type: %s", spec.Healthcheck.Type)
		}
		def.HealthCheck = &types.HealthCheckSpec{
			Kind:            kind,
			Value:           spec.Healthcheck.Value,
			IntervalSeconds: spec.Healthcheck.IntervalSeconds,
			TimeoutSeconds:  spec.Healthcheck.TimeoutSeconds,
		}
	}

	return def, nil
}
