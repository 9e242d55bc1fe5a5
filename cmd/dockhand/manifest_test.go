package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockhand/dockhand/pkg/types"
)

const sampleManifest = `apiVersion: dockhand/v1
kind: Service
metadata:
  id: svc-1
  project: prj-1
  slug: web
spec:
  image:
    repository: registry.example.com/web
    tag: v3
  alias: web
  command: ["./server", "--port", "8080"]
  env:
    PORT: "8080"
    DEBUG: "false"
  ports:
    - container: 8080
    - host: 5432
      container: 5432
  volumes:
    - id: vol-1
      name: data
      containerPath: /data
    - id: host-1
      containerPath: /etc/conf
      hostPath: /srv/conf
      mode: READ_ONLY
  routes:
    - domain: app.example.com
      basePath: /api
      stripPrefix: true
  healthcheck:
    type: PATH
    value: /healthz
    timeoutSeconds: 20
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadManifest(t *testing.T) {
	def, err := loadManifest(writeManifest(t, sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "svc-1", def.ID)
	assert.Equal(t, "prj-1", def.ProjectID)
	assert.Equal(t, "registry.example.com/web:v3", def.Image())
	assert.Equal(t, []string{"./server", "--port", "8080"}, def.Command)

	// Env keys come out sorted.
	assert.Equal(t, []types.EnvVar{
		{Key: "DEBUG", Value: "false"},
		{Key: "PORT", Value: "8080"},
	}, def.EnvVariables)

	require.Len(t, def.Ports, 2)
	assert.Nil(t, def.Ports[0].Host)
	require.NotNil(t, def.Ports[1].Host)
	assert.Equal(t, uint16(5432), *def.Ports[1].Host)

	require.Len(t, def.Volumes, 2)
	assert.Equal(t, types.VolumeModeReadWrite, def.Volumes[0].Mode)
	assert.True(t, def.Volumes[1].IsHostPath())
	assert.Equal(t, types.VolumeModeReadOnly, def.Volumes[1].Mode)

	require.Len(t, def.Routes, 1)
	assert.Equal(t, types.RouteSpec{Domain: "app.example.com", BasePath: "/api", StripPrefix: true}, def.Routes[0])

	require.NotNil(t, def.HealthCheck)
	assert.Equal(t, types.HealthCheckPath, def.HealthCheck.Kind)
	assert.Equal(t, 20, def.HealthCheck.TimeoutSeconds)
}

func TestLoadManifestRejectsWrongKind(t *testing.T) {
	_, err := loadManifest(writeManifest(t, "apiVersion: dockhand/v1\nkind: Volume\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported resource kind")
}

func TestLoadManifestRequiresIdentity(t *testing.T) {
	manifest := `apiVersion: dockhand/v1
kind: Service
metadata:
  slug: web
spec:
  image:
    repository: registry.example.com/web
`
	_, err := loadManifest(writeManifest(t, manifest))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata.id")
}

func TestLoadManifestRejectsUnknownHealthcheck(t *testing.T) {
	manifest := `apiVersion: dockhand/v1
kind: Service
metadata:
  id: svc-1
  project: prj-1
spec:
  image:
    repository: registry.example.com/web
  healthcheck:
    type: TCP
    value: "5432"
`
	_, err := loadManifest(writeManifest(t, manifest))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported healthcheck type")
}
