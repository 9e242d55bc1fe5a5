package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func uint16Ptr(v uint16) *uint16 { return &v }

func TestHTTPPort(t *testing.T) {
	def := &ServiceDefinition{
		Ports: []PortBinding{
			{Host: uint16Ptr(5432), Container: 5432},
			{Container: 8080},
		},
	}
	port := def.HTTPPort()
	if assert.NotNil(t, port) {
		assert.Equal(t, uint16(8080), port.Container)
	}

	noHTTP := &ServiceDefinition{
		Ports: []PortBinding{{Host: uint16Ptr(9000), Container: 9000}},
	}
	assert.Nil(t, noHTTP.HTTPPort())
}

func TestNetworkAliases(t *testing.T) {
	def := &ServiceDefinition{NetworkAlias: "web"}
	dep := &Deployment{Slot: SlotGreen}

	aliases := dep.NetworkAliases(def, "internal.example")
	assert.Equal(t, []string{"web.internal.example", "web", "web.green.internal.example"}, aliases)

	// No alias on the service means no aliases at all.
	assert.Nil(t, (&Deployment{Slot: SlotBlue}).NetworkAliases(&ServiceDefinition{}, "internal.example"))
}

func TestNextSlot(t *testing.T) {
	assert.Equal(t, SlotGreen, NextSlot(SlotBlue))
	assert.Equal(t, SlotBlue, NextSlot(SlotGreen))
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []DeploymentStatus{StatusHealthy, StatusUnhealthy, StatusOffline, StatusCancelled, StatusFailed}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), string(s))
	}
	for _, s := range []DeploymentStatus{StatusQueued, StatusPreparing, StatusStarting, StatusRestarting} {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestSnapshotService(t *testing.T) {
	def := &ServiceDefinition{
		ID:              "srv_1",
		ProjectID:       "prj_1",
		Slug:            "api",
		ImageRepository: "ghcr.io/acme/api",
		ImageTag:        "latest",
		Ports:           []PortBinding{{Container: 8080}},
		Routes:          []RouteSpec{{Domain: "api.example.com", BasePath: "/", StripPrefix: true}},
		Volumes:         []VolumeMount{{ID: "vol_1", Name: "data", ContainerPath: "/data", Mode: VolumeModeReadWrite}},
		EnvVariables:    []EnvVar{{Key: "PORT", Value: "8080"}},
	}
	deployments := []Deployment{
		{Hash: "dpl_dkr_old", ImageTag: "v1", PreviewURL: "old-preview.example.com"},
		{Hash: "dpl_dkr_new", ImageTag: "v2", IsCurrentProduction: true},
	}

	snap := SnapshotService(def, deployments, def.CreatedAt)

	assert.Equal(t, "srv_1", snap.OriginalID)
	assert.Equal(t, "v2", snap.ImageTag, "tag pinned from current production deployment")
	assert.Equal(t, []string{"old-preview.example.com"}, snap.PreviewURLs)
	assert.Len(t, snap.Volumes, 1)
	assert.Len(t, snap.Routes, 1)
	assert.Equal(t, "srv-prj_1-srv_1", snap.WorkloadName())
}
