package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkloadNameIsDeterministic(t *testing.T) {
	a := WorkloadName("prj_1", "srv_1")
	b := WorkloadName("prj_1", "srv_1")
	assert.Equal(t, a, b)
	assert.Equal(t, "srv-prj_1-srv_1", a)
}

func TestNetworkName(t *testing.T) {
	assert.Equal(t, "net-prj_1", NetworkName("prj_1"))
}

func TestVolumeResourceName(t *testing.T) {
	created := time.Date(2024, 4, 29, 10, 30, 0, 123456000, time.UTC)
	name := VolumeResourceName("vol_1", created)

	assert.True(t, strings.HasPrefix(name, "vol-vol_1-"))
	// Same inputs, same name: teardown recomputes this from a snapshot.
	assert.Equal(t, name, VolumeResourceName("vol_1", created))

	other := VolumeResourceName("vol_1", created.Add(time.Second))
	assert.NotEqual(t, name, other)
}

func TestResourceLabels(t *testing.T) {
	labels := ResourceLabels("prj_1")
	assert.Equal(t, "true", labels[LabelManaged])
	assert.Equal(t, "prj_1", labels[LabelProject])

	withParent := VolumeLabels("prj_1", "srv_1")
	assert.Equal(t, "srv_1", withParent[LabelParent])
	assert.Equal(t, "prj_1", withParent[LabelProject])

	withHash := WorkloadLabels("prj_1", "dpl_dkr_abc")
	assert.Equal(t, "dpl_dkr_abc", withHash[LabelDeploymentHash])
}

func TestNewDeploymentHash(t *testing.T) {
	h := NewDeploymentHash()
	assert.True(t, strings.HasPrefix(h, DeploymentHashPrefix))
	assert.Len(t, strings.TrimPrefix(h, DeploymentHashPrefix), 11)
	assert.NotEqual(t, h, NewDeploymentHash())
}
