package network

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
hosts:
  - name: host1
    local_bandwidth: 100
    local_latency: 0.0001
  - name: host2
switches:
  - name: sw1
links:
  - {from: host1, to: sw1, bandwidth: 100, latency: 0.001}
  - {from: sw1, to: host2, bandwidth: 50, latency: 0.002, sharing: non-shared, full_duplex: true}
`

func TestParseTopology(t *testing.T) {
	topo, err := ParseTopology([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, 3, topo.NodeCount())
	assert.Equal(t, 3, topo.LinkCount()) // one shared + two duplex directions

	host1 := topo.Node(topo.NodeID("host1"))
	assert.Equal(t, NodeHost, host1.Kind)
	assert.Equal(t, 100.0, host1.LocalBandwidth)
	assert.Equal(t, 0.0001, host1.LocalLatency)

	sw := topo.Node(topo.NodeID("sw1"))
	assert.Equal(t, NodeSwitch, sw.Kind)

	assert.Equal(t, SharingShared, topo.Link(0).Sharing)
	assert.Equal(t, SharingNonShared, topo.Link(1).Sharing)
	assert.Equal(t, 50.0, topo.Link(1).Bandwidth)
}

func TestParseTopologyErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{
			name:     "invalid yaml",
			manifest: "hosts: [",
		},
		{
			name:     "unknown link endpoint",
			manifest: "hosts: [{name: a}]\nlinks: [{from: a, to: ghost, bandwidth: 1}]",
		},
		{
			name:     "non-positive bandwidth",
			manifest: "hosts: [{name: a}, {name: b}]\nlinks: [{from: a, to: b, bandwidth: 0}]",
		},
		{
			name:     "negative latency",
			manifest: "hosts: [{name: a}, {name: b}]\nlinks: [{from: a, to: b, bandwidth: 1, latency: -0.5}]",
		},
		{
			name:     "unknown sharing policy",
			manifest: "hosts: [{name: a}, {name: b}]\nlinks: [{from: a, to: b, bandwidth: 1, sharing: fancy}]",
		},
		{
			name:     "duplicate node name",
			manifest: "hosts: [{name: a}]\nswitches: [{name: a}]",
		},
		{
			name:     "empty host name",
			manifest: "hosts: [{local_bandwidth: 5}]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTopology([]byte(tt.manifest))
			assert.Error(t, err)
		})
	}
}

func TestLoadTopology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0644))

	topo, err := LoadTopology(path)
	require.NoError(t, err)
	assert.Equal(t, 3, topo.NodeCount())

	_, err = LoadTopology(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
