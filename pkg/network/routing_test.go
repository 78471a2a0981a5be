package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloydWarshallShortestPath(t *testing.T) {
	topo := NewTopology()
	topo.AddHost("a", 0, 0)
	topo.AddHost("b", 0, 0)
	topo.AddSwitch("fast")
	topo.AddSwitch("slow")
	// Two routes a->b: via fast (total 0.002) and via slow (total 0.02).
	topo.AddLink("a", "fast", Link{Bandwidth: 10, Latency: 0.001})
	topo.AddLink("fast", "b", Link{Bandwidth: 10, Latency: 0.001})
	topo.AddLink("a", "slow", Link{Bandwidth: 100, Latency: 0.01})
	topo.AddLink("slow", "b", Link{Bandwidth: 100, Latency: 0.01})

	routing := NewFloydWarshall()
	routing.Init(topo)

	path, ok := routing.Path(topo.NodeID("a"), topo.NodeID("b"))
	require.True(t, ok)
	require.Len(t, path, 2)
	// Routing minimizes latency, not bandwidth.
	assert.InDelta(t, 0.002, topo.PathLatency(path), 1e-12)
	assert.Equal(t, 10.0, topo.PathBandwidth(path))
}

func TestFloydWarshallUnreachable(t *testing.T) {
	topo := NewTopology()
	topo.AddHost("a", 0, 0)
	topo.AddHost("b", 0, 0)

	routing := NewFloydWarshall()
	routing.Init(topo)

	_, ok := routing.Path(topo.NodeID("a"), topo.NodeID("b"))
	assert.False(t, ok)
}

func TestFloydWarshallSelfPath(t *testing.T) {
	topo := NewTopology()
	topo.AddHost("a", 0, 0)

	routing := NewFloydWarshall()
	routing.Init(topo)

	path, ok := routing.Path(topo.NodeID("a"), topo.NodeID("a"))
	require.True(t, ok)
	assert.Empty(t, path)
}

func TestFloydWarshallMultiHop(t *testing.T) {
	topo := NewTopology()
	topo.AddHost("a", 0, 0)
	topo.AddHost("b", 0, 0)
	for _, sw := range []string{"s1", "s2", "s3"} {
		topo.AddSwitch(sw)
	}
	topo.AddLink("a", "s1", Link{Bandwidth: 10, Latency: 0.001})
	topo.AddLink("s1", "s2", Link{Bandwidth: 10, Latency: 0.001})
	topo.AddLink("s2", "s3", Link{Bandwidth: 10, Latency: 0.001})
	topo.AddLink("s3", "b", Link{Bandwidth: 10, Latency: 0.001})

	routing := NewFloydWarshall()
	routing.Init(topo)

	path, ok := routing.Path(topo.NodeID("a"), topo.NodeID("b"))
	require.True(t, ok)
	assert.Len(t, path, 4)
	assert.InDelta(t, 0.004, topo.PathLatency(path), 1e-12)
}
