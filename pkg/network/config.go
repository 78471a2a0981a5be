package network

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// topologyManifest is the YAML schema for topology files.
type topologyManifest struct {
	Hosts []struct {
		Name           string  `yaml:"name"`
		LocalBandwidth float64 `yaml:"local_bandwidth"`
		LocalLatency   float64 `yaml:"local_latency"`
	} `yaml:"hosts"`
	Switches []struct {
		Name string `yaml:"name"`
	} `yaml:"switches"`
	Links []struct {
		From       string  `yaml:"from"`
		To         string  `yaml:"to"`
		Bandwidth  float64 `yaml:"bandwidth"`
		Latency    float64 `yaml:"latency"`
		Sharing    string  `yaml:"sharing"`
		FullDuplex bool    `yaml:"full_duplex"`
	} `yaml:"links"`
}

// ParseTopology builds a topology from a YAML manifest:
//
//	hosts:
//	  - name: host1
//	    local_bandwidth: 100
//	  - name: host2
//	switches:
//	  - name: sw1
//	links:
//	  - {from: host1, to: sw1, bandwidth: 100, latency: 0.001}
//	  - {from: sw1, to: host2, bandwidth: 100, latency: 0.001, sharing: non-shared, full_duplex: true}
func ParseTopology(data []byte) (*Topology, error) {
	var manifest topologyManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse topology manifest: %w", err)
	}

	topo := NewTopology()
	for _, h := range manifest.Hosts {
		if h.Name == "" {
			return nil, fmt.Errorf("topology manifest: host with empty name")
		}
		if topo.HasNode(h.Name) {
			return nil, fmt.Errorf("topology manifest: duplicate node name %q", h.Name)
		}
		topo.AddHost(h.Name, h.LocalBandwidth, h.LocalLatency)
	}
	for _, s := range manifest.Switches {
		if s.Name == "" {
			return nil, fmt.Errorf("topology manifest: switch with empty name")
		}
		if topo.HasNode(s.Name) {
			return nil, fmt.Errorf("topology manifest: duplicate node name %q", s.Name)
		}
		topo.AddSwitch(s.Name)
	}
	for i, l := range manifest.Links {
		if !topo.HasNode(l.From) || !topo.HasNode(l.To) {
			return nil, fmt.Errorf("topology manifest: link %d references unknown node (%q -> %q)", i, l.From, l.To)
		}
		if l.Bandwidth <= 0 {
			return nil, fmt.Errorf("topology manifest: link %d has non-positive bandwidth %g", i, l.Bandwidth)
		}
		if l.Latency < 0 {
			return nil, fmt.Errorf("topology manifest: link %d has negative latency %g", i, l.Latency)
		}
		sharing := SharingShared
		switch l.Sharing {
		case "", string(SharingShared):
		case string(SharingNonShared):
			sharing = SharingNonShared
		default:
			return nil, fmt.Errorf("topology manifest: link %d has unknown sharing policy %q", i, l.Sharing)
		}
		link := Link{Bandwidth: l.Bandwidth, Latency: l.Latency, Sharing: sharing}
		if l.FullDuplex {
			topo.AddFullDuplexLink(l.From, l.To, link)
		} else {
			topo.AddLink(l.From, l.To, link)
		}
	}
	return topo, nil
}

// LoadTopology reads and parses a YAML topology manifest from disk.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology manifest: %w", err)
	}
	return ParseTopology(data)
}
