// Package services wires the annotation parser, ontology resolver and
// stylesheet engine into per-map state behind the HTTP layer.
package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest describes one flatmap's on-disk content: its ontology table, its
// stylesheets in cascade order, and its layers.
type Manifest struct {
	ID     string `yaml:"id" json:"id"`
	Title  string `yaml:"title" json:"title"`
	Source string `yaml:"source" json:"source"`

	// Ontology is the map-relative path of the JSON ontology table.
	// Optional: a map without one simply has no superclass styling.
	Ontology string `yaml:"ontology" json:"ontology,omitempty"`

	// Stylesheets are map-relative paths loaded in order after the engine's
	// default theme; later sheets win specificity ties.
	Stylesheets []string `yaml:"stylesheets" json:"stylesheets,omitempty"`

	Layers []Layer `yaml:"layers" json:"layers,omitempty"`
}

// Layer is one selectable feature layer of a flatmap.
type Layer struct {
	ID     string `yaml:"id" json:"id"`
	Title  string `yaml:"title" json:"title"`
	Active bool   `yaml:"active" json:"active"`
}

// LoadManifest reads and validates a map manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	if m.ID == "" {
		return nil, fmt.Errorf("manifest %s: missing map id", path)
	}
	if m.Source == "" {
		m.Source = m.ID
	}
	return &m, nil
}

// HasLayer reports whether the manifest declares the given layer.
func (m *Manifest) HasLayer(layerID string) bool {
	for _, l := range m.Layers {
		if l.ID == layerID {
			return true
		}
	}
	return false
}

// LayerActive reports whether the given layer is declared and active.
func (m *Manifest) LayerActive(layerID string) bool {
	for _, l := range m.Layers {
		if l.ID == layerID {
			return l.Active
		}
	}
	return false
}
