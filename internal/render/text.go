// Package render keeps the text nodes shown at named anchors.
package render

import (
	"image/color"
	"sort"
	"sync"

	"github.com/banshee-data/arlabel/internal/arsession"
	"github.com/banshee-data/arlabel/internal/geom"
	"github.com/banshee-data/arlabel/internal/monitoring"
	"gonum.org/v1/gonum/spatial/r3"
)

// Label text defaults.
const (
	DefaultExtrusionDepth = 1.0
	DefaultTextScale      = 0.01
)

// Orange is the label material color.
var Orange = color.RGBA{R: 0xff, G: 0x95, B: 0x00, A: 0xff}

// TextNode is extruded label text attached to an anchor.
type TextNode struct {
	AnchorID       string         `json:"anchor_id"`
	Text           string         `json:"text"`
	ExtrusionDepth float64        `json:"extrusion_depth"`
	Color          color.RGBA     `json:"color"`
	Scale          r3.Vec         `json:"scale"`
	Offset         r3.Vec         `json:"offset"` // relative to the anchor
	World          geom.Transform `json:"world"`
}

// Position returns the node's world position.
func (n TextNode) Position() r3.Vec {
	return n.World.ApplyPoint(n.Offset)
}

// NewTextNode builds the node for a named anchor. ok is false for unnamed
// anchors, which get no content.
func NewTextNode(a arsession.Anchor) (TextNode, bool) {
	if a.Name == "" {
		return TextNode{}, false
	}
	return TextNode{
		AnchorID:       a.ID,
		Text:           a.Name,
		ExtrusionDepth: DefaultExtrusionDepth,
		Color:          Orange,
		Scale:          r3.Vec{X: DefaultTextScale, Y: DefaultTextScale, Z: DefaultTextScale},
		World:          a.Transform,
	}, true
}

// Scene is the set of nodes currently rendered.
type Scene struct {
	mu    sync.RWMutex
	nodes map[string]TextNode
	order []string
}

// NewScene returns an empty scene.
func NewScene() *Scene {
	return &Scene{nodes: make(map[string]TextNode)}
}

// AnchorAdded attaches a text node for a. It has the signature of
// arsession.SimulatorOptions.OnAnchorAdded.
func (s *Scene) AnchorAdded(a arsession.Anchor) {
	n, ok := NewTextNode(a)
	if !ok {
		return
	}
	s.mu.Lock()
	if _, exists := s.nodes[n.AnchorID]; !exists {
		s.order = append(s.order, n.AnchorID)
	}
	s.nodes[n.AnchorID] = n
	s.mu.Unlock()
	monitoring.Debugf("render: text node %q for anchor %s", n.Text, n.AnchorID)
}

// Clear removes every node.
func (s *Scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]TextNode)
	s.order = nil
}

// Nodes returns the nodes in the order their anchors were added.
func (s *Scene) Nodes() []TextNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TextNode, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id])
	}
	return out
}

// Texts returns the distinct label texts in sorted order.
func (s *Scene) Texts() []string {
	s.mu.RLock()
	seen := make(map[string]struct{}, len(s.nodes))
	for _, n := range s.nodes {
		seen[n.Text] = struct{}{}
	}
	s.mu.RUnlock()
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
