// Package monitor renders debug views of the simulated world.
package monitor

import (
	"fmt"
	"image/color"
	"io"
	"net/http"

	"github.com/banshee-data/arlabel/internal/arsession"
	"github.com/banshee-data/arlabel/internal/render"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// SceneSource provides the world the plot shows.
type SceneSource interface {
	FeaturePoints() []r3.Vec
	CurrentFrame() (*arsession.Frame, bool)
}

// NodeSource provides the rendered label nodes.
type NodeSource interface {
	Nodes() []render.TextNode
}

// Snapshot is everything drawn in one scene plot.
type Snapshot struct {
	FeaturePoints []r3.Vec
	Camera        *r3.Vec
	Nodes         []render.TextNode
}

// Capture reads a Snapshot from the sources. nodes may be nil.
func Capture(scene SceneSource, nodes NodeSource) Snapshot {
	s := Snapshot{FeaturePoints: scene.FeaturePoints()}
	if f, ok := scene.CurrentFrame(); ok {
		pos := f.Camera.Pose.Position()
		s.Camera = &pos
	}
	if nodes != nil {
		s.Nodes = nodes.Nodes()
	}
	return s
}

var (
	pointColor  = color.RGBA{R: 0x7f, G: 0x8c, B: 0x8d, A: 0xff}
	cameraColor = color.RGBA{R: 0x29, G: 0x80, B: 0xb9, A: 0xff}
)

// Plot builds a top-down (X against Z) view of the snapshot.
func (s Snapshot) Plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Scene (top-down)"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Z (m)"
	p.Add(plotter.NewGrid())

	if len(s.FeaturePoints) > 0 {
		pts := make(plotter.XYs, 0, len(s.FeaturePoints))
		for _, v := range s.FeaturePoints {
			pts = append(pts, plotter.XY{X: v.X, Y: v.Z})
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("feature points: %w", err)
		}
		sc.GlyphStyle.Color = pointColor
		sc.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(sc)
		p.Legend.Add("feature points", sc)
	}

	if s.Camera != nil {
		sc, err := plotter.NewScatter(plotter.XYs{{X: s.Camera.X, Y: s.Camera.Z}})
		if err != nil {
			return nil, fmt.Errorf("camera: %w", err)
		}
		sc.GlyphStyle.Color = cameraColor
		sc.GlyphStyle.Shape = draw.TriangleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(5)
		p.Add(sc)
		p.Legend.Add("camera", sc)
	}

	if len(s.Nodes) > 0 {
		xys := make(plotter.XYs, 0, len(s.Nodes))
		texts := make([]string, 0, len(s.Nodes))
		for _, n := range s.Nodes {
			pos := n.Position()
			xys = append(xys, plotter.XY{X: pos.X, Y: pos.Z})
			texts = append(texts, n.Text)
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("anchors: %w", err)
		}
		sc.GlyphStyle.Color = render.Orange
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add("anchors", sc)

		labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: texts})
		if err != nil {
			return nil, fmt.Errorf("anchor labels: %w", err)
		}
		for i := range labels.TextStyle {
			labels.TextStyle[i].Color = render.Orange
			labels.TextStyle[i].XAlign = draw.XCenter
		}
		labels.Offset = vg.Point{Y: vg.Points(6)}
		p.Add(labels)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// WritePNG renders the snapshot as a PNG of the given size.
func (s Snapshot) WritePNG(w io.Writer, width, height vg.Length) error {
	p, err := s.Plot()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("failed to render scene plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// Handler serves the current scene as a PNG.
func Handler(scene SceneSource, nodes NodeSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := Capture(scene, nodes).WritePNG(w, 8*vg.Inch, 8*vg.Inch); err != nil {
			http.Error(w, fmt.Sprintf("Failed to render scene: %v", err), http.StatusInternalServerError)
		}
	})
}
