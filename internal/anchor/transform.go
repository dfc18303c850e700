package anchor

import "github.com/banshee-data/arlabel/internal/geom"

// DisplayMapper supplies the normalized image to normalized view transform.
// *arsession.Frame implements it.
type DisplayMapper interface {
	DisplayTransform(o geom.Orientation, viewport geom.Size) geom.Affine
}

// DisplayMapperFunc adapts a function to DisplayMapper.
type DisplayMapperFunc func(o geom.Orientation, viewport geom.Size) geom.Affine

func (f DisplayMapperFunc) DisplayTransform(o geom.Orientation, viewport geom.Size) geom.Affine {
	return f(o, viewport)
}

// ToViewPixelSpace maps a bounding box in normalized image coordinates to view
// pixels: the display transform first, then a scale by the viewport size.
// Each step yields the bounding box of the four transformed corners.
func ToViewPixelSpace(box geom.Rect, m DisplayMapper, o geom.Orientation, viewport geom.Size) geom.Rect {
	normalized := box.Applying(m.DisplayTransform(o, viewport))
	return normalized.Applying(geom.Scale(viewport.Width, viewport.Height))
}
