package blocks

import (
	"fmt"
	"image/color"
	"io"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var groupColors = []color.Color{
	color.RGBA{R: 0x4c, G: 0x72, B: 0xb0, A: 0xb0},
	color.RGBA{R: 0xdd, G: 0x84, B: 0x52, A: 0xb0},
	color.RGBA{R: 0x55, G: 0xa8, B: 0x68, A: 0xb0},
}

const renderWidth = 6 * vg.Inch

// Plot draws the front (XY) view of the layout, one colour per group.
func Plot(l Layout) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = l.Name
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())

	for gi, group := range l.Groups {
		fill := groupColors[gi%len(groupColors)]
		var first *plotter.Polygon
		for _, b := range l.Group(group) {
			lo, hi := b.Min(), b.Max()
			poly, err := plotter.NewPolygon(plotter.XYs{
				{X: lo.X, Y: lo.Y},
				{X: hi.X, Y: lo.Y},
				{X: hi.X, Y: hi.Y},
				{X: lo.X, Y: hi.Y},
			})
			if err != nil {
				return nil, fmt.Errorf("box %s/%s: %w", group, b.Name, err)
			}
			poly.Color = fill
			poly.LineStyle.Width = vg.Points(0.5)
			poly.LineStyle.Color = color.Black
			p.Add(poly)
			if first == nil {
				first = poly
			}
		}
		if first != nil {
			p.Legend.Add(group, first)
		}
	}

	lo, hi := l.Bounds()
	pad := (hi.Y - lo.Y) * 0.05
	p.X.Min, p.X.Max = lo.X-pad, hi.X+pad
	p.Y.Min, p.Y.Max = lo.Y-pad, hi.Y+pad
	return p, nil
}

// renderHeight keeps metres square on the canvas, within sane limits.
func renderHeight(l Layout) vg.Length {
	lo, hi := l.Bounds()
	w, h := hi.X-lo.X, hi.Y-lo.Y
	if w <= 0 || h <= 0 {
		return renderWidth
	}
	height := renderWidth * vg.Length(h/w)
	return max(min(height, 4*renderWidth), renderWidth/2)
}

// Render writes the front view as PNG to w.
func Render(l Layout, w io.Writer) error {
	p, err := Plot(l)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(renderWidth, renderHeight(l), "png")
	if err != nil {
		return fmt.Errorf("create PNG writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write PNG: %w", err)
	}
	return nil
}

// RenderPNG writes the front view to a PNG file at path.
func RenderPNG(l Layout, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Render(l, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
