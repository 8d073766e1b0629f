package cluster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Chart sizes are in millimeters; PNG output uses DPI to convert to pixels.
const (
	defaultChartWidth  = 180.0
	defaultChartHeight = 120.0
	defaultChartDPI    = 127.0 // 5 px/mm
	marginLeft         = 18.0
	marginRight        = 30.0
	marginTop          = 12.0
	marginBottom       = 14.0
	barLabelWidth      = 40.0
)

// Set1 returns the qualitative palette used for cluster colors
func Set1() []color.RGBA {
	return []color.RGBA{
		{228, 26, 28, 255},
		{55, 126, 184, 255},
		{77, 175, 74, 255},
		{152, 78, 163, 255},
		{255, 127, 0, 255},
		{255, 255, 51, 255},
		{166, 86, 40, 255},
		{247, 129, 191, 255},
		{153, 153, 153, 255},
	}
}

// ClusterColor returns the palette color for a cluster label
func ClusterColor(label int) color.RGBA {
	p := Set1()
	if label < 0 {
		label = -label
	}
	return p[label%len(p)]
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// textLabel is a string anchored at a canvas coordinate (mm, y up). Labels are
// only drawn on raster output.
type textLabel struct {
	X, Y  float64
	Text  string
	Align int // -1 right-aligned, 0 centered, 1 left-aligned
}

// ScatterPoint is one plotted row
type ScatterPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label int     `json:"label"`
}

// ScatterChart plots points colored by cluster label.
type ScatterChart struct {
	Title  string
	XLabel string
	YLabel string
	Points []ScatterPoint
	Width  float64
	Height float64
	DPI    float64
}

// NewScatterChart pairs xs, ys and labels into a chart with default size.
func NewScatterChart(title, xLabel, yLabel string, xs, ys []float64, labels []int) (*ScatterChart, error) {
	if len(xs) != len(ys) || len(xs) != len(labels) {
		return nil, fmt.Errorf("scatter: %d x values, %d y values, %d labels", len(xs), len(ys), len(labels))
	}
	pts := make([]ScatterPoint, len(xs))
	for i := range xs {
		pts[i] = ScatterPoint{X: xs[i], Y: ys[i], Label: labels[i]}
	}
	return &ScatterChart{
		Title:  title,
		XLabel: xLabel,
		YLabel: yLabel,
		Points: pts,
		Width:  defaultChartWidth,
		Height: defaultChartHeight,
		DPI:    defaultChartDPI,
	}, nil
}

// Bounds returns the data extent, widened when all points share a coordinate.
func (c *ScatterChart) Bounds() orb.Bound {
	if len(c.Points) == 0 {
		return orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	}
	mp := make(orb.MultiPoint, len(c.Points))
	for i, p := range c.Points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return padBound(mp.Bound())
}

func padBound(b orb.Bound) orb.Bound {
	for axis := 0; axis < 2; axis++ {
		span := b.Max[axis] - b.Min[axis]
		pad := span * 0.05
		if span == 0 {
			pad = math.Max(math.Abs(b.Min[axis])*0.1, 1)
		}
		b.Min[axis] -= pad
		b.Max[axis] += pad
	}
	return b
}

// RenderSVG writes the chart as SVG
func (c *ScatterChart) RenderSVG(w io.Writer) error {
	s := svg.New(w, c.Width, c.Height, nil)
	c.draw(s)
	return s.Close()
}

// RenderPNG writes the chart as PNG with title, axis and legend text
func (c *ScatterChart) RenderPNG(w io.Writer) error {
	rast := rasterizer.New(c.Width, c.Height, canvas.DPI(c.DPI), canvas.DefaultColorSpace)
	labels := c.draw(rast)
	drawLabels(rast, labels, c.Height, c.DPI)
	return png.Encode(w, rast)
}

func (c *ScatterChart) draw(r canvasRenderer) []textLabel {
	drawBackground(r, c.Width, c.Height)

	plotW := c.Width - marginLeft - marginRight
	plotH := c.Height - marginTop - marginBottom
	b := c.Bounds()

	toCanvas := func(x, y float64) (float64, float64) {
		cx := marginLeft + (x-b.Min[0])/(b.Max[0]-b.Min[0])*plotW
		cy := marginBottom + (y-b.Min[1])/(b.Max[1]-b.Min[1])*plotH
		return cx, cy
	}

	labels := drawAxes(r, plotW, plotH, b)

	seen := make(map[int]bool)
	for _, p := range c.Points {
		seen[p.Label] = true
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: ClusterColor(p.Label)}
		style.Stroke = canvas.Paint{Color: canvas.Black}
		style.StrokeWidth = 0.2

		cx, cy := toCanvas(p.X, p.Y)
		dot := canvas.Circle(1.2).Translate(cx, cy)
		r.RenderPath(dot, style, canvas.Identity)
	}

	// Legend, one swatch per label present
	ly := c.Height - marginTop
	for label := 0; len(seen) > 0; label++ {
		if !seen[label] {
			continue
		}
		delete(seen, label)

		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: ClusterColor(label)}
		style.Stroke = canvas.Paint{Color: canvas.Transparent}
		swatch := canvas.Rectangle(3, 3).Translate(c.Width-marginRight+4, ly-3)
		r.RenderPath(swatch, style, canvas.Identity)
		labels = append(labels, textLabel{X: c.Width - marginRight + 9, Y: ly - 2.5, Text: fmt.Sprintf("Cluster %d", label), Align: 1})
		ly -= 5
	}

	labels = append(labels,
		textLabel{X: c.Width / 2, Y: c.Height - 6, Text: c.Title},
		textLabel{X: marginLeft + plotW/2, Y: 2, Text: c.XLabel},
		textLabel{X: 2, Y: c.Height - marginTop + 3, Text: c.YLabel, Align: 1},
	)
	return labels
}

// BarChart draws horizontal bars, one per category.
type BarChart struct {
	Title  string
	Bars   []ValueCount
	Width  float64
	Height float64
	DPI    float64
}

// NewBarChart builds a chart sized for the number of bars.
func NewBarChart(title string, bars []ValueCount) *BarChart {
	h := marginTop + marginBottom + float64(len(bars))*6
	if h < 60 {
		h = 60
	}
	return &BarChart{Title: title, Bars: bars, Width: defaultChartWidth, Height: h, DPI: defaultChartDPI}
}

// RenderSVG writes the chart as SVG
func (c *BarChart) RenderSVG(w io.Writer) error {
	s := svg.New(w, c.Width, c.Height, nil)
	c.draw(s)
	return s.Close()
}

// RenderPNG writes the chart as PNG with category labels
func (c *BarChart) RenderPNG(w io.Writer) error {
	rast := rasterizer.New(c.Width, c.Height, canvas.DPI(c.DPI), canvas.DefaultColorSpace)
	labels := c.draw(rast)
	drawLabels(rast, labels, c.Height, c.DPI)
	return png.Encode(w, rast)
}

func (c *BarChart) draw(r canvasRenderer) []textLabel {
	drawBackground(r, c.Width, c.Height)
	labels := []textLabel{{X: c.Width / 2, Y: c.Height - 6, Text: c.Title}}
	if len(c.Bars) == 0 {
		return append(labels, textLabel{X: c.Width / 2, Y: c.Height / 2, Text: "no data"})
	}

	maxCount := 0
	for _, b := range c.Bars {
		if b.Count > maxCount {
			maxCount = b.Count
		}
	}

	left := barLabelWidth
	plotW := c.Width - left - 16
	rowH := (c.Height - marginTop - marginBottom) / float64(len(c.Bars))

	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: ClusterColor(1)}
	style.Stroke = canvas.Paint{Color: canvas.Transparent}

	for i, b := range c.Bars {
		y := c.Height - marginTop - float64(i+1)*rowH
		w := 0.0
		if maxCount > 0 {
			w = float64(b.Count) / float64(maxCount) * plotW
		}
		bar := canvas.Rectangle(w, rowH*0.7).Translate(left, y+rowH*0.15)
		r.RenderPath(bar, style, canvas.Identity)

		labels = append(labels,
			textLabel{X: left - 1.5, Y: y + rowH*0.3, Text: b.Value, Align: -1},
			textLabel{X: left + w + 1.5, Y: y + rowH*0.3, Text: fmt.Sprintf("%d", b.Count), Align: 1},
		)
	}

	axis := canvas.DefaultStyle
	axis.Fill = canvas.Paint{Color: canvas.Transparent}
	axis.Stroke = canvas.Paint{Color: canvas.Black}
	axis.StrokeWidth = 0.3
	line := &canvas.Path{}
	line.MoveTo(left, marginBottom)
	line.LineTo(left, c.Height-marginTop)
	r.RenderPath(line, axis, canvas.Identity)

	return labels
}

func drawBackground(r canvasRenderer, width, height float64) {
	bg := canvas.DefaultStyle
	bg.Fill = canvas.Paint{Color: canvas.White}
	bg.Stroke = canvas.Paint{Color: canvas.Transparent}
	r.RenderPath(canvas.Rectangle(width, height), bg, canvas.Identity)
}

// drawAxes draws the plot frame and four dashed grid lines per axis, returning
// the tick labels.
func drawAxes(r canvasRenderer, plotW, plotH float64, b orb.Bound) []textLabel {
	frame := canvas.DefaultStyle
	frame.Fill = canvas.Paint{Color: canvas.Transparent}
	frame.Stroke = canvas.Paint{Color: canvas.Black}
	frame.StrokeWidth = 0.3
	r.RenderPath(canvas.Rectangle(plotW, plotH).Translate(marginLeft, marginBottom), frame, canvas.Identity)

	grid := canvas.DefaultStyle
	grid.Fill = canvas.Paint{Color: canvas.Transparent}
	grid.Stroke = canvas.Paint{Color: canvas.Gray}
	grid.StrokeWidth = 0.15
	grid.Dashes = []float64{1.0, 1.0}

	var labels []textLabel
	const ticks = 4
	for i := 0; i <= ticks; i++ {
		f := float64(i) / ticks

		x := marginLeft + f*plotW
		vx := b.Min[0] + f*(b.Max[0]-b.Min[0])
		y := marginBottom + f*plotH
		vy := b.Min[1] + f*(b.Max[1]-b.Min[1])

		if i > 0 && i < ticks {
			v := &canvas.Path{}
			v.MoveTo(x, marginBottom)
			v.LineTo(x, marginBottom+plotH)
			r.RenderPath(v, grid, canvas.Identity)

			h := &canvas.Path{}
			h.MoveTo(marginLeft, y)
			h.LineTo(marginLeft+plotW, y)
			r.RenderPath(h, grid, canvas.Identity)
		}

		labels = append(labels,
			textLabel{X: x, Y: marginBottom - 5, Text: formatTick(vx)},
			textLabel{X: marginLeft - 1.5, Y: y - 1, Text: formatTick(vy), Align: -1},
		)
	}
	return labels
}

func formatTick(v float64) string {
	if math.Abs(v) >= 1000 || (v != 0 && math.Abs(v) < 0.01) {
		return fmt.Sprintf("%.1e", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// drawLabels writes text onto a rasterized chart with the 7x13 bitmap font.
func drawLabels(img draw.Image, labels []textLabel, heightMM, dpi float64) {
	pxPerMM := dpi / 25.4
	face := basicfont.Face7x13
	for _, l := range labels {
		if l.Text == "" {
			continue
		}
		d := &font.Drawer{Dst: img, Src: image.NewUniform(color.Black), Face: face}
		width := d.MeasureString(l.Text).Round()

		x := int(l.X * pxPerMM)
		y := int((heightMM - l.Y) * pxPerMM)
		switch l.Align {
		case 0:
			x -= width / 2
		case -1:
			x -= width
		}
		d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
		d.DrawString(l.Text)
	}
}

// ProjectionGeoJSON encodes projected rows as a FeatureCollection of points
// with "row" and "cluster" properties.
func ProjectionGeoJSON(p *Projection, labels []int) ([]byte, error) {
	if len(p.X) != len(labels) {
		return nil, fmt.Errorf("projection has %d rows but %d labels", len(p.X), len(labels))
	}
	fc := geojson.NewFeatureCollection()
	for i := range p.X {
		f := geojson.NewFeature(orb.Point{p.X[i], p.Y[i]})
		f.Properties["row"] = i
		f.Properties["cluster"] = labels[i]
		fc.Append(f)
	}
	return fc.MarshalJSON()
}
