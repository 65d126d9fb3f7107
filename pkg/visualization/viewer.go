package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"medialcurve/internal/models"
)

// Viewer extracts 2D views from a volume
type Viewer struct {
	vol *models.Volume

	// lo and hi are the sample range mapped to black and white
	lo, hi float64
}

// NewViewer creates a viewer for vol.
func NewViewer(vol *models.Volume) *Viewer {
	v := &Viewer{vol: vol}
	if len(vol.Data) > 0 {
		v.lo = floats.Min(vol.Data)
		v.hi = floats.Max(vol.Data)
	}
	return v
}

// axisIndex maps "x", "y" or "z" to 0, 1 or 2.
func axisIndex(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return 0, nil
	case "y", "Y":
		return 1, nil
	case "z", "Z":
		return 2, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// planeDims returns the column and row sizes of a plane normal to axis and a
// function returning the volume index of (col, row) at the given depth.
func (v *Viewer) planeDims(axis int) (cols, rows int, index func(col, row, pos int) int) {
	g := v.vol.Grid
	switch axis {
	case 0:
		// YZ plane: columns run along z, rows along y
		return g.Depth, g.Height, func(c, r, p int) int { return g.Index(p, r, c) }
	case 1:
		// XZ plane: columns run along x, rows along z
		return g.Width, g.Depth, func(c, r, p int) int { return g.Index(c, p, r) }
	default:
		return g.Width, g.Height, func(c, r, p int) int { return g.Index(c, r, p) }
	}
}

func (v *Viewer) gray(value float64) color.Gray16 {
	if v.hi <= v.lo {
		if value > 0 {
			return color.Gray16{Y: 65535}
		}
		return color.Gray16{}
	}
	t := (value - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, t*65535)))}
}

// ExtractSlice extracts a 2D slice normal to the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	if position >= v.vol.Dim(a) {
		return nil, fmt.Errorf("position %d exceeds %s size %d", position, axis, v.vol.Dim(a))
	}

	cols, rows, index := v.planeDims(a)
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			img.SetGray16(c, r, v.gray(v.vol.Data[index(c, r, position)]))
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveSliceSequence extracts and saves every slice normal to the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	a, err := axisIndex(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.vol.Dim(a); pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// Projection is a maximum intensity projection; it implements plotter.GridXYZ
type Projection struct {
	cols, rows int
	values     []float64
}

// Dims returns the number of columns and rows.
func (p *Projection) Dims() (c, r int) { return p.cols, p.rows }

// Z returns the projected value at (c, r).
func (p *Projection) Z(c, r int) float64 { return p.values[r*p.cols+c] }

// X returns the coordinate of column c.
func (p *Projection) X(c int) float64 { return float64(c) }

// Y returns the coordinate of row r.
func (p *Projection) Y(r int) float64 { return float64(r) }

// MaxProjection collapses the volume along axis keeping the largest sample.
func (v *Viewer) MaxProjection(axis string) (*Projection, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}

	cols, rows, index := v.planeDims(a)
	p := &Projection{cols: cols, rows: rows, values: make([]float64, cols*rows)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			best := math.Inf(-1)
			for pos := 0; pos < v.vol.Dim(a); pos++ {
				best = math.Max(best, v.vol.Data[index(c, r, pos)])
			}
			p.values[r*cols+c] = best
		}
	}
	return p, nil
}

// SaveProjection renders the maximum projection of the volume as a heat map
// and, when overlay is not nil, marks its non-zero voxels projected onto the
// same plane. The image format follows the file extension.
func (v *Viewer) SaveProjection(axis, filename string, overlay *models.Volume) error {
	proj, err := v.MaxProjection(axis)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Maximum projection along %s", axis)

	hm := plotter.NewHeatMap(proj, palette.Heat(16, 1))
	if hm.Max <= hm.Min {
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	if overlay != nil {
		if !overlay.SameLattice(v.vol.Grid) {
			return fmt.Errorf("overlay grid %dx%dx%d does not match volume %dx%dx%d",
				overlay.Width, overlay.Height, overlay.Depth, v.vol.Width, v.vol.Height, v.vol.Depth)
		}
		a, _ := axisIndex(axis)
		var pts plotter.XYs
		for i, s := range overlay.Data {
			if s == 0 {
				continue
			}
			x, y, z := overlay.Coords(i)
			switch a {
			case 0:
				pts = append(pts, plotter.XY{X: float64(z), Y: float64(y)})
			case 1:
				pts = append(pts, plotter.XY{X: float64(x), Y: float64(z)})
			default:
				pts = append(pts, plotter.XY{X: float64(x), Y: float64(y)})
			}
		}
		if len(pts) > 0 {
			sc, err := plotter.NewScatter(pts)
			if err != nil {
				return err
			}
			sc.GlyphStyle.Color = color.RGBA{B: 255, A: 255}
			sc.GlyphStyle.Shape = draw.BoxGlyph{}
			sc.GlyphStyle.Radius = vg.Points(1.5)
			p.Add(sc)
			p.Legend.Add("skeleton", sc)
		}
	}

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return p.Save(5*vg.Inch, 5*vg.Inch, filename)
}
