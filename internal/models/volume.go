package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Grid describes the sampling lattice of a volume: its size in voxels and
// the physical metadata carried unchanged from input to output.
type Grid struct {
	// Width, Height, Depth are the dimensions of the volume in voxels
	Width, Height, Depth int

	// Spacing is the physical size of each voxel along x, y and z
	Spacing [3]float64

	// Origin is the physical position of the first voxel
	Origin [3]float64

	// Direction is the row-major 3x3 orientation matrix
	Direction [9]float64
}

// NewGrid returns a grid with unit spacing, zero origin and identity direction.
func NewGrid(width, height, depth int) Grid {
	return Grid{
		Width:     width,
		Height:    height,
		Depth:     depth,
		Spacing:   [3]float64{1, 1, 1},
		Direction: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
}

// Len returns the number of voxels in the grid.
func (g Grid) Len() int {
	return g.Width * g.Height * g.Depth
}

// Index returns the offset of voxel (x, y, z) in row-major order.
func (g Grid) Index(x, y, z int) int {
	return z*g.Width*g.Height + y*g.Width + x
}

// Coords is the inverse of Index.
func (g Grid) Coords(idx int) (x, y, z int) {
	plane := g.Width * g.Height
	z = idx / plane
	rem := idx % plane
	return rem % g.Width, rem / g.Width, z
}

// Contains reports whether (x, y, z) lies inside the grid.
func (g Grid) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.Width && y < g.Height && z < g.Depth
}

// Dim returns the size of the grid along axis 0 (x), 1 (y) or 2 (z).
func (g Grid) Dim(axis int) int {
	switch axis {
	case 0:
		return g.Width
	case 1:
		return g.Height
	default:
		return g.Depth
	}
}

// SameLattice reports whether two grids have the same size and spacing.
func (g Grid) SameLattice(o Grid) bool {
	return g.Width == o.Width && g.Height == o.Height && g.Depth == o.Depth && g.Spacing == o.Spacing
}

// Validate checks that the grid has a positive size and positive spacing.
func (g Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 || g.Depth <= 0 {
		return fmt.Errorf("invalid volume size %dx%dx%d", g.Width, g.Height, g.Depth)
	}
	if g.Width > MaxVoxels/g.Height || g.Width*g.Height > MaxVoxels/g.Depth {
		return fmt.Errorf("volume size %dx%dx%d is too large", g.Width, g.Height, g.Depth)
	}
	for i, s := range g.Spacing {
		if s <= 0 {
			return fmt.Errorf("invalid spacing %g along axis %d", s, i)
		}
	}
	return nil
}

// MaxVoxels bounds Grid.Len so that a sample buffer of up to 8-byte elements
// can be sized without overflowing int.
const MaxVoxels = math.MaxInt / 8

// Volume represents a 3D scalar image
type Volume struct {
	Grid

	// Data is the 3D volume data as a 1D array in row-major order
	Data []float64
}

// NewVolume allocates a zero-filled volume on the given grid.
func NewVolume(g Grid) *Volume {
	return &Volume{Grid: g, Data: make([]float64, g.Len())}
}

// At returns the sample at (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores a sample at (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := &Volume{Grid: v.Grid, Data: make([]float64, len(v.Data))}
	copy(out.Data, v.Data)
	return out
}

// VectorField holds one 3-vector per voxel, e.g. a gradient image
type VectorField struct {
	Grid

	Data []r3.Vec
}

// NewVectorField allocates a zero vector field on the given grid.
func NewVectorField(g Grid) *VectorField {
	return &VectorField{Grid: g, Data: make([]r3.Vec, g.Len())}
}

// Magnitude returns a scalar volume with the norm of every vector.
func (f *VectorField) Magnitude() *Volume {
	out := NewVolume(f.Grid)
	for i, vec := range f.Data {
		out.Data[i] = r3.Norm(vec)
	}
	return out
}
