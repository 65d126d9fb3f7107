package filters

import (
	"gonum.org/v1/gonum/spatial/r3"

	"medialcurve/internal/models"
)

// Gradient estimates the gradient of v with central differences scaled by the
// voxel spacing. Border voxels use one-sided differences.
func Gradient(v *models.Volume, workers int) (*models.VectorField, error) {
	field := models.NewVectorField(v.Grid)

	err := parallelFor(v.Depth, workers, func(lo, hi int) error {
		for z := lo; z < hi; z++ {
			for y := 0; y < v.Height; y++ {
				for x := 0; x < v.Width; x++ {
					field.Data[v.Index(x, y, z)] = r3.Vec{
						X: derivative(v, x, y, z, 0),
						Y: derivative(v, x, y, z, 1),
						Z: derivative(v, x, y, z, 2),
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return field, nil
}

// derivative returns the finite difference of v at (x, y, z) along axis.
func derivative(v *models.Volume, x, y, z, axis int) float64 {
	n := v.Dim(axis)
	if n < 2 {
		return 0
	}

	pos := [3]int{x, y, z}
	lo, hi := pos, pos
	if pos[axis] > 0 {
		lo[axis]--
	}
	if pos[axis] < n-1 {
		hi[axis]++
	}

	steps := float64(hi[axis]-lo[axis]) * v.Spacing[axis]
	return (v.At(hi[0], hi[1], hi[2]) - v.At(lo[0], lo[1], lo[2])) / steps
}
