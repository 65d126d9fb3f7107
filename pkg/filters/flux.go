package filters

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"medialcurve/internal/models"
)

// neighborOffset is one of the 26 neighbours of a voxel together with the unit
// outward normal pointing at it in physical space
type neighborOffset struct {
	dx, dy, dz int
	normal     r3.Vec
}

func neighborOffsets(spacing [3]float64) []neighborOffset {
	offsets := make([]neighborOffset, 0, 26)
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				dir := r3.Vec{
					X: float64(dx) * spacing[0],
					Y: float64(dy) * spacing[1],
					Z: float64(dz) * spacing[2],
				}
				offsets = append(offsets, neighborOffset{dx, dy, dz, r3.Unit(dir)})
			}
		}
	}
	return offsets
}

// AverageOutwardFlux computes, for every voxel inside the object described by
// base (samples > 0), the mean outward flux of field through its 26-neighbourhood.
// Voxels outside the object get 0. Medial voxels, where the field converges,
// receive strongly negative values.
func AverageOutwardFlux(base *models.Volume, field *models.VectorField, workers int) (*models.Volume, error) {
	if !base.SameLattice(field.Grid) {
		return nil, fmt.Errorf("flux grids differ: base %dx%dx%d, field %dx%dx%d",
			base.Width, base.Height, base.Depth, field.Width, field.Height, field.Depth)
	}

	offsets := neighborOffsets(base.Spacing)
	flux := models.NewVolume(base.Grid)

	err := parallelFor(base.Depth, workers, func(lo, hi int) error {
		for z := lo; z < hi; z++ {
			for y := 0; y < base.Height; y++ {
				for x := 0; x < base.Width; x++ {
					idx := base.Index(x, y, z)
					if base.Data[idx] <= 0 {
						continue
					}

					sum := 0.0
					count := 0
					for _, o := range offsets {
						nx, ny, nz := x+o.dx, y+o.dy, z+o.dz
						if !base.Contains(nx, ny, nz) {
							continue
						}
						sum += r3.Dot(o.normal, field.Data[base.Index(nx, ny, nz)])
						count++
					}
					if count > 0 {
						flux.Data[idx] = sum / float64(count)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flux, nil
}
