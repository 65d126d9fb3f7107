package filters

import (
	"fmt"
	"math"

	"medialcurve/internal/models"
)

// recursiveCoefficients are the normalized Young & van Vliet filter taps:
// w[n] = B*x[n] + b1*w[n-1] + b2*w[n-2] + b3*w[n-3]
type recursiveCoefficients struct {
	B, b1, b2, b3 float64
}

// youngVanVliet computes the third order recursive Gaussian coefficients for a
// sigma expressed in voxels. ok is false when sigma is too small for the
// approximation to smooth at all.
func youngVanVliet(sigma float64) (c recursiveCoefficients, ok bool) {
	var q float64
	if sigma >= 2.5 {
		q = 0.98711*sigma - 0.96330
	} else {
		q = 3.97156 - 4.14554*math.Sqrt(1-0.26891*sigma)
	}
	if q <= 0 {
		return c, false
	}

	q2 := q * q
	q3 := q2 * q
	b0 := 1.57825 + 2.44413*q + 1.4281*q2 + 0.422205*q3
	b1 := 2.44413*q + 2.85619*q2 + 1.26661*q3
	b2 := -(1.4281*q2 + 1.26661*q3)
	b3 := 0.422205 * q3

	c.b1 = b1 / b0
	c.b2 = b2 / b0
	c.b3 = b3 / b0
	c.B = 1 - (c.b1 + c.b2 + c.b3)
	return c, true
}

// filterLine runs the causal then anti-causal pass over line in place.
// Borders are replicated so a constant line is left unchanged.
func (c recursiveCoefficients) filterLine(line, work []float64) {
	n := len(line)
	if n == 0 {
		return
	}

	w1, w2, w3 := line[0], line[0], line[0]
	for i := 0; i < n; i++ {
		w := c.B*line[i] + c.b1*w1 + c.b2*w2 + c.b3*w3
		work[i] = w
		w3, w2, w1 = w2, w1, w
	}

	y1, y2, y3 := work[n-1], work[n-1], work[n-1]
	for i := n - 1; i >= 0; i-- {
		y := c.B*work[i] + c.b1*y1 + c.b2*y2 + c.b3*y3
		line[i] = y
		y3, y2, y1 = y2, y1, y
	}
}

// lineLayout returns how many lines run along axis, their stride, and a
// function mapping a line number to the index of its first voxel.
func lineLayout(g models.Grid, axis int) (count, stride int, start func(int) int) {
	w, h, d := g.Width, g.Height, g.Depth
	switch axis {
	case 0:
		return h * d, 1, func(l int) int { return l * w }
	case 1:
		return w * d, w, func(l int) int { return (l/w)*w*h + l%w }
	default:
		return w * h, w * h, func(l int) int { return l }
	}
}

// RecursiveGaussian smooths v along one axis (0 = x, 1 = y, 2 = z) with a zero
// order recursive Gaussian. sigma is in physical units and is divided by the
// voxel spacing along the axis. No scale normalization is applied.
func RecursiveGaussian(v *models.Volume, axis int, sigma float64, workers int) (*models.Volume, error) {
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("invalid smoothing axis %d", axis)
	}
	if !(sigma > 0) {
		return nil, fmt.Errorf("sigma must be positive, got %g", sigma)
	}

	out := v.Clone()
	coeffs, ok := youngVanVliet(sigma / v.Spacing[axis])
	if !ok {
		return out, nil
	}

	n := v.Dim(axis)
	count, stride, start := lineLayout(v.Grid, axis)

	err := parallelFor(count, workers, func(lo, hi int) error {
		line := make([]float64, n)
		work := make([]float64, n)
		for l := lo; l < hi; l++ {
			base := start(l)
			for i := 0; i < n; i++ {
				line[i] = out.Data[base+i*stride]
			}
			coeffs.filterLine(line, work)
			for i := 0; i < n; i++ {
				out.Data[base+i*stride] = line[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SmoothXYZ applies RecursiveGaussian along x, then y, then z.
func SmoothXYZ(v *models.Volume, sigma float64, workers int) (*models.Volume, error) {
	out := v
	for axis := 0; axis < 3; axis++ {
		var err error
		out, err = RecursiveGaussian(out, axis, sigma, workers)
		if err != nil {
			return nil, fmt.Errorf("smoothing along axis %d: %w", axis, err)
		}
	}
	return out, nil
}
