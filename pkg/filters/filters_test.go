package filters

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"medialcurve/internal/models"
)

// createSphereDistanceMap builds the distance map of a solid sphere centred in
// a cube of the given size: radius minus the distance to the centre inside,
// zero outside.
func createSphereDistanceMap(size int, radius float64) *models.Volume {
	vol := models.NewVolume(models.NewGrid(size, size, size))
	c := float64(size-1) / 2

	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx := float64(x) - c
				dy := float64(y) - c
				dz := float64(z) - c
				d := radius - math.Sqrt(dx*dx+dy*dy+dz*dz)
				if d > 0 {
					vol.Set(x, y, z, d)
				}
			}
		}
	}
	return vol
}

// createCylinderDistanceMap builds the distance map of a solid cylinder along x
func createCylinderDistanceMap(length, size int, radius float64, margin int) *models.Volume {
	vol := models.NewVolume(models.NewGrid(length, size, size))
	c := float64(size-1) / 2
	x0, x1 := float64(margin), float64(length-1-margin)

	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < length; x++ {
				dy := float64(y) - c
				dz := float64(z) - c
				d := radius - math.Sqrt(dy*dy+dz*dz)
				d = math.Min(d, float64(x)-x0+1)
				d = math.Min(d, x1-float64(x)+1)
				if d > 0 {
					vol.Set(x, y, z, d)
				}
			}
		}
	}
	return vol
}

func runPipeline(t *testing.T, dist *models.Volume, sigma, threshold float64) (*models.Volume, *models.Volume) {
	t.Helper()

	smoothed, err := SmoothXYZ(dist, sigma, 2)
	if err != nil {
		t.Fatalf("SmoothXYZ failed: %v", err)
	}
	grad, err := Gradient(smoothed, 2)
	if err != nil {
		t.Fatalf("Gradient failed: %v", err)
	}
	flux, err := AverageOutwardFlux(dist, grad, 2)
	if err != nil {
		t.Fatalf("AverageOutwardFlux failed: %v", err)
	}
	skel, err := MedialCurve(dist, flux, threshold)
	if err != nil {
		t.Fatalf("MedialCurve failed: %v", err)
	}
	return flux, skel
}

// TestRecursiveGaussianPreservesConstant verifies that smoothing leaves a flat volume unchanged
func TestRecursiveGaussianPreservesConstant(t *testing.T) {
	vol := models.NewVolume(models.NewGrid(7, 5, 6))
	for i := range vol.Data {
		vol.Data[i] = 3.5
	}

	for axis := 0; axis < 3; axis++ {
		out, err := RecursiveGaussian(vol, axis, 1.5, 3)
		if err != nil {
			t.Fatalf("axis %d: %v", axis, err)
		}
		for i, v := range out.Data {
			if math.Abs(v-3.5) > 1e-9 {
				t.Fatalf("axis %d: voxel %d changed to %f", axis, i, v)
			}
		}
	}
}

// TestRecursiveGaussianImpulse checks symmetry, spread and mass of an impulse response
func TestRecursiveGaussianImpulse(t *testing.T) {
	n := 41
	vol := models.NewVolume(models.NewGrid(n, 1, 1))
	vol.Set(n/2, 0, 0, 1)

	out, err := RecursiveGaussian(vol, 0, 2.0, 1)
	if err != nil {
		t.Fatalf("RecursiveGaussian failed: %v", err)
	}

	sum := 0.0
	for _, v := range out.Data {
		sum += v
	}
	if math.Abs(sum-1) > 1e-3 {
		t.Errorf("Expected unit mass, got %f", sum)
	}

	peak := out.At(n/2, 0, 0)
	if peak >= 1 || peak <= 0.1 {
		t.Errorf("Peak %f should be spread but still dominant", peak)
	}

	for k := 1; k < 6; k++ {
		left := out.At(n/2-k, 0, 0)
		right := out.At(n/2+k, 0, 0)
		if math.Abs(left-right) > 1e-2*peak {
			t.Errorf("Asymmetric response at offset %d: %f vs %f", k, left, right)
		}
		if left >= out.At(n/2-k+1, 0, 0) {
			t.Errorf("Response should decrease away from the centre at offset %d", k)
		}
	}
}

// TestRecursiveGaussianAxisIsolation verifies that smoothing along y leaves x profiles untouched
func TestRecursiveGaussianAxisIsolation(t *testing.T) {
	g := models.NewGrid(6, 9, 2)
	vol := models.NewVolume(g)
	for z := 0; z < g.Depth; z++ {
		for x := 0; x < g.Width; x++ {
			vol.Set(x, 4, z, float64(x+1))
		}
	}

	out, err := RecursiveGaussian(vol, 1, 1.0, 2)
	if err != nil {
		t.Fatalf("RecursiveGaussian failed: %v", err)
	}

	for z := 0; z < g.Depth; z++ {
		for y := 0; y < g.Height; y++ {
			ratio := out.At(5, y, z) / out.At(0, y, z)
			if math.Abs(ratio-6) > 1e-9 {
				t.Errorf("x profile changed at y=%d z=%d: ratio %f", y, z, ratio)
			}
		}
	}
}

func TestRecursiveGaussianInvalidArguments(t *testing.T) {
	vol := models.NewVolume(models.NewGrid(3, 3, 3))

	if _, err := RecursiveGaussian(vol, 0, 0, 1); err == nil {
		t.Error("expected error for zero sigma")
	}
	if _, err := RecursiveGaussian(vol, 0, -1, 1); err == nil {
		t.Error("expected error for negative sigma")
	}
	if _, err := RecursiveGaussian(vol, 0, math.NaN(), 1); err == nil {
		t.Error("expected error for NaN sigma")
	}
	if _, err := RecursiveGaussian(vol, 3, 1, 1); err == nil {
		t.Error("expected error for invalid axis")
	}
	if _, err := SmoothXYZ(vol, 0, 1); err == nil {
		t.Error("expected SmoothXYZ to reject zero sigma")
	}
}

func TestRecursiveGaussianTinySigma(t *testing.T) {
	vol := createSphereDistanceMap(7, 3)
	out, err := RecursiveGaussian(vol, 2, 0.01, 1)
	if err != nil {
		t.Fatalf("RecursiveGaussian failed: %v", err)
	}
	for i := range vol.Data {
		if out.Data[i] != vol.Data[i] {
			t.Fatalf("tiny sigma should leave voxel %d unchanged", i)
		}
	}
}

// TestGradientLinearRamp checks exact derivatives, including borders and spacing
func TestGradientLinearRamp(t *testing.T) {
	g := models.NewGrid(5, 4, 3)
	g.Spacing = [3]float64{0.5, 1, 2}
	vol := models.NewVolume(g)
	for z := 0; z < g.Depth; z++ {
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				vol.Set(x, y, z, 2*float64(x)+3*float64(y)-float64(z))
			}
		}
	}

	field, err := Gradient(vol, 2)
	if err != nil {
		t.Fatalf("Gradient failed: %v", err)
	}

	want := r3.Vec{X: 4, Y: 3, Z: -0.5}
	for i, got := range field.Data {
		if r3.Norm(r3.Sub(got, want)) > 1e-9 {
			t.Fatalf("voxel %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestGradientSingletonAxis(t *testing.T) {
	vol := models.NewVolume(models.NewGrid(4, 4, 1))
	for i := range vol.Data {
		vol.Data[i] = float64(i)
	}
	field, err := Gradient(vol, 1)
	if err != nil {
		t.Fatalf("Gradient failed: %v", err)
	}
	for i, v := range field.Data {
		if v.Z != 0 {
			t.Errorf("voxel %d: expected zero z derivative, got %f", i, v.Z)
		}
	}
}

// TestAverageOutwardFluxSphere verifies the sign pattern of the flux of a sphere's distance gradient
func TestAverageOutwardFluxSphere(t *testing.T) {
	size := 21
	dist := createSphereDistanceMap(size, 8.5)
	flux, _ := runPipeline(t, dist, 0.5, 0)

	c := size / 2
	centre := flux.At(c, c, c)
	if centre >= -0.5 {
		t.Errorf("Expected strongly negative flux at the centre, got %f", centre)
	}

	for i, d := range dist.Data {
		if d <= 0 && flux.Data[i] != 0 {
			t.Fatalf("flux outside the object should be zero, voxel %d has %f", i, flux.Data[i])
		}
	}

	// halfway to the surface the field is nearly parallel
	mid := flux.At(c+4, c, c)
	if mid <= centre {
		t.Errorf("Flux away from the centre (%f) should exceed the centre flux (%f)", mid, centre)
	}
}

func TestAverageOutwardFluxGridMismatch(t *testing.T) {
	base := models.NewVolume(models.NewGrid(3, 3, 3))
	field := models.NewVectorField(models.NewGrid(3, 3, 4))
	if _, err := AverageOutwardFlux(base, field, 1); err == nil {
		t.Error("expected error for mismatched grids")
	}
}

func neighborhoodOf(points ...[3]int) Neighborhood {
	var n Neighborhood
	n[center] = true
	for _, p := range points {
		n[(p[2]+1)*9+(p[1]+1)*3+(p[0]+1)] = true
	}
	return n
}

func TestSimplePoints(t *testing.T) {
	var full Neighborhood
	for i := range full {
		full[i] = true
	}

	var halfSpace Neighborhood
	for i := range halfSpace {
		_, _, z := cubeCoords(i)
		halfSpace[i] = z <= 0
	}

	tests := []struct {
		name     string
		n        Neighborhood
		simple   bool
		endPoint bool
	}{
		{"isolated voxel", neighborhoodOf(), false, false},
		{"curve end", neighborhoodOf([3]int{1, 0, 0}), true, true},
		{"curve middle", neighborhoodOf([3]int{-1, 0, 0}, [3]int{1, 0, 0}), false, false},
		{"diagonal curve middle", neighborhoodOf([3]int{-1, -1, -1}, [3]int{1, 1, 1}), false, false},
		{"interior voxel", full, false, false},
		{"flat surface voxel", halfSpace, true, false},
		{"corner of an L", neighborhoodOf([3]int{1, 0, 0}, [3]int{0, 1, 0}), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.n.IsSimple(); got != tt.simple {
				t.Errorf("IsSimple() = %v, want %v", got, tt.simple)
			}
			if got := tt.n.IsEndPoint(); got != tt.endPoint {
				t.Errorf("IsEndPoint() = %v, want %v", got, tt.endPoint)
			}
		})
	}
}

// TestMedialCurveSphere is the smoke test of the full chain on a solid sphere
func TestMedialCurveSphere(t *testing.T) {
	size := 21
	radius := 8.5
	dist := createSphereDistanceMap(size, radius)
	_, skel := runPipeline(t, dist, 0.5, 0)

	c := float64(size-1) / 2
	count := 0
	for i, v := range skel.Data {
		if v == 0 {
			continue
		}
		if v != 1 {
			t.Fatalf("skeleton should be binary, voxel %d has %f", i, v)
		}
		count++
		if dist.Data[i] <= 0 {
			t.Errorf("skeleton voxel %d lies outside the sphere", i)
		}
		x, y, z := skel.Coords(i)
		r := math.Sqrt(math.Pow(float64(x)-c, 2) + math.Pow(float64(y)-c, 2) + math.Pow(float64(z)-c, 2))
		if r > radius/2 {
			t.Errorf("skeleton voxel (%d,%d,%d) is %f from the centre", x, y, z, r)
		}
	}

	if count == 0 {
		t.Fatal("skeleton is empty")
	}
	if count > 27 {
		t.Errorf("skeleton of a sphere should be small, got %d voxels", count)
	}
	if comps := Components(skel); len(comps) != 1 {
		t.Errorf("Expected one connected component, got %d", len(comps))
	}
}

// TestMedialCurveCylinder verifies that an elongated object thins to a curve along its axis
// TestMedialCurveThreshold checks that end points survive only when their flux
// is below the threshold.
func TestMedialCurveThreshold(t *testing.T) {
	length, size := 40, 13
	dist := createCylinderDistanceMap(length, size, 4.5, 4)

	extent := func(skel *models.Volume) (int, int) {
		minX, maxX := length, -1
		count := 0
		for i, v := range skel.Data {
			if v == 0 {
				continue
			}
			count++
			x, _, _ := skel.Coords(i)
			minX = min(minX, x)
			maxX = max(maxX, x)
		}
		return count, maxX - minX
	}

	_, collapsed := runPipeline(t, dist, 0.5, -1000)
	if count, _ := extent(collapsed); count != 1 {
		t.Errorf("threshold -1000 anchors nothing, expected a single voxel, got %d", count)
	}

	for _, threshold := range []float64{0, 1000} {
		_, skel := runPipeline(t, dist, 0.5, threshold)
		count, span := extent(skel)
		if count <= 1 || span < 10 {
			t.Errorf("threshold %g: expected the axial curve, got %d voxels spanning %d", threshold, count, span)
		}
		if comps := Components(skel); len(comps) != 1 {
			t.Errorf("threshold %g: expected one component, got %d", threshold, len(comps))
		}
	}
}

func TestMedialCurveCylinder(t *testing.T) {
	length, size := 40, 13
	dist := createCylinderDistanceMap(length, size, 4.5, 4)
	_, skel := runPipeline(t, dist, 0.5, 0)

	c := float64(size-1) / 2
	minX, maxX := length, -1
	count := 0
	for i, v := range skel.Data {
		if v == 0 {
			continue
		}
		count++
		x, y, z := skel.Coords(i)
		if math.Abs(float64(y)-c) > 1.5 || math.Abs(float64(z)-c) > 1.5 {
			t.Errorf("skeleton voxel (%d,%d,%d) is off the cylinder axis", x, y, z)
		}
		minX = min(minX, x)
		maxX = max(maxX, x)
	}

	if count == 0 {
		t.Fatal("skeleton is empty")
	}
	if maxX-minX < 10 {
		t.Errorf("Expected a curve along x, extent is only %d voxels", maxX-minX)
	}
	if count > 3*(maxX-minX+1) {
		t.Errorf("skeleton is too thick: %d voxels over %d slices", count, maxX-minX+1)
	}
	if comps := Components(skel); len(comps) != 1 {
		t.Errorf("Expected one connected component, got %d", len(comps))
	}
}

func TestMedialCurveEmptyObject(t *testing.T) {
	dist := models.NewVolume(models.NewGrid(5, 5, 5))
	flux := models.NewVolume(dist.Grid)
	skel, err := MedialCurve(dist, flux, 0)
	if err != nil {
		t.Fatalf("MedialCurve failed: %v", err)
	}
	for i, v := range skel.Data {
		if v != 0 {
			t.Fatalf("voxel %d should be empty", i)
		}
	}
}

func TestMedialCurveGridMismatch(t *testing.T) {
	dist := models.NewVolume(models.NewGrid(5, 5, 5))
	flux := models.NewVolume(models.NewGrid(5, 5, 4))
	if _, err := MedialCurve(dist, flux, 0); err == nil {
		t.Error("expected error for mismatched grids")
	}
}

func TestComponentsAndPrune(t *testing.T) {
	vol := models.NewVolume(models.NewGrid(10, 3, 3))
	// a diagonal run of three voxels
	vol.Set(0, 0, 0, 1)
	vol.Set(1, 1, 1, 1)
	vol.Set(2, 2, 2, 1)
	// an isolated voxel
	vol.Set(6, 1, 1, 1)
	// a pair
	vol.Set(8, 0, 0, 1)
	vol.Set(9, 0, 0, 1)

	comps := Components(vol)
	if len(comps) != 3 {
		t.Fatalf("Expected 3 components, got %d", len(comps))
	}
	sizes := []int{len(comps[0]), len(comps[1]), len(comps[2])}
	if sizes[0] != 3 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("Unexpected component sizes %v", sizes)
	}

	pruned, removed := PruneComponents(vol, 2)
	if removed != 1 {
		t.Errorf("Expected 1 voxel removed, got %d", removed)
	}
	if pruned.At(6, 1, 1) != 0 {
		t.Error("isolated voxel should be pruned")
	}
	if vol.At(6, 1, 1) != 1 {
		t.Error("input must not be modified")
	}

	if _, removed := PruneComponents(vol, 0); removed != 0 {
		t.Errorf("minSize 0 should keep everything, removed %d", removed)
	}
}

func TestParallelForCoversRange(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 100} {
		seen := make([]int, 17)
		err := parallelFor(len(seen), workers, func(lo, hi int) error {
			for i := lo; i < hi; i++ {
				seen[i]++
			}
			return nil
		})
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		for i, n := range seen {
			if n != 1 {
				t.Errorf("workers=%d: index %d visited %d times", workers, i, n)
			}
		}
	}
}
