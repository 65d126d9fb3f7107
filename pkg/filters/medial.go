package filters

import (
	"container/heap"
	"fmt"

	"medialcurve/internal/models"
)

const (
	background uint8 = iota
	object
	anchor
)

// candidate is a border voxel waiting to be tested for removal
type candidate struct {
	idx      int
	distance float64
	flux     float64
}

// candidateQueue orders candidates by increasing distance, then by decreasing
// flux, then by index so thinning is deterministic.
type candidateQueue []candidate

func (q candidateQueue) Len() int { return len(q) }

func (q candidateQueue) Less(i, j int) bool {
	if q[i].distance != q[j].distance {
		return q[i].distance < q[j].distance
	}
	if q[i].flux != q[j].flux {
		return q[i].flux > q[j].flux
	}
	return q[i].idx < q[j].idx
}

func (q candidateQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *candidateQueue) Push(x any) { *q = append(*q, x.(candidate)) }

func (q *candidateQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// thinner holds the state of one medial curve extraction
type thinner struct {
	grid     models.Grid
	distance []float64
	flux     []float64
	state    []uint8
	queued   []bool
	queue    candidateQueue
}

// neighborhood gathers the occupancy cube around (x, y, z). Voxels outside the grid
// count as background.
func (t *thinner) neighborhood(x, y, z int) Neighborhood {
	var n Neighborhood
	i := 0
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny, nz := x+dx, y+dy, z+dz
				if t.grid.Contains(nx, ny, nz) {
					n[i] = t.state[t.grid.Index(nx, ny, nz)] != background
				}
				i++
			}
		}
	}
	return n
}

func (t *thinner) push(idx int) {
	if t.queued[idx] || t.state[idx] != object {
		return
	}
	t.queued[idx] = true
	heap.Push(&t.queue, candidate{idx: idx, distance: t.distance[idx], flux: t.flux[idx]})
}

// onBorder reports whether the voxel has a 6-neighbour in the background.
func (t *thinner) onBorder(x, y, z int) bool {
	faces := [6][3]int{{-1, 0, 0}, {1, 0, 0}, {0, -1, 0}, {0, 1, 0}, {0, 0, -1}, {0, 0, 1}}
	for _, f := range faces {
		nx, ny, nz := x+f[0], y+f[1], z+f[2]
		if !t.grid.Contains(nx, ny, nz) || t.state[t.grid.Index(nx, ny, nz)] == background {
			return true
		}
	}
	return false
}

// MedialCurve thins the object described by distance (samples > 0) down to a
// curve while preserving its topology. Simple voxels are removed in order of
// increasing distance; a voxel that ends a curve is kept when its flux is below
// threshold. The result has the input grid with skeleton voxels set to 1.
func MedialCurve(distance, flux *models.Volume, threshold float64) (*models.Volume, error) {
	if !distance.SameLattice(flux.Grid) {
		return nil, fmt.Errorf("medial curve grids differ: distance %dx%dx%d, flux %dx%dx%d",
			distance.Width, distance.Height, distance.Depth, flux.Width, flux.Height, flux.Depth)
	}

	t := &thinner{
		grid:     distance.Grid,
		distance: distance.Data,
		flux:     flux.Data,
		state:    make([]uint8, distance.Len()),
		queued:   make([]bool, distance.Len()),
	}

	for i, d := range distance.Data {
		if d > 0 {
			t.state[i] = object
		}
	}

	for i := range t.state {
		if t.state[i] != object {
			continue
		}
		x, y, z := t.grid.Coords(i)
		if t.onBorder(x, y, z) {
			t.push(i)
		}
	}

	for t.queue.Len() > 0 {
		c := heap.Pop(&t.queue).(candidate)
		t.queued[c.idx] = false
		if t.state[c.idx] != object {
			continue
		}

		x, y, z := t.grid.Coords(c.idx)
		n := t.neighborhood(x, y, z)
		if !n.IsSimple() {
			continue
		}
		if n.IsEndPoint() && c.flux < threshold {
			t.state[c.idx] = anchor
			continue
		}

		t.state[c.idx] = background
		for dz := -1; dz <= 1; dz++ {
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny, nz := x+dx, y+dy, z+dz
					if t.grid.Contains(nx, ny, nz) {
						t.push(t.grid.Index(nx, ny, nz))
					}
				}
			}
		}
	}

	out := models.NewVolume(distance.Grid)
	for i, s := range t.state {
		if s != background {
			out.Data[i] = 1
		}
	}
	return out, nil
}
