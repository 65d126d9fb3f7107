package filters

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"medialcurve/internal/models"
)

// Components groups the non-zero voxels of v into 26-connected components.
// Each component is a sorted list of voxel indices; components are ordered by
// decreasing size, then by their first index.
func Components(v *models.Volume) [][]int {
	g := simple.NewUndirectedGraph()
	for i, s := range v.Data {
		if s != 0 {
			g.AddNode(simple.Node(i))
		}
	}

	for i, s := range v.Data {
		if s == 0 {
			continue
		}
		x, y, z := v.Coords(i)
		for dz := -1; dz <= 1; dz++ {
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny, nz := x+dx, y+dy, z+dz
					if !v.Contains(nx, ny, nz) {
						continue
					}
					j := v.Index(nx, ny, nz)
					if j <= i || v.Data[j] == 0 {
						continue
					}
					g.SetEdge(g.NewEdge(simple.Node(i), simple.Node(j)))
				}
			}
		}
	}

	var comps [][]int
	for _, cc := range topo.ConnectedComponents(g) {
		ids := make([]int, len(cc))
		for k, n := range cc {
			ids[k] = int(n.ID())
		}
		sort.Ints(ids)
		comps = append(comps, ids)
	}

	sort.Slice(comps, func(a, b int) bool {
		if len(comps[a]) != len(comps[b]) {
			return len(comps[a]) > len(comps[b])
		}
		return comps[a][0] < comps[b][0]
	})
	return comps
}

// PruneComponents zeroes every component with fewer than minSize voxels and
// returns the pruned copy with the number of voxels removed.
func PruneComponents(v *models.Volume, minSize int) (*models.Volume, int) {
	out := v.Clone()
	if minSize <= 1 {
		return out, 0
	}

	removed := 0
	for _, comp := range Components(v) {
		if len(comp) >= minSize {
			continue
		}
		for _, idx := range comp {
			out.Data[idx] = 0
		}
		removed += len(comp)
	}
	return out, removed
}
