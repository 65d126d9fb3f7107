package filters

// Neighborhood is the 3x3x3 occupancy cube around a voxel, indexed by
// (dz+1)*9 + (dy+1)*3 + (dx+1). The centre is index 13.
type Neighborhood [27]bool

const center = 13

var (
	// adjacent26 lists, for each cube position, the other positions sharing a face, edge or corner
	adjacent26 [27][]int

	// adjacent6 lists face neighbours restricted to the 18-neighbourhood
	adjacent6 [27][]int

	// inN18 marks positions in the 18-neighbourhood of the centre (no corners, no centre)
	inN18 [27]bool

	// isFace marks the six face neighbours of the centre
	isFace [27]bool
)

func cubeCoords(i int) (x, y, z int) {
	return i%3 - 1, (i/3)%3 - 1, i/9 - 1
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}

func init() {
	for i := 0; i < 27; i++ {
		x, y, z := cubeCoords(i)
		nonzero := abs(x) + abs(y) + abs(z)
		inN18[i] = i != center && nonzero < 3
		isFace[i] = nonzero == 1
	}

	for i := 0; i < 27; i++ {
		if i == center {
			continue
		}
		xi, yi, zi := cubeCoords(i)
		for j := 0; j < 27; j++ {
			if j == i || j == center {
				continue
			}
			xj, yj, zj := cubeCoords(j)
			dx, dy, dz := abs(xi-xj), abs(yi-yj), abs(zi-zj)
			if dx <= 1 && dy <= 1 && dz <= 1 {
				adjacent26[i] = append(adjacent26[i], j)
			}
			if inN18[i] && inN18[j] && dx+dy+dz == 1 {
				adjacent6[i] = append(adjacent6[i], j)
			}
		}
	}
}

// ObjectNeighbors counts the object voxels among the 26 neighbours.
func (n *Neighborhood) ObjectNeighbors() int {
	count := 0
	for i, set := range n {
		if set && i != center {
			count++
		}
	}
	return count
}

// IsEndPoint reports whether the centre terminates a curve: it has exactly one
// object neighbour.
func (n *Neighborhood) IsEndPoint() bool {
	return n.ObjectNeighbors() == 1
}

// IsSimple reports whether removing the centre preserves the topology of the
// object (26-connectivity) and of the background (6-connectivity).
func (n *Neighborhood) IsSimple() bool {
	return n.objectComponents() == 1 && n.backgroundComponents() == 1
}

// objectComponents counts 26-connected object components in the punctured cube.
func (n *Neighborhood) objectComponents() int {
	var seen [27]bool
	var stack [27]int
	components := 0

	for i := 0; i < 27; i++ {
		if i == center || !n[i] || seen[i] {
			continue
		}
		components++
		top := 0
		stack[top] = i
		top++
		seen[i] = true
		for top > 0 {
			top--
			cur := stack[top]
			for _, j := range adjacent26[cur] {
				if n[j] && !seen[j] {
					seen[j] = true
					stack[top] = j
					top++
				}
			}
		}
	}
	return components
}

// backgroundComponents counts 6-connected background components in the
// 18-neighbourhood that touch one of the six face neighbours.
func (n *Neighborhood) backgroundComponents() int {
	var seen [27]bool
	var stack [27]int
	components := 0

	for i := 0; i < 27; i++ {
		if !isFace[i] || n[i] || seen[i] {
			continue
		}
		components++
		top := 0
		stack[top] = i
		top++
		seen[i] = true
		for top > 0 {
			top--
			cur := stack[top]
			for _, j := range adjacent6[cur] {
				if !n[j] && !seen[j] {
					seen[j] = true
					stack[top] = j
					top++
				}
			}
		}
	}
	return components
}
