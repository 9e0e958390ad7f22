package mmwave

import "math"

// Density-based clustering over Detection positions. Uses full 3D Euclidean
// distance with a regular-grid spatial index whose cell size matches eps, so
// a neighbourhood query only inspects the 3×3×3 surrounding cells.

// gridCell identifies one cell of the spatial index.
type gridCell struct {
	x, y, z int64
}

// spatialIndex buckets point indices by grid cell for neighbour queries.
type spatialIndex struct {
	cellSize float64
	grid     map[gridCell][]int
}

func newSpatialIndex(points []Detection, cellSize float64) *spatialIndex {
	si := &spatialIndex{
		cellSize: cellSize,
		grid:     make(map[gridCell][]int, len(points)/4+1),
	}
	for i, p := range points {
		cell := si.cellOf(p.X, p.Y, p.Z)
		si.grid[cell] = append(si.grid[cell], i)
	}
	return si
}

func (si *spatialIndex) cellOf(x, y, z float64) gridCell {
	return gridCell{
		x: int64(math.Floor(x / si.cellSize)),
		y: int64(math.Floor(y / si.cellSize)),
		z: int64(math.Floor(z / si.cellSize)),
	}
}

// regionQuery returns indices of all points within eps of points[idx],
// including idx itself.
func (si *spatialIndex) regionQuery(points []Detection, idx int, eps float64) []int {
	p := points[idx]
	base := si.cellOf(p.X, p.Y, p.Z)
	eps2 := eps * eps

	var neighbors []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				cell := gridCell{base.x + dx, base.y + dy, base.z + dz}
				for _, cand := range si.grid[cell] {
					q := points[cand]
					ddx := q.X - p.X
					ddy := q.Y - p.Y
					ddz := q.Z - p.Z
					if ddx*ddx+ddy*ddy+ddz*ddz <= eps2 {
						neighbors = append(neighbors, cand)
					}
				}
			}
		}
	}
	return neighbors
}

// clusterLabels runs DBSCAN over the batch and returns one cluster id per
// point: NoiseClusterID for points outside any dense neighbourhood, ids
// counting up from 0 otherwise. A point is a core point when at least
// minSamples points (itself included) lie within eps of it. Labels are
// deterministic for a given batch order.
func clusterLabels(points []Detection, eps float64, minSamples int) []int {
	n := len(points)
	labels := make([]int, n)
	if n == 0 {
		return labels
	}
	const unvisited = -2
	for i := range labels {
		labels[i] = unvisited
	}

	si := newSpatialIndex(points, eps)
	clusterID := 0

	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}

		neighbors := si.regionQuery(points, i, eps)
		if len(neighbors) < minSamples {
			labels[i] = NoiseClusterID
			continue
		}

		expandCluster(points, si, labels, i, neighbors, clusterID, eps, minSamples)
		clusterID++
	}
	return labels
}

// expandCluster grows a cluster outward from a core point, queue-based.
func expandCluster(points []Detection, si *spatialIndex, labels []int,
	seed int, neighbors []int, clusterID int, eps float64, minSamples int) {

	const unvisited = -2
	labels[seed] = clusterID

	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if labels[idx] == NoiseClusterID {
			labels[idx] = clusterID // noise becomes a border point
		}
		if labels[idx] != unvisited {
			continue
		}

		labels[idx] = clusterID
		more := si.regionQuery(points, idx, eps)
		if len(more) >= minSamples {
			neighbors = append(neighbors, more...)
		}
	}
}
