package mmwave

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Default classifier parameters, tuned for indoor person detection with the
// demo firmware's point densities.
const (
	DefaultEps               = 0.5 // meters
	DefaultMinSamples        = 5
	DefaultMinPointsHuman    = 10
	DefaultMaxHumanWidth     = 1.2 // meters
	DefaultMinHumanHeight    = 0.8 // meters
	DefaultMaxHumanHeight    = 2.0 // meters
	DefaultMovementThreshold = 0.1 // m/s
)

// Params are the tunable thresholds for one classification pass. They are
// passed by value into Process so runtime tuning can never race with an
// in-flight pass.
type Params struct {
	// Eps is the DBSCAN neighbourhood radius in meters.
	Eps float64 `json:"eps"`
	// MinSamples is the minimum neighbour count (self included) for a
	// DBSCAN core point.
	MinSamples int `json:"min_samples"`
	// MinPointsHuman is the minimum cluster size to consider Human.
	MinPointsHuman int `json:"min_points_human"`
	// MaxHumanWidth bounds the horizontal spread of a Human cluster.
	MaxHumanWidth float64 `json:"max_human_width"`
	// MinHumanHeight / MaxHumanHeight bound the z-extent of a Human
	// cluster (exclusive on both ends).
	MinHumanHeight float64 `json:"min_human_height"`
	MaxHumanHeight float64 `json:"max_human_height"`
	// MovementThreshold separates Moving from Static for non-Human
	// clusters, compared against mean absolute radial velocity.
	MovementThreshold float64 `json:"movement_threshold"`
}

// DefaultParams returns the default classifier parameters.
func DefaultParams() Params {
	return Params{
		Eps:               DefaultEps,
		MinSamples:        DefaultMinSamples,
		MinPointsHuman:    DefaultMinPointsHuman,
		MaxHumanWidth:     DefaultMaxHumanWidth,
		MinHumanHeight:    DefaultMinHumanHeight,
		MaxHumanHeight:    DefaultMaxHumanHeight,
		MovementThreshold: DefaultMovementThreshold,
	}
}

// Process clusters a drained batch spatially and labels every point.
//
// Points outside any dense neighbourhood get cluster id NoiseClusterID and
// the Clutter label. Each dense cluster is labelled Human when its size and
// bounding-box geometry all satisfy the human thresholds simultaneously;
// otherwise Moving or Static by mean absolute velocity. One HumanSummary is
// emitted per Human cluster, ordered by cluster id.
//
// Labels are deterministic: they depend only on the batch contents and the
// parameters. Cluster numbering follows batch order.
func Process(batch []Detection, params Params) ([]ClassifiedPoint, []HumanSummary) {
	if len(batch) == 0 {
		return nil, nil
	}

	labels := clusterLabels(batch, params.Eps, params.MinSamples)

	classified := make([]ClassifiedPoint, len(batch))
	for i, d := range batch {
		classified[i] = ClassifiedPoint{
			Detection: d,
			ClusterID: labels[i],
			Label:     LabelClutter,
		}
	}

	// Group member indices per dense cluster.
	members := make(map[int][]int)
	for i, id := range labels {
		if id != NoiseClusterID {
			members[id] = append(members[id], i)
		}
	}

	clusterIDs := make([]int, 0, len(members))
	for id := range members {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Ints(clusterIDs)

	var humans []HumanSummary
	for _, id := range clusterIDs {
		idxs := members[id]
		feats := clusterFeatures(batch, idxs)

		label := LabelStatic
		switch {
		case isHumanCluster(feats, len(idxs), params):
			label = LabelHuman
			humans = append(humans, HumanSummary{
				ClusterID: id,
				CentroidX: feats.centroidX,
				CentroidY: feats.centroidY,
				CentroidZ: feats.centroidZ,
				Points:    len(idxs),
			})
		case feats.meanAbsVelocity > params.MovementThreshold:
			label = LabelMoving
		}

		for _, i := range idxs {
			classified[i].Label = label
		}
	}

	return classified, humans
}

// clusterGeometry holds the per-cluster features the label rules consume.
type clusterGeometry struct {
	height           float64 // z extent of the bounding box
	horizontalSpread float64 // hypot of x and y extents
	meanAbsVelocity  float64
	centroidX        float64
	centroidY        float64
	centroidZ        float64
}

// clusterFeatures computes the axis-aligned bounding box, centroid and mean
// absolute velocity over the cluster members.
func clusterFeatures(batch []Detection, idxs []int) clusterGeometry {
	xs := make([]float64, len(idxs))
	ys := make([]float64, len(idxs))
	zs := make([]float64, len(idxs))
	vs := make([]float64, len(idxs))
	for i, idx := range idxs {
		d := batch[idx]
		xs[i] = d.X
		ys[i] = d.Y
		zs[i] = d.Z
		vs[i] = math.Abs(d.Velocity)
	}

	minX, maxX := minMax(xs)
	minY, maxY := minMax(ys)
	minZ, maxZ := minMax(zs)

	return clusterGeometry{
		height:           maxZ - minZ,
		horizontalSpread: math.Hypot(maxX-minX, maxY-minY),
		meanAbsVelocity:  stat.Mean(vs, nil),
		centroidX:        stat.Mean(xs, nil),
		centroidY:        stat.Mean(ys, nil),
		centroidZ:        stat.Mean(zs, nil),
	}
}

// isHumanCluster applies the human gate: all conditions must hold at once.
func isHumanCluster(feats clusterGeometry, count int, params Params) bool {
	if count < params.MinPointsHuman {
		return false
	}
	if feats.height <= params.MinHumanHeight || feats.height >= params.MaxHumanHeight {
		return false
	}
	return feats.horizontalSpread <= params.MaxHumanWidth
}

// BatchCounts tallies one classification pass by label.
type BatchCounts struct {
	Total   int `json:"total"`
	Human   int `json:"human"`
	Moving  int `json:"moving"`
	Static  int `json:"static"`
	Clutter int `json:"clutter"`
}

// CountLabels tallies classified points by label.
func CountLabels(points []ClassifiedPoint) BatchCounts {
	counts := BatchCounts{Total: len(points)}
	for _, p := range points {
		switch p.Label {
		case LabelHuman:
			counts.Human++
		case LabelMoving:
			counts.Moving++
		case LabelStatic:
			counts.Static++
		case LabelClutter:
			counts.Clutter++
		}
	}
	return counts
}

func minMax(vals []float64) (min, max float64) {
	min, max = vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
