package mmwave

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// column builds n points stacked vertically at (x, y), spanning zMin..zMax
// with the given radial velocity. Spacing stays under the default eps so the
// column forms one dense cluster.
func column(n int, x, y, zMin, zMax, velocity float64) []Detection {
	pts := make([]Detection, n)
	step := (zMax - zMin) / float64(n-1)
	for i := range pts {
		pts[i] = Detection{X: x, Y: y, Z: zMin + float64(i)*step, Velocity: velocity}
	}
	return pts
}

func TestProcess_EmptyBatch(t *testing.T) {
	pts, humans := Process(nil, DefaultParams())
	if pts != nil || humans != nil {
		t.Errorf("empty batch produced %d points, %d humans", len(pts), len(humans))
	}
}

func TestProcess_HumanCluster(t *testing.T) {
	// 12 points, z extent 1.5 m, no horizontal spread: passes every gate.
	batch := column(12, 1.0, 2.0, 0.2, 1.7, 0.0)

	pts, humans := Process(batch, DefaultParams())

	if len(humans) != 1 {
		t.Fatalf("got %d human summaries, want 1", len(humans))
	}
	h := humans[0]
	if h.Points != 12 {
		t.Errorf("summary Points = %d, want 12", h.Points)
	}
	if h.CentroidX != 1.0 || h.CentroidY != 2.0 {
		t.Errorf("centroid (%v, %v), want (1, 2)", h.CentroidX, h.CentroidY)
	}
	if math.Abs(h.CentroidZ-0.95) > 1e-9 {
		t.Errorf("CentroidZ = %v, want 0.95", h.CentroidZ)
	}

	for i, p := range pts {
		if p.Label != LabelHuman {
			t.Errorf("point %d labelled %s, want %s", i, p.Label, LabelHuman)
		}
		if p.ClusterID != h.ClusterID {
			t.Errorf("point %d cluster %d, want %d", i, p.ClusterID, h.ClusterID)
		}
	}
}

func TestProcess_SmallClusterIsNotHuman(t *testing.T) {
	// Human-shaped but only 7 points, below the 10-point floor.
	batch := column(7, 0, 0, 0.2, 1.7, 0.0)

	pts, humans := Process(batch, DefaultParams())
	if len(humans) != 0 {
		t.Fatalf("undersized cluster produced %d human summaries", len(humans))
	}
	for _, p := range pts {
		if p.Label == LabelHuman {
			t.Fatal("undersized cluster labelled Human")
		}
	}
}

func TestProcess_TooShortClusterIsNotHuman(t *testing.T) {
	// Dense and wide enough, but z extent 0.5 m is below the height floor.
	batch := column(12, 0, 0, 0.1, 0.6, 0.0)

	_, humans := Process(batch, DefaultParams())
	if len(humans) != 0 {
		t.Errorf("0.5 m tall cluster produced %d human summaries", len(humans))
	}
}

func TestProcess_WideClusterIsNotHuman(t *testing.T) {
	// Tall enough but spread 2 m horizontally, above the width cap. Points
	// alternate between two columns 2 m apart is too far for one cluster, so
	// spread the column gradually instead.
	batch := make([]Detection, 12)
	for i := range batch {
		frac := float64(i) / 11
		batch[i] = Detection{X: frac * 2.0, Y: 0, Z: 0.2 + frac*1.5}
	}

	_, humans := Process(batch, DefaultParams())
	if len(humans) != 0 {
		t.Errorf("2 m wide cluster produced %d human summaries", len(humans))
	}
}

func TestProcess_MovingAndStaticClusters(t *testing.T) {
	moving := column(6, 5, 5, 0.1, 0.3, 0.8)
	static := column(6, -5, 5, 0.1, 0.3, 0.0)
	batch := append(append([]Detection{}, moving...), static...)

	pts, humans := Process(batch, DefaultParams())
	if len(humans) != 0 {
		t.Fatalf("unexpected human summaries: %d", len(humans))
	}

	for i := 0; i < 6; i++ {
		if pts[i].Label != LabelMoving {
			t.Errorf("moving point %d labelled %s", i, pts[i].Label)
		}
	}
	for i := 6; i < 12; i++ {
		if pts[i].Label != LabelStatic {
			t.Errorf("static point %d labelled %s", i, pts[i].Label)
		}
	}
	if pts[0].ClusterID == pts[6].ClusterID {
		t.Error("distant clusters share a cluster id")
	}
}

func TestProcess_IsolatedPointsAreClutter(t *testing.T) {
	batch := []Detection{
		{X: 10, Y: 10, Z: 1},
		{X: -10, Y: -10, Z: 1},
		{X: 0, Y: 20, Z: 1},
	}

	pts, humans := Process(batch, DefaultParams())
	if len(humans) != 0 {
		t.Fatalf("noise produced %d human summaries", len(humans))
	}
	for i, p := range pts {
		if p.Label != LabelClutter {
			t.Errorf("isolated point %d labelled %s, want %s", i, p.Label, LabelClutter)
		}
		if p.ClusterID != NoiseClusterID {
			t.Errorf("isolated point %d cluster %d, want %d", i, p.ClusterID, NoiseClusterID)
		}
	}
}

func TestProcess_MovementThreshold(t *testing.T) {
	params := DefaultParams()

	below := column(6, 0, 0, 0.1, 0.3, params.MovementThreshold*0.5)
	pts, _ := Process(below, params)
	if pts[0].Label != LabelStatic {
		t.Errorf("below-threshold cluster labelled %s, want %s", pts[0].Label, LabelStatic)
	}

	above := column(6, 0, 0, 0.1, 0.3, params.MovementThreshold*1.5)
	pts, _ = Process(above, params)
	if pts[0].Label != LabelMoving {
		t.Errorf("above-threshold cluster labelled %s, want %s", pts[0].Label, LabelMoving)
	}
}

func TestProcess_NegativeVelocityCountsAsMovement(t *testing.T) {
	batch := column(6, 0, 0, 0.1, 0.3, -0.8)
	pts, _ := Process(batch, DefaultParams())
	if pts[0].Label != LabelMoving {
		t.Errorf("approaching cluster labelled %s, want %s", pts[0].Label, LabelMoving)
	}
}

func TestProcess_Deterministic(t *testing.T) {
	batch := append(column(12, 1, 2, 0.2, 1.7, 0), column(6, 5, 5, 0.1, 0.3, 0.8)...)
	batch = append(batch, Detection{X: -10, Y: -10, Z: 1})

	pts1, humans1 := Process(batch, DefaultParams())
	pts2, humans2 := Process(batch, DefaultParams())

	if diff := cmp.Diff(pts1, pts2); diff != "" {
		t.Errorf("point labels differ between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(humans1, humans2); diff != "" {
		t.Errorf("human summaries differ between runs (-first +second):\n%s", diff)
	}
}

func TestCountLabels(t *testing.T) {
	points := []ClassifiedPoint{
		{Label: LabelHuman}, {Label: LabelHuman},
		{Label: LabelMoving},
		{Label: LabelStatic}, {Label: LabelStatic}, {Label: LabelStatic},
		{Label: LabelClutter},
	}
	got := CountLabels(points)
	want := BatchCounts{Total: 7, Human: 2, Moving: 1, Static: 3, Clutter: 1}
	if got != want {
		t.Errorf("CountLabels = %+v, want %+v", got, want)
	}
}

func TestCountLabels_Empty(t *testing.T) {
	if got := CountLabels(nil); got != (BatchCounts{}) {
		t.Errorf("CountLabels(nil) = %+v, want zero counts", got)
	}
}
