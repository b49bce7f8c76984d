package schedule

import "github.com/smukkama/survey-sim/internal/cluster"

// Rotation tracks which clusters have been surveyed in the current sweep.
// A cycle ends once every cluster has been surveyed; the next period starts
// a fresh one. It is not safe for concurrent use.
type Rotation struct {
	total    int
	surveyed map[int]struct{}
	cycle    int
}

func NewRotation(total int) *Rotation {
	return &Rotation{total: total, surveyed: make(map[int]struct{}, total)}
}

// Cycle is the zero-based index of the active rotation cycle.
func (r *Rotation) Cycle() int { return r.cycle }

// Remaining is the number of clusters not yet surveyed in this cycle.
func (r *Rotation) Remaining() int { return r.total - len(r.surveyed) }

func (r *Rotation) Surveyed(id int) bool {
	_, ok := r.surveyed[id]
	return ok
}

// Eligible filters clusters down to those still due in this cycle.
func (r *Rotation) Eligible(clusters []*cluster.Cluster) []*cluster.Cluster {
	out := make([]*cluster.Cluster, 0, r.Remaining())
	for _, c := range clusters {
		if !r.Surveyed(c.ID) {
			out = append(out, c)
		}
	}
	return out
}

// Mark records clusters as surveyed and resets the cycle once the sweep
// is complete.
func (r *Rotation) Mark(clusters []*cluster.Cluster) {
	for _, c := range clusters {
		r.surveyed[c.ID] = struct{}{}
	}
	if r.total > 0 && len(r.surveyed) >= r.total {
		r.surveyed = make(map[int]struct{}, r.total)
		r.cycle++
	}
}
