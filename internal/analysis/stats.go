package analysis

import (
	"github.com/coffersTech/behavelog/internal/classify"
	"github.com/coffersTech/behavelog/internal/model"
)

// Count is a key with its occurrence count.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// HourCount is one bucket of the hourly histogram.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Stats aggregates the kept records, classified or not.
type Stats struct {
	Total      int            `json:"total"`
	ByLevel    map[string]int `json:"byLevel"`
	ByCategory map[string]int `json:"byCategory"`
	// ByScene omits records without a scene.
	ByScene   map[string]int `json:"byScene"`
	Hourly    [24]int        `json:"hourly"`
	ErrorRate float64        `json:"errorRate"`

	TopCategory *Count     `json:"topCategory,omitempty"`
	TopScene    *Count     `json:"topScene,omitempty"`
	PeakHour    *HourCount `json:"peakHour,omitempty"`
}

func computeStats(recs []model.Record) Stats {
	st := Stats{
		Total:      len(recs),
		ByLevel:    make(map[string]int),
		ByCategory: make(map[string]int),
		ByScene:    make(map[string]int),
	}
	errs := 0
	for _, r := range recs {
		st.ByLevel[r.Level.String()]++
		st.ByCategory[r.Category]++
		if r.Scene != "" {
			st.ByScene[r.Scene]++
		}
		st.Hourly[r.Timestamp.Local().Hour()]++
		if r.Level >= model.LevelError {
			errs++
		}
	}
	if st.Total == 0 {
		return st
	}
	st.ErrorRate = float64(errs) / float64(st.Total)
	st.TopCategory = top(st.ByCategory)
	st.TopScene = top(st.ByScene)

	peak := HourCount{Hour: -1}
	for h, n := range st.Hourly {
		if n > peak.Count {
			peak = HourCount{Hour: h, Count: n}
		}
	}
	st.PeakHour = &peak
	return st
}

// top returns the key with the highest count; ties go to the smallest key.
func top(counts map[string]int) *Count {
	var best *Count
	for k, n := range counts {
		if best == nil || n > best.Count || (n == best.Count && k < best.Key) {
			best = &Count{Key: k, Count: n}
		}
	}
	return best
}

// BehaviorStats summarizes the classified nodes.
type BehaviorStats struct {
	TotalBehaviors int `json:"totalBehaviors"`
	// SessionMinutes spans the first to the last node.
	SessionMinutes float64 `json:"sessionMinutes"`
	// PerMinute divides by SessionMinutes floored at one minute.
	PerMinute    float64        `json:"perMinute"`
	Distribution map[string]int `json:"distribution"`
}

func computeBehavior(nodes []Node) BehaviorStats {
	bs := BehaviorStats{
		TotalBehaviors: len(nodes),
		Distribution:   make(map[string]int),
	}
	for _, n := range nodes {
		bs.Distribution[n.Type.String()]++
	}
	if len(nodes) == 0 {
		return bs
	}
	bs.SessionMinutes = nodes[len(nodes)-1].Timestamp.Sub(nodes[0].Timestamp).Minutes()
	bs.PerMinute = float64(len(nodes)) / max(1, bs.SessionMinutes)
	return bs
}

// Dominant returns the most frequent behavior type, or Unknown when there
// are no nodes. Ties go to the type declared first.
func (b BehaviorStats) Dominant() classify.BehaviorType {
	best, bestN := classify.Unknown, 0
	for t := classify.Click; t <= classify.SceneChange; t++ {
		if n := b.Distribution[t.String()]; n > bestN {
			best, bestN = t, n
		}
	}
	return best
}
