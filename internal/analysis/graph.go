package analysis

import (
	"sort"
	"time"

	"github.com/coffersTech/behavelog/internal/classify"
	"github.com/coffersTech/behavelog/internal/model"
)

// Node is one classified record.
type Node struct {
	Timestamp time.Time             `json:"timestamp"`
	Type      classify.BehaviorType `json:"type"`
	Category  string                `json:"category"`
	Context   string                `json:"context,omitempty"`
	Details   string                `json:"details"`
	RecordID  string                `json:"recordId,omitempty"`
}

// TransitionKind labels the edge between two adjacent nodes.
type TransitionKind string

const (
	TransitionNormal               TransitionKind = "normal"
	TransitionUpgradeAfterPurchase TransitionKind = "upgrade-after-purchase"
	TransitionContinuousCombat     TransitionKind = "continuous-combat"
)

type typePair struct{ from, to classify.BehaviorType }

var transitionKinds = map[typePair]TransitionKind{
	{classify.Purchase, classify.Upgrade}: TransitionUpgradeAfterPurchase,
	{classify.Combat, classify.Combat}:    TransitionContinuousCombat,
}

// ClassifyTransition looks the pair up; unlisted pairs are normal.
func ClassifyTransition(from, to classify.BehaviorType) TransitionKind {
	if k, ok := transitionKinds[typePair{from, to}]; ok {
		return k
	}
	return TransitionNormal
}

// Transition joins Nodes[From] to Nodes[To] of the same report.
type Transition struct {
	From         int                   `json:"from"`
	To           int                   `json:"to"`
	FromType     classify.BehaviorType `json:"fromType"`
	ToType       classify.BehaviorType `json:"toType"`
	DeltaSeconds float64               `json:"deltaSeconds"`
	Kind         TransitionKind        `json:"kind"`
}

// buildNodes classifies recs and drops Unknown ones. The result is sorted
// by time; records with equal timestamps keep their input order.
func buildNodes(c *classify.Classifier, recs []model.Record) []Node {
	nodes := make([]Node, 0, len(recs))
	for _, r := range recs {
		t := c.Classify(r.Message)
		if t == classify.Unknown {
			continue
		}
		nodes = append(nodes, Node{
			Timestamp: r.Timestamp,
			Type:      t,
			Category:  r.Category,
			Context:   r.Scene,
			Details:   r.Message,
			RecordID:  r.ID,
		})
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Timestamp.Before(nodes[j].Timestamp)
	})
	return nodes
}

// buildTransitions links each node to its successor.
func buildTransitions(nodes []Node) []Transition {
	if len(nodes) < 2 {
		return nil
	}
	out := make([]Transition, 0, len(nodes)-1)
	for i := 0; i+1 < len(nodes); i++ {
		from, to := nodes[i], nodes[i+1]
		out = append(out, Transition{
			From:         i,
			To:           i + 1,
			FromType:     from.Type,
			ToType:       to.Type,
			DeltaSeconds: to.Timestamp.Sub(from.Timestamp).Seconds(),
			Kind:         ClassifyTransition(from.Type, to.Type),
		})
	}
	return out
}
