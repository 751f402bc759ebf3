package analysis

import (
	"sort"

	"github.com/coffersTech/behavelog/internal/classify"
)

// Rule selects fixed-length windows of the node sequence.
type Rule struct {
	Name   string
	Length int
	Match  func(window []Node) bool
}

// StartsWith matches windows whose first node is t.
func StartsWith(t classify.BehaviorType) func([]Node) bool {
	return func(w []Node) bool { return len(w) > 0 && w[0].Type == t }
}

// Contains matches windows holding at least one node of type t.
func Contains(t classify.BehaviorType) func([]Node) bool {
	return func(w []Node) bool {
		for _, n := range w {
			if n.Type == t {
				return true
			}
		}
		return false
	}
}

// DefaultRules are the onboarding and purchase-habit rules.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "onboarding flow", Length: 3, Match: StartsWith(classify.Login)},
		{Name: "purchase habit", Length: 5, Match: Contains(classify.Purchase)},
	}
}

// Pattern summarizes the windows one rule matched.
type Pattern struct {
	Name string `json:"name"`
	// Sequence is the first matching window.
	Sequence  []Node `json:"sequence"`
	Frequency int    `json:"frequency"`
	// AverageDuration is the mean window length in nodes, not time.
	AverageDuration float64 `json:"averageDuration"`
	// AverageSpanSeconds is the mean time from first to last node.
	AverageSpanSeconds float64 `json:"averageSpanSeconds"`
}

// minePatterns slides each rule's window over every complete position
// 0..len(nodes)-Length. Rules with no match are omitted; the rest are
// ordered by frequency, highest first.
func minePatterns(nodes []Node, rules []Rule) []Pattern {
	var out []Pattern
	for _, rule := range rules {
		if rule.Length < 1 || rule.Match == nil {
			continue
		}
		var (
			first   []Node
			matches int
			lenSum  int
			spanSum float64
		)
		for i := 0; i+rule.Length <= len(nodes); i++ {
			w := nodes[i : i+rule.Length]
			if !rule.Match(w) {
				continue
			}
			if first == nil {
				first = append([]Node(nil), w...)
			}
			matches++
			lenSum += len(w)
			spanSum += w[len(w)-1].Timestamp.Sub(w[0].Timestamp).Seconds()
		}
		if matches == 0 {
			continue
		}
		out = append(out, Pattern{
			Name:               rule.Name,
			Sequence:           first,
			Frequency:          matches,
			AverageDuration:    float64(lenSum) / float64(matches),
			AverageSpanSeconds: spanSum / float64(matches),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Frequency > out[j].Frequency })
	return out
}
