// Package analysis turns a set of records into behavior nodes, transitions,
// mined patterns and aggregate statistics. It is pure: nothing here touches
// disk or keeps state between calls.
package analysis

import (
	"github.com/coffersTech/behavelog/internal/classify"
	"github.com/coffersTech/behavelog/internal/model"
)

// Report is the JSON-serializable result of one Analyze call.
type Report struct {
	Stats       Stats         `json:"stats"`
	Behavior    BehaviorStats `json:"behavior"`
	Nodes       []Node        `json:"nodes"`
	Transitions []Transition  `json:"transitions"`
	Patterns    []Pattern     `json:"patterns"`
}

// Engine pairs a classifier with the pattern rules to mine.
type Engine struct {
	classifier *classify.Classifier
	rules      []Rule
}

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier replaces the default classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithRules replaces DefaultRules.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{classifier: classify.Default(), rules: DefaultRules()}
	for _, o := range opts {
		o(e)
	}
	if e.classifier == nil {
		e.classifier = classify.Default()
	}
	return e
}

// Analyze reports on the records keep accepts; a nil keep accepts all.
// Records the classifier cannot place still count in Stats.
func (e *Engine) Analyze(recs []model.Record, keep func(model.Record) bool) Report {
	kept := recs
	if keep != nil {
		kept = make([]model.Record, 0, len(recs))
		for _, r := range recs {
			if keep(r) {
				kept = append(kept, r)
			}
		}
	}

	nodes := buildNodes(e.classifier, kept)
	return Report{
		Stats:       computeStats(kept),
		Behavior:    computeBehavior(nodes),
		Nodes:       nodes,
		Transitions: buildTransitions(nodes),
		Patterns:    minePatterns(nodes, e.rules),
	}
}

var defaultEngine = NewEngine()

// Analyze runs the default engine.
func Analyze(recs []model.Record, keep func(model.Record) bool) Report {
	return defaultEngine.Analyze(recs, keep)
}
