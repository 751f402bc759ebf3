package analysis

import (
	"sort"

	"github.com/coffersTech/behavelog/internal/model"
)

// SessionKey groups records by device and local calendar day.
func SessionKey(r model.Record) string {
	return r.DeviceID + "_" + r.Timestamp.Local().Format("20060102")
}

// Sessions lists the distinct session keys of recs in ascending order.
func Sessions(recs []model.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range recs {
		seen[SessionKey(r)] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InSession returns a keep predicate for Analyze.
func InSession(key string) func(model.Record) bool {
	return func(r model.Record) bool { return SessionKey(r) == key }
}
