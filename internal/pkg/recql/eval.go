package recql

import (
	"strings"

	"github.com/coffersTech/behavelog/internal/model"
)

// Field names a record attribute.
type Field string

const (
	FieldAny      Field = ""
	FieldLevel    Field = "level"
	FieldCategory Field = "category"
	FieldScene    Field = "scene"
	FieldSource   Field = "source"
	FieldDevice   Field = "device"
	FieldApp      Field = "app"
	FieldMessage  Field = "message"
	FieldID       Field = "id"
)

var fieldAliases = map[string]Field{
	"level":      FieldLevel,
	"lvl":        FieldLevel,
	"category":   FieldCategory,
	"cat":        FieldCategory,
	"scene":      FieldScene,
	"source":     FieldSource,
	"src":        FieldSource,
	"device":     FieldDevice,
	"deviceid":   FieldDevice,
	"app":        FieldApp,
	"appversion": FieldApp,
	"version":    FieldApp,
	"message":    FieldMessage,
	"msg":        FieldMessage,
	"id":         FieldID,
}

func lookupField(name string) (Field, bool) {
	f, ok := fieldAliases[strings.ToLower(name)]
	return f, ok
}

func parseLevel(s string) (model.Level, error) {
	return model.ParseLevel(s)
}

func fieldValue(f Field, r *model.Record) string {
	switch f {
	case FieldLevel:
		return r.Level.String()
	case FieldCategory:
		return r.Category
	case FieldScene:
		return r.Scene
	case FieldSource:
		return r.Source
	case FieldDevice:
		return r.DeviceID
	case FieldApp:
		return r.AppVersion
	case FieldMessage:
		return r.Message
	case FieldID:
		return r.ID
	}
	return ""
}

// Eval reports whether r satisfies n. A nil node matches every record.
func Eval(n Node, r *model.Record) bool {
	switch n := n.(type) {
	case nil:
		return true
	case And:
		return Eval(n.Left, r) && Eval(n.Right, r)
	case Or:
		return Eval(n.Left, r) || Eval(n.Right, r)
	case Not:
		return !Eval(n.Expr, r)
	case Match:
		return evalMatch(n, r)
	}
	return false
}

func evalMatch(m Match, r *model.Record) bool {
	if m.Field == FieldAny {
		return containsFold(r.Message, m.Value) ||
			containsFold(r.Category, m.Value) ||
			containsFold(r.Scene, m.Value)
	}
	if m.Field == FieldLevel {
		want, err := parseLevel(m.Value)
		if err != nil {
			return false
		}
		return compareLevel(m.Op, r.Level, want)
	}

	v := fieldValue(m.Field, r)
	switch m.Op {
	case OpEq:
		return strings.EqualFold(v, m.Value)
	case OpNeq:
		return !strings.EqualFold(v, m.Value)
	case OpContains:
		return containsFold(v, m.Value)
	}
	return false
}

func compareLevel(op Op, got, want model.Level) bool {
	switch op {
	case OpEq, OpContains:
		return got == want
	case OpNeq:
		return got != want
	case OpGt:
		return got > want
	case OpGte:
		return got >= want
	case OpLt:
		return got < want
	case OpLte:
		return got <= want
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Filter is a compiled expression. The zero value and a nil *Filter match
// everything.
type Filter struct {
	expr string
	root Node
}

// Compile parses expr into a Filter.
func Compile(expr string) (*Filter, error) {
	root, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Filter{expr: expr, root: root}, nil
}

// Match evaluates the filter against r.
func (f *Filter) Match(r model.Record) bool {
	if f == nil {
		return true
	}
	return Eval(f.root, &r)
}

// Empty reports whether the filter accepts everything.
func (f *Filter) Empty() bool { return f == nil || f.root == nil }

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}
