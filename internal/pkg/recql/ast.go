package recql

// Node is a parsed filter expression.
type Node interface {
	node()
}

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNeq
	OpContains
	OpGt
	OpGte
	OpLt
	OpLte
)

var opNames = [...]string{
	OpEq:       ":",
	OpNeq:      "!=",
	OpContains: "~",
	OpGt:       ">",
	OpGte:      ">=",
	OpLt:       "<",
	OpLte:      "<=",
}

func (o Op) String() string { return opNames[o] }

func (o Op) ordered() bool { return o >= OpGt }

// And is a conjunction.
type And struct{ Left, Right Node }

// Or is a disjunction.
type Or struct{ Left, Right Node }

// Not negates Expr.
type Not struct{ Expr Node }

// Match compares one record field with a literal. An empty Field searches
// message, category and scene.
type Match struct {
	Field Field
	Op    Op
	Value string
}

func (And) node()   {}
func (Or) node()    {}
func (Not) node()   {}
func (Match) node() {}
