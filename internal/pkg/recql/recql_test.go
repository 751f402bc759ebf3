package recql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/behavelog/internal/model"
)

func TestLexer(t *testing.T) {
	tests := []struct {
		input string
		kinds []tokenKind
	}{
		{"category:Combat", []tokenKind{tokIdent, tokOp, tokIdent, tokEOF}},
		{`scene:"Boss Room"`, []tokenKind{tokIdent, tokOp, tokString, tokEOF}},
		{"level>=warning", []tokenKind{tokIdent, tokOp, tokIdent, tokEOF}},
		{"a and b", []tokenKind{tokIdent, tokAnd, tokIdent, tokEOF}},
		{"NOT (a OR b)", []tokenKind{tokNot, tokLParen, tokIdent, tokOr, tokIdent, tokRParen, tokEOF}},
		{"购买 成功", []tokenKind{tokIdent, tokIdent, tokEOF}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lx := newLexer(tt.input)
			for i, want := range tt.kinds {
				tok, err := lx.next()
				require.NoError(t, err)
				assert.Equal(t, want, tok.kind, "token %d (%s)", i, tok)
			}
		})
	}
}

func TestLexerOperators(t *testing.T) {
	for input, want := range map[string]Op{
		"a:b": OpEq, "a=b": OpEq, "a!=b": OpNeq, "a~b": OpContains,
		"a>b": OpGt, "a>=b": OpGte, "a<b": OpLt, "a<=b": OpLte,
	} {
		lx := newLexer(input)
		_, err := lx.next()
		require.NoError(t, err)
		tok, err := lx.next()
		require.NoError(t, err)
		assert.Equal(t, want, tok.op, input)
	}
}

func TestParseShapes(t *testing.T) {
	n, err := Parse("category:Combat AND (level:error OR level:critical)")
	require.NoError(t, err)
	and, ok := n.(And)
	require.True(t, ok, "%#v", n)
	assert.Equal(t, Match{Field: FieldCategory, Op: OpEq, Value: "Combat"}, and.Left)
	_, ok = and.Right.(Or)
	assert.True(t, ok)

	n, err = Parse("NOT scene:Lobby")
	require.NoError(t, err)
	assert.Equal(t, Not{Expr: Match{Field: FieldScene, Op: OpEq, Value: "Lobby"}}, n)

	n, err = Parse(`boss "final stage"`)
	require.NoError(t, err)
	assert.Equal(t, And{
		Left:  Match{Op: OpContains, Value: "boss"},
		Right: Match{Op: OpContains, Value: "final stage"},
	}, n)

	n, err = Parse("   ")
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{
		"colour:red",
		"category>Combat",
		"level:loud",
		`message:"open`,
		"(a OR b",
		"a OR",
		"category:",
		"a ! b",
		"a )",
	} {
		_, err := Parse(input)
		assert.Error(t, err, input)
	}
}

func TestFilterMatch(t *testing.T) {
	rec := model.Record{
		ID:         "r1",
		Message:    "Player bought sword in shop",
		Level:      model.LevelWarning,
		Category:   "Economy",
		Timestamp:  time.Now(),
		Scene:      "Town",
		Source:     "ShopController",
		DeviceID:   "dev-1",
		AppVersion: "1.2.0",
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"category:economy", true},
		{"category:Combat", false},
		{"category!=Combat", true},
		{"level:warning", true},
		{"level:Warn", true},
		{"level>=info", true},
		{"level>warning", false},
		{"level<error", true},
		{"level<=debug", false},
		{"sword", true},
		{`"in shop"`, true},
		{"town", true},
		{"message~BOUGHT", true},
		{"src:shopcontroller AND device:dev-1", true},
		{"app:1.2.0 AND NOT scene:Town", false},
		{"scene:Dungeon OR level>=error", false},
		{"scene:Dungeon OR category:Economy", true},
		{"NOT NOT sword", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(rec))
		})
	}
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	assert.True(t, f.Match(model.Record{}))
	assert.True(t, f.Empty())
	assert.Equal(t, "", f.String())

	f, err := Compile("level:error")
	require.NoError(t, err)
	assert.False(t, f.Empty())
	assert.Equal(t, "level:error", f.String())
}
