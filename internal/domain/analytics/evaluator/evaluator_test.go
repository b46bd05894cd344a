package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimals(n int) *int { return &n }

func TestParseAndEval_Arithmetic(t *testing.T) {
	node, err := Parse("{units} / {units} * 100")
	require.NoError(t, err)

	env := MapEnvironment{"units": 10}
	v, absent, warnings := Eval(node, env)
	assert.False(t, absent)
	assert.Empty(t, warnings)
	assert.Equal(t, 100.0, v)
}

func TestEval_DivisionByZeroYieldsAbsentZero(t *testing.T) {
	node, err := Parse("{a} / {b}")
	require.NoError(t, err)

	v, absent, _ := Eval(node, MapEnvironment{"a": 5, "b": 0})
	assert.Equal(t, 0.0, v)
	assert.True(t, absent)
}

func TestEval_DivisionByZeroPropagatesAsZero(t *testing.T) {
	node, err := Parse("{a} / {b} + 7")
	require.NoError(t, err)

	v, _, _ := Eval(node, MapEnvironment{"a": 5, "b": 0})
	assert.Equal(t, 7.0, v)
}

func TestEval_UnknownPlaceholderWarns(t *testing.T) {
	node, err := Parse("{missing} + 1")
	require.NoError(t, err)

	v, _, warnings := Eval(node, MapEnvironment{})
	assert.Equal(t, 1.0, v)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "missing")
}

func TestEval_BooleanOperatorsComposeWithArithmetic(t *testing.T) {
	node, err := Parse("({x} > 10) + ({y} < 5)")
	require.NoError(t, err)

	v, _, _ := Eval(node, MapEnvironment{"x": 20, "y": 1})
	assert.Equal(t, 2.0, v)

	v2, _, _ := Eval(node, MapEnvironment{"x": 1, "y": 10})
	assert.Equal(t, 0.0, v2)
}

func TestEval_AndOrSemantics(t *testing.T) {
	node, err := Parse("{x} > 0 && {y} > 0 || {z} == 1")
	require.NoError(t, err)

	v, _, _ := Eval(node, MapEnvironment{"x": 1, "y": 0, "z": 1})
	assert.Equal(t, 1.0, v)
	v2, _, _ := Eval(node, MapEnvironment{"x": 1, "y": 0, "z": 0})
	assert.Equal(t, 0.0, v2)
}

func TestEval_UnaryMinus(t *testing.T) {
	node, err := Parse("-{x} + 10")
	require.NoError(t, err)
	v, _, _ := Eval(node, MapEnvironment{"x": 4})
	assert.Equal(t, 6.0, v)
}

func TestEval_Precedence(t *testing.T) {
	node, err := Parse("2 + 3 * 4")
	require.NoError(t, err)
	v, _, _ := Eval(node, MapEnvironment{})
	assert.Equal(t, 14.0, v)
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse("{x} + * 2")
	assert.Error(t, err)

	_, err = Parse("(1 + 2")
	assert.Error(t, err)

	_, err = Parse("{unterminated")
	assert.Error(t, err)
}

func TestParse_PlaceholderWithSpacesAndAccents(t *testing.T) {
	node, err := Parse("{Valor Estimado Anual} * 2")
	require.NoError(t, err)
	v, _, _ := Eval(node, MapEnvironment{"Valor Estimado Anual": 21})
	assert.Equal(t, 42.0, v)
}

func TestParse_CommaDecimalLiteral(t *testing.T) {
	node, err := Parse("{valor} + 1,5")
	require.NoError(t, err)
	v, _, _ := Eval(node, MapEnvironment{"valor": 10})
	assert.Equal(t, 11.5, v)
}

func TestApplyDecimals_HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 1.24, ApplyDecimals(1.235, decimals(2)))
	assert.Equal(t, -1.24, ApplyDecimals(-1.235, decimals(2)))
	assert.Equal(t, 2.0, ApplyDecimals(1.5, decimals(0)))
	assert.Equal(t, -2.0, ApplyDecimals(-1.5, decimals(0)))
}

func TestApplyDecimals_NilIsNoOp(t *testing.T) {
	assert.Equal(t, 1.23456, ApplyDecimals(1.23456, nil))
}
