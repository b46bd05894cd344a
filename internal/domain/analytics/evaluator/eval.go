package evaluator

import (
	"github.com/shopspring/decimal"
)

// Environment resolves a placeholder name to its numeric value for one row
// (pre-aggregation) or one result row (post-aggregation). ok is false for an
// unknown placeholder; the evaluator then yields 0 and records a warning.
type Environment interface {
	Resolve(name string) (value float64, ok bool)
}

// MapEnvironment is the common case: a plain key→value binding built by the
// Pivot Planner from a dataset row or a result row.
type MapEnvironment map[string]float64

func (m MapEnvironment) Resolve(name string) (float64, bool) {
	v, ok := m[name]
	return v, ok
}

// evalResult carries a value and whether it is "absent" — produced only by
// division by zero. An absent result still contributes 0 to any
// further arithmetic it feeds into, but is reported as absent to the caller
// so aggregators can exclude it (e.g. avg/min/max skip absent cells).
type evalResult struct {
	value  float64
	absent bool
}

// Eval evaluates node against env, returning the numeric result, whether it
// is absent, and any unknown-placeholder warnings encountered.
func Eval(node Node, env Environment) (value float64, absent bool, warnings []string) {
	r, warnings := evalNode(node, env, nil)
	return r.value, r.absent, warnings
}

func evalNode(node Node, env Environment, warnings []string) (evalResult, []string) {
	switch n := node.(type) {
	case numberNode:
		return evalResult{value: n.value}, warnings

	case placeholderNode:
		v, ok := env.Resolve(n.name)
		if !ok {
			warnings = append(warnings, "unknown placeholder \""+n.name+"\"")
			return evalResult{value: 0}, warnings
		}
		return evalResult{value: v}, warnings

	case unaryNode:
		inner, w := evalNode(n.expr, env, warnings)
		warnings = w
		if n.op == "-" {
			return evalResult{value: -inner.value, absent: inner.absent}, warnings
		}
		return inner, warnings

	case binaryNode:
		left, w := evalNode(n.left, env, warnings)
		warnings = w
		right, w := evalNode(n.right, env, warnings)
		warnings = w
		return evalBinary(n.op, left, right), warnings

	default:
		return evalResult{}, warnings
	}
}

func evalBinary(op string, left, right evalResult) evalResult {
	switch op {
	case "+":
		return evalResult{value: left.value + right.value}
	case "-":
		return evalResult{value: left.value - right.value}
	case "*":
		return evalResult{value: left.value * right.value}
	case "/":
		if right.value == 0 {
			return evalResult{value: 0, absent: true}
		}
		return evalResult{value: left.value / right.value}
	case ">":
		return boolResult(left.value > right.value)
	case ">=":
		return boolResult(left.value >= right.value)
	case "<":
		return boolResult(left.value < right.value)
	case "<=":
		return boolResult(left.value <= right.value)
	case "==":
		return boolResult(left.value == right.value)
	case "!=":
		return boolResult(left.value != right.value)
	case "&&":
		return boolResult(left.value != 0 && right.value != 0)
	case "||":
		return boolResult(left.value != 0 || right.value != 0)
	default:
		return evalResult{}
	}
}

func boolResult(b bool) evalResult {
	if b {
		return evalResult{value: 1}
	}
	return evalResult{value: 0}
}

// RoundHalfAwayFromZero rounds v to the given number of decimal places,
// rounding .5 away from zero rather than shopspring/decimal's default
// banker's rounding.
func RoundHalfAwayFromZero(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	d := decimal.NewFromFloat(v)
	factor := decimal.New(1, int32(places))
	scaled := d.Mul(factor)

	rounded := scaled.Truncate(0)
	frac := scaled.Sub(rounded).Abs()
	half := decimal.NewFromFloat(0.5)
	if frac.GreaterThanOrEqual(half) {
		if scaled.Sign() >= 0 {
			rounded = rounded.Add(decimal.NewFromInt(1))
		} else {
			rounded = rounded.Sub(decimal.NewFromInt(1))
		}
	}
	result, _ := rounded.Div(factor).Float64()
	return result
}

// ApplyDecimals rounds value half away from zero to *decimals places when
// decimals is non-nil, otherwise returns it unchanged.
func ApplyDecimals(value float64, decimals *int) float64 {
	if decimals == nil {
		return value
	}
	return RoundHalfAwayFromZero(value, *decimals)
}
