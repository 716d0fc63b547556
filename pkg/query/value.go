package query

import (
	"strconv"
	"strings"
)

// Value is a node in an SQL expression tree. Values are immutable once
// built and generating text from them has no side effects.
type Value interface {
	generate(b *strings.Builder)
}

// Generate renders v as SQL text.
func Generate(v Value) string {
	var b strings.Builder
	v.generate(&b)
	return b.String()
}

type integer int64

func (v integer) generate(b *strings.Builder) {
	b.WriteString(strconv.FormatInt(int64(v), 10))
}

type double float64

func (v double) generate(b *strings.Builder) {
	b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 64))
}

// text is inlined between single quotes without escaping. Untrusted data
// must go through Param instead.
type text string

func (v text) generate(b *strings.Builder) {
	b.WriteByte('\'')
	b.WriteString(string(v))
	b.WriteByte('\'')
}

type param int

func (v param) generate(b *strings.Builder) {
	b.WriteByte('?')
	b.WriteString(strconv.Itoa(int(v)))
}

// call renders name(arg,arg,...).
type call struct {
	name string
	args []Value
}

func (v call) generate(b *strings.Builder) {
	b.WriteString(v.name)
	b.WriteByte('(')
	for i, arg := range v.args {
		if i > 0 {
			b.WriteByte(',')
		}
		arg.generate(b)
	}
	b.WriteByte(')')
}

// binary renders a op b, wrapped in parentheses when grouped is set.
type binary struct {
	op      string
	a, b    Value
	grouped bool
}

func (v binary) generate(b *strings.Builder) {
	if v.grouped {
		b.WriteByte('(')
	}
	v.a.generate(b)
	b.WriteString(v.op)
	v.b.generate(b)
	if v.grouped {
		b.WriteByte(')')
	}
}

type postfix struct {
	v  Value
	op string
}

func (v postfix) generate(b *strings.Builder) {
	v.v.generate(b)
	b.WriteString(v.op)
}

type boolToInteger struct{ v Value }

func (v boolToInteger) generate(b *strings.Builder) {
	b.WriteString("(case when ")
	v.v.generate(b)
	b.WriteString(" then 1 else 0 end)")
}

type keyword string

func (v keyword) generate(b *strings.Builder) {
	b.WriteString(string(v))
}

type aliased struct {
	v     Value
	alias string
}

func (v aliased) generate(b *strings.Builder) {
	v.v.generate(b)
	b.WriteString(" as `")
	b.WriteString(v.alias)
	b.WriteByte('`')
}

// Int is an integer literal.
func Int(v int64) Value { return integer(v) }

// Float is a floating point literal.
func Float(v float64) Value { return double(v) }

// String is a string literal. The contents are not escaped.
func String(v string) Value { return text(v) }

// Param is the 1-based positional placeholder ?n. Only the position is
// recorded; callers bind values in matching order at execution time.
func Param(n int) Value { return param(n) }

// Random renders random().
func Random() Value { return keyword("random()") }

// Now renders datetime('now').
func Now() Value { return keyword("datetime('now')") }

// Sum renders sum(v).
func Sum(v Value) Value { return call{name: "sum", args: []Value{v}} }

// Count renders count(v).
func Count(v Value) Value { return call{name: "count", args: []Value{v}} }

// Avg renders avg(v).
func Avg(v Value) Value { return call{name: "avg", args: []Value{v}} }

// Max renders max(v).
func Max(v Value) Value { return call{name: "max", args: []Value{v}} }

// Min renders min(v).
func Min(v Value) Value { return call{name: "min", args: []Value{v}} }

// Coalesce renders coalesce(a, b).
func Coalesce(a, b Value) Value { return call{name: "coalesce", args: []Value{a, b}} }

// CountAll renders count(*).
func CountAll() Value { return Count(All()) }

// As renders v as `alias`. The alias is quoted as a single identifier.
func As(v Value, alias string) Value { return aliased{v: v, alias: alias} }

// Add renders (a+b).
func Add(a, b Value) Value { return binary{op: "+", a: a, b: b, grouped: true} }

// Sub renders (a-b).
func Sub(a, b Value) Value { return binary{op: "-", a: a, b: b, grouped: true} }

// Mul renders (a*b).
func Mul(a, b Value) Value { return binary{op: "*", a: a, b: b, grouped: true} }

// Div renders (a/b).
func Div(a, b Value) Value { return binary{op: "/", a: a, b: b, grouped: true} }

// And renders (a and b).
func And(a, b Value) Value { return binary{op: " and ", a: a, b: b, grouped: true} }

// Or renders (a or b).
func Or(a, b Value) Value { return binary{op: " or ", a: a, b: b, grouped: true} }

// And3 renders (a and (b and c)).
func And3(a, b, c Value) Value { return And(a, And(b, c)) }

// Comparisons are not parenthesized; nest explicitly where precedence
// matters.

// Eq renders a=b.
func Eq(a, b Value) Value { return binary{op: "=", a: a, b: b} }

// Ne renders a<>b.
func Ne(a, b Value) Value { return binary{op: "<>", a: a, b: b} }

// Ge renders a>=b.
func Ge(a, b Value) Value { return binary{op: ">=", a: a, b: b} }

// Gt renders a>b.
func Gt(a, b Value) Value { return binary{op: ">", a: a, b: b} }

// Le renders a<=b.
func Le(a, b Value) Value { return binary{op: "<=", a: a, b: b} }

// Lt renders a<b.
func Lt(a, b Value) Value { return binary{op: "<", a: a, b: b} }

// In renders a in b, usually with b a sub-statement.
func In(a, b Value) Value { return binary{op: " in ", a: a, b: b} }

// NotIn renders a not in b.
func NotIn(a, b Value) Value { return binary{op: " not in ", a: a, b: b} }

// Between renders (a>=lo and a<hi). The upper bound is exclusive.
func Between(a, lo, hi Value) Value {
	return And(Ge(a, lo), Lt(a, hi))
}

// IsNull renders v is null.
func IsNull(v Value) Value { return postfix{v: v, op: " is null"} }

// IsNotNull renders v is not null.
func IsNotNull(v Value) Value { return postfix{v: v, op: " is not null"} }

// BoolToInteger renders (case when v then 1 else 0 end).
func BoolToInteger(v Value) Value { return boolToInteger{v: v} }
