// Package query builds SQLite-flavored SQL statements from expression trees.
//
// Identifiers are backtick-quoted (dotted names per segment), string
// literals are inlined between single quotes without escaping, and
// parameters render as 1-based ?N placeholders. Generation cannot fail.
//
//	q := query.Select(query.Col("amount")).
//		From("t").
//		Where(query.Eq(query.Col("id"), query.Param(1))).
//		Build()
//	// select `amount` from `t` where `id`=?1
//
// Builders are single use: Build consumes the builder and any further call
// on it panics.
package query

import "strings"

// Query is a generated statement. It is never modified after Build and
// can be embedded verbatim in another statement.
type Query struct {
	text string
}

// Raw wraps literal statement text, for statements the builders do not
// cover such as DDL.
func Raw(sql string) Query { return Query{text: sql} }

// String returns the statement text.
func (q Query) String() string { return q.text }

// generate embeds q as a parenthesized sub-statement.
func (q Query) generate(b *strings.Builder) {
	b.WriteByte('(')
	b.WriteString(q.text)
	b.WriteByte(')')
}

// Builder is implemented by every statement builder.
type Builder interface {
	Build() Query
}

// consumed marks a builder as spent.
type consumed bool

func (c *consumed) check() {
	if *c {
		panic("query: builder used after Build")
	}
}

func (c *consumed) finish() {
	c.check()
	*c = true
}

func newBuffer() *strings.Builder {
	var b strings.Builder
	b.Grow(256)
	return &b
}
