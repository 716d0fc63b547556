package query

import "strings"

type columnKind uint8

const (
	columnAll columnKind = iota
	columnName
	columnAlias
	columnValue
	columnValueAlias
)

// Column is a select-list entry or column reference. A Column is also a
// Value, so it can be used anywhere in an expression.
type Column struct {
	kind  columnKind
	name  string
	alias string
	value Value
}

// All is the * wildcard.
func All() Column { return Column{kind: columnAll} }

// Col references a column by name. Dotted names such as "t.col" are
// quoted per segment: `t`.`col`.
func Col(name string) Column { return Column{kind: columnName, name: name} }

// ColAs references a column and renames it: `name` as `alias`.
func ColAs(name, alias string) Column {
	return Column{kind: columnAlias, name: name, alias: alias}
}

// Alias selects a computed value under an alias.
func Alias(v Value, alias string) Column {
	return Column{kind: columnValueAlias, value: v, alias: alias}
}

func toColumn(v Value) Column {
	if c, ok := v.(Column); ok {
		return c
	}
	return Column{kind: columnValue, value: v}
}

// writeName quotes each dot-separated segment of name individually.
func writeName(b *strings.Builder, name string) {
	for i, part := range strings.Split(name, ".") {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteByte('`')
		b.WriteString(part)
		b.WriteByte('`')
	}
}

func (c Column) generate(b *strings.Builder) {
	switch c.kind {
	case columnAll:
		b.WriteByte('*')
	case columnName:
		writeName(b, c.name)
	case columnAlias:
		writeName(b, c.name)
		b.WriteString(" as ")
		writeName(b, c.alias)
	case columnValue:
		c.value.generate(b)
	case columnValueAlias:
		c.value.generate(b)
		b.WriteString(" as ")
		writeName(b, c.alias)
	}
}

func writeColumns(b *strings.Builder, columns []Column) {
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(',')
		}
		c.generate(b)
	}
}

// writeTable quotes a table or alias name as a single identifier.
func writeTable(b *strings.Builder, name string) {
	b.WriteByte('`')
	b.WriteString(name)
	b.WriteByte('`')
}

func writeConditions(b *strings.Builder, keyword string, conds []Value) {
	if len(conds) == 0 {
		return
	}
	b.WriteString(keyword)
	for i, c := range conds {
		if i > 0 {
			b.WriteString(" and ")
		}
		c.generate(b)
	}
}
