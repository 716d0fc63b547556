package query

import "strings"

// InsertBuilder accumulates an insert statement.
type InsertBuilder struct {
	done consumed

	table    string
	columns  []string
	values   []Value
	selected *Query
	conflict string
}

func InsertInto(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// OrIgnore renders insert or ignore.
func (i *InsertBuilder) OrIgnore() *InsertBuilder {
	i.done.check()
	i.conflict = "or ignore "
	return i
}

// OrReplace renders insert or replace.
func (i *InsertBuilder) OrReplace() *InsertBuilder {
	i.done.check()
	i.conflict = "or replace "
	return i
}

// Value appends a column and the value inserted into it.
func (i *InsertBuilder) Value(column string, v Value) *InsertBuilder {
	i.done.check()
	i.columns = append(i.columns, column)
	i.values = append(i.values, v)
	return i
}

// ColumnName appends a column without a value, for use with Select.
func (i *InsertBuilder) ColumnName(column string) *InsertBuilder {
	i.done.check()
	i.columns = append(i.columns, column)
	return i
}

// Select inserts the rows of q. When set, values given to Value are
// ignored.
func (i *InsertBuilder) Select(q Query) *InsertBuilder {
	i.done.check()
	i.selected = &q
	return i
}

func (i *InsertBuilder) Build() Query {
	i.done.finish()
	b := newBuffer()
	i.write(b)
	return Query{text: b.String()}
}

func (i *InsertBuilder) write(b *strings.Builder) {
	b.WriteString("insert ")
	b.WriteString(i.conflict)
	b.WriteString("into ")
	writeTable(b, i.table)
	if len(i.columns) > 0 {
		b.WriteString(" (")
		for n, c := range i.columns {
			if n > 0 {
				b.WriteByte(',')
			}
			writeName(b, c)
		}
		b.WriteString(") ")
	} else {
		b.WriteByte(' ')
	}

	switch {
	case i.selected != nil:
		b.WriteString(i.selected.text)
	case len(i.values) > 0:
		b.WriteString("values (")
		for n, v := range i.values {
			if n > 0 {
				b.WriteByte(',')
			}
			v.generate(b)
		}
		b.WriteByte(')')
	}
}
