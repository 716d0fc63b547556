package query

import "strings"

type assignment struct {
	column string
	v      Value
}

// UpdateBuilder accumulates an update statement.
type UpdateBuilder struct {
	done consumed

	table string
	set   []assignment
	where []Value
}

func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// Set appends `column`=v. Assignments render in the order given.
func (u *UpdateBuilder) Set(column string, v Value) *UpdateBuilder {
	u.done.check()
	u.set = append(u.set, assignment{column: column, v: v})
	return u
}

func (u *UpdateBuilder) Where(cond Value) *UpdateBuilder {
	u.done.check()
	u.where = append(u.where, cond)
	return u
}

func (u *UpdateBuilder) Build() Query {
	u.done.finish()
	b := newBuffer()
	u.write(b)
	return Query{text: b.String()}
}

func (u *UpdateBuilder) write(b *strings.Builder) {
	b.WriteString("update ")
	writeTable(b, u.table)
	b.WriteString(" set ")
	for i, a := range u.set {
		if i > 0 {
			b.WriteByte(',')
		}
		writeName(b, a.column)
		b.WriteByte('=')
		a.v.generate(b)
	}
	writeConditions(b, " where ", u.where)
}

// DeleteBuilder accumulates a delete statement.
type DeleteBuilder struct {
	done consumed

	table string
	where []Value
}

func DeleteFrom(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

func (d *DeleteBuilder) Where(cond Value) *DeleteBuilder {
	d.done.check()
	d.where = append(d.where, cond)
	return d
}

func (d *DeleteBuilder) Build() Query {
	d.done.finish()
	b := newBuffer()
	b.WriteString("delete from ")
	writeTable(b, d.table)
	writeConditions(b, " where ", d.where)
	return Query{text: b.String()}
}
