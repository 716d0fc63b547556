package query

import "strings"

type orderTerm struct {
	v    Value
	desc bool
}

type cte struct {
	name string
	q    Query
}

// SelectColumns is a select list waiting for its source table.
type SelectColumns struct {
	columns []Column
}

// Select starts a statement with the given select list. Columns are used
// as is; any other Value becomes a computed column.
func Select(columns ...Value) SelectColumns {
	cols := make([]Column, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, toColumn(c))
	}
	return SelectColumns{columns: cols}
}

// From sets the source table.
func (s SelectColumns) From(table string) *SelectBuilder {
	return &SelectBuilder{columns: s.columns, from: table}
}

// FromAs sets the source table under an alias.
func (s SelectColumns) FromAs(table, alias string) *SelectBuilder {
	return &SelectBuilder{columns: s.columns, from: table, fromAs: alias}
}

// SelectFrom starts a statement with an empty select list; add columns
// with Column, ColumnAs, ColumnValue or AllColumns.
func SelectFrom(table string) *SelectBuilder {
	return &SelectBuilder{from: table}
}

// SelectBuilder accumulates the clauses of a select statement.
type SelectBuilder struct {
	done consumed

	with    []cte
	columns []Column
	from    string
	fromAs  string
	joins   []*JoinBuilder
	where   []Value
	groupBy []Value
	orderBy []orderTerm
	limit   Value
	offset  Value
}

func (s *SelectBuilder) Column(name string) *SelectBuilder {
	s.done.check()
	s.columns = append(s.columns, Col(name))
	return s
}

func (s *SelectBuilder) AllColumns() *SelectBuilder {
	s.done.check()
	s.columns = append(s.columns, All())
	return s
}

func (s *SelectBuilder) ColumnAs(name, alias string) *SelectBuilder {
	s.done.check()
	s.columns = append(s.columns, ColAs(name, alias))
	return s
}

func (s *SelectBuilder) ColumnValue(v Value) *SelectBuilder {
	s.done.check()
	s.columns = append(s.columns, toColumn(v))
	return s
}

// Where adds a condition. Multiple conditions are joined with and.
func (s *SelectBuilder) Where(cond Value) *SelectBuilder {
	s.done.check()
	s.where = append(s.where, cond)
	return s
}

// WhereColumn adds `column`=v.
func (s *SelectBuilder) WhereColumn(column string, v Value) *SelectBuilder {
	return s.Where(Eq(Col(column), v))
}

// Join appends a join. Joins render in the order they were added.
func (s *SelectBuilder) Join(j *JoinBuilder) *SelectBuilder {
	s.done.check()
	s.joins = append(s.joins, j)
	return s
}

// With adds a named common table expression.
func (s *SelectBuilder) With(name string, q Query) *SelectBuilder {
	s.done.check()
	s.with = append(s.with, cte{name: name, q: q})
	return s
}

func (s *SelectBuilder) GroupBy(v Value) *SelectBuilder {
	s.done.check()
	s.groupBy = append(s.groupBy, v)
	return s
}

// OrderByAsc appends an ascending order term. Terms compose in
// declaration order.
func (s *SelectBuilder) OrderByAsc(v Value) *SelectBuilder {
	s.done.check()
	s.orderBy = append(s.orderBy, orderTerm{v: v})
	return s
}

func (s *SelectBuilder) OrderByDesc(v Value) *SelectBuilder {
	s.done.check()
	s.orderBy = append(s.orderBy, orderTerm{v: v, desc: true})
	return s
}

func (s *SelectBuilder) OrderByRandom() *SelectBuilder {
	return s.OrderByAsc(Random())
}

func (s *SelectBuilder) Limit(v Value) *SelectBuilder {
	s.done.check()
	s.limit = v
	return s
}

// Offset sets the offset. Without a limit, limit -1 is rendered since
// SQLite only accepts offset after limit.
func (s *SelectBuilder) Offset(v Value) *SelectBuilder {
	s.done.check()
	s.offset = v
	return s
}

// Build generates the statement and consumes the builder.
func (s *SelectBuilder) Build() Query {
	s.done.finish()
	b := newBuffer()
	s.write(b)
	return Query{text: b.String()}
}

func (s *SelectBuilder) write(b *strings.Builder) {
	if len(s.with) > 0 {
		b.WriteString("with ")
		for i, c := range s.with {
			if i > 0 {
				b.WriteByte(',')
			}
			writeTable(b, c.name)
			b.WriteString(" as (")
			b.WriteString(c.q.text)
			b.WriteByte(')')
		}
		b.WriteByte(' ')
	}

	b.WriteString("select ")
	writeColumns(b, s.columns)
	b.WriteString(" from ")
	writeTable(b, s.from)
	if s.fromAs != "" {
		b.WriteString(" as ")
		writeTable(b, s.fromAs)
	}

	for _, j := range s.joins {
		b.WriteByte(' ')
		j.write(b)
	}

	writeConditions(b, " where ", s.where)

	if len(s.groupBy) > 0 {
		b.WriteString(" group by ")
		for i, v := range s.groupBy {
			if i > 0 {
				b.WriteByte(',')
			}
			v.generate(b)
		}
	}

	if len(s.orderBy) > 0 {
		b.WriteString(" order by ")
		for i, t := range s.orderBy {
			if i > 0 {
				b.WriteByte(',')
			}
			t.v.generate(b)
			if t.desc {
				b.WriteString(" desc")
			} else {
				b.WriteString(" asc")
			}
		}
	}

	if s.limit != nil {
		b.WriteString(" limit ")
		s.limit.generate(b)
	} else if s.offset != nil {
		b.WriteString(" limit -1")
	}
	if s.offset != nil {
		b.WriteString(" offset ")
		s.offset.generate(b)
	}
}
