package query

import "strings"

type joinKind uint8

const (
	joinLeft joinKind = iota
	joinInner
)

// JoinBuilder describes one join clause. Its on conditions are joined
// with and.
type JoinBuilder struct {
	kind  joinKind
	table string
	alias string
	on    []Value
}

func LeftJoin(table string) *JoinBuilder  { return &JoinBuilder{kind: joinLeft, table: table} }
func InnerJoin(table string) *JoinBuilder { return &JoinBuilder{kind: joinInner, table: table} }

func (j *JoinBuilder) As(alias string) *JoinBuilder {
	j.alias = alias
	return j
}

func (j *JoinBuilder) On(cond Value) *JoinBuilder {
	j.on = append(j.on, cond)
	return j
}

// OnColumn adds `column`=v.
func (j *JoinBuilder) OnColumn(column string, v Value) *JoinBuilder {
	return j.On(Eq(Col(column), v))
}

// OnMatch adds `column`=`other`.
func (j *JoinBuilder) OnMatch(column, other string) *JoinBuilder {
	return j.On(Eq(Col(column), Col(other)))
}

func (j *JoinBuilder) write(b *strings.Builder) {
	switch j.kind {
	case joinLeft:
		b.WriteString("left join ")
	case joinInner:
		b.WriteString("inner join ")
	}
	writeTable(b, j.table)
	if j.alias != "" {
		b.WriteString(" as ")
		writeTable(b, j.alias)
	}
	writeConditions(b, " on ", j.on)
}
