package sqlstore

import (
	"strings"
)

// Fixed columns of a response partition.
const (
	colID         = "id"
	colNavIndex   = "nav_index"
	colStartDate  = "start_date"
	colSubmitDate = "submit_date"
	colLang       = "lang"
	colUserValues = "user_values"
	colVersion    = "version"
)

// responseColumns is the select list shared by every row read.
var responseColumns = []string{
	colID, colNavIndex, colStartDate, colSubmitDate, colLang, colUserValues, colVersion,
}

// assignment pairs a fixed column with either a bound value or a constant
// SQL expression. Columns always come from the constants above.
type assignment struct {
	column string
	value  any
	expr   string
}

func bind(column string, value any) assignment {
	return assignment{column: column, value: value}
}

// builder assembles a statement and its positional arguments in one pass,
// so placeholder numbering and argument order cannot drift apart.
type builder struct {
	d    *dialect
	sb   strings.Builder
	args []any
}

func newBuilder(d *dialect) *builder {
	return &builder{d: d}
}

func (b *builder) write(s ...string) *builder {
	for _, part := range s {
		b.sb.WriteString(part)
	}
	return b
}

// arg appends a bound parameter and writes its placeholder.
func (b *builder) arg(v any) *builder {
	b.args = append(b.args, v)
	b.sb.WriteString(b.d.placeholder(len(b.args)))
	return b
}

func (b *builder) columnList(cols []string) *builder {
	for i, c := range cols {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.sb.WriteString(b.d.quote(c))
	}
	return b
}

func (b *builder) String() string {
	return b.sb.String()
}

// insertStmt builds INSERT INTO table (cols...) VALUES (...).
func insertStmt(d *dialect, table string, values []assignment) (string, []any) {
	b := newBuilder(d)
	cols := make([]string, len(values))
	for i, a := range values {
		cols[i] = a.column
	}
	b.write("INSERT INTO ", d.quote(table), " (").columnList(cols).write(") VALUES (")
	for i, a := range values {
		if i > 0 {
			b.write(", ")
		}
		b.arg(a.value)
	}
	b.write(")")
	if d.returningID {
		b.write(" RETURNING ", d.quote(colID))
	}
	return b.String(), b.args
}

// updateStmt builds UPDATE table SET ... WHERE w1 = ? AND w2 = ?.
func updateStmt(d *dialect, table string, set, where []assignment) (string, []any) {
	b := newBuilder(d)
	b.write("UPDATE ", d.quote(table), " SET ")
	for i, a := range set {
		if i > 0 {
			b.write(", ")
		}
		b.write(d.quote(a.column), " = ")
		if a.expr != "" {
			b.write(a.expr)
		} else {
			b.arg(a.value)
		}
	}
	b.writeWhere(where)
	return b.String(), b.args
}

// selectStmt builds SELECT columns FROM table WHERE ... and returns the
// builder so callers can append ordering and limits.
func selectStmt(d *dialect, table string, cols []string, where []assignment) *builder {
	b := newBuilder(d)
	b.write("SELECT ").columnList(cols).write(" FROM ", d.quote(table))
	b.writeWhere(where)
	return b
}

func (b *builder) writeWhere(where []assignment) {
	for i, a := range where {
		if i == 0 {
			b.write(" WHERE ")
		} else {
			b.write(" AND ")
		}
		b.write(b.d.quote(a.column), " = ").arg(a.value)
	}
}
