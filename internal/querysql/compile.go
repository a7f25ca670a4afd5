package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/datalogger/internal/queryir"
)

// Columns is the summary projection every capture query returns, in scan
// order.
const Columns = "id, seq, plan_name, plan_hash, mode, final_state, overrun, data_len"

// Archive order: sequence number with the ID as a byte-wise tiebreaker so
// results never depend on collation settings.
const (
	orderAsc  = "seq ASC, id COLLATE BINARY ASC"
	orderDesc = "seq DESC, id COLLATE BINARY DESC"
)

// SQLCompiler compiles capture queries to parameterized SQL for SQLite.
// Values are always bound as parameters, never interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts q to SQL over the captures table.
// Returns (sql, params, error).
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// Compile is shorthand for NewSQLCompiler().Compile(q).
func Compile(q queryir.Query) (string, []any, error) {
	return NewSQLCompiler().Compile(q)
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var sb strings.Builder
	var params []any

	sb.WriteString("SELECT ")
	sb.WriteString(Columns)
	sb.WriteString(" FROM captures")

	if q.Filter != nil {
		where, whereParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		params = append(params, whereParams...)
	}

	sb.WriteString(" ORDER BY ")
	if q.Desc {
		sb.WriteString(orderDesc)
	} else {
		sb.WriteString(orderAsc)
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}

	return sb.String(), params, nil
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	value := eq.Value
	// overrun is stored as an INTEGER 0/1.
	if b, ok := value.(bool); ok {
		if b {
			value = 1
		} else {
			value = 0
		}
	}
	return string(eq.Field) + " = ?", []any{value}, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var clauses []string
	var params []any
	for _, pred := range and.Predicates {
		clause, predParams, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		params = append(params, predParams...)
	}

	if len(clauses) == 1 {
		return clauses[0], params, nil
	}
	return "(" + strings.Join(clauses, " AND ") + ")", params, nil
}
