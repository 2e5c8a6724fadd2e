package protocol

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/arma-extdb/extdb-core/internal/metrics"
	"github.com/arma-extdb/extdb-core/internal/sessionpool"
)

// RawSQL executes its input verbatim as a SQL statement and returns the
// result set as a nested array "[[col,col,...],[col,col,...]]" — the
// dispatcher wraps this payload in the "[1,...]" success envelope.
//
// Init gates on the backend type: any of MySQL, SQLite, MSSQL or ODBC is
// accepted, and Init fails while no database is attached. It recognizes
// the case-insensitive
// ADD_QUOTES init flag, which wraps string-typed columns in double
// quotes in the output.
type RawSQL struct {
	stringDataTypeCheck bool
}

func (h *RawSQL) Init(core Core, initStr string) bool {
	switch core.DBType() {
	case sessionpool.MySQL, sessionpool.SQLite, sessionpool.MSSQL, sessionpool.ODBC:
		// ok
	default:
		return false
	}
	h.stringDataTypeCheck = strings.EqualFold(initStr, "ADD_QUOTES")
	return true
}

func (h *RawSQL) Call(core Core, input string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool := core.Sessions()
	sess, err := pool.Acquire(ctx)
	if err != nil {
		return "", errWrap(err, "Connection")
	}
	defer pool.Release(sess)

	start := time.Now()
	rows, err := sess.DB().QueryContext(ctx, input)
	metrics.TaskDuration.WithLabelValues("RAWSQL").Observe(time.Since(start).Seconds())
	if err != nil {
		pool.Discard(sess)
		return "", classifySQLError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", errWrap(err, "Statement")
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return "", errWrap(err, "Statement")
	}

	var out strings.Builder
	out.WriteString("[")
	first := true
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", errWrap(err, "Data")
		}

		if !first {
			out.WriteString(",")
		}
		first = false
		out.WriteString("[")
		for i, v := range vals {
			if i > 0 {
				out.WriteString(",")
			}
			out.WriteString(formatCell(v, colTypes[i], h.stringDataTypeCheck))
		}
		out.WriteString("]")
	}
	if err := rows.Err(); err != nil {
		return "", errWrap(err, "Data")
	}
	out.WriteString("]")

	return out.String(), nil
}

func formatCell(v any, colType *sql.ColumnType, quote bool) string {
	if v == nil {
		return `""`
	}
	var s string
	switch x := v.(type) {
	case []byte:
		s = string(x)
	case string:
		s = x
	default:
		s = toString(x)
	}
	if s == "" {
		return `""`
	}
	if !quote {
		return s
	}
	isString := strings.Contains(strings.ToUpper(colType.DatabaseTypeName()), "CHAR") ||
		strings.Contains(strings.ToUpper(colType.DatabaseTypeName()), "TEXT")
	if isString {
		return `"` + s + `"`
	}
	return s
}

func toString(v any) string {
	switch x := v.(type) {
	case int64:
		return itoa64(x)
	case float64:
		return ftoa(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

// classifySQLError maps a database/sql error into the handler's
// "[0,\"Error ...\"]" taxonomy. database/sql does not preserve the
// driver-specific exception hierarchy the original handler switched on
// (DBLocked / Connection / Statement / Data), so this collapses to a
// coarser but still meaningful split.
func classifySQLError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, sql.ErrConnDone) || strings.Contains(msg, "connection"):
		return errWrap(err, "Connection")
	case strings.Contains(msg, "lock"):
		return errWrap(err, "DBLocked")
	case strings.Contains(msg, "syntax") || strings.Contains(msg, "no such table"):
		return errWrap(err, "Statement")
	default:
		return errWrap(err, "Exception")
	}
}
