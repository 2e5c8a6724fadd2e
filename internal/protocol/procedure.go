package protocol

import (
	"context"
	"strings"
	"time"

	"github.com/arma-extdb/extdb-core/internal/metrics"
)

// Procedure calls a named stored procedure with positional arguments.
// The payload shape is "proc_name,arg1,arg2,...". Any result set the
// procedure returns is formatted exactly as RawSQL formats one, since
// both ultimately walk a *sql.Rows.
type Procedure struct {
	quoteStrings bool
}

func (h *Procedure) Init(core Core, initStr string) bool {
	h.quoteStrings = strings.EqualFold(initStr, "ADD_QUOTES")
	return true
}

func (h *Procedure) Call(core Core, input string) (string, error) {
	parts := strings.Split(input, ",")
	if len(parts) == 0 || parts[0] == "" {
		return "", errWrap(errMalformed("empty procedure name"), "Statement")
	}
	procName := parts[0]
	args := parts[1:]

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	call := "{CALL " + procName + "(" + placeholders + ")}"

	argVals := make([]any, len(args))
	for i, a := range args {
		argVals[i] = a
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool := core.Sessions()
	sess, err := pool.Acquire(ctx)
	if err != nil {
		return "", errWrap(err, "Connection")
	}
	defer pool.Release(sess)

	start := time.Now()
	rows, err := sess.DB().QueryContext(ctx, call, argVals...)
	metrics.TaskDuration.WithLabelValues("PROCEDURE").Observe(time.Since(start).Seconds())
	if err != nil {
		pool.Discard(sess)
		return "", classifySQLError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		// Procedures with no result set (pure side effects) still succeed.
		return "[]", nil
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
			out.WriteString(formatCell(v, colTypes[i], h.quoteStrings))
		}
		out.WriteString("]")
	}
	out.WriteString("]")

	return out.String(), nil
}

type errMalformed string

func (e errMalformed) Error() string { return string(e) }
