package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// LogFields flattens err into structured log fields: the unwrap chain, the typed
// code and kind, and Postgres diagnostics from either pgx or lib/pq.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}

	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
		if typed.Kind() != "" {
			fields["error_kind"] = typed.Kind()
		}
		if step := detailValue(typed.Details(), "step"); step != nil {
			fields["step"] = step
		}
	}

	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	if len(chain) > 1 {
		fields["error_chain"] = chain
	}

	for k, v := range postgresFields(err) {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

func postgresFields(err error) map[string]string {
	if pgErr := (*pgconn.PgError)(nil); stdErrors.As(err, &pgErr) {
		return map[string]string{
			"pg_code":       pgErr.Code,
			"pg_constraint": pgErr.ConstraintName,
			"pg_table":      pgErr.TableName,
			"pg_column":     pgErr.ColumnName,
			"pg_detail":     pgErr.Detail,
			"pg_message":    pgErr.Message,
		}
	}
	if pqErr := (*pq.Error)(nil); stdErrors.As(err, &pqErr) {
		return map[string]string{
			"pg_code":       string(pqErr.Code),
			"pg_constraint": pqErr.Constraint,
			"pg_table":      pqErr.Table,
			"pg_column":     pqErr.Column,
			"pg_detail":     pqErr.Detail,
			"pg_message":    pqErr.Message,
		}
	}
	return nil
}

func detailValue(details any, key string) any {
	switch d := details.(type) {
	case map[string]any:
		return d[key]
	case map[string]string:
		if v, ok := d[key]; ok {
			return v
		}
	}
	return nil
}
