package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const sqlStateUniqueViolation = "23505"

// violation extracts the SQLSTATE and constraint from either Postgres driver.
func violation(err error) (state, constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}

// IsUniqueViolation reports a duplicate-key failure, optionally on one named
// constraint. SQLite reports no constraint names, so any unique failure matches.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if state, name, ok := violation(err); ok {
		return state == sqlStateUniqueViolation && (constraint == "" || name == constraint)
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
