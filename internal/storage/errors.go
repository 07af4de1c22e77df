package storage

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type constraintKind int

const (
	noConstraint constraintKind = iota
	foreignKeyViolation
	uniqueViolation
)

// classify maps driver errors of either backend to a constraint kind.
func classify(err error) constraintKind {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return foreignKeyViolation
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return uniqueViolation
		}
		// primary code only when extended codes are off
		if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			msg := se.Error()
			switch {
			case strings.Contains(msg, "FOREIGN KEY"):
				return foreignKeyViolation
			case strings.Contains(msg, "UNIQUE"):
				return uniqueViolation
			}
		}
		return noConstraint
	}

	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case "23503":
			return foreignKeyViolation
		case "23505":
			return uniqueViolation
		}
	}
	return noConstraint
}
