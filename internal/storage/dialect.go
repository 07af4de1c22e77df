package storage

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect selects the SQL flavour of a backend.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DriverName returns the database/sql driver registered for d.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// Rebind rewrites '?' placeholders to '$n' for PostgreSQL.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// instantLayout is fixed width so text columns sort chronologically.
const instantLayout = "2006-01-02T15:04:05.000000000Z"

// instantArg encodes t for a timestamp column of dialect d.
func (d Dialect) instantArg(t time.Time) driver.Value {
	if d == Postgres {
		return t.UTC()
	}
	return t.UTC().Format(instantLayout)
}

// rangeSlack widens SQLite range bounds so rows stored without an offset
// are fetched whatever the report zone; scanned rows are then filtered exactly.
const rangeSlack = 24 * time.Hour

// rangeWhere returns a predicate selecting col between two bound parameters.
// SQLite stores instants as text in several shapes, so it compares julian days.
func (d Dialect) rangeWhere(col string) string {
	if d == Postgres {
		return col + " >= ? AND " + col + " <= ?"
	}
	return "julianday(" + col + ") >= julianday(?) AND julianday(" + col + ") <= julianday(?)"
}

// rangeArgs encodes the bounds for rangeWhere.
func (d Dialect) rangeArgs(from, to time.Time) []any {
	if d == Postgres {
		return []any{d.instantArg(from), d.instantArg(to)}
	}
	return []any{d.instantArg(from.Add(-rangeSlack)), d.instantArg(to.Add(rangeSlack))}
}

// orderBy sorts rows on col chronologically.
func (d Dialect) orderBy(col string) string {
	if d == Postgres {
		return col
	}
	return "julianday(" + col + ")"
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

// instant scans timestamps stored either as text or as native time values.
// Text without an offset is read in loc, UTC when nil.
type instant struct {
	Time time.Time
	loc  *time.Location
}

func (i *instant) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		i.Time = time.Time{}
		return nil
	case time.Time:
		i.Time = v.UTC()
		return nil
	case string:
		return i.parse(v)
	case []byte:
		return i.parse(string(v))
	default:
		return fmt.Errorf("scan instant: unsupported type %T", src)
	}
}

func (i *instant) parse(s string) error {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		i.Time = t.UTC()
		return nil
	}
	loc := i.loc
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{"2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05.999999999", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			i.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("scan instant: unsupported value %q", s)
}
