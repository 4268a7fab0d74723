package sqlstore

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect captures the differences between the supported SQL engines.
// Queries are written with ? placeholders and rebound per dialect.
type Dialect struct {
	Name   string
	Driver string

	numbered bool   // $1, $2 placeholders
	arrays   bool   // = ANY($n) with array binding
	lower    string // Unicode case folding function
}

// sqliteDriver is go-sqlite3 with unicode_lower registered on every
// connection. The builtin lower() only folds ASCII.
const sqliteDriver = "sqlite3_catalog"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("unicode_lower", strings.ToLower, true)
		},
	})
}

var (
	// Postgres talks to PostgreSQL through lib/pq
	Postgres = Dialect{Name: "postgres", Driver: "postgres", numbered: true, arrays: true, lower: "LOWER"}

	// SQLite talks to SQLite through mattn/go-sqlite3
	SQLite = Dialect{Name: "sqlite", Driver: sqliteDriver, lower: "unicode_lower"}
)

// DialectFor returns the dialect for a storage type name
func DialectFor(name string) (Dialect, bool) {
	switch name {
	case Postgres.Name:
		return Postgres, true
	case SQLite.Name:
		return SQLite, true
	}
	return Dialect{}, false
}

// Rebind rewrites ? placeholders for the dialect. Question marks inside
// single quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for _, r := range query {
		switch {
		case r == '\'':
			quoted = !quoted
			b.WriteRune(r)
		case r == '?' && !quoted:
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// inList renders column membership in values
func (d Dialect) inList(column string, values []string) (string, []interface{}) {
	if d.arrays {
		return column + " = ANY(?)", []interface{}{pq.Array(values)}
	}
	marks := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		marks[i] = "?"
		args[i] = v
	}
	return column + " IN (" + strings.Join(marks, ", ") + ")", args
}

// isUniqueViolation reports whether err is a primary key or unique
// constraint failure in either engine.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
