package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect describes the SQL engine behind a Repository.
type Dialect struct {
	Name   string // migrate database name and migrations sub-directory
	Driver string // database/sql driver name
}

var (
	SQLite   = Dialect{Name: "sqlite", Driver: "sqlite"}
	Postgres = Dialect{Name: "postgres", Driver: "postgres"}
)

// DialectByName maps a DATA_BACKEND value to a dialect.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("unsupported SQL dialect %q", name)
}

// Rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if d.Name != Postgres.Name {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
