package db

import "github.com/lib/pq"

// pqStringArray adapts a Go []string to a Postgres text[] driver value.
func pqStringArray(ss []string) interface{} {
	return pq.Array(ss)
}
