package repository

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "modernc.org/sqlite"             // Pure Go SQLite driver - no CGO required
)

// dialect captures the SQL differences between the supported backends.
// Queries are written with ? placeholders and rebound for postgres.
type dialect struct {
	name      string
	schema    []string
	upsert    string
	forUpdate string
	numbered  bool
	single    bool // one writer connection
}

var dialects = map[string]dialect{
	"sqlite": {
		name: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS cells (
				tbl TEXT NOT NULL,
				row_key TEXT NOT NULL,
				col TEXT NOT NULL,
				val BLOB,
				updated_at INTEGER NOT NULL,
				PRIMARY KEY (tbl, row_key, col)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cells_col ON cells(tbl, col, val)`,
		},
		upsert: `INSERT INTO cells (tbl, row_key, col, val, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(tbl, row_key, col) DO UPDATE SET val = excluded.val, updated_at = excluded.updated_at`,
		single: true,
	},
	"mysql": {
		name: "mysql",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS cells (
				tbl VARCHAR(64) NOT NULL,
				row_key VARCHAR(191) NOT NULL,
				col VARCHAR(128) NOT NULL,
				val LONGBLOB,
				updated_at BIGINT NOT NULL,
				PRIMARY KEY (tbl, row_key, col),
				INDEX idx_cells_col (tbl, col, val(64))
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
		upsert: `INSERT INTO cells (tbl, row_key, col, val, updated_at) VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE val = VALUES(val), updated_at = VALUES(updated_at)`,
		forUpdate: " FOR UPDATE",
	},
	"postgres": {
		name: "postgres",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS cells (
				tbl TEXT NOT NULL,
				row_key TEXT NOT NULL,
				col TEXT NOT NULL,
				val BYTEA,
				updated_at BIGINT NOT NULL,
				PRIMARY KEY (tbl, row_key, col)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cells_col ON cells(tbl, col, val)`,
		},
		upsert: `INSERT INTO cells (tbl, row_key, col, val, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (tbl, row_key, col) DO UPDATE SET val = EXCLUDED.val, updated_at = EXCLUDED.updated_at`,
		forUpdate: " FOR UPDATE",
		numbered:  true,
	},
}

func lookupDialect(driver string) (dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
	return d, nil
}

// rebind converts ? placeholders to $n for postgres.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
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

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
