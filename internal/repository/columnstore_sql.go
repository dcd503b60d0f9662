package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SQLColumnStore implements ColumnStore as a cell table on a SQL database.
// Every cell is one (tbl, row_key, col) row.
type SQLColumnStore struct {
	db      *sql.DB
	dialect dialect
	mu      sync.RWMutex
	now     func() time.Time
	log     zerolog.Logger
}

// NewSQLColumnStore opens driver ("sqlite", "mysql" or "postgres") with dsn
// and creates the cell table if needed.
func NewSQLColumnStore(driver, dsn string, log zerolog.Logger) (*SQLColumnStore, error) {
	d, err := lookupDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	if d.single {
		db.SetMaxOpenConns(1) // SQLite only supports 1 writer
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(1 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	log.Info().Str("driver", driver).Msg("column store initialized")
	return &SQLColumnStore{db: db, dialect: d, now: time.Now, log: log}, nil
}

// Put writes the given cells of a row in one transaction.
func (s *SQLColumnStore) Put(ctx context.Context, table, rowKey string, cells Cells) error {
	if len(cells) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(s.dialect.upsert))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ts := s.now().Unix()
	for col, val := range cells {
		if _, err := stmt.ExecContext(ctx, table, rowKey, col, val, ts); err != nil {
			return fmt.Errorf("failed to put %s/%s %s: %w", table, rowKey, col, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get returns all cells of a row.
func (s *SQLColumnStore) Get(ctx context.Context, table, rowKey string) (Cells, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT col, val FROM cells WHERE tbl = ? AND row_key = ?`), table, rowKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", table, rowKey, err)
	}
	defer rows.Close()

	cells := make(Cells)
	for rows.Next() {
		var col string
		var val []byte
		if err := rows.Scan(&col, &val); err != nil {
			return nil, err
		}
		cells[col] = val
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, ErrNotFound
	}
	return cells, nil
}

// Delete removes every cell of a row.
func (s *SQLColumnStore) Delete(ctx context.Context, table, rowKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		s.dialect.rebind(`DELETE FROM cells WHERE tbl = ? AND row_key = ?`), table, rowKey)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, rowKey, err)
	}
	return nil
}

// Increment adds delta to a decimal counter cell. A missing cell counts as 0.
func (s *SQLColumnStore) Increment(ctx context.Context, table, rowKey, column string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT val FROM cells WHERE tbl = ? AND row_key = ? AND col = ?`+s.dialect.forUpdate),
		table, rowKey, column).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to read counter %s/%s %s: %w", table, rowKey, column, err)
	}

	var current int64
	if len(raw) > 0 {
		current, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("counter %s/%s %s is not an integer: %w", table, rowKey, column, err)
		}
	}

	next := current + delta
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(s.dialect.upsert),
		table, rowKey, column, []byte(strconv.FormatInt(next, 10)), s.now().Unix()); err != nil {
		return 0, fmt.Errorf("failed to write counter %s/%s %s: %w", table, rowKey, column, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

// Scan returns rows of table ordered by row key.
func (s *SQLColumnStore) Scan(ctx context.Context, table string, opts ScanOptions) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order := "ASC"
	if opts.Reverse {
		order = "DESC"
	}

	var query string
	args := []interface{}{table}
	if opts.Filter != nil {
		query = `SELECT row_key FROM cells WHERE tbl = ? AND col = ? AND val = ? ORDER BY row_key ` + order
		args = append(args, opts.Filter.Column, opts.Filter.Value)
	} else {
		query = `SELECT DISTINCT row_key FROM cells WHERE tbl = ? ORDER BY row_key ` + order
	}
	if opts.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(opts.Limit)
	}

	keys, err := s.queryKeys(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cellArgs := make([]interface{}, 0, len(keys)+1)
	cellArgs = append(cellArgs, table)
	for _, k := range keys {
		cellArgs = append(cellArgs, k)
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT row_key, col, val FROM cells WHERE tbl = ? AND row_key IN (`+placeholders(len(keys))+`)`),
		cellArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load rows of %s: %w", table, err)
	}
	defer rows.Close()

	byKey := make(map[string]Cells, len(keys))
	for rows.Next() {
		var key, col string
		var val []byte
		if err := rows.Scan(&key, &col, &val); err != nil {
			return nil, err
		}
		if byKey[key] == nil {
			byKey[key] = make(Cells)
		}
		byKey[key][col] = val
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]Row, 0, len(keys))
	for _, k := range keys {
		if cells, ok := byKey[k]; ok {
			result = append(result, Row{Key: k, Cells: cells})
		}
	}
	return result, nil
}

func (s *SQLColumnStore) queryKeys(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Stats returns row counts per table and the last write time.
func (s *SQLColumnStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]interface{})
	stats["driver"] = s.dialect.name

	rows, err := s.db.QueryContext(ctx, `SELECT tbl, COUNT(DISTINCT row_key) FROM cells GROUP BY tbl`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(map[string]int64)
	for rows.Next() {
		var tbl string
		var n int64
		if err := rows.Scan(&tbl, &n); err != nil {
			return nil, err
		}
		tables[tbl] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats["rows"] = tables

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM cells`).Scan(&last); err == nil && last.Valid {
		stats["last_write"] = time.Unix(last.Int64, 0).UTC()
	}

	if s.dialect.name == "sqlite" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats["db_size_bytes"] = pageCount * pageSize
	}

	return stats, nil
}

// Ping checks the database connection.
func (s *SQLColumnStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLColumnStore) Close() error {
	return s.db.Close()
}

// Ensure SQLColumnStore implements ColumnStore
var _ ColumnStore = (*SQLColumnStore)(nil)
