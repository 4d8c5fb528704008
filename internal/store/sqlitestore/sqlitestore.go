// Package sqlitestore is a SQLite-backed implementation of store.Store,
// the production-shaped reference backend for the token ledger. It follows
// the teacher's internal/storage package almost exactly: WAL-mode SQLite
// opened with a busy timeout, a single writer connection, a mutex guarding
// every access, and conditional updates expressed as a WHERE-qualified
// UPDATE whose RowsAffected tells the caller whether the precondition held
// (see UpdateSwapState in the teacher's internal/storage/swaps.go).
//
// Unlike the teacher's bespoke per-entity tables, this package is generic:
// callers register a TableSchema per logical table (declaring which
// attributes are promoted to indexed SQL columns) so the same code serves
// every named secondary index spec §4.1 requires.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

// ColumnKind is the SQL storage class used for a promoted attribute.
type ColumnKind string

const (
	ColumnText    ColumnKind = "TEXT"
	ColumnInteger ColumnKind = "INTEGER"
)

// Column declares one attribute promoted to a real SQL column so it can be
// indexed and filtered on.
type Column struct {
	Name string
	Kind ColumnKind
}

// Index declares a named secondary index over one or two promoted columns,
// matching the (partitionKey[, rangeKey]) shape spec §4.1 names.
type Index struct {
	Name    string
	Columns []string
}

// TableSchema declares one logical table: its primary key attribute, the
// attributes promoted to SQL columns, and the indexes over them.
type TableSchema struct {
	Table      string
	PrimaryKey string
	Columns    []Column
	Indexes    []Index
}

// Config holds sqlitestore configuration.
type Config struct {
	DataDir  string
	FileName string // defaults to "tokenledger.db"
}

// Store is a SQLite-backed store.Store implementation.
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	schemas map[string]TableSchema
}

// New opens (creating if needed) the SQLite database under cfg.DataDir and
// creates every table/index declared in schemas.
func New(cfg Config, schemas []TableSchema) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("sqlitestore: create data dir: %w", err)
	}

	fileName := cfg.FileName
	if fileName == "" {
		fileName = "tokenledger.db"
	}
	dbPath := filepath.Join(dataDir, fileName)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, schemas: make(map[string]TableSchema, len(schemas))}
	for _, sch := range schemas {
		s.schemas[sch.Table] = sch
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: init schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	for _, sch := range s.schemas {
		var cols []string
		cols = append(cols, fmt.Sprintf("%s TEXT PRIMARY KEY", sch.PrimaryKey))
		for _, c := range sch.Columns {
			if c.Name == sch.PrimaryKey {
				continue
			}
			cols = append(cols, fmt.Sprintf("%s %s", c.Name, c.Kind))
		}
		cols = append(cols, "attrs TEXT NOT NULL")

		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sch.Table, strings.Join(cols, ", "))
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("create table %s: %w", sch.Table, err)
		}

		for _, idx := range sch.Indexes {
			name := fmt.Sprintf("idx_%s_%s", sch.Table, idx.Name)
			ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, sch.Table, strings.Join(idx.Columns, ", "))
			if _, err := s.db.Exec(ddl); err != nil {
				return fmt.Errorf("create index %s: %w", name, err)
			}
		}
	}
	return nil
}

func (s *Store) schemaFor(table string) (TableSchema, error) {
	sch, ok := s.schemas[table]
	if !ok {
		return TableSchema{}, fmt.Errorf("sqlitestore: unknown table %q", table)
	}
	return sch, nil
}

func columnValue(rec store.Record, col Column) interface{} {
	v, ok := rec[col.Name]
	if !ok || v == nil {
		return nil
	}
	if col.Kind == ColumnInteger {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return n
		case uint64:
			return int64(n)
		case float64:
			return int64(n)
		}
	}
	return fmt.Sprint(v)
}

func (s *Store) Put(_ context.Context, table string, rec store.Record) error {
	sch, err := s.schemaFor(table)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal record: %w", err)
	}

	var names []string
	var placeholders []string
	var values []interface{}
	names = append(names, sch.PrimaryKey)
	placeholders = append(placeholders, "?")
	values = append(values, fmt.Sprint(rec[sch.PrimaryKey]))

	for _, c := range sch.Columns {
		if c.Name == sch.PrimaryKey {
			continue
		}
		names = append(names, c.Name)
		placeholders = append(placeholders, "?")
		values = append(values, columnValue(rec, c))
	}
	names = append(names, "attrs")
	placeholders = append(placeholders, "?")
	values = append(values, string(attrs))

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	_, err = s.db.Exec(query, values...)
	if err != nil {
		return fmt.Errorf("sqlitestore: put: %w", err)
	}
	return nil
}

func (s *Store) Get(_ context.Context, table string, key store.Key) (store.Record, error) {
	sch, err := s.schemaFor(table)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var attrs string
	row := s.db.QueryRow(fmt.Sprintf("SELECT attrs FROM %s WHERE %s = ?", table, sch.PrimaryKey), fmt.Sprint(key[sch.PrimaryKey]))
	if err := row.Scan(&attrs); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sqlitestore: get: %w", err)
	}

	var rec store.Record
	if err := json.Unmarshal([]byte(attrs), &rec); err != nil {
		return nil, fmt.Errorf("sqlitestore: unmarshal record: %w", err)
	}
	return rec, nil
}

// UpdateConditional requires every key in cond to name a declared column
// (condition checks run in SQL, the way the teacher's UpdateSwapState
// checks RowsAffected after a WHERE-qualified UPDATE). Arbitrary-attribute
// conditions over non-promoted fields are not supported by this backend;
// promote the attribute to a column if a lifecycle needs to guard on it.
func (s *Store) UpdateConditional(_ context.Context, table string, key store.Key, mutations store.Record, cond store.Condition) (store.Record, error) {
	sch, err := s.schemaFor(table)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var attrs string
	row := s.db.QueryRow(fmt.Sprintf("SELECT attrs FROM %s WHERE %s = ?", table, sch.PrimaryKey), fmt.Sprint(key[sch.PrimaryKey]))
	if err := row.Scan(&attrs); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrConditionFailed
		}
		return nil, fmt.Errorf("sqlitestore: update read: %w", err)
	}
	var current store.Record
	if err := json.Unmarshal([]byte(attrs), &current); err != nil {
		return nil, fmt.Errorf("sqlitestore: unmarshal record: %w", err)
	}

	whereClauses := []string{fmt.Sprintf("%s = ?", sch.PrimaryKey)}
	whereArgs := []interface{}{fmt.Sprint(key[sch.PrimaryKey])}
	condKeys := make([]string, 0, len(cond))
	for k := range cond {
		condKeys = append(condKeys, k)
	}
	sort.Strings(condKeys)
	for _, k := range condKeys {
		whereClauses = append(whereClauses, fmt.Sprintf("%s = ?", k))
		whereArgs = append(whereArgs, fmt.Sprint(cond[k]))
	}

	updated := current.Clone()
	for k, v := range mutations {
		updated[k] = v
	}
	newAttrs, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: marshal record: %w", err)
	}

	var setClauses []string
	var setArgs []interface{}
	setClauses = append(setClauses, "attrs = ?")
	setArgs = append(setArgs, string(newAttrs))
	for _, c := range sch.Columns {
		if c.Name == sch.PrimaryKey {
			continue
		}
		if _, touched := mutations[c.Name]; !touched {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", c.Name))
		setArgs = append(setArgs, columnValue(updated, c))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		table, strings.Join(setClauses, ", "), strings.Join(whereClauses, " AND "))
	args := append(setArgs, whereArgs...)

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: update: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: rows affected: %w", err)
	}
	if affected == 0 {
		return nil, store.ErrConditionFailed
	}
	return updated, nil
}

func (s *Store) Delete(_ context.Context, table string, key store.Key) error {
	sch, err := s.schemaFor(table)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, sch.PrimaryKey), fmt.Sprint(key[sch.PrimaryKey]))
	if err != nil {
		return fmt.Errorf("sqlitestore: delete: %w", err)
	}
	return nil
}

func (s *Store) QueryByIndex(_ context.Context, table, index string, q store.IndexQuery) ([]store.Record, error) {
	sch, err := s.schemaFor(table)
	if err != nil {
		return nil, err
	}

	// Index names double as SQL identifiers, so a name written with ','
	// between its attributes also resolves to its '_' spelling.
	sqlName := strings.ReplaceAll(index, ",", "_")
	var idx *Index
	for i := range sch.Indexes {
		if sch.Indexes[i].Name == index || sch.Indexes[i].Name == sqlName {
			idx = &sch.Indexes[i]
			break
		}
	}
	if idx == nil {
		return nil, fmt.Errorf("sqlitestore: unknown index %q on table %q", index, table)
	}
	partitionCol := idx.Columns[0]

	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{fmt.Sprintf("%s = ?", partitionCol)}
	args := []interface{}{fmt.Sprint(q.PartitionValue)}

	if q.RangeKey != "" && q.RangeOp != store.RangeNone {
		op := "="
		switch q.RangeOp {
		case store.RangeLessOrEqual:
			op = "<="
		case store.RangeGreaterOrEqual:
			op = ">="
		}
		where = append(where, fmt.Sprintf("%s %s ?", q.RangeKey, op))
		args = append(args, fmt.Sprint(q.RangeValue))
	}

	order := "ASC"
	if !q.ScanForward {
		order = "DESC"
	}
	rangeCol := partitionCol
	if len(idx.Columns) > 1 {
		rangeCol = idx.Columns[1]
	}

	query := fmt.Sprintf("SELECT attrs FROM %s WHERE %s ORDER BY %s %s", table, strings.Join(where, " AND "), rangeCol, order)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query index: %w", err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var attrs string
		if err := rows.Scan(&attrs); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan: %w", err)
		}
		var rec store.Record
		if err := json.Unmarshal([]byte(attrs), &rec); err != nil {
			return nil, fmt.Errorf("sqlitestore: unmarshal record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Scan(_ context.Context, table string, opts store.ScanOptions) (store.ScanResult, error) {
	sch, err := s.schemaFor(table)
	if err != nil {
		return store.ScanResult{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s, attrs FROM %s", sch.PrimaryKey, table)
	var args []interface{}
	if opts.Cursor != "" {
		query += fmt.Sprintf(" WHERE %s > ?", sch.PrimaryKey)
		args = append(args, opts.Cursor)
	}
	query += fmt.Sprintf(" ORDER BY %s ASC", sch.PrimaryKey)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return store.ScanResult{}, fmt.Errorf("sqlitestore: scan: %w", err)
	}
	defer rows.Close()

	var out []store.Record
	var last string
	for rows.Next() {
		var pk, attrs string
		if err := rows.Scan(&pk, &attrs); err != nil {
			return store.ScanResult{}, fmt.Errorf("sqlitestore: scan row: %w", err)
		}
		var rec store.Record
		if err := json.Unmarshal([]byte(attrs), &rec); err != nil {
			return store.ScanResult{}, fmt.Errorf("sqlitestore: unmarshal record: %w", err)
		}
		out = append(out, rec)
		last = pk
	}
	next := ""
	if opts.Limit > 0 && len(out) == opts.Limit {
		next = last
	}
	return store.ScanResult{Records: out, NextCursor: next}, rows.Err()
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
