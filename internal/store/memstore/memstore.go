// Package memstore is an in-memory reference implementation of store.Store,
// mutex-guarded the way the teacher's SQLite-backed Storage type guards its
// db handle. It exists so the ledger's split/balance/hold/query logic can
// be unit tested without cgo, and so index-unavailable fallback paths can
// be exercised deterministically via SetIndexUnavailable.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

// IndexSpec describes one named secondary index: a partition attribute and
// an optional range attribute to sort/filter within a partition.
type IndexSpec struct {
	Name         string
	PartitionKey string
	RangeKey     string // empty if the index has no range key
}

// Store is an in-memory, mutex-guarded implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	primaryKey map[string]string     // table -> primary key attribute name
	indexes    map[string][]IndexSpec // table -> indexes defined on it
	rows       map[string]map[string]store.Record // table -> pk value -> row

	// failIndex, when set for "table/index", makes QueryByIndex return
	// store.ErrIndexUnavailable for that index until cleared.
	failIndex map[string]bool
}

// New creates an empty Store. pkByTable maps each table name to its
// primary-key attribute, and indexesByTable declares the named secondary
// indexes available on each table (spec §4.1).
func New(pkByTable map[string]string, indexesByTable map[string][]IndexSpec) *Store {
	return &Store{
		primaryKey: pkByTable,
		indexes:    indexesByTable,
		rows:       make(map[string]map[string]store.Record),
		failIndex:  make(map[string]bool),
	}
}

// SetIndexUnavailable toggles a deterministic failure mode for a given
// table/index pair, used by tests exercising the §4.1/§7 fallback path.
func (s *Store) SetIndexUnavailable(table, index string, unavailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failIndex[table+"/"+index] = unavailable
}

func (s *Store) pkValue(table string, rec store.Record) (string, error) {
	attr, ok := s.primaryKey[table]
	if !ok {
		return "", fmt.Errorf("memstore: unknown table %q", table)
	}
	v, ok := rec[attr]
	if !ok {
		return "", fmt.Errorf("memstore: row missing primary key attribute %q", attr)
	}
	return fmt.Sprint(v), nil
}

func (s *Store) Put(_ context.Context, table string, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk, err := s.pkValue(table, rec)
	if err != nil {
		return err
	}
	if s.rows[table] == nil {
		s.rows[table] = make(map[string]store.Record)
	}
	s.rows[table][pk] = rec.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, table string, key store.Key) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attr, ok := s.primaryKey[table]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown table %q", table)
	}
	pk := fmt.Sprint(key[attr])
	row, ok := s.rows[table][pk]
	if !ok {
		return nil, store.ErrNotFound
	}
	return row.Clone(), nil
}

func (s *Store) UpdateConditional(_ context.Context, table string, key store.Key, mutations store.Record, cond store.Condition) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attr, ok := s.primaryKey[table]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown table %q", table)
	}
	pk := fmt.Sprint(key[attr])
	row, ok := s.rows[table][pk]
	if !ok {
		return nil, store.ErrConditionFailed
	}
	for k, want := range cond {
		if got, present := row[k]; !present || fmt.Sprint(got) != fmt.Sprint(want) {
			return nil, store.ErrConditionFailed
		}
	}

	updated := row.Clone()
	for k, v := range mutations {
		updated[k] = v
	}
	s.rows[table][pk] = updated
	return updated.Clone(), nil
}

func (s *Store) Delete(_ context.Context, table string, key store.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attr, ok := s.primaryKey[table]
	if !ok {
		return fmt.Errorf("memstore: unknown table %q", table)
	}
	pk := fmt.Sprint(key[attr])
	delete(s.rows[table], pk)
	return nil
}

func (s *Store) QueryByIndex(_ context.Context, table, index string, q store.IndexQuery) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failIndex[table+"/"+index] {
		return nil, store.ErrIndexUnavailable
	}

	spec, ok := s.findIndex(table, index)
	if !ok {
		return nil, fmt.Errorf("memstore: unknown index %q on table %q", index, table)
	}

	var matches []store.Record
	for _, row := range s.rows[table] {
		if fmt.Sprint(row[spec.PartitionKey]) != fmt.Sprint(q.PartitionValue) {
			continue
		}
		if q.RangeKey != "" && q.RangeOp != store.RangeNone {
			if !rangeMatch(row[q.RangeKey], q.RangeOp, q.RangeValue) {
				continue
			}
		}
		matches = append(matches, row.Clone())
	}

	if spec.RangeKey != "" {
		sort.Slice(matches, func(i, j int) bool {
			a, b := fmt.Sprint(matches[i][spec.RangeKey]), fmt.Sprint(matches[j][spec.RangeKey])
			if q.ScanForward {
				return a < b
			}
			return a > b
		})
	}

	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

func (s *Store) findIndex(table, name string) (IndexSpec, bool) {
	for _, spec := range s.indexes[table] {
		if spec.Name == name {
			return spec, true
		}
	}
	return IndexSpec{}, false
}

func rangeMatch(got interface{}, op store.RangeOp, want interface{}) bool {
	g, w := fmt.Sprint(got), fmt.Sprint(want)
	switch op {
	case store.RangeEqual:
		return g == w
	case store.RangeLessOrEqual:
		return strings.Compare(g, w) <= 0
	case store.RangeGreaterOrEqual:
		return strings.Compare(g, w) >= 0
	default:
		return true
	}
}

func (s *Store) Scan(_ context.Context, table string, opts store.ScanOptions) (store.ScanResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.rows[table]))
	for k := range s.rows[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if opts.Cursor != "" {
		for i, k := range keys {
			if k > opts.Cursor {
				start = i
				break
			}
			start = i + 1
		}
	}

	var out []store.Record
	next := ""
	for i := start; i < len(keys); i++ {
		if opts.Limit > 0 && len(out) >= opts.Limit {
			next = keys[i-1]
			break
		}
		out = append(out, s.rows[table][keys[i]].Clone())
	}
	return store.ScanResult{Records: out, NextCursor: next}, nil
}
