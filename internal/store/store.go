// Package store defines the abstract wide-column key/value contract the
// token ledger is built on: unconditional put, point get, version/attribute
// conditional update, delete, index-backed query, and full-table scan.
//
// The production driver for this contract (a DynamoDB-compatible client) is
// an external collaborator and is out of scope here; this package defines
// only the interface plus two reference implementations used by the ledger
// core's own tests (internal/store/memstore, internal/store/sqlitestore).
package store

import (
	"context"
	"errors"
)

// Record is a generic attribute bag, the wide-column equivalent of a row.
// Callers (the ledger's entity codec) are responsible for mapping their
// typed entities to and from Records.
type Record map[string]interface{}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Key identifies a row by its primary key attributes.
type Key map[string]interface{}

// Condition is a set of attribute equality checks that must all hold
// against the pre-image of a row for UpdateConditional to apply.
type Condition map[string]interface{}

// RangeOp is the comparison applied to an index's range key in a query.
type RangeOp int

const (
	// RangeNone means no range-key condition; all items under the
	// partition key are returned.
	RangeNone RangeOp = iota
	RangeEqual
	RangeLessOrEqual
	RangeGreaterOrEqual
)

// IndexQuery describes a query against one named secondary index.
type IndexQuery struct {
	PartitionKey   string
	PartitionValue interface{}
	RangeKey       string
	RangeOp        RangeOp
	RangeValue     interface{}
	// Limit caps the number of returned items; 0 means unbounded.
	Limit int
	// ScanForward orders results ascending by range key when true,
	// descending when false (the zero value).
	ScanForward bool
}

// ScanOptions bounds a full-table scan.
type ScanOptions struct {
	Limit  int
	Cursor string
}

// ScanResult is one page of a Scan.
type ScanResult struct {
	Records    []Record
	NextCursor string
}

// Sentinel errors surfaced to callers, per spec §4.1 and §7.
var (
	// ErrNotFound is returned by Get when no row matches the key.
	ErrNotFound = errors.New("store: not found")
	// ErrConditionFailed is returned by UpdateConditional when the
	// pre-image does not satisfy the supplied Condition.
	ErrConditionFailed = errors.New("store: condition failed")
	// ErrIndexUnavailable is returned by QueryByIndex when the named
	// index cannot currently serve queries; callers must fall back to
	// an alternate index or to Scan.
	ErrIndexUnavailable = errors.New("store: index unavailable")
)

// Store is the abstract wide-column store the ledger core is layered on.
type Store interface {
	// Put inserts or unconditionally overwrites a row by primary key.
	Put(ctx context.Context, table string, rec Record) error

	// Get fetches a single row by primary key. Returns ErrNotFound if
	// absent.
	Get(ctx context.Context, table string, key Key) (Record, error)

	// UpdateConditional applies mutations to the row at key iff cond
	// holds against the current stored row. Returns the post-image on
	// success, or ErrConditionFailed if the condition did not hold
	// (including when the row does not exist).
	UpdateConditional(ctx context.Context, table string, key Key, mutations Record, cond Condition) (Record, error)

	// Delete removes a row by primary key. Deleting an absent row is not
	// an error.
	Delete(ctx context.Context, table string, key Key) error

	// QueryByIndex returns rows matching q on the named secondary index.
	// May return ErrIndexUnavailable; callers are expected to retry
	// against a fallback index per the index table in spec §4.1.
	QueryByIndex(ctx context.Context, table, index string, q IndexQuery) ([]Record, error)

	// Scan iterates a table in primary-key order, ignoring indexes. Used
	// only by workers (C7/C8) and by admin paths that explicitly accept
	// the cost.
	Scan(ctx context.Context, table string, opts ScanOptions) (ScanResult, error)
}
