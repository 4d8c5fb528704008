package ledger

import (
	"context"
	"time"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

const (
	defaultRetentionDays  = 730
	defaultRetentionLimit = 1000
	defaultMaxSeconds     = 25
)

// RetentionOptions configures PurgeOld.
type RetentionOptions struct {
	OlderThanDays int
	Limit         int
	DryRun        bool
	Archive       bool
	MaxSeconds    int
}

// RetentionResult is the summary PurgeOld returns, per §4.8.
type RetentionResult struct {
	Scanned         int
	Candidates      int
	Archived        int
	Deleted         int
	DryRun          bool
	CutoffISO       string
	DurationSeconds float64
}

// PurgeOld scans up to opts.Limit rows in primary-key order, archiving
// and/or deleting any older than opts.OlderThanDays, bounded by a soft
// wall-clock budget so one run cannot run away.
func (m *TokenManager) PurgeOld(ctx context.Context, opts RetentionOptions) (RetentionResult, error) {
	if opts.OlderThanDays <= 0 {
		opts.OlderThanDays = defaultRetentionDays
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultRetentionLimit
	}
	maxSeconds := opts.MaxSeconds
	if maxSeconds <= 0 {
		maxSeconds = defaultMaxSeconds
	}

	started := time.Now()
	budget := time.Duration(maxSeconds) * time.Second

	nowUnix, _ := m.clock.ParseToUnix(m.clock.Now())
	cutoff := m.clock.FromUnix(nowUnix - int64(opts.OlderThanDays)*24*3600)

	result := RetentionResult{DryRun: opts.DryRun, CutoffISO: cutoff}

	cursor := ""
	for result.Scanned < opts.Limit {
		if time.Since(started) > budget {
			break
		}
		remaining := opts.Limit - result.Scanned
		page, err := m.store.Scan(ctx, m.table, store.ScanOptions{Limit: minInt(remaining, 200), Cursor: cursor})
		if err != nil {
			return result, err
		}
		if len(page.Records) == 0 {
			break
		}
		for _, rec := range page.Records {
			result.Scanned++
			e := FromRecord(rec)
			if e.CreatedAt >= cutoff {
				continue
			}
			result.Candidates++
			if opts.DryRun {
				continue
			}
			if opts.Archive {
				if err := m.store.Put(ctx, m.archiveTable, rec); err != nil {
					m.errs.AddError("archive write failed", map[string]interface{}{"id": e.ID, "err": err.Error()})
					continue
				}
				result.Archived++
			}
			if err := m.store.Delete(ctx, m.table, store.Key{"id": e.ID}); err != nil {
				m.errs.AddError("purge delete failed", map[string]interface{}{"id": e.ID, "err": err.Error()})
				continue
			}
			result.Deleted++
			if time.Since(started) > budget {
				break
			}
		}
		cursor = page.NextCursor
		if cursor == "" {
			break
		}
	}

	result.DurationSeconds = time.Since(started).Seconds()
	m.writeLog("purge_old", map[string]interface{}{
		"scanned": result.Scanned, "candidates": result.Candidates, "deleted": result.Deleted,
	})
	return result, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
