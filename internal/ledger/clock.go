package ledger

import "time"

// systemClock is the one concrete Clock adapter, backed by the standard
// library. It never panics on malformed input, per spec §6 ("isPast ...
// must return false on malformed input").
type systemClock struct{}

// NewSystemClock returns the default Clock collaborator.
func NewSystemClock() Clock { return systemClock{} }

func (systemClock) Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (systemClock) ParseToUnix(s string) (int64, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

func (systemClock) FromUnix(seconds int64) string {
	return time.Unix(seconds, 0).UTC().Format(time.RFC3339Nano)
}

func (c systemClock) IsPast(s string) bool {
	ts, ok := c.ParseToUnix(s)
	if !ok {
		return false
	}
	return ts < time.Now().Unix()
}

// isExpired reports whether expiresAt has passed, tolerating malformed
// timestamps by treating them as non-expiring (spec §3 invariant 5, §4.4
// failure semantics, §8 B3).
func isExpired(clock Clock, expiresAt string) bool {
	if expiresAt == "" || expiresAt == NeverExpires {
		return false
	}
	return clock.IsPast(expiresAt)
}
