package currency

import "context"

// Ports for outbound adapters.
type (
	// RateSource fetches "1 unit of base = rate units of currency" quotes
	// from an external provider. One attempt per call; retries are left to
	// the next natural invocation.
	RateSource interface {
		Fetch(ctx context.Context, base string) (map[string]float64, error)
	}

	// SnapshotStore is a durable key-value cache for rate snapshots.
	// Implemented by the SQLite repository's rate_cache table.
	SnapshotStore interface {
		GetCacheEntry(ctx context.Context, key string) (string, bool, error)
		PutCacheEntry(ctx context.Context, key, value string) error
	}
)
