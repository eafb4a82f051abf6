package fetcher

import (
	"context"

	"nasdaq-drop-alerts/internal/engine"
)

// SnapshotFetcher retrieves current quote snapshots for a watchlist. A
// partial result (some symbols missing from the response) is normal and not
// an error; missing symbols simply produce no snapshot that cycle.
type SnapshotFetcher interface {
	FetchSnapshots(ctx context.Context, symbols []string) ([]engine.Snapshot, error)
}
