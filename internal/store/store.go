/*

This file defines the position store contract. Two implementations exist: the
remote PostgreSQL store and the on-device SQLite fallback cache. The Adapter
in adapter.go selects between them so callers see one interface.

*/

package store

import (
	"context"

	"github.com/Div1912/Ageis/internal/types"
)

// PositionUpdate carries the partial fields of a best-effort update. Nil
// means "leave unchanged".
type PositionUpdate struct {
	Capital         *float64
	LowerBound      *float64
	UpperBound      *float64
	TotalRebalances *int64
}

// Store is CRUD over persisted position and decision records, keyed by owner
// identity.
type Store interface {
	// SavePosition creates a new active record for pos.Owner. Any prior
	// active record for the same owner is flipped to closed in the same
	// logical operation, so at most one active record exists per owner.
	SavePosition(ctx context.Context, pos types.StoredPosition) (types.StoredPosition, error)

	// ActivePositions returns the owner's active records, most recent
	// first. Empty slice if none.
	ActivePositions(ctx context.Context, owner string) ([]types.StoredPosition, error)

	// ClosePosition marks the record closed and stamps closed_at.
	ClosePosition(ctx context.Context, id int64) error

	// UpdatePosition applies a partial update to one record.
	UpdatePosition(ctx context.Context, id int64, update PositionUpdate) error

	// AppendDecision appends one immutable decision log line.
	AppendDecision(ctx context.Context, rec types.DecisionRecord) error

	// RecentDecisions returns up to limit decision records, newest first.
	RecentDecisions(ctx context.Context, limit int) ([]types.DecisionRecord, error)

	// UpsertDepositor records or accumulates one depositor's contribution.
	UpsertDepositor(ctx context.Context, d types.Depositor) error

	// Depositors lists all recorded depositors.
	Depositors(ctx context.Context) ([]types.Depositor, error)

	Ping(ctx context.Context) error
	Close() error
}
