package store

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Div1912/Ageis/internal/config"
	"github.com/Div1912/Ageis/internal/logger"
	"github.com/Div1912/Ageis/internal/types"
)

// Adapter presents one Store to callers and routes each call to the remote
// PostgreSQL store when available, falling back to the local SQLite cache on
// error. Read paths degrade to empty results instead of failing; write paths
// land in the cache when the remote store is down so monitoring keeps working
// offline.
type Adapter struct {
	remote Store // nil when unconfigured or connection failed
	local  Store
	log    zerolog.Logger
}

// NewAdapter wires the adapter from configuration. A missing or unreachable
// remote store is logged and tolerated; the local cache is mandatory.
func NewAdapter(cfg *config.Config) (*Adapter, error) {
	a := &Adapter{log: logger.GetForComponent("store")}

	local, err := NewLocal(cfg.FallbackDBPath)
	if err != nil {
		return nil, err
	}
	a.local = local

	if !cfg.RemoteStoreConfigured() {
		a.log.Info().Msg("Remote position store not configured, running on local cache only")
		return a, nil
	}

	remote, err := NewPostgres(cfg)
	if err != nil {
		a.log.Warn().Err(err).Msg("Remote position store unreachable, falling back to local cache")
		return a, nil
	}
	a.remote = remote
	return a, nil
}

// NewAdapterWith assembles an adapter from explicit backends. Used by tests
// and by callers that manage connections themselves.
func NewAdapterWith(remote, local Store) *Adapter {
	return &Adapter{remote: remote, local: local, log: logger.GetForComponent("store")}
}

// RemoteAvailable reports whether the remote store answered the last health
// probe.
func (a *Adapter) RemoteAvailable(ctx context.Context) bool {
	if a.remote == nil {
		return false
	}
	return a.remote.Ping(ctx) == nil
}

// SavePosition writes to the remote store when possible; on failure the row
// is preserved in the local cache so it is never lost.
func (a *Adapter) SavePosition(ctx context.Context, pos types.StoredPosition) (types.StoredPosition, error) {
	if a.remote != nil {
		saved, err := a.remote.SavePosition(ctx, pos)
		if err == nil {
			// Mirror into the cache so offline reads see the latest
			// record. Best effort.
			if _, cerr := a.local.SavePosition(ctx, pos); cerr != nil {
				a.log.Warn().Err(cerr).Msg("Failed to mirror position into local cache")
			}
			return saved, nil
		}
		a.log.Warn().Err(err).Msg("Remote position save failed, writing to local cache")
	}
	return a.local.SavePosition(ctx, pos)
}

// ActivePositions degrades remote -> local -> empty. It never returns an
// error to the caller; monitoring carries on with what it has.
func (a *Adapter) ActivePositions(ctx context.Context, owner string) ([]types.StoredPosition, error) {
	if a.remote != nil {
		positions, err := a.remote.ActivePositions(ctx, owner)
		if err == nil {
			return positions, nil
		}
		a.log.Warn().Err(err).Msg("Remote active position query failed, trying local cache")
	}
	positions, err := a.local.ActivePositions(ctx, owner)
	if err != nil {
		a.log.Warn().Err(err).Msg("Local active position query failed, returning empty")
		return []types.StoredPosition{}, nil
	}
	return positions, nil
}

func (a *Adapter) ClosePosition(ctx context.Context, id int64) error {
	if a.remote != nil {
		if err := a.remote.ClosePosition(ctx, id); err != nil {
			a.log.Warn().Err(err).Int64("id", id).Msg("Remote position close failed, closing in local cache")
			return a.local.ClosePosition(ctx, id)
		}
		// Keep the cache in step, ignoring a miss there.
		if err := a.local.ClosePosition(ctx, id); err != nil {
			a.log.Debug().Err(err).Int64("id", id).Msg("Local cache close skipped")
		}
		return nil
	}
	return a.local.ClosePosition(ctx, id)
}

// UpdatePosition is best effort on both backends; failures are logged, never
// surfaced.
func (a *Adapter) UpdatePosition(ctx context.Context, id int64, update PositionUpdate) error {
	if a.remote != nil {
		if err := a.remote.UpdatePosition(ctx, id, update); err != nil {
			a.log.Warn().Err(err).Int64("id", id).Msg("Remote position update failed")
		}
	}
	if err := a.local.UpdatePosition(ctx, id, update); err != nil {
		a.log.Warn().Err(err).Int64("id", id).Msg("Local position update failed")
	}
	return nil
}

func (a *Adapter) AppendDecision(ctx context.Context, rec types.DecisionRecord) error {
	if a.remote != nil {
		if err := a.remote.AppendDecision(ctx, rec); err == nil {
			if cerr := a.local.AppendDecision(ctx, rec); cerr != nil {
				a.log.Debug().Err(cerr).Msg("Local decision mirror failed")
			}
			return nil
		} else {
			a.log.Warn().Err(err).Msg("Remote decision append failed, writing to local cache")
		}
	}
	return a.local.AppendDecision(ctx, rec)
}

func (a *Adapter) RecentDecisions(ctx context.Context, limit int) ([]types.DecisionRecord, error) {
	if a.remote != nil {
		records, err := a.remote.RecentDecisions(ctx, limit)
		if err == nil {
			return records, nil
		}
		a.log.Warn().Err(err).Msg("Remote decision query failed, trying local cache")
	}
	records, err := a.local.RecentDecisions(ctx, limit)
	if err != nil {
		a.log.Warn().Err(err).Msg("Local decision query failed, returning empty")
		return []types.DecisionRecord{}, nil
	}
	return records, nil
}

func (a *Adapter) UpsertDepositor(ctx context.Context, d types.Depositor) error {
	if a.remote != nil {
		if err := a.remote.UpsertDepositor(ctx, d); err == nil {
			if cerr := a.local.UpsertDepositor(ctx, d); cerr != nil {
				a.log.Debug().Err(cerr).Msg("Local depositor mirror failed")
			}
			return nil
		} else {
			a.log.Warn().Err(err).Msg("Remote depositor upsert failed, writing to local cache")
		}
	}
	return a.local.UpsertDepositor(ctx, d)
}

func (a *Adapter) Depositors(ctx context.Context) ([]types.Depositor, error) {
	if a.remote != nil {
		depositors, err := a.remote.Depositors(ctx)
		if err == nil {
			return depositors, nil
		}
		a.log.Warn().Err(err).Msg("Remote depositor query failed, trying local cache")
	}
	return a.local.Depositors(ctx)
}

func (a *Adapter) Ping(ctx context.Context) error {
	if a.remote != nil {
		if err := a.remote.Ping(ctx); err == nil {
			return nil
		}
	}
	return a.local.Ping(ctx)
}

func (a *Adapter) Close() error {
	var firstErr error
	if a.remote != nil {
		firstErr = a.remote.Close()
	}
	if err := a.local.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
