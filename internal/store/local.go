package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/Div1912/Ageis/internal/logger"
	"github.com/Div1912/Ageis/internal/types"
)

// Local is the on-device SQLite cache. It implements the same Store interface
// as Postgres so the adapter can fall back to it transparently when the remote
// store is unconfigured or unreachable.
type Local struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewLocal opens (or creates) the cache file at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func NewLocal(path string) (*Local, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache %s: %w", path, err)
	}
	// SQLite tolerates one writer; the cache is accessed from several
	// goroutines, so serialize through a single connection.
	db.SetMaxOpenConns(1)

	l := &Local{db: db, log: logger.GetForComponent("store_local")}
	if err := l.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	l.log.Info().Str("path", path).Msg("Local cache store ready")
	return l, nil
}

func (l *Local) ensureSchema() error {
	schemaSQL := `
		CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT NOT NULL,
			pair TEXT NOT NULL DEFAULT '',
			pool TEXT NOT NULL DEFAULT '',
			entry_price REAL NOT NULL,
			lower_bound REAL NOT NULL,
			upper_bound REAL NOT NULL,
			capital REAL NOT NULL,
			open_timestamp INTEGER NOT NULL,
			total_rebalances INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			closed_at DATETIME,
			app_id INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_positions_owner_status ON positions (owner, status);

		CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			action TEXT NOT NULL,
			price REAL NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			fee_projection REAL NOT NULL DEFAULT 0,
			swap_cost REAL NOT NULL DEFAULT 0,
			hours_in_range REAL NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			tx_id TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions (ts DESC);

		CREATE TABLE IF NOT EXISTS depositors (
			owner TEXT PRIMARY KEY,
			base_deposited REAL NOT NULL DEFAULT 0,
			quote_deposited REAL NOT NULL DEFAULT 0,
			join_tx TEXT NOT NULL DEFAULT ''
		);
	`
	if _, err := l.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply local cache schema: %w", err)
	}
	return nil
}

// SavePosition archives any previous active row for the owner and inserts the
// new one, in one transaction.
func (l *Local) SavePosition(ctx context.Context, pos types.StoredPosition) (types.StoredPosition, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return pos, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE positions SET status = 'closed', closed_at = ?
		WHERE owner = ? AND status = 'active'`, time.Now().UTC(), pos.Owner)
	if err != nil {
		return pos, fmt.Errorf("failed to archive previous active position: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO positions (owner, pair, pool, entry_price, lower_bound, upper_bound,
			capital, open_timestamp, total_rebalances, status, app_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', ?)`,
		pos.Owner, pos.Pair, pos.Pool, pos.EntryPrice, pos.LowerBound, pos.UpperBound,
		pos.Capital, pos.OpenTimestamp, pos.TotalRebalances, pos.AppID)
	if err != nil {
		return pos, fmt.Errorf("failed to insert position: %w", err)
	}
	pos.ID, err = res.LastInsertId()
	if err != nil {
		return pos, fmt.Errorf("failed to read inserted position id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return pos, fmt.Errorf("failed to commit position save: %w", err)
	}

	pos.Status = types.StatusActive
	return pos, nil
}

func (l *Local) ActivePositions(ctx context.Context, owner string) ([]types.StoredPosition, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, owner, pair, pool, entry_price, lower_bound, upper_bound,
			capital, open_timestamp, total_rebalances, status, closed_at, app_id
		FROM positions
		WHERE owner = ? AND status = 'active'
		ORDER BY id DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query active positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (l *Local) ClosePosition(ctx context.Context, id int64) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE positions SET status = 'closed', closed_at = ?
		WHERE id = ? AND status = 'active'`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to close position %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no active position with id %d", id)
	}
	return nil
}

func (l *Local) UpdatePosition(ctx context.Context, id int64, update PositionUpdate) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE positions SET
			capital = COALESCE(?, capital),
			lower_bound = COALESCE(?, lower_bound),
			upper_bound = COALESCE(?, upper_bound),
			total_rebalances = COALESCE(?, total_rebalances)
		WHERE id = ?`,
		update.Capital, update.LowerBound, update.UpperBound, update.TotalRebalances, id)
	if err != nil {
		return fmt.Errorf("failed to update position %d: %w", id, err)
	}
	return nil
}

func (l *Local) AppendDecision(ctx context.Context, rec types.DecisionRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO decisions (ts, action, price, reason, fee_projection, swap_cost,
			hours_in_range, confidence, tx_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, string(rec.Action), rec.Price, rec.Reason, rec.FeeProjection,
		rec.SwapCost, rec.HoursInRange, rec.Confidence, rec.TxID)
	if err != nil {
		return fmt.Errorf("failed to append decision record: %w", err)
	}
	return nil
}

func (l *Local) RecentDecisions(ctx context.Context, limit int) ([]types.DecisionRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, ts, action, price, reason, fee_projection, swap_cost,
			hours_in_range, confidence, tx_id
		FROM decisions ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

func (l *Local) UpsertDepositor(ctx context.Context, d types.Depositor) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO depositors (owner, base_deposited, quote_deposited, join_tx)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner) DO UPDATE SET
			base_deposited = depositors.base_deposited + excluded.base_deposited,
			quote_deposited = depositors.quote_deposited + excluded.quote_deposited`,
		d.Owner, d.BaseDeposited, d.QuoteDeposited, d.JoinTx)
	if err != nil {
		return fmt.Errorf("failed to upsert depositor %s: %w", d.Owner, err)
	}
	return nil
}

func (l *Local) Depositors(ctx context.Context) ([]types.Depositor, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT owner, base_deposited, quote_deposited, join_tx FROM depositors ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("failed to query depositors: %w", err)
	}
	defer rows.Close()

	var out []types.Depositor
	for rows.Next() {
		var d types.Depositor
		if err := rows.Scan(&d.Owner, &d.BaseDeposited, &d.QuoteDeposited, &d.JoinTx); err != nil {
			return nil, fmt.Errorf("failed to scan depositor row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (l *Local) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *Local) Close() error {
	return l.db.Close()
}
