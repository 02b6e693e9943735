package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/Div1912/Ageis/internal/config"
	"github.com/Div1912/Ageis/internal/logger"
	"github.com/Div1912/Ageis/internal/types"
)

// Postgres is the remote position store backed by a PostgreSQL connection
// pool. It is the primary store; the SQLite cache in local.go takes over when
// this one is unconfigured or unreachable.
type Postgres struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPostgres opens the connection pool and applies the schema.
func NewPostgres(cfg *config.Config) (*Postgres, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Postgres{db: db, log: logger.GetForComponent("store_postgres")}
	if err := p.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	p.log.Info().Str("host", cfg.DBHost).Str("dbname", cfg.DBName).Msg("Connected to the PostgreSQL position store")
	return p, nil
}

// ensureSchema applies the necessary DDL to create tables if they don't
// exist. Safe to run multiple times.
func (p *Postgres) ensureSchema() error {
	schemaSQL := `
		CREATE TABLE IF NOT EXISTS positions (
			id SERIAL PRIMARY KEY,
			owner TEXT NOT NULL,
			pair TEXT NOT NULL DEFAULT '',
			pool TEXT NOT NULL DEFAULT '',
			entry_price DOUBLE PRECISION NOT NULL,
			lower_bound DOUBLE PRECISION NOT NULL,
			upper_bound DOUBLE PRECISION NOT NULL,
			capital DOUBLE PRECISION NOT NULL,
			open_timestamp BIGINT NOT NULL,
			total_rebalances BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			closed_at TIMESTAMPTZ,
			app_id BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_positions_owner_status ON positions (owner, status);

		CREATE TABLE IF NOT EXISTS decisions (
			id SERIAL PRIMARY KEY,
			ts BIGINT NOT NULL,
			action TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			fee_projection DOUBLE PRECISION NOT NULL DEFAULT 0,
			swap_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			hours_in_range DOUBLE PRECISION NOT NULL DEFAULT 0,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			tx_id TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions (ts DESC);

		CREATE TABLE IF NOT EXISTS depositors (
			owner TEXT PRIMARY KEY,
			base_deposited DOUBLE PRECISION NOT NULL DEFAULT 0,
			quote_deposited DOUBLE PRECISION NOT NULL DEFAULT 0,
			join_tx TEXT NOT NULL DEFAULT ''
		);
	`
	if _, err := p.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply database schema: %w", err)
	}
	p.log.Info().Msg("Database schema verified/applied successfully.")
	return nil
}

// SavePosition inserts a new active row and archives any previous active row
// for the same owner, in one transaction.
func (p *Postgres) SavePosition(ctx context.Context, pos types.StoredPosition) (types.StoredPosition, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return pos, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE positions SET status = 'closed', closed_at = NOW()
		WHERE owner = $1 AND status = 'active'`, pos.Owner)
	if err != nil {
		return pos, fmt.Errorf("failed to archive previous active position: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO positions (owner, pair, pool, entry_price, lower_bound, upper_bound,
			capital, open_timestamp, total_rebalances, status, app_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'active', $10)
		RETURNING id`,
		pos.Owner, pos.Pair, pos.Pool, pos.EntryPrice, pos.LowerBound, pos.UpperBound,
		pos.Capital, pos.OpenTimestamp, pos.TotalRebalances, pos.AppID).Scan(&pos.ID)
	if err != nil {
		return pos, fmt.Errorf("failed to insert position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return pos, fmt.Errorf("failed to commit position save: %w", err)
	}

	pos.Status = types.StatusActive
	return pos, nil
}

// ActivePositions returns the owner's active rows, newest first.
func (p *Postgres) ActivePositions(ctx context.Context, owner string) ([]types.StoredPosition, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner, pair, pool, entry_price, lower_bound, upper_bound,
			capital, open_timestamp, total_rebalances, status, closed_at, app_id
		FROM positions
		WHERE owner = $1 AND status = 'active'
		ORDER BY id DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query active positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// ClosePosition flips the row to closed and stamps closed_at.
func (p *Postgres) ClosePosition(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE positions SET status = 'closed', closed_at = NOW()
		WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return fmt.Errorf("failed to close position %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no active position with id %d", id)
	}
	return nil
}

// UpdatePosition applies a partial update; nil fields are left untouched.
func (p *Postgres) UpdatePosition(ctx context.Context, id int64, update PositionUpdate) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE positions SET
			capital = COALESCE($2, capital),
			lower_bound = COALESCE($3, lower_bound),
			upper_bound = COALESCE($4, upper_bound),
			total_rebalances = COALESCE($5, total_rebalances)
		WHERE id = $1`,
		id, update.Capital, update.LowerBound, update.UpperBound, update.TotalRebalances)
	if err != nil {
		return fmt.Errorf("failed to update position %d: %w", id, err)
	}
	return nil
}

// AppendDecision appends one decision log row.
func (p *Postgres) AppendDecision(ctx context.Context, rec types.DecisionRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO decisions (ts, action, price, reason, fee_projection, swap_cost,
			hours_in_range, confidence, tx_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.Timestamp, string(rec.Action), rec.Price, rec.Reason, rec.FeeProjection,
		rec.SwapCost, rec.HoursInRange, rec.Confidence, rec.TxID)
	if err != nil {
		return fmt.Errorf("failed to append decision record: %w", err)
	}
	return nil
}

// RecentDecisions returns up to limit decision rows, newest first.
func (p *Postgres) RecentDecisions(ctx context.Context, limit int) ([]types.DecisionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, ts, action, price, reason, fee_projection, swap_cost,
			hours_in_range, confidence, tx_id
		FROM decisions ORDER BY ts DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// UpsertDepositor records or accumulates one depositor's contribution.
func (p *Postgres) UpsertDepositor(ctx context.Context, d types.Depositor) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO depositors (owner, base_deposited, quote_deposited, join_tx)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner) DO UPDATE SET
			base_deposited = depositors.base_deposited + EXCLUDED.base_deposited,
			quote_deposited = depositors.quote_deposited + EXCLUDED.quote_deposited`,
		d.Owner, d.BaseDeposited, d.QuoteDeposited, d.JoinTx)
	if err != nil {
		return fmt.Errorf("failed to upsert depositor %s: %w", d.Owner, err)
	}
	return nil
}

// Depositors lists all recorded depositors.
func (p *Postgres) Depositors(ctx context.Context) ([]types.Depositor, error) {
	rows, err := p.db.QueryContext(ctx, `
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

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	p.log.Info().Msg("Closing database connection...")
	return p.db.Close()
}

// scanPositions and scanDecisions are shared with the SQLite store; both
// selects use the same column order.
func scanPositions(rows *sql.Rows) ([]types.StoredPosition, error) {
	var out []types.StoredPosition
	for rows.Next() {
		var pos types.StoredPosition
		var status string
		var closedAt sql.NullTime
		if err := rows.Scan(&pos.ID, &pos.Owner, &pos.Pair, &pos.Pool, &pos.EntryPrice,
			&pos.LowerBound, &pos.UpperBound, &pos.Capital, &pos.OpenTimestamp,
			&pos.TotalRebalances, &status, &closedAt, &pos.AppID); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		pos.Status = types.PositionStatus(status)
		if closedAt.Valid {
			t := closedAt.Time
			pos.ClosedAt = &t
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func scanDecisions(rows *sql.Rows) ([]types.DecisionRecord, error) {
	var out []types.DecisionRecord
	for rows.Next() {
		var rec types.DecisionRecord
		var action string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &action, &rec.Price, &rec.Reason,
			&rec.FeeProjection, &rec.SwapCost, &rec.HoursInRange, &rec.Confidence,
			&rec.TxID); err != nil {
			return nil, fmt.Errorf("failed to scan decision row: %w", err)
		}
		rec.Action = types.Action(action)
		out = append(out, rec)
	}
	return out, rows.Err()
}
