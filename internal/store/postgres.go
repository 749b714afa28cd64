package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

// Schema creates the tables used by PostgresStore. seq preserves insertion
// order so trades sharing a timestamp replay in ledger order.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	seq       BIGSERIAL UNIQUE,
	id        TEXT PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	trader    TEXT NOT NULL,
	product   TEXT NOT NULL,
	contract  TEXT NOT NULL,
	quantity  NUMERIC NOT NULL,
	price     NUMERIC NOT NULL CHECK (price >= 0),
	status    TEXT NOT NULL DEFAULT 'active',
	kind      TEXT NOT NULL DEFAULT 'regular'
);
CREATE INDEX IF NOT EXISTS trades_replay_idx ON trades (timestamp, seq);

CREATE TABLE IF NOT EXISTS settings (
	id                   TEXT PRIMARY KEY,
	brent_fee_rate       NUMERIC NOT NULL,
	shared_fee_rate      NUMERIC NOT NULL,
	ttf_multiplier       NUMERIC NOT NULL,
	fx_rate              NUMERIC NOT NULL,
	initial_realized_pl  NUMERIC NOT NULL,
	reconciliation_base  NUMERIC NOT NULL,
	reconciliation_other NUMERIC NOT NULL
);

CREATE TABLE IF NOT EXISTS mark_prices (
	product    TEXT NOT NULL,
	contract   TEXT NOT NULL,
	price      NUMERIC NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (product, contract)
);
`

const settingsID = "default"

const tradeColumns = `id, timestamp, trader, product, contract,
	quantity::TEXT, price::TEXT, status, kind`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates missing tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertTrade(ctx context.Context, db execer, t *model.Trade) error {
	_, err := db.Exec(ctx,
		`INSERT INTO trades (id, timestamp, trader, product, contract, quantity, price, status, kind)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9)`,
		t.ID, t.Timestamp, t.Trader, t.Product, t.Contract,
		t.Quantity.String(), t.Price.String(),
		string(t.Status), string(t.Kind),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateTrade, t.ID)
	}
	return err
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	return insertTrade(ctx, s.pool, t)
}

func (s *PostgresStore) InsertTrades(ctx context.Context, trades []model.Trade) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range trades {
		if err := insertTrade(ctx, tx, &trades[i]); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetTrade(ctx context.Context, id string) (*model.Trade, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id)
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) ListTrades(ctx context.Context, f TradeFilter) ([]model.Trade, error) {
	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		where = append(where, fmt.Sprintf("timestamp >= $%d", len(args)))
	}

	q := `SELECT ` + tradeColumns + ` FROM trades`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	if f.NewestFirst {
		q += ` ORDER BY timestamp DESC, seq DESC`
	} else {
		q += ` ORDER BY timestamp, seq`
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []model.Trade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) ReverseTrade(ctx context.Context, id string) (*model.Trade, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE trades SET status = $2
		 WHERE id = $1 AND status = $3
		 RETURNING `+tradeColumns,
		id, string(model.StatusReversed), string(model.StatusActive))
	t, err := scanTrade(row)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reverse trade %s: %w", id, err)
	}

	// Nothing updated: either missing or already reversed.
	if _, err := s.GetTrade(ctx, id); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrAlreadyReversed, id)
}

func (s *PostgresStore) GetSettings(ctx context.Context) (model.Settings, error) {
	var brent, shared, ttf, fx, initial, base, other string
	err := s.pool.QueryRow(ctx,
		`SELECT brent_fee_rate::TEXT, shared_fee_rate::TEXT, ttf_multiplier::TEXT,
		        fx_rate::TEXT, initial_realized_pl::TEXT,
		        reconciliation_base::TEXT, reconciliation_other::TEXT
		 FROM settings WHERE id = $1`, settingsID).
		Scan(&brent, &shared, &ttf, &fx, &initial, &base, &other)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("get settings: %w", err)
	}

	var st model.Settings
	st.BrentFeeRate, _ = decimal.NewFromString(brent)
	st.SharedFeeRate, _ = decimal.NewFromString(shared)
	st.TTFMultiplier, _ = decimal.NewFromString(ttf)
	st.FXRate, _ = decimal.NewFromString(fx)
	st.InitialRealizedPL, _ = decimal.NewFromString(initial)
	st.ReconciliationBase, _ = decimal.NewFromString(base)
	st.ReconciliationOther, _ = decimal.NewFromString(other)
	return st, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, st model.Settings) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (id, brent_fee_rate, shared_fee_rate, ttf_multiplier, fx_rate,
		                       initial_realized_pl, reconciliation_base, reconciliation_other)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC)
		 ON CONFLICT (id) DO UPDATE SET
		     brent_fee_rate = EXCLUDED.brent_fee_rate,
		     shared_fee_rate = EXCLUDED.shared_fee_rate,
		     ttf_multiplier = EXCLUDED.ttf_multiplier,
		     fx_rate = EXCLUDED.fx_rate,
		     initial_realized_pl = EXCLUDED.initial_realized_pl,
		     reconciliation_base = EXCLUDED.reconciliation_base,
		     reconciliation_other = EXCLUDED.reconciliation_other`,
		settingsID,
		st.BrentFeeRate.String(), st.SharedFeeRate.String(), st.TTFMultiplier.String(),
		st.FXRate.String(), st.InitialRealizedPL.String(),
		st.ReconciliationBase.String(), st.ReconciliationOther.String(),
	)
	return err
}

func (s *PostgresStore) UpsertMarkPrices(ctx context.Context, marks []model.MarkPrice) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin marks: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range marks {
		if _, err := tx.Exec(ctx,
			`INSERT INTO mark_prices (product, contract, price, updated_at)
			 VALUES ($1, $2, $3::NUMERIC, $4)
			 ON CONFLICT (product, contract) DO UPDATE SET
			     price = EXCLUDED.price, updated_at = EXCLUDED.updated_at`,
			m.Product, m.Contract, m.Price.String(), m.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert mark %s: %w", m.Key(), err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListMarkPrices(ctx context.Context) ([]model.MarkPrice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product, contract, price::TEXT, updated_at
		 FROM mark_prices ORDER BY product, contract`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	marks := []model.MarkPrice{}
	for rows.Next() {
		var m model.MarkPrice
		var priceS string
		if err := rows.Scan(&m.Product, &m.Contract, &priceS, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Price, _ = decimal.NewFromString(priceS)
		marks = append(marks, m)
	}
	return marks, rows.Err()
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*model.Trade, error) {
	var t model.Trade
	var qtyS, priceS, status, kind string

	if err := row.Scan(&t.ID, &t.Timestamp, &t.Trader, &t.Product, &t.Contract,
		&qtyS, &priceS, &status, &kind); err != nil {
		return nil, err
	}

	t.Quantity, _ = decimal.NewFromString(qtyS)
	t.Price, _ = decimal.NewFromString(priceS)
	t.Status = model.TradeStatus(status)
	t.Kind = model.TradeKind(kind)
	return &t, nil
}
