package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/delvtech/agent0-sub002/internal/model"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All amounts are stored as NUMERIC and travel as TEXT so no precision is
// lost to float conversion.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const poolColumns = `id, symbol, asset, numeric, model, position_duration_days,
	time_stretch::TEXT, share_reserves::TEXT, bond_reserves::TEXT, lp_total_supply::TEXT,
	share_price::TEXT, init_share_price::TEXT,
	curve_fee_multiple::TEXT, flat_fee_multiple::TEXT, governance_fee_multiple::TEXT,
	base_buffer::TEXT, bond_buffer::TEXT, longs_outstanding::TEXT, shorts_outstanding::TEXT,
	gov_fees_accrued::TEXT, spot_price::TEXT, apr::TEXT, created_at, updated_at`

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) CreatePool(ctx context.Context, p *model.Pool) error {
	return createPool(ctx, s.pool, p)
}

func createPool(ctx context.Context, db execer, p *model.Pool) error {
	_, err := db.Exec(ctx,
		`INSERT INTO pools (id, symbol, asset, numeric, model, position_duration_days,
		     time_stretch, share_reserves, bond_reserves, lp_total_supply, share_price, init_share_price,
		     curve_fee_multiple, flat_fee_multiple, governance_fee_multiple,
		     base_buffer, bond_buffer, longs_outstanding, shorts_outstanding, gov_fees_accrued,
		     spot_price, apr, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6,
		     $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC,
		     $13::NUMERIC, $14::NUMERIC, $15::NUMERIC,
		     $16::NUMERIC, $17::NUMERIC, $18::NUMERIC, $19::NUMERIC, $20::NUMERIC,
		     $21::NUMERIC, $22::NUMERIC, $23, $24)`,
		p.ID, p.Symbol, p.Asset, p.Numeric, p.Model, p.PositionDurationDays,
		p.TimeStretch.String(), p.ShareReserves.String(), p.BondReserves.String(), p.LPTotalSupply.String(),
		p.SharePrice.String(), p.InitSharePrice.String(),
		p.CurveFee.String(), p.FlatFee.String(), p.GovernanceFee.String(),
		p.BaseBuffer.String(), p.BondBuffer.String(), p.LongsOutstanding.String(), p.ShortsOutstanding.String(),
		p.GovFeesAccrued.String(), nullText(p.SpotPrice), nullText(p.APR),
		p.CreatedAt, p.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrPoolExists, p.Symbol)
	}
	return err
}

func (s *PostgresStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id)
	p, err := scanPool(row)
	if err != nil {
		return nil, wrapNoRows(err, "get pool "+id)
	}
	return p, nil
}

func (s *PostgresStore) GetPoolBySymbol(ctx context.Context, symbol string) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE symbol = $1`, symbol)
	p, err := scanPool(row)
	if err != nil {
		return nil, wrapNoRows(err, "get pool by symbol "+symbol)
	}
	return p, nil
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (s *PostgresStore) UpdatePoolState(ctx context.Context, p *model.Pool) error {
	return updatePoolState(ctx, s.pool, p)
}

func updatePoolState(ctx context.Context, db execer, p *model.Pool) error {
	tag, err := db.Exec(ctx,
		`UPDATE pools
		 SET share_reserves = $2::NUMERIC, bond_reserves = $3::NUMERIC, lp_total_supply = $4::NUMERIC,
		     share_price = $5::NUMERIC, base_buffer = $6::NUMERIC, bond_buffer = $7::NUMERIC,
		     longs_outstanding = $8::NUMERIC, shorts_outstanding = $9::NUMERIC,
		     gov_fees_accrued = $10::NUMERIC, spot_price = $11::NUMERIC, apr = $12::NUMERIC,
		     updated_at = $13
		 WHERE id = $1`,
		p.ID, p.ShareReserves.String(), p.BondReserves.String(), p.LPTotalSupply.String(),
		p.SharePrice.String(), p.BaseBuffer.String(), p.BondBuffer.String(),
		p.LongsOutstanding.String(), p.ShortsOutstanding.String(),
		p.GovFeesAccrued.String(), nullText(p.SpotPrice), nullText(p.APR),
		p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: pool %s", ErrNotFound, p.ID)
	}
	return nil
}

func (s *PostgresStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	return insertLedgerEntry(ctx, s.pool, e)
}

// InitializePool creates the pool and its bootstrap entry in one transaction.
func (s *PostgresStore) InitializePool(ctx context.Context, p *model.Pool, e *model.LedgerEntry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := createPool(ctx, tx, p); err != nil {
			return err
		}
		return insertLedgerEntry(ctx, tx, e)
	})
}

// RecordAction updates the pool and appends the entry in one transaction.
func (s *PostgresStore) RecordAction(ctx context.Context, p *model.Pool, e *model.LedgerEntry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := updatePoolState(ctx, tx, p); err != nil {
			return err
		}
		return insertLedgerEntry(ctx, tx, e)
	})
}

func insertLedgerEntry(ctx context.Context, db execer, e *model.LedgerEntry) error {
	_, err := db.Exec(ctx,
		`INSERT INTO ledger_entries (id, user_id, pool_id, action, bond_ticker,
		     base, longs, shorts, lp_shares, fee, gov_fee, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC,
		     $10::NUMERIC, $11::NUMERIC, $12)`,
		e.ID, e.UserID, e.PoolID, e.Action, e.BondTicker,
		e.Base.String(), e.Longs.String(), e.Shorts.String(), e.LPShares.String(),
		e.Fee.String(), e.GovFee.String(), e.Timestamp,
	)
	return err
}

const ledgerColumns = `id, user_id, pool_id, action, bond_ticker,
	base::TEXT, longs::TEXT, shorts::TEXT, lp_shares::TEXT, fee::TEXT, gov_fee::TEXT, timestamp`

func (s *PostgresStore) GetLedgerEntriesByPool(ctx context.Context, poolID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE pool_id = $1 ORDER BY timestamp`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetLedgerEntriesByUser(ctx context.Context, userID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE user_id = $1 ORDER BY timestamp`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetUserPositions(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT
			le.pool_id,
			p.symbol,
			p.asset,
			COALESCE(SUM(le.longs), 0)::TEXT     AS longs,
			COALESCE(SUM(le.shorts), 0)::TEXT    AS shorts,
			COALESCE(SUM(le.lp_shares), 0)::TEXT AS lp_shares,
			COALESCE(SUM(le.base), 0)::TEXT      AS net_base,
			COALESCE(SUM(le.fee), 0)::TEXT       AS fees_paid
		 FROM ledger_entries le
		 JOIN pools p ON p.id = le.pool_id
		 WHERE le.user_id = $1
		 GROUP BY le.pool_id, p.symbol, p.asset
		 ORDER BY MIN(le.timestamp)`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p := model.Position{UserID: userID}
		var longs, shorts, lp, base, fees string
		if err := rows.Scan(&p.PoolID, &p.Symbol, &p.Asset, &longs, &shorts, &lp, &base, &fees); err != nil {
			return nil, err
		}
		if err := parseDecimals(
			[]string{longs, shorts, lp, base, fees},
			&p.Longs, &p.Shorts, &p.LPShares, &p.NetBase, &p.FeesPaid,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// pgxRow is satisfied by both pgx.Row and pgx.Rows.
type pgxRow interface {
	Scan(dest ...any) error
}

func scanPool(row pgxRow) (*model.Pool, error) {
	var p model.Pool
	var ts, z, y, s, c, mu, cf, ff, gf, baseBuf, bondBuf, longs, shorts, gov string
	var spot, apr *string

	if err := row.Scan(&p.ID, &p.Symbol, &p.Asset, &p.Numeric, &p.Model, &p.PositionDurationDays,
		&ts, &z, &y, &s, &c, &mu, &cf, &ff, &gf,
		&baseBuf, &bondBuf, &longs, &shorts, &gov, &spot, &apr,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := parseDecimals(
		[]string{ts, z, y, s, c, mu, cf, ff, gf, baseBuf, bondBuf, longs, shorts, gov},
		&p.TimeStretch, &p.ShareReserves, &p.BondReserves, &p.LPTotalSupply,
		&p.SharePrice, &p.InitSharePrice, &p.CurveFee, &p.FlatFee, &p.GovernanceFee,
		&p.BaseBuffer, &p.BondBuffer, &p.LongsOutstanding, &p.ShortsOutstanding, &p.GovFeesAccrued,
	); err != nil {
		return nil, err
	}
	var err error
	if p.SpotPrice, err = parseNull(spot); err != nil {
		return nil, err
	}
	if p.APR, err = parseNull(apr); err != nil {
		return nil, err
	}
	return &p, nil
}

// pgxRows reads pgx rows into LedgerEntry slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanLedgerEntries(rows pgxRows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var base, longs, shorts, lp, fee, gov string

		if err := rows.Scan(&e.ID, &e.UserID, &e.PoolID, &e.Action, &e.BondTicker,
			&base, &longs, &shorts, &lp, &fee, &gov, &e.Timestamp); err != nil {
			return nil, err
		}
		if err := parseDecimals(
			[]string{base, longs, shorts, lp, fee, gov},
			&e.Base, &e.Longs, &e.Shorts, &e.LPShares, &e.Fee, &e.GovFee,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func parseDecimals(src []string, dst ...*decimal.Decimal) error {
	for i, s := range src {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("parse numeric %q: %w", s, err)
		}
		*dst[i] = d
	}
	return nil
}

func parseNull(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse numeric %q: %w", *s, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func nullText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func wrapNoRows(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("%s: %w", what, err)
}
