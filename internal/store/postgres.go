package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradedesk/broker-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const uniqueViolation = "23505"

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, name, email, password_hash, cash_balance, created_at)
		 VALUES ($1, $2, LOWER($3), $4, $5::NUMERIC, $6)`,
		a.ID, a.Name, a.Email, a.PasswordHash, a.CashBalance.String(), a.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateAccount, a.Email)
	}
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.getAccount(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return s.getAccount(ctx, `WHERE email = LOWER($1)`, email)
}

func (s *PostgresStore) getAccount(ctx context.Context, where, arg string) (*model.Account, error) {
	var a model.Account
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, cash_balance::TEXT, created_at
		 FROM accounts `+where, arg).
		Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &balance, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", arg, err)
	}
	a.CashBalance, _ = decimal.NewFromString(balance)

	a.Holdings = make(map[string]model.Position)
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, quantity, average_cost::TEXT
		 FROM positions WHERE account_id = $1`, a.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Position
		var avgCost string
		if err := rows.Scan(&p.Symbol, &p.Quantity, &avgCost); err != nil {
			return nil, err
		}
		p.AverageCost, _ = decimal.NewFromString(avgCost)
		a.Holdings[p.Symbol] = p
	}
	return &a, rows.Err()
}

// SaveAccount overwrites balance and holdings in one transaction so a
// partially applied trade is never visible.
func (s *PostgresStore) SaveAccount(ctx context.Context, a *model.Account) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET cash_balance = $2::NUMERIC WHERE id = $1`,
		a.ID, a.CashBalance.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, a.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE account_id = $1`, a.ID); err != nil {
		return err
	}
	for _, p := range a.Holdings {
		if _, err := tx.Exec(ctx,
			`INSERT INTO positions (account_id, symbol, quantity, average_cost)
			 VALUES ($1, $2, $3, $4::NUMERIC)`,
			a.ID, p.Symbol, p.Quantity, p.AverageCost.String()); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) AppendOrder(ctx context.Context, o *model.OrderRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (id, account_id, symbol, side, quantity,
		                     execution_price, total_amount, fees, realized_pnl,
		                     status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)`,
		o.ID, o.AccountID, o.Symbol, o.Side, o.Quantity,
		o.ExecutionPrice.String(), o.TotalAmount.String(), o.Fees.String(), o.RealizedPnL.String(),
		o.Status, o.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListOrders(ctx context.Context, accountID string, f OrderFilter) ([]model.OrderRecord, error) {
	query := `SELECT id, account_id, symbol, side, quantity,
	                 execution_price::TEXT, total_amount::TEXT, fees::TEXT, realized_pnl::TEXT,
	                 status, created_at
	          FROM orders WHERE account_id = $1`
	args := []interface{}{accountID}

	if f.Symbol != "" {
		args = append(args, f.Symbol)
		query += fmt.Sprintf(" AND symbol = $%d", len(args))
	}
	if f.Side != "" {
		args = append(args, f.Side)
		query += fmt.Sprintf(" AND side = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.OrderRecord
	for rows.Next() {
		var o model.OrderRecord
		var priceS, totalS, feesS, pnlS string
		if err := rows.Scan(&o.ID, &o.AccountID, &o.Symbol, &o.Side, &o.Quantity,
			&priceS, &totalS, &feesS, &pnlS,
			&o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.ExecutionPrice, _ = decimal.NewFromString(priceS)
		o.TotalAmount, _ = decimal.NewFromString(totalS)
		o.Fees, _ = decimal.NewFromString(feesS)
		o.RealizedPnL, _ = decimal.NewFromString(pnlS)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) UpsertInstrument(ctx context.Context, inst *model.Instrument) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO instruments (symbol, name, exchange, type, last_price, updated_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)
		 ON CONFLICT (symbol) DO UPDATE
		 SET name = EXCLUDED.name, exchange = EXCLUDED.exchange,
		     type = EXCLUDED.type, last_price = EXCLUDED.last_price,
		     updated_at = EXCLUDED.updated_at`,
		inst.Symbol, inst.Name, inst.Exchange, inst.Type,
		inst.LastPrice.String(), inst.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) SearchInstruments(ctx context.Context, query string, limit int) ([]model.Instrument, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, name, exchange, type, last_price::TEXT, updated_at
		 FROM instruments
		 WHERE symbol ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%'
		 ORDER BY symbol
		 LIMIT $2`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instruments []model.Instrument
	for rows.Next() {
		var inst model.Instrument
		var priceS string
		if err := rows.Scan(&inst.Symbol, &inst.Name, &inst.Exchange, &inst.Type,
			&priceS, &inst.UpdatedAt); err != nil {
			return nil, err
		}
		inst.LastPrice, _ = decimal.NewFromString(priceS)
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}
