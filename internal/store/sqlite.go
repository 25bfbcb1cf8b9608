package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"quantdinger/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ OrderStore = (*SQLiteStore)(nil)
var _ PositionStore = (*SQLiteStore)(nil)
var _ TradeStore = (*SQLiteStore)(nil)
var _ ReconcileStore = (*SQLiteStore)(nil)
var _ ConnParamsStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS pending_orders (
	id               TEXT PRIMARY KEY,
	strategy_id      TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	market           TEXT NOT NULL,
	side             TEXT NOT NULL,
	intent           TEXT NOT NULL,
	qty              INTEGER NOT NULL,
	order_type       TEXT NOT NULL,
	limit_price      TEXT,
	status           TEXT NOT NULL,
	broker_order_id  TEXT NOT NULL DEFAULT '',
	attempts         INTEGER NOT NULL DEFAULT 0,
	last_error       TEXT NOT NULL DEFAULT '',
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	account          TEXT NOT NULL DEFAULT '',
	next_attempt_at  INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON pending_orders(status, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_broker ON pending_orders(broker_order_id);

CREATE TABLE IF NOT EXISTS positions (
	account    TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	market     TEXT NOT NULL,
	qty        INTEGER NOT NULL,
	avg_entry  TEXT NOT NULL,
	last_price TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (account, symbol, market)
);

CREATE TABLE IF NOT EXISTS trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id    TEXT NOT NULL,
	strategy_id TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	qty         INTEGER NOT NULL,
	price       TEXT NOT NULL,
	value       TEXT NOT NULL,
	profit      TEXT,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
	broker_order_id TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	PRIMARY KEY (broker_order_id, seq)
);

CREATE TABLE IF NOT EXISTS conn_params (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	host       TEXT NOT NULL,
	port       INTEGER NOT NULL,
	client_id  INTEGER NOT NULL,
	account    TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);
`

// SQLiteStore implements all store interfaces backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; the worker and the request layer share
	// this handle, so serialize at the pool level.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const orderColumns = `id, strategy_id, symbol, market, side, intent, qty, order_type,
	limit_price, status, broker_order_id, attempts, last_error, cancel_requested,
	account, next_attempt_at, created_at, updated_at`

// ---------------------------------------------------------------------------
// OrderStore implementation
// ---------------------------------------------------------------------------

// Enqueue validates the order and inserts it in queued status. The
// conflict check and the reduce/close clamp run inside the insert
// transaction so a signal burst cannot slip two in-flight orders past the
// (strategy, symbol) invariant.
func (s *SQLiteStore) Enqueue(ctx context.Context, order *domain.PendingOrder) error {
	if err := validateOrder(order); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var inflight int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_orders
		 WHERE strategy_id = ? AND symbol = ?
		   AND status IN ('queued', 'submitting', 'submitted', 'partially_filled')`,
		order.StrategyID, order.Symbol,
	).Scan(&inflight)
	if err != nil {
		return err
	}
	if inflight > 0 {
		return fmt.Errorf("%w: strategy %s already has an in-flight order for %s",
			domain.ErrConflict, order.StrategyID, order.Symbol)
	}

	if order.Intent.Reduces() {
		var held int64
		err = tx.QueryRowContext(ctx,
			`SELECT qty FROM positions WHERE account = ? AND symbol = ? AND market = ?`,
			order.Account, order.Symbol, string(order.Market),
		).Scan(&held)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if order.Qty > held {
			return fmt.Errorf("%w: %s %s requests %d but position holds %d",
				domain.ErrValidation, order.Intent, order.Symbol, order.Qty, held)
		}
	}

	now := time.Now().UTC()
	order.Status = domain.StatusQueued
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pending_orders
		 (id, strategy_id, symbol, market, side, intent, qty, order_type, limit_price,
		  status, account, next_attempt_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		order.ID, order.StrategyID, order.Symbol, string(order.Market),
		string(order.Side), string(order.Intent), order.Qty, string(order.Type),
		nullDecimalValue(order.LimitPrice), string(order.Status), order.Account,
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func validateOrder(order *domain.PendingOrder) error {
	if err := domain.ValidateSymbol(order.Symbol, order.Market); err != nil {
		return err
	}
	if order.Qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrValidation, order.Qty)
	}
	switch order.Type {
	case domain.OrderTypeLimit:
		if !order.LimitPrice.Valid || !order.LimitPrice.Decimal.IsPositive() {
			return fmt.Errorf("%w: limit order requires a positive limit price", domain.ErrValidation)
		}
	case domain.OrderTypeMarket:
		if order.LimitPrice.Valid {
			return fmt.Errorf("%w: market order must not carry a limit price", domain.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", domain.ErrValidation, order.Type)
	}
	return nil
}

// GetOrder returns the order with the given id.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*domain.PendingOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM pending_orders WHERE id = ?`, id)
	return scanOrder(row)
}

// GetOrderByBrokerID returns the order holding the given broker order id.
func (s *SQLiteStore) GetOrderByBrokerID(ctx context.Context, brokerOrderID string) (*domain.PendingOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM pending_orders WHERE broker_order_id = ?`, brokerOrderID)
	return scanOrder(row)
}

// ListOrders returns orders in the given status, oldest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.PendingOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM pending_orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.PendingOrder
	for rows.Next() {
		o, err := scanOrderRows(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// NextRunnable returns the oldest queued order whose backoff has elapsed.
func (s *SQLiteStore) NextRunnable(ctx context.Context, now time.Time) (*domain.PendingOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM pending_orders
		 WHERE status = 'queued' AND next_attempt_at <= ?
		 ORDER BY created_at ASC, id ASC LIMIT 1`,
		now.UnixMilli())
	o, err := scanOrder(row)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil, nil
	}
	return o, err
}

// MarkSubmitting transitions queued -> submitting.
func (s *SQLiteStore) MarkSubmitting(ctx context.Context, id string) error {
	return s.transition(ctx, id,
		`UPDATE pending_orders SET status = 'submitting', updated_at = ?
		 WHERE id = ? AND status = 'queued'`,
		time.Now().UTC().UnixMilli(), id)
}

// MarkSubmitted transitions submitting -> submitted, recording the broker
// order id and resetting the attempt count.
func (s *SQLiteStore) MarkSubmitted(ctx context.Context, id, brokerOrderID string) error {
	return s.transition(ctx, id,
		`UPDATE pending_orders
		 SET status = 'submitted', broker_order_id = ?, attempts = 0,
		     last_error = '', updated_at = ?
		 WHERE id = ? AND status = 'submitting'`,
		brokerOrderID, time.Now().UTC().UnixMilli(), id)
}

// Requeue returns a submitting order to queued for a later retry.
func (s *SQLiteStore) Requeue(ctx context.Context, id string, attempts int, lastErr string, nextAttempt time.Time) error {
	return s.transition(ctx, id,
		`UPDATE pending_orders
		 SET status = 'queued', attempts = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'submitting'`,
		attempts, lastErr, nextAttempt.UnixMilli(), time.Now().UTC().UnixMilli(), id)
}

// MarkTerminal transitions the order to a terminal status.
func (s *SQLiteStore) MarkTerminal(ctx context.Context, id string, status domain.OrderStatus, reason string) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not terminal", domain.ErrInvalidTransition, status)
	}
	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if !domain.CanTransition(current.Status, status) {
		return fmt.Errorf("%w: %s -> %s for order %s", domain.ErrInvalidTransition, current.Status, status, id)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_orders SET status = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), reason, time.Now().UTC().UnixMilli(), id, string(current.Status))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: order %s changed status concurrently", domain.ErrInvalidTransition, id)
	}
	return nil
}

// SetCancelRequested flags an in-flight order for cancellation. Queued
// orders are cancelled by the worker before submit; submitted orders wait
// for broker confirmation on the fill stream.
func (s *SQLiteStore) SetCancelRequested(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_orders SET cancel_requested = 1, updated_at = ?
		 WHERE id = ? AND status IN ('queued', 'submitting', 'submitted', 'partially_filled')`,
		time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.notFoundOrInvalid(ctx, id)
	}
	return nil
}

// transition executes a guarded single-row status update and converts a
// zero-row result into ErrOrderNotFound or ErrInvalidTransition.
func (s *SQLiteStore) transition(ctx context.Context, id string, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.notFoundOrInvalid(ctx, id)
	}
	return nil
}

func (s *SQLiteStore) notFoundOrInvalid(ctx context.Context, id string) error {
	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, id, current.Status)
}

// ---------------------------------------------------------------------------
// PositionStore implementation
// ---------------------------------------------------------------------------

// GetPosition returns the position for the key, or nil if flat.
func (s *SQLiteStore) GetPosition(ctx context.Context, account, symbol string, market domain.MarketType) (*domain.Position, error) {
	return getPosition(ctx, s.db, account, symbol, market)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getPosition(ctx context.Context, q queryer, account, symbol string, market domain.MarketType) (*domain.Position, error) {
	var (
		pos                 domain.Position
		avgEntry, lastPrice string
		updatedAt           int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT account, symbol, market, qty, avg_entry, last_price, updated_at
		 FROM positions WHERE account = ? AND symbol = ? AND market = ?`,
		account, symbol, string(market),
	).Scan(&pos.Account, &pos.Symbol, &pos.Market, &pos.Qty, &avgEntry, &lastPrice, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if pos.AvgEntry, err = decimal.NewFromString(avgEntry); err != nil {
		return nil, fmt.Errorf("parsing avg_entry: %w", err)
	}
	if pos.LastPrice, err = decimal.NewFromString(lastPrice); err != nil {
		return nil, fmt.Errorf("parsing last_price: %w", err)
	}
	pos.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &pos, nil
}

// ListPositions returns all non-flat positions.
func (s *SQLiteStore) ListPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account, symbol, market, qty, avg_entry, last_price, updated_at
		 FROM positions WHERE qty > 0 ORDER BY symbol ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var (
			pos                 domain.Position
			avgEntry, lastPrice string
			updatedAt           int64
		)
		if err := rows.Scan(&pos.Account, &pos.Symbol, &pos.Market, &pos.Qty,
			&avgEntry, &lastPrice, &updatedAt); err != nil {
			return nil, err
		}
		if pos.AvgEntry, err = decimal.NewFromString(avgEntry); err != nil {
			return nil, err
		}
		if pos.LastPrice, err = decimal.NewFromString(lastPrice); err != nil {
			return nil, err
		}
		pos.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// ---------------------------------------------------------------------------
// TradeStore implementation
// ---------------------------------------------------------------------------

// ListTrades returns the most recent trades, newest first.
func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, strategy_id, symbol, side, qty, price, value, profit, created_at
		 FROM trades ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ListTradesForDay returns trades recorded on the given UTC date
// (YYYY-MM-DD), oldest first.
func (s *SQLiteStore) ListTradesForDay(ctx context.Context, date string) ([]domain.Trade, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", domain.ErrValidation, date)
	}
	start := day.UnixMilli()
	end := day.Add(24 * time.Hour).UnixMilli()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, strategy_id, symbol, side, qty, price, value, profit, created_at
		 FROM trades WHERE created_at >= ? AND created_at < ?
		 ORDER BY created_at ASC, id ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var (
			tr           domain.Trade
			price, value string
			profit       sql.NullString
			createdAt    int64
		)
		if err := rows.Scan(&tr.ID, &tr.OrderID, &tr.StrategyID, &tr.Symbol, &tr.Side,
			&tr.Qty, &price, &value, &profit, &createdAt); err != nil {
			return nil, err
		}
		var err error
		if tr.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if tr.Value, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		if profit.Valid {
			d, err := decimal.NewFromString(profit.String)
			if err != nil {
				return nil, err
			}
			tr.Profit = decimal.NullDecimal{Decimal: d, Valid: true}
		}
		tr.CreatedAt = time.UnixMilli(createdAt).UTC()
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

// ---------------------------------------------------------------------------
// ReconcileStore implementation
// ---------------------------------------------------------------------------

// Reconcile applies a fill event in one transaction: the dedup insert, the
// order status transition, the position upsert, and the trade append
// commit together or not at all.
func (s *SQLiteStore) Reconcile(ctx context.Context, ev domain.FillEvent, fn ReconcileFunc) (bool, *ReconcileOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO fills (broker_order_id, seq) VALUES (?, ?)`,
		ev.BrokerOrderID, ev.Seq)
	if err != nil {
		return false, nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Replay of an already-applied event.
		return false, nil, nil
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM pending_orders WHERE broker_order_id = ?`,
		ev.BrokerOrderID)
	order, err := scanOrder(row)
	if err != nil {
		return false, nil, fmt.Errorf("fill for broker order %s: %w", ev.BrokerOrderID, err)
	}

	pos, err := getPosition(ctx, tx, order.Account, order.Symbol, order.Market)
	if err != nil {
		return false, nil, err
	}

	outcome, err := fn(order, pos)
	if err != nil {
		return false, nil, err
	}

	if !domain.CanTransition(order.Status, outcome.OrderStatus) {
		return false, nil, fmt.Errorf("%w: %s -> %s for order %s",
			domain.ErrInvalidTransition, order.Status, outcome.OrderStatus, order.ID)
	}

	now := time.Now().UTC().UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`UPDATE pending_orders SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(outcome.OrderStatus), outcome.Reason, now, order.ID); err != nil {
		return false, nil, err
	}

	switch {
	case outcome.DeletePosition:
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM positions WHERE account = ? AND symbol = ? AND market = ?`,
			order.Account, order.Symbol, string(order.Market)); err != nil {
			return false, nil, err
		}
	case outcome.Position != nil:
		p := outcome.Position
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO positions (account, symbol, market, qty, avg_entry, last_price, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(account, symbol, market) DO UPDATE SET
			   qty = excluded.qty, avg_entry = excluded.avg_entry,
			   last_price = excluded.last_price, updated_at = excluded.updated_at`,
			p.Account, p.Symbol, string(p.Market), p.Qty,
			p.AvgEntry.String(), p.LastPrice.String(), now); err != nil {
			return false, nil, err
		}
	}

	if outcome.Trade != nil {
		tr := outcome.Trade
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trades (order_id, strategy_id, symbol, side, qty, price, value, profit, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tr.OrderID, tr.StrategyID, tr.Symbol, string(tr.Side), tr.Qty,
			tr.Price.String(), tr.Value.String(), nullDecimalValue(tr.Profit), now); err != nil {
			return false, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, nil, err
	}
	return true, outcome, nil
}

// ---------------------------------------------------------------------------
// ConnParamsStore implementation
// ---------------------------------------------------------------------------

// SaveConnParams upserts the single connection-parameter row.
func (s *SQLiteStore) SaveConnParams(ctx context.Context, params domain.ConnParams) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conn_params (id, host, port, client_id, account, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   host = excluded.host, port = excluded.port, client_id = excluded.client_id,
		   account = excluded.account, updated_at = excluded.updated_at`,
		params.Host, params.Port, params.ClientID, params.Account,
		time.Now().UTC().UnixMilli())
	return err
}

// LoadConnParams returns the saved parameters, or nil if never saved.
func (s *SQLiteStore) LoadConnParams(ctx context.Context) (*domain.ConnParams, error) {
	var p domain.ConnParams
	err := s.db.QueryRowContext(ctx,
		`SELECT host, port, client_id, account FROM conn_params WHERE id = 1`,
	).Scan(&p.Host, &p.Port, &p.ClientID, &p.Account)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ---------------------------------------------------------------------------
// Row scanning helpers
// ---------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrderFrom(sc rowScanner) (*domain.PendingOrder, error) {
	var (
		o                            domain.PendingOrder
		limitPrice                   sql.NullString
		cancelRequested              int
		nextAttempt, created, updated int64
	)
	err := sc.Scan(&o.ID, &o.StrategyID, &o.Symbol, &o.Market, &o.Side, &o.Intent,
		&o.Qty, &o.Type, &limitPrice, &o.Status, &o.BrokerOrderID, &o.Attempts,
		&o.LastError, &cancelRequested, &o.Account, &nextAttempt, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if limitPrice.Valid {
		d, err := decimal.NewFromString(limitPrice.String)
		if err != nil {
			return nil, fmt.Errorf("parsing limit_price: %w", err)
		}
		o.LimitPrice = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	o.CancelRequest = cancelRequested != 0
	o.NextAttemptAt = time.UnixMilli(nextAttempt).UTC()
	o.CreatedAt = time.UnixMilli(created).UTC()
	o.UpdatedAt = time.UnixMilli(updated).UTC()
	return &o, nil
}

func scanOrder(row *sql.Row) (*domain.PendingOrder, error)       { return scanOrderFrom(row) }
func scanOrderRows(rows *sql.Rows) (*domain.PendingOrder, error) { return scanOrderFrom(rows) }

// nullDecimalValue maps a NullDecimal to a TEXT column value.
func nullDecimalValue(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
