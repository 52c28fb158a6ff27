/*
Package sqlite provides the SQLite-backed implementation of the
storefront's storage interfaces.

PURPOSE:
  Implements commerce.Store over a single SQLite database. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

CONDITIONAL UPDATES:
  The store is where purchase and deposit races are settled. Every
  decrement runs as one conditional UPDATE and checks the affected-row
  count:

    UPDATE accounts SET balance = balance - ? WHERE id = ? AND balance >= ?
    UPDATE products SET stock   = stock   - ? WHERE id = ? AND stock   >= ?

  Zero rows affected on an existing row means the guard failed and the
  caller gets the typed conflict error. Two racing purchases of the last
  unit resolve to exactly one success, first committed wins.

GUARDED TRANSITIONS:
  Status changes name the expected current status in the WHERE clause,
  so confirming an already-completed payment affects zero rows and is
  reported as moved=false, never as a second settlement.

KEY TABLES:
  accounts:     User identity and stored balance
  products:     Catalog with live stock counts
  orders:       Purchase records
  deposits:     Balance top-up records
  promo_codes:  Discount codes with usage counters
  qr_payments:  QR payment lifecycle rows
  credentials:  Delivered secrets per completed order

SCHEMA:
  CHECK constraints on balance and stock back up the conditional
  updates: even a buggy caller cannot push either below zero.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. In production
  with PostgreSQL, database-level concurrency control handles this
  instead.

USAGE:
  store, err := sqlite.New("./data/storefront.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/digistore/storefront-engine/commerce"
)

// Store implements commerce.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price INTEGER NOT NULL CHECK (price > 0),
		category TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		is_best_seller BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_best_seller
		ON products(is_best_seller) WHERE is_best_seller;

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_user_created
		ON orders(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_orders_status
		ON orders(status);

	CREATE TABLE IF NOT EXISTS deposits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		status TEXT NOT NULL,
		payment_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deposits_user_created
		ON deposits(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_deposits_status
		ON deposits(status);

	CREATE TABLE IF NOT EXISTS promo_codes (
		id TEXT NOT NULL,
		code TEXT PRIMARY KEY,
		discount_type TEXT NOT NULL,
		discount_value INTEGER NOT NULL,
		min_purchase INTEGER NOT NULL DEFAULT 0,
		valid_until TEXT,
		max_usage INTEGER NOT NULL DEFAULT 0,
		current_usage INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS qr_payments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		type TEXT NOT NULL,
		reference_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path for the expiry sweeper
	CREATE INDEX IF NOT EXISTS idx_qr_payments_pending_expiry
		ON qr_payments(expires_at) WHERE status = 'pending';

	CREATE TABLE IF NOT EXISTS credentials (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		login TEXT NOT NULL,
		secret TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNTS (commerce.AccountStore)
// =============================================================================

func (s *Store) GetAccount(ctx context.Context, id commerce.UserID) (*commerce.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, balance, is_admin, created_at, updated_at
		FROM accounts WHERE id = ?`, string(id))

	var (
		account              commerce.UserAccount
		createdAt, updatedAt string
	)
	err := row.Scan(&account.ID, &account.Email, &account.Name, &account.Balance,
		&account.IsAdmin, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, commerce.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	account.CreatedAt = parseTime(createdAt)
	account.UpdatedAt = parseTime(updatedAt)
	return &account, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *commerce.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, balance, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(account.ID), account.Email, account.Name, int64(account.Balance),
		account.IsAdmin, formatTime(account.CreatedAt), formatTime(account.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *Store) CreditBalance(ctx context.Context, id commerce.UserID, amount commerce.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE id = ?`,
		int64(amount), formatTime(time.Now()), string(id))
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	if affected == 0 {
		return commerce.ErrNotFound
	}
	return nil
}

func (s *Store) DebitBalance(ctx context.Context, id commerce.UserID, amount commerce.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Single conditional update: the guard and the subtraction land
	// together or not at all.
	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET balance = balance - ?, updated_at = ?
		WHERE id = ? AND balance >= ?`,
		int64(amount), formatTime(time.Now()), string(id), int64(amount))
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	if affected == 0 {
		exists, err := s.rowExists(ctx, "accounts", string(id))
		if err != nil {
			return err
		}
		if !exists {
			return commerce.ErrNotFound
		}
		return commerce.ErrInsufficientFunds
	}
	return nil
}

// =============================================================================
// PRODUCTS (commerce.ProductStore)
// =============================================================================

func (s *Store) GetProduct(ctx context.Context, id commerce.ProductID) (*commerce.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, category, image_url, stock, is_best_seller, created_at
		FROM products WHERE id = ?`, string(id))

	product, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, commerce.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]commerce.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryProducts(ctx, `
		SELECT id, name, description, price, category, image_url, stock, is_best_seller, created_at
		FROM products ORDER BY created_at DESC, id`)
}

func (s *Store) ListBestSellers(ctx context.Context) ([]commerce.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryProducts(ctx, `
		SELECT id, name, description, price, category, image_url, stock, is_best_seller, created_at
		FROM products WHERE is_best_seller ORDER BY created_at DESC, id`)
}

func (s *Store) CreateProduct(ctx context.Context, product *commerce.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, category, image_url, stock, is_best_seller, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(product.ID), product.Name, product.Description, int64(product.Price),
		product.Category, product.ImageURL, product.Stock, product.IsBestSeller,
		formatTime(product.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (s *Store) ReserveStock(ctx context.Context, id commerce.ProductID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?`,
		qty, string(id), qty)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	if affected == 0 {
		exists, err := s.rowExists(ctx, "products", string(id))
		if err != nil {
			return err
		}
		if !exists {
			return commerce.ErrNotFound
		}
		return commerce.ErrOutOfStock
	}
	return nil
}

func (s *Store) RestoreStock(ctx context.Context, id commerce.ProductID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = stock + ? WHERE id = ?`, qty, string(id))
	if err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	if affected == 0 {
		return commerce.ErrNotFound
	}
	return nil
}

// =============================================================================
// ORDERS (commerce.OrderStore)
// =============================================================================

func (s *Store) CreateOrder(ctx context.Context, order *commerce.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, product_id, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(order.ID), string(order.UserID), string(order.ProductID),
		int64(order.Amount), string(order.Status), formatTime(order.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id commerce.OrderID) (*commerce.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, product_id, amount, status, created_at
		FROM orders WHERE id = ?`, string(id))

	var (
		order     commerce.Order
		createdAt string
	)
	err := row.Scan(&order.ID, &order.UserID, &order.ProductID, &order.Amount,
		&order.Status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, commerce.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	order.CreatedAt = parseTime(createdAt)
	return &order, nil
}

func (s *Store) TransitionOrder(ctx context.Context, id commerce.OrderID, from, to commerce.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.guardedTransition(ctx, "orders", string(id), string(from), string(to))
}

func (s *Store) OrdersByUser(ctx context.Context, id commerce.UserID) ([]commerce.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, product_id, amount, status, created_at
		FROM orders WHERE user_id = ? ORDER BY created_at DESC, id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []commerce.Order
	for rows.Next() {
		var (
			order     commerce.Order
			createdAt string
		)
		if err := rows.Scan(&order.ID, &order.UserID, &order.ProductID,
			&order.Amount, &order.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		order.CreatedAt = parseTime(createdAt)
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *Store) CompletedOrderTotals(ctx context.Context) (map[commerce.UserID]commerce.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTotals(ctx, `
		SELECT user_id, SUM(amount) FROM orders
		WHERE status = 'completed' GROUP BY user_id`)
}

// =============================================================================
// DEPOSITS (commerce.DepositStore)
// =============================================================================

func (s *Store) CreateDeposit(ctx context.Context, deposit *commerce.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deposits (id, user_id, amount, status, payment_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(deposit.ID), string(deposit.UserID), int64(deposit.Amount),
		string(deposit.Status), nullString(string(deposit.PaymentID)),
		formatTime(deposit.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create deposit: %w", err)
	}
	return nil
}

func (s *Store) GetDeposit(ctx context.Context, id commerce.DepositID) (*commerce.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, status, payment_id, created_at
		FROM deposits WHERE id = ?`, string(id))

	deposit, err := scanDeposit(row)
	if err == sql.ErrNoRows {
		return nil, commerce.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deposit: %w", err)
	}
	return deposit, nil
}

func (s *Store) TransitionDeposit(ctx context.Context, id commerce.DepositID, from, to commerce.DepositStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.guardedTransition(ctx, "deposits", string(id), string(from), string(to))
}

func (s *Store) LinkDepositPayment(ctx context.Context, id commerce.DepositID, paymentID commerce.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE deposits SET payment_id = ? WHERE id = ?`,
		string(paymentID), string(id))
	if err != nil {
		return fmt.Errorf("failed to link deposit payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to link deposit payment: %w", err)
	}
	if affected == 0 {
		return commerce.ErrNotFound
	}
	return nil
}

func (s *Store) DepositsByUser(ctx context.Context, id commerce.UserID) ([]commerce.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, status, payment_id, created_at
		FROM deposits WHERE user_id = ? ORDER BY created_at DESC, id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query deposits: %w", err)
	}
	defer rows.Close()

	var deposits []commerce.Deposit
	for rows.Next() {
		deposit, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		deposits = append(deposits, *deposit)
	}
	return deposits, rows.Err()
}

func (s *Store) CompletedDepositTotals(ctx context.Context) (map[commerce.UserID]commerce.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTotals(ctx, `
		SELECT user_id, SUM(amount) FROM deposits
		WHERE status = 'completed' GROUP BY user_id`)
}

// =============================================================================
// PROMO CODES (commerce.PromoStore)
// =============================================================================

func (s *Store) GetPromo(ctx context.Context, code string) (*commerce.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, discount_type, discount_value, min_purchase, valid_until,
		       max_usage, current_usage, active, created_at
		FROM promo_codes WHERE code = ?`, strings.ToUpper(code))

	var (
		promo      commerce.PromoCode
		validUntil sql.NullString
		createdAt  string
	)
	err := row.Scan(&promo.ID, &promo.Code, &promo.DiscountType, &promo.DiscountValue,
		&promo.MinPurchase, &validUntil, &promo.MaxUsage, &promo.CurrentUsage,
		&promo.Active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, commerce.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load promo: %w", err)
	}
	if validUntil.Valid {
		t := parseTime(validUntil.String)
		promo.ValidUntil = &t
	}
	promo.CreatedAt = parseTime(createdAt)
	return &promo, nil
}

func (s *Store) CreatePromo(ctx context.Context, promo *commerce.PromoCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var validUntil any
	if promo.ValidUntil != nil {
		validUntil = formatTime(*promo.ValidUntil)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO promo_codes (id, code, discount_type, discount_value, min_purchase,
		                         valid_until, max_usage, current_usage, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		promo.ID, strings.ToUpper(promo.Code), string(promo.DiscountType),
		promo.DiscountValue, int64(promo.MinPurchase), validUntil,
		promo.MaxUsage, promo.CurrentUsage, promo.Active, formatTime(promo.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create promo: %w", err)
	}
	return nil
}

func (s *Store) IncrementPromoUsage(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Conditional on the cap, so racing redemptions cannot overshoot it.
	result, err := s.db.ExecContext(ctx, `
		UPDATE promo_codes SET current_usage = current_usage + 1
		WHERE code = ? AND (max_usage = 0 OR current_usage < max_usage)`,
		strings.ToUpper(code))
	if err != nil {
		return fmt.Errorf("failed to increment promo usage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to increment promo usage: %w", err)
	}
	if affected == 0 {
		var count int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM promo_codes WHERE code = ?",
			strings.ToUpper(code)).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to increment promo usage: %w", err)
		}
		if count == 0 {
			return commerce.ErrNotFound
		}
		return commerce.ErrPromoExhausted
	}
	return nil
}

// =============================================================================
// QR PAYMENTS (commerce.PaymentStore)
// =============================================================================

func (s *Store) CreatePayment(ctx context.Context, payment *commerce.QRPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO qr_payments (id, user_id, code, url, amount, type, reference_id,
		                         status, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(payment.ID), string(payment.UserID), payment.Code, payment.URL,
		int64(payment.Amount), string(payment.Type), payment.ReferenceID,
		string(payment.Status), formatTime(payment.ExpiresAt), formatTime(payment.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id commerce.PaymentID) (*commerce.QRPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, code, url, amount, type, reference_id, status, expires_at, created_at
		FROM qr_payments WHERE id = ?`, string(id))

	payment, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, commerce.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return payment, nil
}

func (s *Store) TransitionPayment(ctx context.Context, id commerce.PaymentID, from, to commerce.PaymentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.guardedTransition(ctx, "qr_payments", string(id), string(from), string(to))
}

func (s *Store) PendingPaymentsBefore(ctx context.Context, cutoff time.Time) ([]commerce.QRPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, code, url, amount, type, reference_id, status, expires_at, created_at
		FROM qr_payments WHERE status = 'pending' AND expires_at < ?
		ORDER BY expires_at`, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending payments: %w", err)
	}
	defer rows.Close()

	var payments []commerce.QRPayment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

// =============================================================================
// CREDENTIALS (commerce.CredentialStore)
// =============================================================================

func (s *Store) GetCredentialByOrder(ctx context.Context, id commerce.OrderID) (*commerce.ProductCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, login, secret, created_at
		FROM credentials WHERE order_id = ?`, string(id))

	var (
		credential commerce.ProductCredential
		createdAt  string
	)
	err := row.Scan(&credential.ID, &credential.OrderID, &credential.Login,
		&credential.Secret, &createdAt)
	if err == sql.ErrNoRows {
		return nil, commerce.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	credential.CreatedAt = parseTime(createdAt)
	return &credential, nil
}

func (s *Store) CreateCredential(ctx context.Context, credential *commerce.ProductCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, order_id, login, secret, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		credential.ID, string(credential.OrderID), credential.Login,
		credential.Secret, formatTime(credential.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// guardedTransition updates a row's status only while it still holds the
// expected one. Callers hold s.mu.
func (s *Store) guardedTransition(ctx context.Context, table, id, from, to string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET status = ? WHERE id = ? AND status = ?", to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition %s row: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to transition %s row: %w", table, err)
	}
	if affected > 0 {
		return true, nil
	}

	exists, err := s.rowExists(ctx, table, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, commerce.ErrNotFound
	}
	return false, nil
}

func (s *Store) rowExists(ctx context.Context, table, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check %s row: %w", table, err)
	}
	return count > 0, nil
}

func (s *Store) queryProducts(ctx context.Context, query string) ([]commerce.Product, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []commerce.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *product)
	}
	return products, rows.Err()
}

func (s *Store) queryTotals(ctx context.Context, query string) (map[commerce.UserID]commerce.Money, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[commerce.UserID]commerce.Money)
	for rows.Next() {
		var (
			userID string
			total  int64
		)
		if err := rows.Scan(&userID, &total); err != nil {
			return nil, fmt.Errorf("failed to scan totals: %w", err)
		}
		totals[commerce.UserID(userID)] = commerce.Money(total)
	}
	return totals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*commerce.Product, error) {
	var (
		product   commerce.Product
		createdAt string
	)
	err := row.Scan(&product.ID, &product.Name, &product.Description, &product.Price,
		&product.Category, &product.ImageURL, &product.Stock, &product.IsBestSeller,
		&createdAt)
	if err != nil {
		return nil, err
	}
	product.CreatedAt = parseTime(createdAt)
	return &product, nil
}

func scanDeposit(row rowScanner) (*commerce.Deposit, error) {
	var (
		deposit   commerce.Deposit
		paymentID sql.NullString
		createdAt string
	)
	err := row.Scan(&deposit.ID, &deposit.UserID, &deposit.Amount, &deposit.Status,
		&paymentID, &createdAt)
	if err != nil {
		return nil, err
	}
	deposit.PaymentID = commerce.PaymentID(paymentID.String)
	deposit.CreatedAt = parseTime(createdAt)
	return &deposit, nil
}

func scanPayment(row rowScanner) (*commerce.QRPayment, error) {
	var (
		payment              commerce.QRPayment
		expiresAt, createdAt string
	)
	err := row.Scan(&payment.ID, &payment.UserID, &payment.Code, &payment.URL,
		&payment.Amount, &payment.Type, &payment.ReferenceID, &payment.Status,
		&expiresAt, &createdAt)
	if err != nil {
		return nil, err
	}
	payment.ExpiresAt = parseTime(expiresAt)
	payment.CreatedAt = parseTime(createdAt)
	return &payment, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
