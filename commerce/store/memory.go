// Package store provides an in-memory commerce.Store for tests and
// development. All conditional-write semantics match the SQLite store:
// decrements check their guard and report the typed conflict error, and
// status transitions only move rows still in the expected state.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/digistore/storefront-engine/commerce"
)

// Memory implements commerce.Store behind a single RWMutex, which makes
// every operation atomic the way a single-row store update is.
type Memory struct {
	mu          sync.RWMutex
	accounts    map[commerce.UserID]commerce.UserAccount
	products    map[commerce.ProductID]commerce.Product
	orders      map[commerce.OrderID]commerce.Order
	deposits    map[commerce.DepositID]commerce.Deposit
	promos      map[string]commerce.PromoCode
	payments    map[commerce.PaymentID]commerce.QRPayment
	credentials map[commerce.OrderID]commerce.ProductCredential
}

func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[commerce.UserID]commerce.UserAccount),
		products:    make(map[commerce.ProductID]commerce.Product),
		orders:      make(map[commerce.OrderID]commerce.Order),
		deposits:    make(map[commerce.DepositID]commerce.Deposit),
		promos:      make(map[string]commerce.PromoCode),
		payments:    make(map[commerce.PaymentID]commerce.QRPayment),
		credentials: make(map[commerce.OrderID]commerce.ProductCredential),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) GetAccount(_ context.Context, id commerce.UserID) (*commerce.UserAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	return &account, nil
}

func (m *Memory) CreateAccount(_ context.Context, account *commerce.UserAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = *account
	return nil
}

func (m *Memory) CreditBalance(_ context.Context, id commerce.UserID, amount commerce.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return commerce.ErrNotFound
	}
	account.Balance += amount
	account.UpdatedAt = time.Now()
	m.accounts[id] = account
	return nil
}

func (m *Memory) DebitBalance(_ context.Context, id commerce.UserID, amount commerce.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return commerce.ErrNotFound
	}
	if account.Balance < amount {
		return commerce.ErrInsufficientFunds
	}
	account.Balance -= amount
	account.UpdatedAt = time.Now()
	m.accounts[id] = account
	return nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (m *Memory) GetProduct(_ context.Context, id commerce.ProductID) (*commerce.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	product, ok := m.products[id]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	return &product, nil
}

func (m *Memory) ListProducts(_ context.Context) ([]commerce.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	products := make([]commerce.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	sort.Slice(products, func(a, b int) bool {
		if !products[a].CreatedAt.Equal(products[b].CreatedAt) {
			return products[a].CreatedAt.After(products[b].CreatedAt)
		}
		return products[a].ID < products[b].ID
	})
	return products, nil
}

func (m *Memory) ListBestSellers(ctx context.Context) ([]commerce.Product, error) {
	products, err := m.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	best := make([]commerce.Product, 0)
	for _, p := range products {
		if p.IsBestSeller {
			best = append(best, p)
		}
	}
	return best, nil
}

func (m *Memory) CreateProduct(_ context.Context, product *commerce.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = *product
	return nil
}

func (m *Memory) ReserveStock(_ context.Context, id commerce.ProductID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := m.products[id]
	if !ok {
		return commerce.ErrNotFound
	}
	if product.Stock < qty {
		return commerce.ErrOutOfStock
	}
	product.Stock -= qty
	m.products[id] = product
	return nil
}

func (m *Memory) RestoreStock(_ context.Context, id commerce.ProductID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := m.products[id]
	if !ok {
		return commerce.ErrNotFound
	}
	product.Stock += qty
	m.products[id] = product
	return nil
}

// =============================================================================
// ORDERS
// =============================================================================

func (m *Memory) CreateOrder(_ context.Context, order *commerce.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = *order
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id commerce.OrderID) (*commerce.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	return &order, nil
}

func (m *Memory) TransitionOrder(_ context.Context, id commerce.OrderID, from, to commerce.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return false, commerce.ErrNotFound
	}
	if order.Status != from {
		return false, nil
	}
	order.Status = to
	m.orders[id] = order
	return true, nil
}

func (m *Memory) OrdersByUser(_ context.Context, id commerce.UserID) ([]commerce.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orders []commerce.Order
	for _, o := range m.orders {
		if o.UserID == id {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(a, b int) bool {
		if !orders[a].CreatedAt.Equal(orders[b].CreatedAt) {
			return orders[a].CreatedAt.After(orders[b].CreatedAt)
		}
		return orders[a].ID < orders[b].ID
	})
	return orders, nil
}

func (m *Memory) CompletedOrderTotals(_ context.Context) (map[commerce.UserID]commerce.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := make(map[commerce.UserID]commerce.Money)
	for _, o := range m.orders {
		if o.Status == commerce.OrderCompleted {
			totals[o.UserID] += o.Amount
		}
	}
	return totals, nil
}

// =============================================================================
// DEPOSITS
// =============================================================================

func (m *Memory) CreateDeposit(_ context.Context, deposit *commerce.Deposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deposits[deposit.ID] = *deposit
	return nil
}

func (m *Memory) GetDeposit(_ context.Context, id commerce.DepositID) (*commerce.Deposit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	deposit, ok := m.deposits[id]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	return &deposit, nil
}

func (m *Memory) TransitionDeposit(_ context.Context, id commerce.DepositID, from, to commerce.DepositStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deposit, ok := m.deposits[id]
	if !ok {
		return false, commerce.ErrNotFound
	}
	if deposit.Status != from {
		return false, nil
	}
	deposit.Status = to
	m.deposits[id] = deposit
	return true, nil
}

func (m *Memory) LinkDepositPayment(_ context.Context, id commerce.DepositID, paymentID commerce.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	deposit, ok := m.deposits[id]
	if !ok {
		return commerce.ErrNotFound
	}
	deposit.PaymentID = paymentID
	m.deposits[id] = deposit
	return nil
}

func (m *Memory) DepositsByUser(_ context.Context, id commerce.UserID) ([]commerce.Deposit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var deposits []commerce.Deposit
	for _, d := range m.deposits {
		if d.UserID == id {
			deposits = append(deposits, d)
		}
	}
	sort.Slice(deposits, func(a, b int) bool {
		if !deposits[a].CreatedAt.Equal(deposits[b].CreatedAt) {
			return deposits[a].CreatedAt.After(deposits[b].CreatedAt)
		}
		return deposits[a].ID < deposits[b].ID
	})
	return deposits, nil
}

func (m *Memory) CompletedDepositTotals(_ context.Context) (map[commerce.UserID]commerce.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := make(map[commerce.UserID]commerce.Money)
	for _, d := range m.deposits {
		if d.Status == commerce.DepositCompleted {
			totals[d.UserID] += d.Amount
		}
	}
	return totals, nil
}

// =============================================================================
// PROMO CODES
// =============================================================================

func (m *Memory) GetPromo(_ context.Context, code string) (*commerce.PromoCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	promo, ok := m.promos[strings.ToUpper(code)]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	return &promo, nil
}

func (m *Memory) CreatePromo(_ context.Context, promo *commerce.PromoCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *promo
	stored.Code = strings.ToUpper(stored.Code)
	m.promos[stored.Code] = stored
	return nil
}

func (m *Memory) IncrementPromoUsage(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToUpper(code)
	promo, ok := m.promos[key]
	if !ok {
		return commerce.ErrNotFound
	}
	if promo.MaxUsage > 0 && promo.CurrentUsage >= promo.MaxUsage {
		return commerce.ErrPromoExhausted
	}
	promo.CurrentUsage++
	m.promos[key] = promo
	return nil
}

// =============================================================================
// QR PAYMENTS
// =============================================================================

func (m *Memory) CreatePayment(_ context.Context, payment *commerce.QRPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[payment.ID] = *payment
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id commerce.PaymentID) (*commerce.QRPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payment, ok := m.payments[id]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	return &payment, nil
}

func (m *Memory) TransitionPayment(_ context.Context, id commerce.PaymentID, from, to commerce.PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment, ok := m.payments[id]
	if !ok {
		return false, commerce.ErrNotFound
	}
	if payment.Status != from {
		return false, nil
	}
	payment.Status = to
	m.payments[id] = payment
	return true, nil
}

func (m *Memory) PendingPaymentsBefore(_ context.Context, cutoff time.Time) ([]commerce.QRPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var payments []commerce.QRPayment
	for _, p := range m.payments {
		if p.Status == commerce.PaymentPending && p.ExpiresAt.Before(cutoff) {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(a, b int) bool { return payments[a].ID < payments[b].ID })
	return payments, nil
}

// =============================================================================
// CREDENTIALS
// =============================================================================

func (m *Memory) GetCredentialByOrder(_ context.Context, id commerce.OrderID) (*commerce.ProductCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	credential, ok := m.credentials[id]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	return &credential, nil
}

func (m *Memory) CreateCredential(_ context.Context, credential *commerce.ProductCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[credential.OrderID] = *credential
	return nil
}
