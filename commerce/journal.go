// journal.go - Read side of the order/deposit journals.
//
// History feeds the per-user order and deposit pages; the leaderboard
// ranks users by lifetime completed deposits plus completed purchases,
// the way the storefront's Top Spent page computes it.
package commerce

import (
	"context"
	"errors"
	"sort"
)

// DefaultLeaderboardSize is how many users the leaderboard returns when
// the caller does not say.
const DefaultLeaderboardSize = 10

// LeaderboardEntry is one ranked row of the Top Spent view.
type LeaderboardEntry struct {
	Rank          int
	UserID        UserID
	Name          string
	Email         string
	TotalDeposits Money
	TotalSpent    Money
}

// Total is the ranking key: deposits plus purchases.
func (e LeaderboardEntry) Total() Money { return e.TotalDeposits + e.TotalSpent }

// Journal answers history and reporting queries over the committed
// order and deposit records.
type Journal struct {
	store Store
}

func NewJournal(store Store) *Journal {
	return &Journal{store: store}
}

// Orders returns the user's purchase history, newest first.
func (j *Journal) Orders(ctx context.Context, id UserID) ([]Order, error) {
	orders, err := j.store.OrdersByUser(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}

// Deposits returns the user's deposit history, newest first.
func (j *Journal) Deposits(ctx context.Context, id UserID) ([]Deposit, error) {
	deposits, err := j.store.DepositsByUser(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "list deposits", Err: err}
	}
	return deposits, nil
}

// Leaderboard ranks users by completed deposits plus completed orders,
// descending, and returns the top limit entries. Users with no completed
// activity do not appear. Ties keep a stable order by user id.
func (j *Journal) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}

	depositTotals, err := j.store.CompletedDepositTotals(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "sum deposits", Err: err}
	}
	orderTotals, err := j.store.CompletedOrderTotals(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "sum orders", Err: err}
	}

	seen := make(map[UserID]bool, len(depositTotals)+len(orderTotals))
	var entries []LeaderboardEntry
	add := func(id UserID) {
		if seen[id] {
			return
		}
		seen[id] = true
		entries = append(entries, LeaderboardEntry{
			UserID:        id,
			TotalDeposits: depositTotals[id],
			TotalSpent:    orderTotals[id],
		})
	}
	for id := range depositTotals {
		add(id)
	}
	for id := range orderTotals {
		add(id)
	}

	sort.Slice(entries, func(a, b int) bool {
		if entries[a].Total() != entries[b].Total() {
			return entries[a].Total() > entries[b].Total()
		}
		return entries[a].UserID < entries[b].UserID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	for i := range entries {
		entries[i].Rank = i + 1
		account, err := j.store.GetAccount(ctx, entries[i].UserID)
		switch {
		case errors.Is(err, ErrNotFound):
			// Journal rows can outlive their account; keep the totals.
			continue
		case err != nil:
			return nil, &PersistenceError{Op: "load account", Err: err}
		}
		entries[i].Name = account.Name
		entries[i].Email = account.Email
	}
	return entries, nil
}

// Credential returns the delivered secret for a completed order.
// ErrNotFound until the order completes and fulfillment delivers.
func (j *Journal) Credential(ctx context.Context, id OrderID) (*ProductCredential, error) {
	order, err := j.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "load order", Err: err}
	}
	if order.Status != OrderCompleted {
		return nil, ErrNotFound
	}

	credential, err := j.store.GetCredentialByOrder(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "load credential", Err: err}
	}
	return credential, nil
}
