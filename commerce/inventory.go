// inventory.go - Stock arithmetic over the product store.
//
// Inventory owns every mutation of Product.Stock. Reserve claims units via
// a conditional decrement at the store; Release is the compensating
// reverse and is only ever called by the orchestrator when a later step
// of an already-reserved purchase fails.
package commerce

import (
	"context"
	"errors"
)

// Inventory reserves and releases product stock.
type Inventory struct {
	store ProductStore
}

func NewInventory(store ProductStore) *Inventory {
	return &Inventory{store: store}
}

// Reserve claims qty units of the product. Fails with ErrOutOfStock when
// fewer than qty units remain; stock is left unchanged in that case.
func (inv *Inventory) Reserve(ctx context.Context, id ProductID, qty int) error {
	if qty <= 0 {
		return ErrInvalidAmount
	}
	err := inv.store.ReserveStock(ctx, id, qty)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOutOfStock):
		return &OutOfStockError{ProductID: id, Requested: qty}
	case errors.Is(err, ErrNotFound):
		return err
	default:
		return &PersistenceError{Op: "reserve stock", Err: err}
	}
}

// Release returns qty units to the product. Compensation path only.
func (inv *Inventory) Release(ctx context.Context, id ProductID, qty int) error {
	if qty <= 0 {
		return ErrInvalidAmount
	}
	if err := inv.store.RestoreStock(ctx, id, qty); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return &PersistenceError{Op: "restore stock", Err: err}
	}
	return nil
}
