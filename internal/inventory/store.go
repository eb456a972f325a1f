package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mstoica/storefront/internal/models"
)

var ErrProductNotFound = errors.New("product not found")

// InsufficientStockError reports a reservation that asked for more
// units than the product currently has. Available is the most the
// caller could still get.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: %d available", e.ProductName, e.Available)
}

// ProductUnavailableError reports a product with no stock at all.
type ProductUnavailableError struct {
	ProductID   uuid.UUID
	ProductName string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %q is no longer available", e.ProductName)
}

// Reservation is one line of a batch reservation.
type Reservation struct {
	ProductID uuid.UUID
	Quantity  uint
}

// Store is the single owner of product stock. Every decrement goes
// through a conditional UPDATE ... WHERE quantity >= ?, so concurrent
// checkouts can never drive stock negative no matter how they
// interleave.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a Store bound to an already-open transaction so a
// caller can make reservations and its own writes durable together.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Reserve decrements stock by amount only if at least amount units are
// on hand. The check and the decrement are one statement; there is no
// window for another caller to oversell between them.
func (s *Store) Reserve(ctx context.Context, productID uuid.UUID, amount uint) error {
	if amount == 0 {
		return fmt.Errorf("reserve amount must be positive")
	}

	res := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND quantity >= ?", productID, amount).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// The conditional update matched nothing: either the product is
	// gone or there is not enough stock. Re-read to say which.
	var p models.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return err
	}
	if p.Quantity < 1 {
		return &ProductUnavailableError{ProductID: p.ID, ProductName: p.Name}
	}
	return &InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Available: p.Quantity}
}

// Restore puts amount units back, used as the compensating action for
// cancellations and refunds. There is deliberately no upper bound.
func (s *Store) Restore(ctx context.Context, productID uuid.UUID, amount uint) error {
	res := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return nil
}

// ReserveAll reserves a batch atomically: the first failing line
// aborts the enclosing transaction, which rolls every earlier
// reservation back. A failed checkout therefore never leaves partial
// reservations behind.
func (s *Store) ReserveAll(ctx context.Context, items []Reservation) error {
	if len(items) == 0 {
		return fmt.Errorf("nothing to reserve")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bound := s.WithTx(tx)
		for _, it := range items {
			if err := bound.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}
