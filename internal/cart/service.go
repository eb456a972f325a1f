package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/mstoica/storefront/internal/models"
)

var (
	ErrValidation     = errors.New("validation")
	ErrProductMissing = errors.New("product not found")
	ErrAlreadyInCart  = errors.New("product already in cart")
	ErrNotInCart      = errors.New("product not in cart")
)

// Service is the cart ledger: it owns a user's in-progress cart and
// keeps the stored totals equal to the sum over its items after every
// mutation. Stock is deliberately not checked here; the shopper is
// reconciled against inventory at checkout.
type Service struct {
	Repo *GormRepo
}

// ItemView pairs a cart line with the live product it references.
type ItemView struct {
	Product  models.Product `json:"product"`
	Quantity uint           `json:"quantity"`
}

type View struct {
	Items         []ItemView `json:"items"`
	TotalPrice    float64    `json:"total_price"`
	TotalQuantity uint       `json:"total_quantity"`
	DeliveryFee   float64    `json:"delivery_fee"`
}

const maxProductFetches = 10

// GetCart assembles the cart view with live product state. Products
// are fetched with bounded concurrency since each is an independent
// read.
func (s *Service) GetCart(ctx context.Context, userID uint) (*View, error) {
	items, err := s.Repo.Items(ctx, userID)
	if err != nil {
		return nil, err
	}
	totals, err := s.Repo.Totals(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]ItemView, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxProductFetches)
	for idx := range items {
		g.Go(func() error {
			it := items[idx]
			var p models.Product
			if err := s.Repo.DB.WithContext(gctx).First(&p, "id = ?", it.ProductID).Error; err != nil {
				return fmt.Errorf("load product %s: %w", it.ProductID, err)
			}
			views[idx] = ItemView{Product: p, Quantity: it.Quantity}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &View{
		Items:         views,
		TotalPrice:    totals.TotalPrice,
		TotalQuantity: totals.TotalQuantity,
		DeliveryFee:   totals.DeliveryFee,
	}, nil
}

// AddItem appends the product with quantity 1. The product's current
// price is not frozen; it keeps floating until checkout.
func (s *Service) AddItem(ctx context.Context, userID uint, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return fmt.Errorf("%w: product id required", ErrValidation)
	}

	return s.Repo.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		if err := tx.First(&p, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrProductMissing, productID)
			}
			return err
		}

		exists, err := s.Repo.itemExists(tx, userID, productID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrAlreadyInCart, p.Name)
		}

		item := models.CartItem{UserID: userID, ProductID: productID, Quantity: 1}
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		return Recompute(tx, userID)
	})
}

// RemoveItem drops the product's line. Removing something that is not
// there is not an error.
func (s *Service) RemoveItem(ctx context.Context, userID uint, productID uuid.UUID) error {
	return s.Repo.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND product_id = ?", userID, productID).
			Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		return Recompute(tx, userID)
	})
}

// SetQuantity replaces the line's quantity. No upper clamp against
// stock; that reconciliation happens at checkout.
func (s *Service) SetQuantity(ctx context.Context, userID uint, productID uuid.UUID, quantity uint) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	return s.Repo.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CartItem{}).
			Where("user_id = ? AND product_id = ?", userID, productID).
			Update("quantity", quantity)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotInCart, productID)
		}
		return Recompute(tx, userID)
	})
}

// Clear empties the cart outside of a checkout.
func (s *Service) Clear(ctx context.Context, userID uint) error {
	return s.Repo.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return Clear(tx, userID)
	})
}
