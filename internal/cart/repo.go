package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mstoica/storefront/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) Items(ctx context.Context, userID uint) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) Totals(ctx context.Context, userID uint) (*models.Cart, error) {
	var cart models.Cart
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Cart{UserID: userID, DeliveryFee: defaultDeliveryFee}, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

const defaultDeliveryFee = 18

// Recompute re-derives both cart totals from a fresh read of the
// user's items joined to live products and upserts the carts row.
// Callers run it inside the same transaction as the structural
// mutation so the stored totals can never drift from the item list.
func Recompute(tx *gorm.DB, userID uint) error {
	var agg struct {
		TotalPrice    float64
		TotalQuantity uint
	}

	err := tx.Model(&models.CartItem{}).
		Select("COALESCE(SUM(COALESCE(products.discounted_price, products.price) * cart_items.quantity), 0) AS total_price, COALESCE(SUM(cart_items.quantity), 0) AS total_quantity").
		Joins("JOIN products ON products.id = cart_items.product_id").
		Where("cart_items.user_id = ?", userID).
		Scan(&agg).Error
	if err != nil {
		return err
	}

	cart := models.Cart{
		UserID:        userID,
		TotalPrice:    agg.TotalPrice,
		TotalQuantity: agg.TotalQuantity,
		DeliveryFee:   defaultDeliveryFee,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_price", "total_quantity"}),
	}).Create(&cart).Error
}

// Clear empties the cart and zeroes the stored totals within the
// caller's transaction. Checkout uses it after the order is created.
func Clear(tx *gorm.DB, userID uint) error {
	if err := tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return Recompute(tx, userID)
}

func (r *GormRepo) itemExists(tx *gorm.DB, userID uint, productID uuid.UUID) (bool, error) {
	var n int64
	err := tx.Model(&models.CartItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Count(&n).Error
	return n > 0, err
}
