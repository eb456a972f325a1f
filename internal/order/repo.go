package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mstoica/storefront/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
}

// ListQuery filters the operator order listing. Keyword matches the
// order number, case-insensitively.
type ListQuery struct {
	Status  string
	Keyword string
	Page    int
	Limit   int
}

func (r *GormRepo) List(ctx context.Context, q ListQuery) ([]models.Order, int64, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Page < 0 {
		q.Page = 0
	}

	tx := r.DB.WithContext(ctx).Model(&models.Order{})
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Keyword != "" {
		tx = tx.Where("lower(order_number) LIKE ?", "%"+strings.ToLower(q.Keyword)+"%")
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	if err := tx.Order("created_at DESC").
		Limit(q.Limit).
		Offset(q.Page * q.Limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *GormRepo) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	if err := r.DB.WithContext(ctx).Preload("Items").First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &o, nil
}

func (r *GormRepo) ListForUser(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	if err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *GormRepo) GetForUser(ctx context.Context, id uuid.UUID, userID uint) (*models.Order, error) {
	var o models.Order
	if err := r.DB.WithContext(ctx).Preload("Items").
		First(&o, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &o, nil
}
