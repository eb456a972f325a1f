package order

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mstoica/storefront/internal/models"
)

func newTestRepo(t *testing.T) (*GormRepo, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Order{}, &models.OrderItem{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return &GormRepo{DB: db}, db
}

func createOrder(t *testing.T, db *gorm.DB, userID uint, number string, status models.OrderStatus, age time.Duration) uuid.UUID {
	id := uuid.New()
	o := models.Order{
		ID:          id,
		OrderNumber: number,
		UserID:      userID,
		Status:      status,
		CreatedAt:   time.Now().Add(-age),
		Items: []models.OrderItem{
			{OrderID: id, ProductID: uuid.New(), Name: "item", Price: 10, Quantity: 1},
		},
	}
	require.NoError(t, db.Create(&o).Error)
	return id
}

func TestList(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	createOrder(t, db, 1, "AAA-111", models.OrderStatusPending, 3*time.Hour)
	createOrder(t, db, 1, "AAA-222", models.OrderStatusActive, 2*time.Hour)
	createOrder(t, db, 2, "BBB-333", models.OrderStatusActive, time.Hour)

	orders, total, err := repo.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, orders, 3)
	// Newest first.
	require.Equal(t, "BBB-333", orders[0].OrderNumber)

	orders, total, err = repo.List(ctx, ListQuery{Status: "active"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, orders, 2)

	orders, total, err = repo.List(ctx, ListQuery{Keyword: "aaa"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, orders, 2)

	orders, total, err = repo.List(ctx, ListQuery{Status: "active", Keyword: "bbb"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "BBB-333", orders[0].OrderNumber)

	orders, total, err = repo.List(ctx, ListQuery{Limit: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, orders, 2)

	orders, _, err = repo.List(ctx, ListQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestGet(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	id := createOrder(t, db, 1, "AAA-111", models.OrderStatusPending, 0)

	o, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "AAA-111", o.OrderNumber)
	require.Len(t, o.Items, 1)

	_, err = repo.Get(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListForUser(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	mine := createOrder(t, db, 1, "AAA-111", models.OrderStatusPending, time.Hour)
	theirs := createOrder(t, db, 2, "BBB-222", models.OrderStatusPending, 0)

	orders, err := repo.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, mine, orders[0].ID)

	// Another user's order is invisible, not merely empty-itemed.
	_, err = repo.GetForUser(ctx, theirs, 1)
	require.ErrorIs(t, err, ErrNotFound)

	o, err := repo.GetForUser(ctx, mine, 1)
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
}
