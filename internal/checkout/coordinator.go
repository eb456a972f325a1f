package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mstoica/storefront/internal/cart"
	"github.com/mstoica/storefront/internal/inventory"
	"github.com/mstoica/storefront/internal/models"
	"github.com/mstoica/storefront/internal/notify"
)

var (
	ErrEmptyCart    = errors.New("no items in cart")
	ErrUserNotFound = errors.New("user not found")
)

// OrderIndexer mirrors search.OrderIndex; checkout only needs the
// write side.
type OrderIndexer interface {
	IndexOrder(ctx context.Context, o *models.Order)
}

// Request carries the buyer-supplied checkout data. Addresses are
// copied by value into the order.
type Request struct {
	DeliveryData  models.Address `json:"delivery_data"`
	BillingData   models.Address `json:"billing_data"`
	PaymentMethod string         `json:"payment_method"`
	Observation   string         `json:"observation"`
}

// Coordinator is the one place a cart becomes an order. Validation,
// stock reservation, order creation and cart clearing run in a single
// transaction, so a failure at any step leaves nothing mutated and a
// success leaves no window where stock is reserved but no order
// exists.
type Coordinator struct {
	DB        *gorm.DB
	Inventory *inventory.Store
	Dispatch  notify.Dispatcher
	Index     OrderIndexer
}

const orderDeliveryFee = 13

func (co *Coordinator) Checkout(ctx context.Context, userID uint, req Request) (*models.Order, error) {
	var (
		order models.Order
		user  models.User
	)

	txErr := co.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
			}
			return err
		}

		var items []models.CartItem
		if err := tx.Where("user_id = ?", userID).Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		ids := make([]uuid.UUID, len(items))
		for i, it := range items {
			ids[i] = it.ProductID
		}
		var products []models.Product
		if err := tx.Where("id IN ?", ids).Find(&products).Error; err != nil {
			return err
		}
		byID := make(map[uuid.UUID]models.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		// Every line is checked before anything is mutated; checkout
		// is all-or-nothing.
		for _, it := range items {
			p, ok := byID[it.ProductID]
			if !ok {
				return fmt.Errorf("%w: %s", inventory.ErrProductNotFound, it.ProductID)
			}
			if p.Quantity < 1 {
				return &inventory.ProductUnavailableError{ProductID: p.ID, ProductName: p.Name}
			}
			if int(it.Quantity) > p.Quantity {
				return &inventory.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Available: p.Quantity}
			}
		}

		// The pre-check above is advisory only; the conditional
		// decrement inside ReserveAll is what actually prevents
		// overselling against concurrent checkouts.
		reservations := make([]inventory.Reservation, len(items))
		for i, it := range items {
			reservations[i] = inventory.Reservation{ProductID: it.ProductID, Quantity: it.Quantity}
		}
		if err := co.Inventory.WithTx(tx).ReserveAll(ctx, reservations); err != nil {
			return err
		}

		var totals models.Cart
		if err := tx.First(&totals, "user_id = ?", userID).Error; err != nil {
			return err
		}

		orderID := uuid.New()
		orderItems := make([]models.OrderItem, len(items))
		for i, it := range items {
			p := byID[it.ProductID]
			orderItems[i] = models.OrderItem{
				OrderID:         orderID,
				ProductID:       p.ID,
				Name:            p.Name,
				Price:           p.Price,
				DiscountedPrice: p.DiscountedPrice,
				Quantity:        it.Quantity,
			}
		}

		order = models.Order{
			ID:          orderID,
			OrderNumber: orderID.String(),
			UserID:      userID,
			Items:       orderItems,
			// The reservation step fixed the purchased quantities, so
			// the already-validated cart totals are copied, not
			// recomputed.
			TotalPrice:    totals.TotalPrice,
			TotalQuantity: totals.TotalQuantity,
			Status:        models.OrderStatusPending,
			Delivery:      req.DeliveryData,
			Billing:       req.BillingData,
			PaymentMethod: req.PaymentMethod,
			Observation:   req.Observation,
			DeliveryFee:   orderDeliveryFee,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		return cart.Clear(tx, userID)
	})
	if txErr != nil {
		return nil, txErr
	}

	co.Dispatch.Send(ctx, user.Email,
		"Order registered",
		fmt.Sprintf("Your order %s has been registered.", order.OrderNumber))
	if co.Index != nil {
		co.Index.IndexOrder(ctx, &order)
	}

	return &order, nil
}
