package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mstoica/storefront/internal/inventory"
	"github.com/mstoica/storefront/internal/models"
	"github.com/mstoica/storefront/internal/notify"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid transition")
)

// OrderIndexer mirrors search.OrderIndex; the lifecycle only rewrites
// the projection after a transition.
type OrderIndexer interface {
	IndexOrder(ctx context.Context, o *models.Order)
}

// Lifecycle drives post-creation order transitions:
//
//	pending/active -> active
//	active         -> finished | canceled | refunded
//
// finished, canceled and refunded are terminal and can never be
// reopened. Canceling or refunding restores every ordered quantity
// back to stock in the same transaction as the status flip.
type Lifecycle struct {
	DB        *gorm.DB
	Inventory *inventory.Store
	Dispatch  notify.Dispatcher
	Index     OrderIndexer
}

// allowedSources lists the statuses a target may be reached from.
func allowedSources(target models.OrderStatus) []models.OrderStatus {
	switch target {
	case models.OrderStatusActive:
		return []models.OrderStatus{models.OrderStatusPending, models.OrderStatusActive}
	case models.OrderStatusFinished, models.OrderStatusCanceled, models.OrderStatusRefunded:
		return []models.OrderStatus{models.OrderStatusActive}
	default:
		return nil
	}
}

func (l *Lifecycle) Transition(ctx context.Context, orderID uuid.UUID, target models.OrderStatus) (*models.Order, error) {
	sources := allowedSources(target)
	if sources == nil {
		return nil, fmt.Errorf("%w: %q is not a reachable status", ErrInvalidTransition, target)
	}

	var order models.Order
	txErr := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, orderID)
			}
			return err
		}

		// Conditional flip: it both enforces the state machine and
		// makes restocking idempotent. A retried cancel matches zero
		// rows and never restores stock twice.
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status IN ?", orderID, sources).
			Update("status", target)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
		}

		if target == models.OrderStatusCanceled || target == models.OrderStatusRefunded {
			bound := l.Inventory.WithTx(tx)
			for _, it := range order.Items {
				if err := bound.Restore(ctx, it.ProductID, it.Quantity); err != nil {
					return err
				}
			}
		}

		order.Status = target
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	l.notifyTransition(ctx, &order)
	if l.Index != nil {
		l.Index.IndexOrder(ctx, &order)
	}

	return &order, nil
}

// notifyTransition sends the customer mails the storefront has always
// sent: confirmation on activation, cancellation notice on cancel.
// finished and refunded stay silent.
func (l *Lifecycle) notifyTransition(ctx context.Context, o *models.Order) {
	var subject, body string
	switch o.Status {
	case models.OrderStatusActive:
		subject = "Order confirmation"
		body = fmt.Sprintf("Your order %s has been confirmed.", o.OrderNumber)
	case models.OrderStatusCanceled:
		subject = "Order canceled"
		body = fmt.Sprintf("Your order %s has been canceled.", o.OrderNumber)
	default:
		return
	}

	var user models.User
	if err := l.DB.WithContext(ctx).First(&user, "id = ?", o.UserID).Error; err != nil {
		return
	}
	l.Dispatch.Send(ctx, user.Email, subject, body)
}
