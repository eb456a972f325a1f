package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Product struct {
	ID              uuid.UUID `gorm:"primaryKey"                   json:"id"`
	Name            string    `gorm:"not null"                     json:"name"`
	Brand           string    `gorm:"not null"                     json:"brand"`
	Description     string    `json:"description"`
	Price           float64   `gorm:"not null"                     json:"price"`
	DiscountedPrice *float64  `json:"discounted_price"`
	Quantity        int       `gorm:"not null;check:quantity >= 0" json:"quantity"`
	CreatedAt       time.Time `json:"created_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// EffectivePrice is what the buyer pays right now: the discounted
// price when one is set, the list price otherwise.
func (p *Product) EffectivePrice() float64 {
	if p.DiscountedPrice != nil {
		return *p.DiscountedPrice
	}
	return p.Price
}

type User struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string `gorm:"unique;not null"          json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `gorm:"not null;default:user"    json:"role"`
}

type CartItem struct {
	ID        uint      `gorm:"primaryKey"                            json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_user_product;not null" json:"user_id"`
	ProductID uuid.UUID `gorm:"uniqueIndex:idx_user_product;not null" json:"product_id"`
	Quantity  uint      `gorm:"default:1;check:quantity > 0"          json:"quantity"`
}

// Cart holds the derived totals for one user's cart. The invariant
// total_price == sum(effective price * quantity) over the user's cart
// items is re-established by a full recompute inside every mutating
// transaction, never patched incrementally.
type Cart struct {
	UserID        uint    `gorm:"primaryKey" json:"user_id"`
	TotalPrice    float64 `gorm:"not null"   json:"total_price"`
	TotalQuantity uint    `gorm:"not null"   json:"total_quantity"`
	DeliveryFee   float64 `gorm:"default:18" json:"delivery_fee"`
}

// Address is a by-value snapshot of delivery or billing data. Orders
// embed copies so later edits to a user's saved addresses never alter
// a placed order.
type Address struct {
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
	Phone     string `json:"phone"`
	County    string `json:"county"`
	City      string `json:"city"`
	Address   string `json:"address"`
}

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusActive   OrderStatus = "active"
	OrderStatusFinished OrderStatus = "finished"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRefunded OrderStatus = "refunded"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusActive, OrderStatusFinished, OrderStatusCanceled, OrderStatusRefunded:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFinished || s == OrderStatusCanceled || s == OrderStatusRefunded
}

type Order struct {
	ID            uuid.UUID   `gorm:"primaryKey"           json:"id"`
	OrderNumber   string      `gorm:"uniqueIndex;not null" json:"order_number"`
	UserID        uint        `gorm:"index;not null"       json:"user_id"`
	Items         []OrderItem `gorm:"foreignKey:OrderID"   json:"items"`
	TotalPrice    float64     `gorm:"not null"             json:"total_price"`
	TotalQuantity uint        `gorm:"not null"             json:"total_quantity"`
	Status        OrderStatus `gorm:"not null;index"       json:"status"`
	Delivery      Address     `gorm:"embedded;embeddedPrefix:delivery_" json:"delivery_data"`
	Billing       Address     `gorm:"embedded;embeddedPrefix:billing_"  json:"billing_data"`
	PaymentMethod string      `json:"payment_method"`
	Observation   string      `json:"observation"`
	DeliveryFee   float64     `gorm:"default:13"           json:"delivery_fee"`
	CreatedAt     time.Time   `json:"created_at"`
}

// OrderItem is an immutable snapshot of a product at purchase time.
// ProductID is kept only so cancellations can restock the live product.
type OrderItem struct {
	ID              uuid.UUID `gorm:"primaryKey"         json:"id"`
	OrderID         uuid.UUID `gorm:"index;not null"     json:"order_id"`
	ProductID       uuid.UUID `gorm:"not null"           json:"product_id"`
	Name            string    `gorm:"not null"           json:"name"`
	Price           float64   `gorm:"not null"           json:"price"`
	DiscountedPrice *float64  `json:"discounted_price"`
	Quantity        uint      `gorm:"check:quantity > 0" json:"quantity"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// EffectivePrice mirrors Product.EffectivePrice over the frozen
// purchase-time prices.
func (i *OrderItem) EffectivePrice() float64 {
	if i.DiscountedPrice != nil {
		return *i.DiscountedPrice
	}
	return i.Price
}
