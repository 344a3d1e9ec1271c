package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Role      string
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Wattage     int
	Price       decimal.Decimal
	Stock       int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductFilter narrows the catalog. Zero wattage bounds are open.
type ProductFilter struct {
	Search          string
	MinWattage      int
	MaxWattage      int
	IncludeInactive bool
	Sort            string
	Order           string
	Limit           int
	Offset          int
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusCompleted, OrderStatusCancelled},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether an order may move from s to next.
// Completed and cancelled are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusFailed:    {PaymentStatusCompleted, PaymentStatusPending},
	PaymentStatusCompleted: {PaymentStatusRefunded},
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Contact struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

type Order struct {
	ID               uuid.UUID
	Number           string
	UserID           uuid.UUID
	Contact          Contact
	ProductID        uuid.UUID
	Quantity         int
	UnitPrice        decimal.Decimal
	TotalPrice       decimal.Decimal
	Status           OrderStatus
	PaymentStatus    PaymentStatus
	PaymentReference string
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type OrderFilter struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
	UpdatedSince  time.Time
	Limit         int
	Offset        int
}

type Review struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	UserID        uuid.UUID
	ProductID     uuid.UUID
	Rating        int
	Comment       string
	Approved      bool
	VerifiedOrder bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type RatingSummary struct {
	ProductID uuid.UUID
	Average   decimal.Decimal
	Count     int
}

type OTPPurpose string

const (
	OTPPurposeRegister OTPPurpose = "register"
	OTPPurposeLogin    OTPPurpose = "login"
)

func (p OTPPurpose) Valid() bool {
	return p == OTPPurposeRegister || p == OTPPurposeLogin
}

// OTPRecord holds a hashed one-time code. The raw code is never stored.
type OTPRecord struct {
	Email     string     `json:"email"`
	Purpose   OTPPurpose `json:"purpose"`
	Hash      string     `json:"hash"`
	Attempts  int        `json:"attempts"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

func (r *OTPRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

type Notification struct {
	ID        uuid.UUID
	Seq       int64
	UserID    *uuid.UUID
	OrderID   uuid.UUID
	Kind      EventKind
	Message   string
	Read      bool
	CreatedAt time.Time
}

type EventKind string

const (
	EventOrderCreated        EventKind = "order.created"
	EventOrderStatusChanged  EventKind = "order.status_changed"
	EventOrderPaymentChanged EventKind = "order.payment_changed"
	EventOrderCancelled      EventKind = "order.cancelled"
)

// OrderEvent is published after every committed order change.
type OrderEvent struct {
	ID            uuid.UUID     `json:"id"`
	Kind          EventKind     `json:"kind"`
	OrderID       uuid.UUID     `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	UserID        uuid.UUID     `json:"user_id"`
	CustomerEmail string        `json:"customer_email"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Version       int           `json:"version"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

func NewOrderEvent(kind EventKind, o *Order) OrderEvent {
	return OrderEvent{
		ID:            uuid.New(),
		Kind:          kind,
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		UserID:        o.UserID,
		CustomerEmail: o.Contact.Email,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Version:       o.Version,
		OccurredAt:    time.Now().UTC(),
	}
}
