package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/solar-storefront/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Phone     string `json:"phone" binding:"omitempty,phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,numeric"`
}

type ResendOTPRequest struct {
	Email   string           `json:"email" binding:"required,email"`
	Purpose model.OTPPurpose `json:"purpose" binding:"required,oneof=register login"`
}

type OTPChallengeResponse struct {
	Message   string    `json:"message"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	Verified  bool      `json:"verified"`
}

// --- Product ---

type CreateProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Wattage     int             `json:"wattage" binding:"required,min=1"`
	Price       decimal.Decimal `json:"price" binding:"required,gt=0"`
	Stock       int             `json:"stock" binding:"min=0"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Wattage     *int             `json:"wattage" binding:"omitempty,min=1"`
	Price       *decimal.Decimal `json:"price" binding:"omitempty,gt=0"`
	Stock       *int             `json:"stock" binding:"omitempty,min=0"`
	Active      *bool            `json:"active"`
}

type ListProductsRequest struct {
	Page       int    `form:"page,default=1" binding:"min=1"`
	Limit      int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search     string `form:"search"`
	MinWattage int    `form:"min_wattage" binding:"min=0"`
	MaxWattage int    `form:"max_wattage" binding:"omitempty,min=0,gtefield=MinWattage"`
	Sort       string `form:"sort,default=created_at" binding:"oneof=name price wattage created_at"`
	Order      string `form:"order,default=desc" binding:"oneof=asc desc"`
}

type ProductResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Wattage     int             `json:"wattage"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// --- Order ---

type ContactRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Phone   string `json:"phone" binding:"omitempty,phone"`
	Address string `json:"address" binding:"required"`
}

type CreateOrderRequest struct {
	ProductID uuid.UUID      `json:"product_id" binding:"required"`
	Quantity  int            `json:"quantity" binding:"required,min=1,max=1000"`
	Contact   ContactRequest `json:"contact" binding:"required"`
}

type CancelOrderRequest struct {
	Version int `json:"version" binding:"min=0"`
}

type UpdateOrderStatusRequest struct {
	Status  model.OrderStatus `json:"status" binding:"required,order_status"`
	Version int               `json:"version" binding:"min=0"`
}

type ListOrdersRequest struct {
	Page          int                 `form:"page,default=1" binding:"min=1"`
	Limit         int                 `form:"limit,default=50" binding:"min=1,max=200"`
	Status        model.OrderStatus   `form:"status" binding:"omitempty,order_status"`
	PaymentStatus model.PaymentStatus `form:"payment_status" binding:"omitempty,oneof=pending completed failed refunded"`
	UpdatedSince  time.Time           `form:"updated_since" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ContactResponse struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address"`
}

type OrderResponse struct {
	ID               uuid.UUID           `json:"id"`
	Number           string              `json:"number"`
	UserID           uuid.UUID           `json:"user_id"`
	Contact          ContactResponse     `json:"contact"`
	ProductID        uuid.UUID           `json:"product_id"`
	Quantity         int                 `json:"quantity"`
	UnitPrice        decimal.Decimal     `json:"unit_price"`
	TotalPrice       decimal.Decimal     `json:"total_price"`
	Status           model.OrderStatus   `json:"status"`
	PaymentStatus    model.PaymentStatus `json:"payment_status"`
	PaymentReference string              `json:"payment_reference,omitempty"`
	Version          int                 `json:"version"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

// --- Payment ---

type PaymentWebhook struct {
	OrderNumber string              `json:"order_number"`
	Reference   string              `json:"reference"`
	Status      model.PaymentStatus `json:"status"`
	Amount      decimal.Decimal     `json:"amount"`
}

// --- Review ---

type CreateReviewRequest struct {
	OrderID uuid.UUID `json:"order_id" binding:"required"`
	Rating  int       `json:"rating" binding:"required,min=1,max=5"`
	Comment string    `json:"comment" binding:"max=2000"`
}

type ListReviewsRequest struct {
	Page      int    `form:"page,default=1" binding:"min=1"`
	Limit     int    `form:"limit,default=20" binding:"min=1,max=100"`
	ProductID string `form:"product_id" binding:"omitempty,uuid"`
}

type ReviewResponse struct {
	ID            uuid.UUID `json:"id"`
	OrderID       uuid.UUID `json:"order_id"`
	ProductID     uuid.UUID `json:"product_id"`
	Rating        int       `json:"rating"`
	Comment       string    `json:"comment"`
	Approved      bool      `json:"approved"`
	VerifiedOrder bool      `json:"verified_order"`
	CreatedAt     time.Time `json:"created_at"`
}

type RatingSummaryResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	Average   decimal.Decimal `json:"average"`
	Count     int             `json:"count"`
}

// --- Notification ---

type ListNotificationsRequest struct {
	After int64 `form:"after" binding:"min=0"`
	Limit int   `form:"limit,default=50" binding:"min=1,max=200"`
}

type MarkReadRequest struct {
	UpTo int64 `json:"up_to" binding:"required,min=1"`
}

type NotificationResponse struct {
	Seq       int64           `json:"seq"`
	OrderID   uuid.UUID       `json:"order_id"`
	Kind      model.EventKind `json:"kind"`
	Message   string          `json:"message"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	// Cursor is the seq to pass as "after" on the next poll.
	Cursor int64 `json:"cursor"`
}
