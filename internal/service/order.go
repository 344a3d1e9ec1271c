package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/solar-storefront/internal/dto"
	"github.com/flicky/solar-storefront/internal/events"
	"github.com/flicky/solar-storefront/internal/model"
	"github.com/flicky/solar-storefront/internal/repository"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderAccessDenied   = errors.New("access denied")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
	ErrInvalidStatus       = errors.New("unknown order status")
	ErrInvalidTransition   = errors.New("status transition not allowed")
	ErrVersionConflict     = errors.New("order was modified concurrently")
	ErrOrderNotCancellable = errors.New("only pending orders can be cancelled")
)

type cacheInvalidator interface {
	InvalidateCache(ctx context.Context, id uuid.UUID)
}

type OrderService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	products    cacheInvalidator
	publisher   events.Publisher
	log         *slog.Logger
	now         func() time.Time
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	products cacheInvalidator,
	publisher events.Publisher,
	log *slog.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		products:    products,
		publisher:   publisher,
		log:         log,
		now:         time.Now,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, req dto.CreateOrderRequest) (*model.Order, error) {
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	product, err := s.productRepo.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil || !product.Active {
		return nil, ErrProductNotFound
	}
	if product.Stock < req.Quantity {
		return nil, ErrInsufficientStock
	}

	order := &model.Order{
		Number: s.orderNumber(),
		UserID: userID,
		Contact: model.Contact{
			Name:    strings.TrimSpace(req.Contact.Name),
			Email:   NormalizeEmail(req.Contact.Email),
			Phone:   strings.TrimSpace(req.Contact.Phone),
			Address: strings.TrimSpace(req.Contact.Address),
		},
		ProductID:     product.ID,
		Quantity:      req.Quantity,
		UnitPrice:     product.Price,
		TotalPrice:    product.Price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			return nil, ErrInsufficientStock
		}
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.invalidateProduct(ctx, product.ID)

	s.publish(ctx, model.EventOrderCreated, order)
	return order, nil
}

func (s *OrderService) GetByID(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
	order, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *OrderService) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return s.orderRepo.ListByUserID(ctx, userID)
}

// Cancel lets a customer withdraw an order that has not been confirmed yet.
func (s *OrderService) Cancel(ctx context.Context, orderID, userID uuid.UUID, expectedVersion int) (*model.Order, error) {
	order, err := s.GetByID(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPending {
		return nil, ErrOrderNotCancellable
	}
	return s.transition(ctx, order, model.OrderStatusCancelled, expectedVersion)
}

// --- Admin ---

func (s *OrderService) AdminGet(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	return s.get(ctx, orderID)
}

func (s *OrderService) List(ctx context.Context, req dto.ListOrdersRequest) ([]model.Order, int, error) {
	orders, total, err := s.orderRepo.List(ctx, model.OrderFilter{
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
		UpdatedSince:  req.UpdatedSince,
		Limit:         req.Limit,
		Offset:        (req.Page - 1) * req.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus moves an order along its lifecycle. A zero expectedVersion
// skips the client-side check but the write is still compare-and-set.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus, expectedVersion int) (*model.Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	order, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, order, status, expectedVersion)
}

func (s *OrderService) transition(ctx context.Context, order *model.Order, next model.OrderStatus, expectedVersion int) (*model.Order, error) {
	if expectedVersion != 0 && expectedVersion != order.Version {
		return nil, ErrVersionConflict
	}
	if order.Status == next {
		return order, nil
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
	}

	current := order.Version
	updated := *order
	updated.Status = next

	kind := model.EventOrderStatusChanged
	var err error
	if next == model.OrderStatusCancelled {
		kind = model.EventOrderCancelled
		if updated.PaymentStatus == model.PaymentStatusCompleted {
			updated.PaymentStatus = model.PaymentStatusRefunded
		}
		err = s.orderRepo.Cancel(ctx, &updated, current)
	} else {
		err = s.orderRepo.Update(ctx, &updated, current)
	}
	if err != nil {
		if errors.Is(err, repository.ErrVersionMismatch) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("update order: %w", err)
	}
	if next == model.OrderStatusCancelled {
		s.invalidateProduct(ctx, updated.ProductID)
	}

	s.publish(ctx, kind, &updated)
	return &updated, nil
}

func (s *OrderService) get(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// publish never fails the request: the change is committed and dashboards
// pick it up on their next poll.
func (s *OrderService) publish(ctx context.Context, kind model.EventKind, order *model.Order) {
	evt := model.NewOrderEvent(kind, order)
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Error("publish order event", "error", err, "order_id", order.ID, "kind", kind, "version", order.Version)
	}
}

func (s *OrderService) invalidateProduct(ctx context.Context, id uuid.UUID) {
	if s.products != nil {
		s.products.InvalidateCache(ctx, id)
	}
}

func (s *OrderService) orderNumber() string {
	return fmt.Sprintf("SOL-%d-%s", s.now().UnixMilli(), strings.ToUpper(uuid.NewString()[:4]))
}
