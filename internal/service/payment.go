package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flicky/solar-storefront/internal/dto"
	"github.com/flicky/solar-storefront/internal/events"
	"github.com/flicky/solar-storefront/internal/model"
	"github.com/flicky/solar-storefront/internal/repository"
)

var (
	ErrInvalidSignature         = errors.New("invalid webhook signature")
	ErrInvalidPayload           = errors.New("invalid webhook payload")
	ErrAmountMismatch           = errors.New("payment amount does not match order total")
	ErrInvalidPaymentTransition = errors.New("payment transition not allowed")
	ErrOrderClosed              = errors.New("order is cancelled")
)

const paymentUpdateAttempts = 3

type PaymentService struct {
	orderRepo repository.OrderRepository
	publisher events.Publisher
	secret    []byte
	log       *slog.Logger
}

func NewPaymentService(orderRepo repository.OrderRepository, publisher events.Publisher, secret string, log *slog.Logger) *PaymentService {
	return &PaymentService{orderRepo: orderRepo, publisher: publisher, secret: []byte(secret), log: log}
}

// Sign returns the hex HMAC-SHA256 of body. Providers send it in X-Signature.
func (s *PaymentService) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *PaymentService) VerifySignature(body []byte, signature string) error {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(s.secret) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// HandleWebhook verifies and applies a payment provider callback.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*model.Order, error) {
	if err := s.VerifySignature(body, signature); err != nil {
		return nil, err
	}
	var payload dto.PaymentWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.OrderNumber == "" {
		return nil, fmt.Errorf("%w: missing order_number", ErrInvalidPayload)
	}
	if payload.Status != model.PaymentStatusCompleted && payload.Status != model.PaymentStatusFailed {
		return nil, fmt.Errorf("%w: unsupported status %q", ErrInvalidPayload, payload.Status)
	}

	for attempt := 1; ; attempt++ {
		order, err := s.apply(ctx, payload)
		if errors.Is(err, repository.ErrVersionMismatch) && attempt < paymentUpdateAttempts {
			s.log.Warn("payment update raced, retrying", "order_number", payload.OrderNumber, "attempt", attempt)
			continue
		}
		if errors.Is(err, repository.ErrVersionMismatch) {
			return nil, ErrVersionConflict
		}
		return order, err
	}
}

func (s *PaymentService) apply(ctx context.Context, payload dto.PaymentWebhook) (*model.Order, error) {
	order, err := s.orderRepo.GetByNumber(ctx, payload.OrderNumber)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.PaymentStatus == payload.Status {
		return order, nil
	}
	if order.Status == model.OrderStatusCancelled {
		return nil, ErrOrderClosed
	}
	if !order.PaymentStatus.CanTransitionTo(payload.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidPaymentTransition, order.PaymentStatus, payload.Status)
	}
	if payload.Status == model.PaymentStatusCompleted && !payload.Amount.Equal(order.TotalPrice) {
		return nil, ErrAmountMismatch
	}

	updated := *order
	updated.PaymentStatus = payload.Status
	if payload.Reference != "" {
		updated.PaymentReference = payload.Reference
	}
	confirmed := false
	if payload.Status == model.PaymentStatusCompleted && updated.Status == model.OrderStatusPending {
		updated.Status = model.OrderStatusConfirmed
		confirmed = true
	}
	if err := s.orderRepo.Update(ctx, &updated, order.Version); err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventOrderPaymentChanged, &updated)
	if confirmed {
		s.log.Info("order confirmed by payment", "order_number", updated.Number, "reference", updated.PaymentReference)
	}
	return &updated, nil
}

func (s *PaymentService) publish(ctx context.Context, kind model.EventKind, order *model.Order) {
	if err := s.publisher.Publish(ctx, model.NewOrderEvent(kind, order)); err != nil {
		s.log.Error("publish order event", "error", err, "order_id", order.ID, "kind", kind, "version", order.Version)
	}
}
