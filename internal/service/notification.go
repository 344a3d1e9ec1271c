package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flicky/solar-storefront/internal/events"
	"github.com/flicky/solar-storefront/internal/mailer"
	"github.com/flicky/solar-storefront/internal/model"
	"github.com/flicky/solar-storefront/internal/repository"
)

type NotificationService struct {
	repo   repository.NotificationRepository
	hub    *events.Hub
	mailer mailer.Mailer
	log    *slog.Logger
}

func NewNotificationService(repo repository.NotificationRepository, hub *events.Hub, m mailer.Mailer, log *slog.Logger) *NotificationService {
	return &NotificationService{repo: repo, hub: hub, mailer: m, log: log}
}

// HandleEvent records the event for the customer and the admin feed, pushes
// it to live subscribers and emails the customer. A mail failure is logged
// only; storage failures are returned so the delivery is retried.
func (s *NotificationService) HandleEvent(ctx context.Context, evt model.OrderEvent) error {
	msg := describeEvent(evt)

	userID := evt.UserID
	if err := s.repo.Create(ctx, &model.Notification{
		UserID: &userID, OrderID: evt.OrderID, Kind: evt.Kind, Message: msg,
	}); err != nil {
		return fmt.Errorf("store customer notification: %w", err)
	}
	if err := s.repo.Create(ctx, &model.Notification{
		OrderID: evt.OrderID, Kind: evt.Kind, Message: msg,
	}); err != nil {
		return fmt.Errorf("store admin notification: %w", err)
	}

	if s.hub != nil {
		s.hub.Broadcast(evt)
	}

	if evt.CustomerEmail != "" {
		subject := fmt.Sprintf("Order %s: %s", evt.OrderNumber, evt.Status)
		if err := s.mailer.Send(ctx, evt.CustomerEmail, subject, msg); err != nil {
			s.log.Warn("send order email", "error", err, "order_number", evt.OrderNumber, "kind", evt.Kind)
		}
	}
	return nil
}

// List returns notifications after the cursor. Admins read the broadcast feed.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, admin bool, after int64, limit int) ([]model.Notification, int64, error) {
	items, err := s.repo.ListAfter(ctx, feedOwner(userID, admin), after, limit)
	if err != nil {
		return nil, after, fmt.Errorf("list notifications: %w", err)
	}
	cursor := after
	if len(items) > 0 {
		cursor = items[len(items)-1].Seq
	}
	return items, cursor, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID uuid.UUID, admin bool, upTo int64) (int64, error) {
	n, err := s.repo.MarkRead(ctx, feedOwner(userID, admin), upTo)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return n, nil
}

func feedOwner(userID uuid.UUID, admin bool) *uuid.UUID {
	if admin {
		return nil
	}
	return &userID
}

func describeEvent(evt model.OrderEvent) string {
	switch evt.Kind {
	case model.EventOrderCreated:
		return fmt.Sprintf("Order %s has been placed and is awaiting confirmation.", evt.OrderNumber)
	case model.EventOrderCancelled:
		return fmt.Sprintf("Order %s has been cancelled.", evt.OrderNumber)
	case model.EventOrderPaymentChanged:
		return fmt.Sprintf("Payment for order %s is now %s. Order status: %s.", evt.OrderNumber, evt.PaymentStatus, evt.Status)
	default:
		return fmt.Sprintf("Order %s is now %s.", evt.OrderNumber, evt.Status)
	}
}
