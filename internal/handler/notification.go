package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flicky/solar-storefront/internal/dto"
	"github.com/flicky/solar-storefront/internal/events"
	"github.com/flicky/solar-storefront/internal/middleware"
	"github.com/flicky/solar-storefront/internal/model"
	"github.com/flicky/solar-storefront/internal/service"
)

type NotificationHandler struct {
	notificationService *service.NotificationService
	hub                 *events.Hub
	heartbeat           time.Duration
}

func NewNotificationHandler(notificationService *service.NotificationService, hub *events.Hub, heartbeat time.Duration) *NotificationHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &NotificationHandler{notificationService: notificationService, hub: hub, heartbeat: heartbeat}
}

// List is the polling fallback for clients without a live stream.
func (h *NotificationHandler) List(c *gin.Context) {
	var req dto.ListNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	items, cursor, err := h.notificationService.List(c.Request.Context(),
		middleware.GetUserID(c), middleware.IsAdmin(c), req.After, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := dto.NotificationListResponse{
		Notifications: make([]dto.NotificationResponse, 0, len(items)),
		Cursor:        cursor,
	}
	for _, n := range items {
		resp.Notifications = append(resp.Notifications, dto.NotificationResponse{
			Seq:       n.Seq,
			OrderID:   n.OrderID,
			Kind:      n.Kind,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req dto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	n, err := h.notificationService.MarkRead(c.Request.Context(),
		middleware.GetUserID(c), middleware.IsAdmin(c), req.UpTo)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// Stream pushes order events as Server-Sent Events until the client leaves.
func (h *NotificationHandler) Stream(c *gin.Context) {
	log := middleware.Logger(c, slog.Default())
	sub := h.hub.Subscribe(middleware.GetUserID(c), middleware.IsAdmin(c))
	defer h.hub.Unsubscribe(sub)

	opened := time.Now()
	delivered := 0
	log.Debug("event stream opened", "user_id", middleware.GetUserID(c), "admin", middleware.IsAdmin(c))
	defer func() {
		log.Debug("event stream closed", "delivered", delivered, "duration", time.Since(opened))
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprint(c.Writer, ": connected\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	done := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			return false
		case evt, ok := <-sub.C():
			if !ok {
				return false
			}
			c.SSEvent("order", toEventPayload(evt))
			delivered++
			return true
		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			return true
		}
	})
}

type eventPayload struct {
	ID            string              `json:"id"`
	Kind          model.EventKind     `json:"kind"`
	OrderID       string              `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	Status        model.OrderStatus   `json:"status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	Version       int                 `json:"version"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// toEventPayload drops the customer email before the event leaves the server.
func toEventPayload(evt model.OrderEvent) eventPayload {
	return eventPayload{
		ID:            evt.ID.String(),
		Kind:          evt.Kind,
		OrderID:       evt.OrderID.String(),
		OrderNumber:   evt.OrderNumber,
		Status:        evt.Status,
		PaymentStatus: evt.PaymentStatus,
		Version:       evt.Version,
		OccurredAt:    evt.OccurredAt,
	}
}
