package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/solar-storefront/internal/middleware"
	"github.com/flicky/solar-storefront/internal/service"
)

const (
	SignatureHeader = "X-Signature"
	maxWebhookBody  = 64 << 10
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// Webhook receives provider callbacks. The signature covers the raw body, so
// it is read before any decoding.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if len(body) > maxWebhookBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
		return
	}

	order, err := h.paymentService.HandleWebhook(c.Request.Context(), body, c.GetHeader(SignatureHeader))
	if err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			middleware.Logger(c, slog.Default()).Warn("payment webhook signature rejected", "client_ip", c.ClientIP())
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}
