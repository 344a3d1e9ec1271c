package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/solar-storefront/internal/service"
)

type errorMapping struct {
	err    error
	status int
}

var errorStatuses = []errorMapping{
	{service.ErrUserAlreadyExists, http.StatusConflict},
	{service.ErrUserAlreadyVerified, http.StatusConflict},
	{service.ErrUserNotFound, http.StatusNotFound},
	{service.ErrUserNotVerified, http.StatusForbidden},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},

	{service.ErrOTPNotFound, http.StatusBadRequest},
	{service.ErrOTPExpired, http.StatusBadRequest},
	{service.ErrOTPInvalid, http.StatusUnauthorized},
	{service.ErrOTPTooManyAttempts, http.StatusTooManyRequests},
	{service.ErrOTPCooldown, http.StatusTooManyRequests},

	{service.ErrProductNotFound, http.StatusNotFound},

	{service.ErrOrderNotFound, http.StatusNotFound},
	{service.ErrOrderAccessDenied, http.StatusForbidden},
	{service.ErrInsufficientStock, http.StatusConflict},
	{service.ErrInvalidQuantity, http.StatusBadRequest},
	{service.ErrInvalidStatus, http.StatusBadRequest},
	{service.ErrInvalidTransition, http.StatusConflict},
	{service.ErrVersionConflict, http.StatusConflict},
	{service.ErrOrderNotCancellable, http.StatusConflict},

	{service.ErrInvalidSignature, http.StatusUnauthorized},
	{service.ErrInvalidPayload, http.StatusBadRequest},
	{service.ErrAmountMismatch, http.StatusUnprocessableEntity},
	{service.ErrInvalidPaymentTransition, http.StatusConflict},
	{service.ErrOrderClosed, http.StatusConflict},

	{service.ErrInvalidRating, http.StatusBadRequest},
	{service.ErrReviewExists, http.StatusConflict},
	{service.ErrReviewNotFound, http.StatusNotFound},
}

// respondError writes the status mapped to a known service error, or a 500
// that hides the cause from the client.
func respondError(c *gin.Context, err error) {
	for _, m := range errorStatuses {
		if errors.Is(err, m.err) {
			c.JSON(m.status, gin.H{"error": m.err.Error()})
			return
		}
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
