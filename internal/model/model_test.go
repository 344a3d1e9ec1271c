package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusCompleted, false},
		{OrderStatusConfirmed, OrderStatusCompleted, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusPending, false},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusCompleted))
	assert.True(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusCompleted))
	assert.True(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusRefunded))
	assert.False(t, PaymentStatusRefunded.CanTransitionTo(PaymentStatusCompleted))
	assert.False(t, PaymentStatusPending.CanTransitionTo(PaymentStatusRefunded))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, OrderStatusCompleted.Valid())
	assert.False(t, OrderStatus("shipped").Valid())
	assert.True(t, PaymentStatusRefunded.Valid())
	assert.False(t, PaymentStatus("").Valid())
	assert.False(t, OTPPurpose("reset").Valid())
}

func TestOTPRecord_Expired(t *testing.T) {
	now := time.Now()
	rec := &OTPRecord{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, rec.Expired(now))
	assert.True(t, rec.Expired(now.Add(time.Minute)))
}
