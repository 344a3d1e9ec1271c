package cache

import (
	"context"
	"errors"
	"time"

	"github.com/flicky/solar-storefront/internal/model"
)

// ErrNoRecord is returned when an operation targets a code that is gone.
var ErrNoRecord = errors.New("otp record not found")

// OTPStore keeps one outstanding code per (email, purpose).
type OTPStore interface {
	Save(ctx context.Context, rec *model.OTPRecord) error
	// Get returns nil, nil when no record exists.
	Get(ctx context.Context, email string, purpose model.OTPPurpose) (*model.OTPRecord, error)
	// IncrementAttempts atomically bumps the counter and returns the new
	// value, or ErrNoRecord. It never creates a record.
	IncrementAttempts(ctx context.Context, email string, purpose model.OTPPurpose) (int, error)
	// Consume deletes the record only while it still holds hash, and reports
	// whether this call removed it.
	Consume(ctx context.Context, email string, purpose model.OTPPurpose, hash string) (bool, error)
}

func otpKey(email string, purpose model.OTPPurpose) string {
	return "otp:" + string(purpose) + ":" + email
}

func ttlUntil(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
