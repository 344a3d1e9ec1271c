package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/solar-storefront/internal/cache"
	"github.com/flicky/solar-storefront/internal/config"
	"github.com/flicky/solar-storefront/internal/mailer"
	"github.com/flicky/solar-storefront/internal/model"
)

var (
	ErrOTPNotFound        = errors.New("no pending code for this email")
	ErrOTPExpired         = errors.New("code expired")
	ErrOTPInvalid         = errors.New("invalid code")
	ErrOTPTooManyAttempts = errors.New("too many attempts")
	ErrOTPCooldown        = errors.New("code recently sent, try again later")
)

type OTPService struct {
	store  cache.OTPStore
	mailer mailer.Mailer
	cfg    config.OTPConfig
	log    *slog.Logger
	now    func() time.Time
}

func NewOTPService(store cache.OTPStore, m mailer.Mailer, cfg config.OTPConfig, log *slog.Logger) *OTPService {
	return &OTPService{store: store, mailer: m, cfg: cfg, log: log, now: time.Now}
}

// NormalizeEmail is the key form used for users and OTP records.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Send issues a new code for (email, purpose), replacing any previous one,
// and returns its expiry.
func (s *OTPService) Send(ctx context.Context, email string, purpose model.OTPPurpose) (time.Time, error) {
	email = NormalizeEmail(email)
	now := s.now()

	existing, err := s.store.Get(ctx, email, purpose)
	if err != nil {
		return time.Time{}, fmt.Errorf("get otp: %w", err)
	}
	if existing != nil && !existing.Expired(now) && now.Sub(existing.IssuedAt) < s.cfg.ResendCooldown {
		return time.Time{}, ErrOTPCooldown
	}

	code, err := generateCode(s.cfg.Length)
	if err != nil {
		return time.Time{}, fmt.Errorf("generate otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return time.Time{}, fmt.Errorf("hash otp: %w", err)
	}

	rec := &model.OTPRecord{
		Email:     email,
		Purpose:   purpose,
		Hash:      string(hash),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return time.Time{}, fmt.Errorf("save otp: %w", err)
	}

	if s.cfg.DevMode {
		s.log.Info("otp issued (dev mode)", "email", email, "purpose", purpose, "code", code)
	}

	subject := "Your SolarShop verification code"
	body := fmt.Sprintf("Your %s code is %s. It expires in %s.", purpose, code, s.cfg.TTL)
	if err := s.mailer.Send(ctx, email, subject, body); err != nil {
		s.discard(ctx, rec)
		return time.Time{}, fmt.Errorf("deliver otp: %w", err)
	}
	return rec.ExpiresAt, nil
}

// Verify consumes the code on success. Every attempt, right or wrong, is
// reserved against the limit before the hash is compared.
func (s *OTPService) Verify(ctx context.Context, email string, purpose model.OTPPurpose, code string) error {
	email = NormalizeEmail(email)

	rec, err := s.store.Get(ctx, email, purpose)
	if err != nil {
		return fmt.Errorf("get otp: %w", err)
	}
	if rec == nil {
		return ErrOTPNotFound
	}
	if rec.Expired(s.now()) {
		s.discard(ctx, rec)
		return ErrOTPExpired
	}

	attempts, err := s.store.IncrementAttempts(ctx, email, purpose)
	if errors.Is(err, cache.ErrNoRecord) {
		return ErrOTPNotFound
	}
	if err != nil {
		return fmt.Errorf("record otp attempt: %w", err)
	}
	if attempts > s.cfg.MaxAttempts {
		s.discard(ctx, rec)
		return ErrOTPTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.Hash), []byte(strings.TrimSpace(code))) != nil {
		if attempts >= s.cfg.MaxAttempts {
			s.discard(ctx, rec)
			return ErrOTPTooManyAttempts
		}
		return ErrOTPInvalid
	}

	consumed, err := s.store.Consume(ctx, email, purpose, rec.Hash)
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if !consumed {
		return ErrOTPNotFound
	}
	return nil
}

// discard drops rec unless a newer code has replaced it.
func (s *OTPService) discard(ctx context.Context, rec *model.OTPRecord) {
	if _, err := s.store.Consume(ctx, rec.Email, rec.Purpose, rec.Hash); err != nil {
		s.log.Warn("discard otp", "email", rec.Email, "purpose", rec.Purpose, "error", err)
	}
}

func generateCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
