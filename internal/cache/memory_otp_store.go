package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flicky/solar-storefront/internal/model"
)

// MemoryOTPStore is used when Redis is disabled. Records are lost on restart.
type MemoryOTPStore struct {
	mu      sync.Mutex
	records map[string]*model.OTPRecord
	now     func() time.Time
}

func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{records: make(map[string]*model.OTPRecord), now: time.Now}
}

func (s *MemoryOTPStore) Save(_ context.Context, rec *model.OTPRecord) error {
	cp := *rec
	s.mu.Lock()
	s.records[otpKey(rec.Email, rec.Purpose)] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryOTPStore) Get(_ context.Context, email string, purpose model.OTPPurpose) (*model.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[otpKey(email, purpose)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryOTPStore) IncrementAttempts(_ context.Context, email string, purpose model.OTPPurpose) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[otpKey(email, purpose)]
	if !ok {
		return 0, ErrNoRecord
	}
	rec.Attempts++
	return rec.Attempts, nil
}

func (s *MemoryOTPStore) Consume(_ context.Context, email string, purpose model.OTPPurpose, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := otpKey(email, purpose)
	rec, ok := s.records[key]
	if !ok || rec.Hash != hash {
		return false, nil
	}
	delete(s.records, key)
	return true, nil
}

// Sweep removes expired records and returns how many were dropped.
func (s *MemoryOTPStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, key)
			n++
		}
	}
	return n
}

// RunJanitor sweeps on every tick until ctx is cancelled.
func (s *MemoryOTPStore) RunJanitor(ctx context.Context, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Debug("evicted expired otp records", "count", n)
			}
		}
	}
}

var _ OTPStore = (*MemoryOTPStore)(nil)
