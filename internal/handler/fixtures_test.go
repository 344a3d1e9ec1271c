package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/flicky/solar-storefront/internal/cache"
	"github.com/flicky/solar-storefront/internal/config"
	"github.com/flicky/solar-storefront/internal/events"
	"github.com/flicky/solar-storefront/internal/model"
	"github.com/flicky/solar-storefront/internal/repository"
	"github.com/flicky/solar-storefront/internal/service"
)

const (
	testJWTSecret     = "handler-test-secret"
	testWebhookSecret = "handler-webhook-secret"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// store is a single in-memory backend implementing every repository the
// handlers reach through the services.
type store struct {
	mu            sync.Mutex
	users         map[string]*model.User
	products      map[uuid.UUID]*model.Product
	orders        map[uuid.UUID]*model.Order
	reviews       map[uuid.UUID]*model.Review
	notifications []model.Notification
}

func newStore() *store {
	return &store{
		users:    make(map[string]*model.User),
		products: make(map[uuid.UUID]*model.Product),
		orders:   make(map[uuid.UUID]*model.Order),
		reviews:  make(map[uuid.UUID]*model.Review),
	}
}

type userRepo struct{ *store }

func (r userRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.users[u.Email]; taken {
		return repository.ErrDuplicateEmail
	}
	u.ID = uuid.New()
	cp := *u
	r.users[u.Email] = &cp
	return nil
}

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r userRepo) MarkVerified(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			u.Verified = true
		}
	}
	return nil
}

type productRepo struct{ *store }

func (r productRepo) Create(_ context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uuid.New()
	p.Active = true
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r productRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r productRepo) List(_ context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Product
	for _, p := range r.products {
		if f.IncludeInactive || p.Active {
			out = append(out, *p)
		}
	}
	return out, len(out), nil
}

func (r productRepo) Update(_ context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r productRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok || !p.Active {
		return pgx.ErrNoRows
	}
	p.Active = false
	return nil
}

type orderRepo struct{ *store }

func (r orderRepo) Create(_ context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[o.ProductID]
	if !ok || p.Stock < o.Quantity {
		return repository.ErrInsufficientStock
	}
	p.Stock -= o.Quantity
	o.ID = uuid.New()
	o.Version = 1
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r orderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (r orderRepo) GetByNumber(_ context.Context, number string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.Number == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r orderRepo) ListByUserID(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r orderRepo) List(_ context.Context, f model.OrderFilter) ([]model.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Order
	for _, o := range r.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if !f.UpdatedSince.IsZero() && !o.UpdatedAt.After(f.UpdatedSince) {
			continue
		}
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (r orderRepo) Update(_ context.Context, o *model.Order, expected int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[o.ID]
	if !ok || stored.Version != expected {
		return repository.ErrVersionMismatch
	}
	o.Version = expected + 1
	o.UpdatedAt = time.Now()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r orderRepo) Cancel(ctx context.Context, o *model.Order, expected int) error {
	if err := r.Update(ctx, o, expected); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[o.ProductID].Stock += o.Quantity
	return nil
}

type reviewRepo struct{ *store }

func (r reviewRepo) Create(_ context.Context, rv *model.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reviews {
		if existing.OrderID == rv.OrderID {
			return repository.ErrDuplicateReview
		}
	}
	rv.ID = uuid.New()
	rv.CreatedAt = time.Now()
	cp := *rv
	r.reviews[rv.ID] = &cp
	return nil
}

func (r reviewRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rv, ok := r.reviews[id]; ok {
		cp := *rv
		return &cp, nil
	}
	return nil, nil
}

func (r reviewRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*model.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rv := range r.reviews {
		if rv.OrderID == orderID {
			cp := *rv
			return &cp, nil
		}
	}
	return nil, nil
}

func (r reviewRepo) List(_ context.Context, f repository.ReviewFilter) ([]model.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Review
	for _, rv := range r.reviews {
		if f.Approved != nil && rv.Approved != *f.Approved {
			continue
		}
		if f.ProductID != uuid.Nil && rv.ProductID != f.ProductID {
			continue
		}
		out = append(out, *rv)
	}
	return out, nil
}

func (r reviewRepo) Approve(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rv, ok := r.reviews[id]
	if !ok {
		return pgx.ErrNoRows
	}
	rv.Approved = true
	return nil
}

func (r reviewRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reviews[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.reviews, id)
	return nil
}

func (r reviewRepo) RatingSummary(_ context.Context, productID uuid.UUID) (*model.RatingSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &model.RatingSummary{ProductID: productID}
	sum := 0
	for _, rv := range r.reviews {
		if rv.ProductID == productID && rv.Approved {
			sum += rv.Rating
			s.Count++
		}
	}
	if s.Count > 0 {
		s.Average = decimal.NewFromInt(int64(sum)).DivRound(decimal.NewFromInt(int64(s.Count)), 2)
	}
	return s, nil
}

type notificationRepo struct{ *store }

func sameOwner(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r notificationRepo) Create(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = uuid.New()
	n.Seq = int64(len(r.notifications) + 1)
	n.CreatedAt = time.Now()
	r.notifications = append(r.notifications, *n)
	return nil
}

func (r notificationRepo) ListAfter(_ context.Context, userID *uuid.UUID, after int64, limit int) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, n := range r.notifications {
		if n.Seq > after && sameOwner(n.UserID, userID) && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r notificationRepo) MarkRead(_ context.Context, userID *uuid.UUID, upTo int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for i := range r.notifications {
		n := &r.notifications[i]
		if n.Seq <= upTo && !n.Read && sameOwner(n.UserID, userID) {
			n.Read = true
			count++
		}
	}
	return count, nil
}

type capturedMail struct{ to, body string }

type captureMailer struct {
	mu   sync.Mutex
	sent []capturedMail
}

func (m *captureMailer) Send(_ context.Context, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, capturedMail{to: to, body: body})
	return nil
}

func (m *captureMailer) lastTo(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].to == to {
			return m.sent[i].body
		}
	}
	return ""
}

// logBuffer collects log output written from handler goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testApp struct {
	router   *gin.Engine
	store    *store
	hub      *events.Hub
	mail     *captureMailer
	payments *service.PaymentService
	logs     *logBuffer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logs := &logBuffer{}
	log := slog.New(slog.NewJSONHandler(logs, nil))
	st := newStore()
	mail := &captureMailer{}
	hub := events.NewHub(8, log)
	t.Cleanup(hub.Close)

	notificationSvc := service.NewNotificationService(notificationRepo{st}, hub, mail, log)
	publisher := events.PublisherFunc(notificationSvc.HandleEvent)

	otpSvc := service.NewOTPService(cache.NewMemoryOTPStore(), mail, config.OTPConfig{
		Length: 6, TTL: 5 * time.Minute, MaxAttempts: 5, ResendCooldown: time.Minute,
	}, log)
	productSvc := service.NewProductService(productRepo{st}, nil)
	paymentSvc := service.NewPaymentService(orderRepo{st}, publisher, testWebhookSecret, log)

	router := NewRouter(Handlers{
		Auth:         NewAuthHandler(service.NewAuthService(userRepo{st}, otpSvc, testJWTSecret, time.Hour)),
		Product:      NewProductHandler(productSvc),
		Order:        NewOrderHandler(service.NewOrderService(orderRepo{st}, productRepo{st}, productSvc, publisher, log)),
		Review:       NewReviewHandler(service.NewReviewService(reviewRepo{st}, orderRepo{st})),
		Payment:      NewPaymentHandler(paymentSvc),
		Notification: NewNotificationHandler(notificationSvc, hub, 20*time.Millisecond),
	}, testJWTSecret, log)

	return &testApp{router: router, store: st, hub: hub, mail: mail, payments: paymentSvc, logs: logs}
}

func token(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(), "role": role, "email": "someone@example.com",
		"exp": time.Now().Add(time.Hour).Unix(), "iat": time.Now().Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return s
}

func (a *testApp) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testApp) addProduct(price string, stock int) *model.Product {
	p := &model.Product{
		Name: "Mono 410W", Description: "Monocrystalline panel", Wattage: 410,
		Price: decimal.RequireFromString(price), Stock: stock,
	}
	_ = productRepo{a.store}.Create(context.Background(), p)
	return p
}

func orderBody(productID uuid.UUID, qty int) map[string]any {
	return map[string]any{
		"product_id": productID,
		"quantity":   qty,
		"contact": map[string]any{
			"name": "Ada Lovelace", "email": "ada@example.com",
			"phone": "+44 20 7946 0958", "address": "12 Solar Way",
		},
	}
}
