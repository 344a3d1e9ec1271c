package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/solar-storefront/internal/model"
)

func seedUserAndProduct(t *testing.T, stock int) (*model.User, *model.Product) {
	t.Helper()
	ctx := context.Background()

	user := &model.User{
		Email: uuid.NewString() + "@example.com", Password: "h",
		FirstName: "O", LastName: "U", Role: model.RoleCustomer,
	}
	require.NoError(t, NewUserRepository(testPool).Create(ctx, user))

	product := &model.Product{
		Name: "Mono 400W", Description: "panel", Wattage: 400,
		Price: decimal.NewFromFloat(250), Stock: stock, Active: true,
	}
	require.NoError(t, NewProductRepository(testPool).Create(ctx, product))
	return user, product
}

func newTestOrder(user *model.User, product *model.Product, qty int) *model.Order {
	return &model.Order{
		Number:        "SOL-" + uuid.NewString()[:8],
		UserID:        user.ID,
		Contact:       model.Contact{Name: "O U", Email: user.Email},
		ProductID:     product.ID,
		Quantity:      qty,
		UnitPrice:     product.Price,
		TotalPrice:    product.Price.Mul(decimal.NewFromInt(int64(qty))),
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
	}
}

func TestUserRepo_CreateAndVerify(t *testing.T) {
	cleanupTable(t, allTables...)

	repo := NewUserRepository(testPool)
	ctx := context.Background()

	user := &model.User{
		Email: "test@example.com", Password: "hashed",
		FirstName: "John", LastName: "Doe", Role: model.RoleCustomer,
	}
	require.NoError(t, repo.Create(ctx, user))
	assert.NotEqual(t, uuid.Nil, user.ID)

	require.NoError(t, repo.MarkVerified(ctx, user.ID))

	found, err := repo.GetByEmail(ctx, "test@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Verified)

	missing, err := repo.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "test@example.com", byID.Email)

	dup := &model.User{Email: "test@example.com", Password: "x", FirstName: "J", LastName: "D", Role: model.RoleCustomer}
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrDuplicateEmail)
}

func TestProductRepo_CRUD(t *testing.T) {
	cleanupTable(t, allTables...)

	repo := NewProductRepository(testPool)
	ctx := context.Background()

	product := &model.Product{
		Name: "Poly 300W", Description: "Desc", Wattage: 300,
		Price: decimal.NewFromFloat(129.99), Stock: 100, Active: true,
	}
	require.NoError(t, repo.Create(ctx, product))

	found, err := repo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "Poly 300W", found.Name)
	assert.True(t, product.Price.Equal(found.Price))

	product.Name = "Poly 310W"
	require.NoError(t, repo.Update(ctx, product))

	products, total, err := repo.List(ctx, model.ProductFilter{Search: "310", MinWattage: 300, Sort: "price", Order: "asc", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, products, 1)

	require.NoError(t, repo.Delete(ctx, product.ID))
	found, _ = repo.GetByID(ctx, product.ID)
	assert.False(t, found.Active)

	_, total, err = repo.List(ctx, model.ProductFilter{Sort: "name", Order: "asc", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestOrderRepo_CreateReservesStock(t *testing.T) {
	cleanupTable(t, allTables...)
	user, product := seedUserAndProduct(t, 5)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	order := newTestOrder(user, product, 3)
	require.NoError(t, repo.Create(ctx, order))
	assert.Equal(t, 1, order.Version)

	p, _ := NewProductRepository(testPool).GetByID(ctx, product.ID)
	assert.Equal(t, 2, p.Stock)

	err := repo.Create(ctx, newTestOrder(user, product, 3))
	assert.ErrorIs(t, err, ErrInsufficientStock)

	found, err := repo.GetByNumber(ctx, order.Number)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	assert.True(t, order.TotalPrice.Equal(found.TotalPrice))
}

func TestOrderRepo_UpdateVersionCheck(t *testing.T) {
	cleanupTable(t, allTables...)
	user, product := seedUserAndProduct(t, 5)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	order := newTestOrder(user, product, 1)
	require.NoError(t, repo.Create(ctx, order))

	order.Status = model.OrderStatusConfirmed
	require.NoError(t, repo.Update(ctx, order, 1))
	assert.Equal(t, 2, order.Version)

	stale := *order
	stale.Status = model.OrderStatusCancelled
	assert.ErrorIs(t, repo.Update(ctx, &stale, 1), ErrVersionMismatch)

	since := time.Now().Add(-time.Minute)
	orders, total, err := repo.List(ctx, model.OrderFilter{UpdatedSince: since, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, model.OrderStatusConfirmed, orders[0].Status)
}

func TestOrderRepo_CancelRestocks(t *testing.T) {
	cleanupTable(t, allTables...)
	user, product := seedUserAndProduct(t, 4)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	order := newTestOrder(user, product, 4)
	require.NoError(t, repo.Create(ctx, order))

	order.Status = model.OrderStatusCancelled
	require.NoError(t, repo.Cancel(ctx, order, 1))

	p, _ := NewProductRepository(testPool).GetByID(ctx, product.ID)
	assert.Equal(t, 4, p.Stock)
}

func TestReviewRepo_Lifecycle(t *testing.T) {
	cleanupTable(t, allTables...)
	user, product := seedUserAndProduct(t, 5)
	ctx := context.Background()

	order := newTestOrder(user, product, 1)
	require.NoError(t, NewOrderRepository(testPool).Create(ctx, order))

	repo := NewReviewRepository(testPool)
	review := &model.Review{OrderID: order.ID, UserID: user.ID, ProductID: product.ID, Rating: 4, Comment: "good"}
	require.NoError(t, repo.Create(ctx, review))

	dup := &model.Review{OrderID: order.ID, UserID: user.ID, ProductID: product.ID, Rating: 2}
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrDuplicateReview)

	approved := true
	list, err := repo.List(ctx, ReviewFilter{Approved: &approved, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, repo.Approve(ctx, review.ID))
	summary, err := repo.RatingSummary(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
	assert.True(t, decimal.NewFromInt(4).Equal(summary.Average))

	require.NoError(t, repo.Delete(ctx, review.ID))
	found, err := repo.GetByID(ctx, review.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestNotificationRepo_ListAfterAndMarkRead(t *testing.T) {
	cleanupTable(t, allTables...)
	user, product := seedUserAndProduct(t, 5)
	ctx := context.Background()

	order := newTestOrder(user, product, 1)
	require.NoError(t, NewOrderRepository(testPool).Create(ctx, order))

	repo := NewNotificationRepository(testPool)
	first := &model.Notification{UserID: &user.ID, OrderID: order.ID, Kind: model.EventOrderCreated, Message: "a"}
	second := &model.Notification{UserID: &user.ID, OrderID: order.ID, Kind: model.EventOrderStatusChanged, Message: "b"}
	admin := &model.Notification{OrderID: order.ID, Kind: model.EventOrderCreated, Message: "c"}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.Create(ctx, admin))
	assert.Greater(t, second.Seq, first.Seq)

	list, err := repo.ListAfter(ctx, &user.ID, first.Seq, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Message)

	adminList, err := repo.ListAfter(ctx, nil, 0, 10)
	require.NoError(t, err)
	require.Len(t, adminList, 1)
	assert.Nil(t, adminList[0].UserID)

	n, err := repo.MarkRead(ctx, &user.ID, second.Seq)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOrderRepo_UpdatedSinceSeesLateCommits(t *testing.T) {
	cleanupTable(t, allTables...)
	user, product := seedUserAndProduct(t, 5)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	slow := newTestOrder(user, product, 1)
	fast := newTestOrder(user, product, 1)
	require.NoError(t, repo.Create(ctx, slow))
	require.NoError(t, repo.Create(ctx, fast))

	// slow is stamped first but commits after fast.
	tx, err := testPool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx,
		`UPDATE orders SET status = 'confirmed', version = version + 1, updated_at = clock_timestamp() WHERE id = $1`,
		slow.ID)
	require.NoError(t, err)

	fast.Status = model.OrderStatusConfirmed
	require.NoError(t, repo.Update(ctx, fast, 1))
	cursor := fast.UpdatedAt

	require.NoError(t, tx.Commit(ctx))

	orders, _, err := repo.List(ctx, model.OrderFilter{UpdatedSince: cursor, Limit: 10})
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	assert.Contains(t, ids, slow.ID, "a commit behind the cursor must still be returned")
	assert.Contains(t, ids, fast.ID)
}

func TestNotificationRepo_SeqVisibleInCommitOrder(t *testing.T) {
	cleanupTable(t, allTables...)
	user, product := seedUserAndProduct(t, 5)
	ctx := context.Background()

	order := newTestOrder(user, product, 1)
	require.NoError(t, NewOrderRepository(testPool).Create(ctx, order))
	repo := NewNotificationRepository(testPool)

	// A writer that has taken the lock and inserted, but not yet committed.
	tx, err := testPool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, notificationSeqLock)
	require.NoError(t, err)
	var slowSeq int64
	require.NoError(t, tx.QueryRow(ctx,
		`INSERT INTO notifications (id, user_id, order_id, kind, message) VALUES ($1, $2, $3, 'order.created', 'slow') RETURNING seq`,
		uuid.New(), user.ID, order.ID,
	).Scan(&slowSeq))

	fast := &model.Notification{UserID: &user.ID, OrderID: order.ID, Kind: model.EventOrderStatusChanged, Message: "fast"}
	done := make(chan error, 1)
	go func() { done <- repo.Create(ctx, fast) }()

	assert.Never(t, func() bool { return len(done) > 0 }, 200*time.Millisecond, 20*time.Millisecond,
		"insert must wait for the in-flight writer")
	list, err := repo.ListAfter(ctx, &user.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, <-done)
	assert.Greater(t, fast.Seq, slowSeq)

	list, err = repo.ListAfter(ctx, &user.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "slow", list[0].Message)
	assert.Equal(t, "fast", list[1].Message)
}
