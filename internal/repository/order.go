package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/solar-storefront/internal/model"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVersionMismatch   = errors.New("version mismatch")
)

// UpdatedSinceOverlap widens updated_since polls backwards. updated_at is
// stamped before commit, so a slower transaction can land behind a poller's
// cursor; rows inside the window come back again and clients skip versions
// they already hold.
const UpdatedSinceOverlap = 5 * time.Second

type OrderRepository interface {
	// Create reserves stock and inserts the order in one transaction.
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetByNumber(ctx context.Context, number string) (*model.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	// List with UpdatedSince set also returns rows up to UpdatedSinceOverlap
	// older than the cursor.
	List(ctx context.Context, filter model.OrderFilter) ([]model.Order, int, error)
	// Update writes status and payment fields if the stored version still
	// equals expectedVersion, then bumps order.Version.
	Update(ctx context.Context, order *model.Order, expectedVersion int) error
	// Cancel is Update plus returning the reserved quantity to stock.
	Cancel(ctx context.Context, order *model.Order, expectedVersion int) error
}

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

const orderColumns = `id, number, user_id, contact_name, contact_email, contact_phone, contact_address,
	product_id, quantity, unit_price, total_price, status, payment_status, payment_reference,
	version, created_at, updated_at`

func (r *pgOrderRepo) Create(ctx context.Context, order *model.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND active AND stock >= $2`,
		order.ProductID, order.Quantity,
	)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrInsufficientStock
	}

	order.ID = uuid.New()
	order.Version = 1
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (id, number, user_id, contact_name, contact_email, contact_phone, contact_address,
			product_id, quantity, unit_price, total_price, status, payment_status, payment_reference,
			version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, clock_timestamp(), clock_timestamp())
		 RETURNING created_at, updated_at`,
		order.ID, order.Number, order.UserID, order.Contact.Name, order.Contact.Email, order.Contact.Phone,
		order.Contact.Address, order.ProductID, order.Quantity, order.UnitPrice, order.TotalPrice,
		order.Status, order.PaymentStatus, order.PaymentReference, order.Version,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func (r *pgOrderRepo) GetByNumber(ctx context.Context, number string) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = $1`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by number: %w", err)
	}
	return order, nil
}

func (r *pgOrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *pgOrderRepo) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		conds = append(conds, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if !filter.UpdatedSince.IsZero() {
		args = append(args, filter.UpdatedSince.Add(-UpdatedSinceOverlap))
		conds = append(conds, fmt.Sprintf("updated_at > $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	// Polling clients pass updated_since and want the oldest change first.
	orderBy := " ORDER BY created_at DESC"
	if !filter.UpdatedSince.IsZero() {
		orderBy = " ORDER BY updated_at ASC"
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM orders%s%s LIMIT $%d OFFSET $%d`,
		orderColumns, where, orderBy, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *pgOrderRepo) Update(ctx context.Context, order *model.Order, expectedVersion int) error {
	return r.compareAndSet(ctx, r.pool, order, expectedVersion)
}

func (r *pgOrderRepo) Cancel(ctx context.Context, order *model.Order, expectedVersion int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.compareAndSet(ctx, tx, order, expectedVersion); err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1`,
		order.ProductID, order.Quantity,
	)
	if err != nil {
		return fmt.Errorf("restock product: %w", err)
	}
	return tx.Commit(ctx)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *pgOrderRepo) compareAndSet(ctx context.Context, q querier, order *model.Order, expectedVersion int) error {
	err := q.QueryRow(ctx,
		`UPDATE orders SET status = $3, payment_status = $4, payment_reference = $5,
			version = version + 1, updated_at = clock_timestamp()
		 WHERE id = $1 AND version = $2
		 RETURNING version, updated_at`,
		order.ID, expectedVersion, order.Status, order.PaymentStatus, order.PaymentReference,
	).Scan(&order.Version, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionMismatch
		}
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.Contact.Name, &o.Contact.Email, &o.Contact.Phone, &o.Contact.Address,
		&o.ProductID, &o.Quantity, &o.UnitPrice, &o.TotalPrice, &o.Status, &o.PaymentStatus, &o.PaymentReference,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
