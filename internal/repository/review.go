package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/flicky/solar-storefront/internal/model"
)

var ErrDuplicateReview = errors.New("review already exists for order")

type ReviewFilter struct {
	Approved  *bool
	ProductID uuid.UUID
	Limit     int
	Offset    int
}

type ReviewRepository interface {
	Create(ctx context.Context, review *model.Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Review, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Review, error)
	List(ctx context.Context, filter ReviewFilter) ([]model.Review, error)
	Approve(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	RatingSummary(ctx context.Context, productID uuid.UUID) (*model.RatingSummary, error)
}

type pgReviewRepo struct{ pool *pgxpool.Pool }

func NewReviewRepository(pool *pgxpool.Pool) ReviewRepository {
	return &pgReviewRepo{pool: pool}
}

const reviewColumns = `id, order_id, user_id, product_id, rating, comment, approved, verified_order, created_at, updated_at`

func (r *pgReviewRepo) Create(ctx context.Context, review *model.Review) error {
	review.ID = uuid.New()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO reviews (id, order_id, user_id, product_id, rating, comment, approved, verified_order, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING created_at, updated_at`,
		review.ID, review.OrderID, review.UserID, review.ProductID, review.Rating, review.Comment,
		review.Approved, review.VerifiedOrder,
	).Scan(&review.CreatedAt, &review.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReview
		}
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (r *pgReviewRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Review, error) {
	return r.getOne(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id)
}

func (r *pgReviewRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Review, error) {
	return r.getOne(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE order_id = $1`, orderID)
}

func (r *pgReviewRepo) getOne(ctx context.Context, query string, arg any) (*model.Review, error) {
	rv := &model.Review{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&rv.ID, &rv.OrderID, &rv.UserID, &rv.ProductID, &rv.Rating, &rv.Comment,
		&rv.Approved, &rv.VerifiedOrder, &rv.CreatedAt, &rv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return rv, nil
}

func (r *pgReviewRepo) List(ctx context.Context, filter ReviewFilter) ([]model.Review, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Approved != nil {
		args = append(args, *filter.Approved)
		conds = append(conds, fmt.Sprintf("approved = $%d", len(args)))
	}
	if filter.ProductID != uuid.Nil {
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("product_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM reviews%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		reviewColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		var rv model.Review
		if err := rows.Scan(
			&rv.ID, &rv.OrderID, &rv.UserID, &rv.ProductID, &rv.Rating, &rv.Comment,
			&rv.Approved, &rv.VerifiedOrder, &rv.CreatedAt, &rv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}

func (r *pgReviewRepo) Approve(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `UPDATE reviews SET approved = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("approve review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgReviewRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgReviewRepo) RatingSummary(ctx context.Context, productID uuid.UUID) (*model.RatingSummary, error) {
	summary := &model.RatingSummary{ProductID: productID}
	var avg decimal.NullDecimal
	err := r.pool.QueryRow(ctx,
		`SELECT ROUND(AVG(rating)::numeric, 2), COUNT(*) FROM reviews WHERE product_id = $1 AND approved`, productID,
	).Scan(&avg, &summary.Count)
	if err != nil {
		return nil, fmt.Errorf("rating summary: %w", err)
	}
	if avg.Valid {
		summary.Average = avg.Decimal
	}
	return summary, nil
}
