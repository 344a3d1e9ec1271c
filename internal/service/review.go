package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/solar-storefront/internal/dto"
	"github.com/flicky/solar-storefront/internal/model"
	"github.com/flicky/solar-storefront/internal/repository"
)

var (
	ErrInvalidRating  = errors.New("rating must be between 1 and 5")
	ErrReviewExists   = errors.New("order already reviewed")
	ErrReviewNotFound = errors.New("review not found")
)

type ReviewService struct {
	reviewRepo repository.ReviewRepository
	orderRepo  repository.OrderRepository
}

func NewReviewService(reviewRepo repository.ReviewRepository, orderRepo repository.OrderRepository) *ReviewService {
	return &ReviewService{reviewRepo: reviewRepo, orderRepo: orderRepo}
}

// Create stores a review awaiting moderation. Only the customer who placed
// the order may review it, once.
func (s *ReviewService) Create(ctx context.Context, userID uuid.UUID, req dto.CreateReviewRequest) (*model.Review, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, ErrInvalidRating
	}
	order, err := s.orderRepo.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, ErrOrderAccessDenied
	}
	existing, err := s.reviewRepo.GetByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	if existing != nil {
		return nil, ErrReviewExists
	}

	review := &model.Review{
		OrderID:       order.ID,
		UserID:        userID,
		ProductID:     order.ProductID,
		Rating:        req.Rating,
		Comment:       strings.TrimSpace(req.Comment),
		VerifiedOrder: order.Status == model.OrderStatusCompleted,
	}
	if err := s.reviewRepo.Create(ctx, review); err != nil {
		if errors.Is(err, repository.ErrDuplicateReview) {
			return nil, ErrReviewExists
		}
		return nil, fmt.Errorf("create review: %w", err)
	}
	return review, nil
}

func (s *ReviewService) ListApproved(ctx context.Context, req dto.ListReviewsRequest) ([]model.Review, error) {
	approved := true
	return s.list(ctx, &approved, req)
}

func (s *ReviewService) ListPending(ctx context.Context, req dto.ListReviewsRequest) ([]model.Review, error) {
	approved := false
	return s.list(ctx, &approved, req)
}

func (s *ReviewService) list(ctx context.Context, approved *bool, req dto.ListReviewsRequest) ([]model.Review, error) {
	filter := repository.ReviewFilter{
		Approved: approved,
		Limit:    req.Limit,
		Offset:   (req.Page - 1) * req.Limit,
	}
	if req.ProductID != "" {
		id, err := uuid.Parse(req.ProductID)
		if err != nil {
			return nil, ErrProductNotFound
		}
		filter.ProductID = id
	}
	reviews, err := s.reviewRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

func (s *ReviewService) Approve(ctx context.Context, id uuid.UUID) (*model.Review, error) {
	if err := s.reviewRepo.Approve(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}
	review, err := s.reviewRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	if review == nil {
		return nil, ErrReviewNotFound
	}
	return review, nil
}

func (s *ReviewService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.reviewRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReviewNotFound
		}
		return err
	}
	return nil
}

func (s *ReviewService) RatingSummary(ctx context.Context, productID uuid.UUID) (*model.RatingSummary, error) {
	return s.reviewRepo.RatingSummary(ctx, productID)
}
