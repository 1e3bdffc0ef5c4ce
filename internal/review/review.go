// Package review accepts product reviews from owners of delivered orders.
package review

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/google/uuid"
)

const (
	MinRating  = 1
	MaxRating  = 5
	MinTextLen = 10
	MaxTextLen = 500
)

type Status string

// Reviews are published immediately; there is no moderation queue.
const StatusApproved Status = "approved"

type Review struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	ProductID string    `json:"product_id"`
	Owner     string    `json:"owner"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository stores reviews. CreateReview fails with apperr.ErrAlreadyExists when the
// owner already reviewed the product.
type Repository interface {
	CreateReview(ctx context.Context, r Review) (Review, error)
	ListReviews(ctx context.Context, productID string) ([]Review, error)
}

type Orders interface {
	GetOrder(ctx context.Context, id string) (orders.Order, error)
}

type Service struct {
	Repo   Repository
	Orders Orders
	Log    *slog.Logger
	Now    func() time.Time
}

func (s *Service) Submit(ctx context.Context, r Review) (Review, error) {
	const op = "review.Submit"
	r.Text = strings.TrimSpace(r.Text)
	if r.Rating < MinRating || r.Rating > MaxRating {
		return Review{}, apperr.E(apperr.KindInvalidInput, op, "rating must be between %d and %d", MinRating, MaxRating)
	}
	if n := utf8.RuneCountInString(r.Text); n < MinTextLen || n > MaxTextLen {
		return Review{}, apperr.E(apperr.KindInvalidInput, op, "text must be %d-%d characters", MinTextLen, MaxTextLen)
	}

	o, err := s.Orders.GetOrder(ctx, r.OrderID)
	if err != nil {
		return Review{}, err
	}
	if o.Owner != r.Owner {
		return Review{}, apperr.E(apperr.KindNotEligible, op, "order %s belongs to another owner", r.OrderID)
	}
	if o.Status != orders.StatusDelivered {
		return Review{}, apperr.E(apperr.KindNotEligible, op, "order %s is %s, not delivered", r.OrderID, o.Status)
	}
	if !containsProduct(&o, r.ProductID) {
		return Review{}, apperr.E(apperr.KindNotFound, op, "product %s is not part of order %s", r.ProductID, r.OrderID)
	}

	r.ID = uuid.NewString()
	r.Status = StatusApproved
	r.CreatedAt = s.now()
	saved, err := s.Repo.CreateReview(ctx, r)
	if err != nil {
		return Review{}, err
	}
	s.logger().Info("review submitted", "review_id", saved.ID, "product_id", saved.ProductID, "rating", saved.Rating)
	return saved, nil
}

func (s *Service) ListForProduct(ctx context.Context, productID string) ([]Review, error) {
	return s.Repo.ListReviews(ctx, productID)
}

func containsProduct(o *orders.Order, productID string) bool {
	for _, l := range o.Lines {
		if l.ProductID == productID {
			return true
		}
	}
	return false
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}
