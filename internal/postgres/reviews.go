package postgres

import (
	"context"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/review"
)

func (s *Store) CreateReview(ctx context.Context, r review.Review) (review.Review, error) {
	const op = "postgres.CreateReview"
	_, err := s.DB.Exec(ctx, `
		INSERT INTO reviews (id, order_id, product_id, owner_id, rating, body, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.OrderID, r.ProductID, r.Owner, r.Rating, r.Text, string(r.Status), r.CreatedAt)
	if uniqueViolation(err) {
		return review.Review{}, apperr.E(apperr.KindAlreadyExists, op, "%s already reviewed product %s", r.Owner, r.ProductID)
	}
	if err != nil {
		return review.Review{}, apperr.Unavailable(op, err)
	}
	return r, nil
}

func (s *Store) ListReviews(ctx context.Context, productID string) ([]review.Review, error) {
	const op = "postgres.ListReviews"
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, product_id, owner_id, rating, body, status, created_at
		FROM reviews WHERE product_id=$1 ORDER BY created_at DESC`, productID)
	if err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	defer rows.Close()

	var out []review.Review
	for rows.Next() {
		var r review.Review
		var status string
		if err := rows.Scan(&r.ID, &r.OrderID, &r.ProductID, &r.Owner, &r.Rating, &r.Text, &status, &r.CreatedAt); err != nil {
			return nil, apperr.Unavailable(op, err)
		}
		r.Status = review.Status(status)
		out = append(out, r)
	}
	return out, apperr.Unavailable(op, rows.Err())
}
