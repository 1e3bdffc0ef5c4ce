package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store implements the catalog, ledger, order and review contracts on one pool.
type Store struct{ DB *pgxpool.Pool }

const productCols = `id, sku, name, description, category, brand, price::text, stock, featured, status, created_at, updated_at`

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	var price, status string
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.Brand,
		&price, &p.Stock, &p.Featured, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Status = catalog.Status(status)
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return p, fmt.Errorf("product %s price %q: %w", p.ID, price, err)
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	const op = "postgres.GetProduct"
	p, err := scanProduct(s.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return p, apperr.E(apperr.KindNotFound, op, "product %s", id)
	}
	return p, apperr.Unavailable(op, err)
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	const op = "postgres.ListProducts"
	rows, err := s.DB.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY id`)
	if err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperr.Unavailable(op, err)
		}
		out = append(out, p)
	}
	return out, apperr.Unavailable(op, rows.Err())
}

func (s *Store) SaveProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	const op = "postgres.SaveProduct"
	if err := p.Validate(); err != nil {
		return catalog.Product{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := s.DB.QueryRow(ctx, `
		INSERT INTO products (id, sku, name, description, category, brand, price, stock, featured, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			sku=EXCLUDED.sku, name=EXCLUDED.name, description=EXCLUDED.description,
			category=EXCLUDED.category, brand=EXCLUDED.brand, price=EXCLUDED.price,
			stock=EXCLUDED.stock, featured=EXCLUDED.featured, status=EXCLUDED.status,
			updated_at=now()
		RETURNING `+productCols,
		p.ID, p.SKU, p.Name, p.Description, p.Category, p.Brand, p.Price.String(), p.Stock, p.Featured, string(p.Status))
	saved, err := scanProduct(row)
	if err != nil {
		return catalog.Product{}, apperr.Unavailable(op, err)
	}
	return saved, nil
}

// AdjustStock never lets stock go negative: the guard is part of the UPDATE.
func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (int, error) {
	const op = "postgres.AdjustStock"
	var stock int
	err := s.DB.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id=$1 AND stock + $2 >= 0
		RETURNING stock`, id, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.Unavailable(op, err)
	}

	err = s.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, id).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.E(apperr.KindNotFound, op, "product %s", id)
	}
	if err != nil {
		return 0, apperr.Unavailable(op, err)
	}
	return 0, &apperr.Error{
		Kind:      apperr.KindInsufficientStock,
		Op:        op,
		Msg:       "not enough stock for " + id,
		Conflicts: []apperr.Conflict{{ProductID: id, Requested: -delta, Available: stock}},
	}
}

func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
