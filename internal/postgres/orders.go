package postgres

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const numberAttempts = 5

// PlaceOrder locks every product row (in id order, so concurrent checkouts cannot
// deadlock), checks all lines, then decrements and inserts. A short line rolls the
// whole transaction back.
func (s *Store) PlaceOrder(ctx context.Context, o orders.Order) (orders.Order, error) {
	const op = "postgres.PlaceOrder"
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return orders.Order{}, apperr.Unavailable(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lines := slices.Clone(o.Lines)
	slices.SortFunc(lines, func(a, b orders.Line) int { return cmp.Compare(a.ProductID, b.ProductID) })

	var conflicts []apperr.Conflict
	for _, l := range lines {
		var stock int
		var status string
		err := tx.QueryRow(ctx, `SELECT stock, status FROM products WHERE id=$1 FOR UPDATE`, l.ProductID).Scan(&stock, &status)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			conflicts = append(conflicts, apperr.Conflict{ProductID: l.ProductID, Requested: l.Quantity})
		case err != nil:
			return orders.Order{}, apperr.Unavailable(op, err)
		case catalog.Status(status) == catalog.StatusInactive:
			conflicts = append(conflicts, apperr.Conflict{ProductID: l.ProductID, Requested: l.Quantity})
		case stock < l.Quantity:
			conflicts = append(conflicts, apperr.Conflict{ProductID: l.ProductID, Requested: l.Quantity, Available: stock})
		}
	}
	if len(conflicts) > 0 {
		return orders.Order{}, apperr.StockConflict(op, conflicts) // rollback via defer
	}

	for _, l := range lines {
		ct, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1 AND stock >= $2`, l.ProductID, l.Quantity)
		if err != nil {
			return orders.Order{}, apperr.Unavailable(op, err)
		}
		if ct.RowsAffected() != 1 {
			return orders.Order{}, apperr.StockConflict(op, []apperr.Conflict{{ProductID: l.ProductID, Requested: l.Quantity}})
		}
	}

	if err := insertOrder(ctx, tx, &o); err != nil {
		return orders.Order{}, apperr.Unavailable(op, err)
	}
	for _, l := range o.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, name, qty, unit_price)
			VALUES ($1,$2,$3,$4,$5::numeric)`,
			o.ID, l.ProductID, l.Name, l.Quantity, l.UnitPrice.String()); err != nil {
			return orders.Order{}, apperr.Unavailable(op, err)
		}
	}
	for _, h := range o.History {
		if err := insertHistory(ctx, tx, o.ID, h); err != nil {
			return orders.Order{}, apperr.Unavailable(op, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return orders.Order{}, apperr.Unavailable(op, err)
	}
	return o, nil
}

// insertOrder retries with a fresh number when the human order number collides. Each
// attempt runs in a savepoint so a collision does not abort the outer transaction.
func insertOrder(ctx context.Context, tx pgx.Tx, o *orders.Order) error {
	for attempt := 0; ; attempt++ {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return err
		}
		_, err = sp.Exec(ctx, `
			INSERT INTO orders (id, number, owner_id, status, total, payment_method, payment_status, payment_ref,
				shipping_address, billing_address, notes, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8,$9,$10,$11,$12,$13)`,
			o.ID, o.Number, o.Owner, string(o.Status), o.Total.String(), string(o.PaymentMethod), string(o.PaymentStatus),
			o.PaymentRef, o.ShippingAddress, o.BillingAddress, o.Notes, o.CreatedAt, o.UpdatedAt)
		if err == nil {
			return sp.Commit(ctx)
		}
		_ = sp.Rollback(ctx)
		if !uniqueViolation(err) || attempt+1 >= numberAttempts {
			return err
		}
		o.Number = orders.NewNumber(o.CreatedAt)
	}
}

func insertHistory(ctx context.Context, tx pgx.Tx, orderID string, h orders.HistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_history (order_id, from_status, to_status, actor, note, at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		orderID, string(h.From), string(h.To), h.Actor, h.Note, h.At)
	return err
}

const orderCols = `id, number, owner_id, status, total::text, payment_method, payment_status, payment_ref,
	shipping_address, billing_address, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	var total, status, method, payStatus string
	err := row.Scan(&o.ID, &o.Number, &o.Owner, &status, &total, &method, &payStatus, &o.PaymentRef,
		&o.ShippingAddress, &o.BillingAddress, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.Status = orders.Status(status)
	o.PaymentMethod = orders.PaymentMethod(method)
	o.PaymentStatus = orders.PaymentStatus(payStatus)
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return o, fmt.Errorf("order %s total %q: %w", o.ID, total, err)
	}
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	const op = "postgres.GetOrder"
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, apperr.E(apperr.KindNotFound, op, "order %s", id)
	}
	if err != nil {
		return orders.Order{}, apperr.Unavailable(op, err)
	}
	list := []orders.Order{o}
	if err := s.loadDetails(ctx, list); err != nil {
		return orders.Order{}, apperr.Unavailable(op, err)
	}
	return list[0], nil
}

func (s *Store) ListOrders(ctx context.Context, owner string) ([]orders.Order, error) {
	const op = "postgres.ListOrders"
	rows, err := s.DB.Query(ctx, `SELECT `+orderCols+` FROM orders WHERE owner_id=$1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperr.Unavailable(op, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	if err := s.loadDetails(ctx, out); err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	return out, nil
}

// loadDetails fills lines and history for a batch of orders with two queries.
func (s *Store) loadDetails(ctx context.Context, list []orders.Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	idx := make(map[string]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		idx[o.ID] = i
	}

	rows, err := s.DB.Query(ctx, `
		SELECT order_id, product_id, name, qty, unit_price::text
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, product_id`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var orderID, price string
		var l orders.Line
		if err := rows.Scan(&orderID, &l.ProductID, &l.Name, &l.Quantity, &price); err != nil {
			rows.Close()
			return err
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			rows.Close()
			return err
		}
		o := &list[idx[orderID]]
		o.Lines = append(o.Lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.DB.Query(ctx, `
		SELECT order_id, from_status, to_status, actor, note, at
		FROM order_history WHERE order_id = ANY($1) ORDER BY order_id, id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var orderID, from, to string
		var h orders.HistoryEntry
		if err := rows.Scan(&orderID, &from, &to, &h.Actor, &h.Note, &h.At); err != nil {
			return err
		}
		h.From, h.To = orders.Status(from), orders.Status(to)
		o := &list[idx[orderID]]
		o.History = append(o.History, h)
	}
	return rows.Err()
}

// ApplyChange updates the status only if it is still c.From, appends the history row
// and, for cancellations, returns every line to stock, all in one transaction.
func (s *Store) ApplyChange(ctx context.Context, id string, c orders.Change) (orders.Order, error) {
	const op = "postgres.ApplyChange"
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return orders.Order{}, apperr.Unavailable(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status=$3, payment_status=COALESCE(NULLIF($4, ''), payment_status), updated_at=$5
		WHERE id=$1 AND status=$2`,
		id, string(c.From), string(c.To), string(c.PaymentStatus), c.At)
	if err != nil {
		return orders.Order{}, apperr.Unavailable(op, err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
			return orders.Order{}, apperr.Unavailable(op, err)
		}
		if !exists {
			return orders.Order{}, apperr.E(apperr.KindNotFound, op, "order %s", id)
		}
		return orders.Order{}, apperr.E(apperr.KindInvalidTransition, op, "order %s is no longer %s", id, c.From)
	}

	if c.Restock {
		if err := restock(ctx, tx, id); err != nil {
			return orders.Order{}, apperr.Unavailable(op, err)
		}
	}
	if err := insertHistory(ctx, tx, id, c.Entry()); err != nil {
		return orders.Order{}, apperr.Unavailable(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return orders.Order{}, apperr.Unavailable(op, err)
	}
	return s.GetOrder(ctx, id)
}

func restock(ctx context.Context, tx pgx.Tx, orderID string) error {
	rows, err := tx.Query(ctx, `SELECT product_id, qty FROM order_items WHERE order_id=$1 ORDER BY product_id`, orderID)
	if err != nil {
		return err
	}
	type rec struct {
		pid string
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.qty); err != nil {
			rows.Close()
			return err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, x.pid, x.qty); err != nil {
			return err
		}
	}
	return nil
}
