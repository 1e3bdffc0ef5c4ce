package orders

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// HistoryEntry records one status change; entries are only ever appended.
type HistoryEntry struct {
	From  Status    `json:"from,omitempty"`
	To    Status    `json:"to"`
	Actor string    `json:"actor"`
	Note  string    `json:"note,omitempty"`
	At    time.Time `json:"at"`
}

type Order struct {
	ID              string          `json:"id"`
	Number          string          `json:"number"`
	Owner           string          `json:"owner"`
	Lines           []Line          `json:"lines"`
	Total           decimal.Decimal `json:"total"`
	Status          Status          `json:"status"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	PaymentRef      string          `json:"payment_ref,omitempty"`
	ShippingAddress string          `json:"shipping_address"`
	BillingAddress  string          `json:"billing_address,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	History         []HistoryEntry  `json:"history"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CanMoveTo applies the graph plus the rule that a cancelled order is only
// refundable when it was paid.
func (o *Order) CanMoveTo(to Status) bool {
	if !CanTransition(o.Status, to) {
		return false
	}
	if o.Status == StatusCancelled && to == StatusRefunded {
		return o.PaymentStatus == PaymentPaid
	}
	return true
}

// Terminal reports whether no further transition is possible.
func (o *Order) Terminal() bool {
	for to := range validNext[o.Status] {
		if o.CanMoveTo(to) {
			return false
		}
	}
	return true
}

func (o *Order) ItemCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

func SumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// NewNumber returns a human readable order number, LSM<yyyymmdd><4 digits>.
func NewNumber(now time.Time) string {
	return fmt.Sprintf("LSM%s%04d", now.Format("20060102"), rand.IntN(10000))
}

// Change is one requested status change as handed to a Repository.
type Change struct {
	From          Status
	To            Status
	Actor         string
	Note          string
	At            time.Time
	Restock       bool
	PaymentStatus PaymentStatus // empty keeps the current value
}

func (c Change) Entry() HistoryEntry {
	return HistoryEntry{From: c.From, To: c.To, Actor: c.Actor, Note: c.Note, At: c.At}
}

// Apply mutates o in memory the way a repository persists a change.
func (c Change) Apply(o *Order) {
	o.Status = c.To
	if c.PaymentStatus != "" {
		o.PaymentStatus = c.PaymentStatus
	}
	o.UpdatedAt = c.At
	o.History = append(o.History, c.Entry())
}

// Clone deep-copies lines and history so stores can hand out orders safely.
func (o Order) Clone() Order {
	o.Lines = append([]Line(nil), o.Lines...)
	o.History = append([]HistoryEntry(nil), o.History...)
	return o
}
