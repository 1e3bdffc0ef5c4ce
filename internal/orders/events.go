package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

// Envelope is the wire format of every event leaving the process.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// Summary is what the notification collaborator learns about an order.
type Summary struct {
	OrderID       string          `json:"order_id"`
	Number        string          `json:"number"`
	Owner         string          `json:"owner"`
	Status        Status          `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	ItemCount     int             `json:"item_count"`
	Total         decimal.Decimal `json:"total"`
	Lines         []Line          `json:"lines"`
}

func Summarize(o *Order) Summary {
	return Summary{
		OrderID:       o.ID,
		Number:        o.Number,
		Owner:         o.Owner,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		ItemCount:     o.ItemCount(),
		Total:         o.Total,
		Lines:         append([]Line(nil), o.Lines...),
	}
}

type Event struct {
	ID         string        `json:"event_id"`
	Type       string        `json:"event_type"`
	OccurredAt time.Time     `json:"occurred_at"`
	Order      Summary       `json:"order"`
	Change     *HistoryEntry `json:"change,omitempty"`
}

// Notifier is the fire-and-forget notification collaborator. Notify must not block
// and has no failure mode visible to the caller; ctx only carries trace context and
// its cancellation is ignored.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}
