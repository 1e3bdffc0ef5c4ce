package orders

import "strings"

type Status string

const (
	StatusPlaced    Status = "PLACED"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// Fulfillment moves one step at a time; nothing skips forward.
var validNext = map[Status]map[Status]bool{
	StatusPlaced:    {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {StatusRefunded: true},
	StatusCancelled: {StatusRefunded: true},
	StatusRefunded:  {},
}

// CanTransition checks the bare graph. Order.CanMoveTo adds the payment rule for
// refunds of cancelled orders.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := validNext[st]
	return st, ok
}

// RestocksOnEntry reports whether entering the status returns stock to the catalog.
func RestocksOnEntry(to Status) bool { return to == StatusCancelled }

type PaymentMethod string

const (
	PaymentCOD   PaymentMethod = "COD"
	PaymentCard  PaymentMethod = "CARD"
	PaymentBkash PaymentMethod = "BKASH"
	PaymentNagad PaymentMethod = "NAGAD"
)

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case PaymentCOD, PaymentCard, PaymentBkash, PaymentNagad:
		return m, true
	case "":
		return PaymentCOD, true
	}
	return m, false
}

// Prepaid methods are charged at checkout; cash on delivery is settled on delivery.
func (m PaymentMethod) Prepaid() bool { return m != PaymentCOD }

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)
