// Package apperr defines the error kinds every storefront operation reports.
// Callers branch on the kind (errors.Is against a sentinel, or KindOf) and never
// on message text.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidQuantity
	KindInvalidInput
	KindInsufficientStock
	KindEmptyCart
	KindStockConflict
	KindInvalidTransition
	KindPaymentDeclined
	KindAlreadyExists
	KindNotEligible
	KindStoreUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:           "UNKNOWN",
	KindNotFound:          "NOT_FOUND",
	KindInvalidQuantity:   "INVALID_QUANTITY",
	KindInvalidInput:      "INVALID_INPUT",
	KindInsufficientStock: "INSUFFICIENT_STOCK",
	KindEmptyCart:         "EMPTY_CART",
	KindStockConflict:     "STOCK_CONFLICT",
	KindInvalidTransition: "INVALID_TRANSITION",
	KindPaymentDeclined:   "PAYMENT_DECLINED",
	KindAlreadyExists:     "ALREADY_EXISTS",
	KindNotEligible:       "NOT_ELIGIBLE",
	KindStoreUnavailable:  "STORE_UNAVAILABLE",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Conflict names one product whose requested quantity could not be served.
type Conflict struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type Error struct {
	Kind      Kind
	Op        string
	Msg       string
	Conflicts []Conflict
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(strings.ToLower(e.Kind.String()))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidQuantity   = &Error{Kind: KindInvalidQuantity}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrEmptyCart         = &Error{Kind: KindEmptyCart}
	ErrStockConflict     = &Error{Kind: KindStockConflict}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrPaymentDeclined   = &Error{Kind: KindPaymentDeclined}
	ErrAlreadyExists     = &Error{Kind: KindAlreadyExists}
	ErrNotEligible       = &Error{Kind: KindNotEligible}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
)

func E(kind Kind, op, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// StockConflict reports every short product of a checkout at once.
func StockConflict(op string, conflicts []Conflict) *Error {
	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.ProductID)
	}
	return &Error{
		Kind:      KindStockConflict,
		Op:        op,
		Msg:       "stock changed for " + strings.Join(ids, ", "),
		Conflicts: conflicts,
	}
}

// Unavailable wraps a storage failure. Errors that already carry a kind pass through.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStoreUnavailable, Op: op, Err: err}
}

func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// ConflictsOf returns the conflict details of a StockConflict error, if any.
func ConflictsOf(err error) []Conflict {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Conflicts
	}
	return nil
}
