package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type addItemReq struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type updateItemReq struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type checkoutReq struct {
	PaymentMethod   string `json:"payment_method" validate:"omitempty,oneof=COD CARD BKASH NAGAD cod card bkash nagad"`
	PaymentToken    string `json:"payment_token"`
	ShippingAddress string `json:"shipping_address" validate:"required,max=500"`
	BillingAddress  string `json:"billing_address" validate:"max=500"`
	Notes           string `json:"notes" validate:"max=1000"`
}

type transitionReq struct {
	To    string `json:"to" validate:"required"`
	Actor string `json:"actor" validate:"required"`
	Note  string `json:"note" validate:"max=500"`
}

type reviewReq struct {
	OrderID   string `json:"order_id" validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
	Rating    int    `json:"rating" validate:"gte=1,lte=5"`
	Text      string `json:"text" validate:"required"`
}

type productReq struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0"`
	Featured    bool            `json:"featured"`
	Status      string          `json:"status" validate:"omitempty,oneof=active inactive"`
}

type stockReq struct {
	Delta int `json:"delta" validate:"ne=0"`
}

// quantityFields are the JSON fields whose type errors (1.5, "2") report as
// InvalidQuantity rather than InvalidInput.
var quantityFields = map[string]bool{"quantity": true, "stock": true, "delta": true}

// decode reads a JSON body into v and validates it. Quantity fields fail as
// InvalidQuantity and a missing product id as NotFound, so clients see the same
// kinds the engine reports.
func decode(r *http.Request, v any) error {
	const op = "httpx.decode"
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && quantityFields[typeErr.Field] {
			return apperr.E(apperr.KindInvalidQuantity, op, "%s must be an integer", typeErr.Field)
		}
		return apperr.E(apperr.KindInvalidInput, op, "invalid json: %v", err)
	}
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return apperr.E(apperr.KindInvalidInput, op, "%v", err)
	}
	fe := vErrs[0]
	switch {
	case fe.Field() == "Quantity" || fe.Field() == "Stock" || fe.Field() == "Delta":
		return apperr.E(apperr.KindInvalidQuantity, op, "%s failed %s %s", fe.Field(), fe.Tag(), fe.Param())
	case fe.Field() == "ProductID" && fe.Tag() == "required":
		return apperr.E(apperr.KindNotFound, op, "product id is required")
	case fe.Tag() == "required":
		return apperr.E(apperr.KindInvalidInput, op, "%s value missing", fe.Field())
	default:
		return apperr.E(apperr.KindInvalidInput, op, "%s failed %s %s", fe.Field(), fe.Tag(), fe.Param())
	}
}
