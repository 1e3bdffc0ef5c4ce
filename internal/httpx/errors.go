package httpx

import (
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-storefront/internal/apperr"
)

type errorBody struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Conflicts []apperr.Conflict `json:"conflicts,omitempty"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindInvalidQuantity:   http.StatusBadRequest,
	apperr.KindInvalidInput:      http.StatusBadRequest,
	apperr.KindInsufficientStock: http.StatusConflict,
	apperr.KindEmptyCart:         http.StatusConflict,
	apperr.KindStockConflict:     http.StatusConflict,
	apperr.KindInvalidTransition: http.StatusConflict,
	apperr.KindAlreadyExists:     http.StatusConflict,
	apperr.KindPaymentDeclined:   http.StatusPaymentRequired,
	apperr.KindNotEligible:       http.StatusForbidden,
	apperr.KindStoreUnavailable:  http.StatusServiceUnavailable,
}

func statusOf(kind apperr.Kind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status by kind. Messages of unclassified errors stay in
// the log and never reach the client.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	code := statusOf(kind)
	body := errorBody{Error: kind.String(), Message: http.StatusText(code)}
	if kind != apperr.KindUnknown && kind != apperr.KindStoreUnavailable {
		body.Message = err.Error()
	}
	body.Conflicts = apperr.ConflictsOf(err)

	if code >= http.StatusInternalServerError {
		log.Error("request failed", "kind", kind.String(), "err", err)
	}
	writeJSON(w, code, body)
}
