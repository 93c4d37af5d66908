package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/stay"
)

// Error codes of ErrorResponse.Code.
const (
	CodeBadRequest           = "bad_request"
	CodeValidation           = "validation_failed"
	CodeNotFound             = "not_found"
	CodeRoomUnavailable      = "room_unavailable"
	CodeStaleVersion         = "stale_version"
	CodeDuplicateReservation = "duplicate_reservation"
	CodeIllegalTransition    = "illegal_transition"
	CodeRoomNotAssigned      = "room_not_assigned"
	CodeTooEarly             = "too_early_for_no_show"
	CodeInternal             = "internal_error"
)

// statusFor maps an engine error onto an HTTP status and error code.
//
//	validation          -> 422
//	not found           -> 404
//	conflict / stale    -> 409
//	duplicate id        -> 409
//	illegal transition  -> 409
//	anything else       -> 500
func statusFor(err error) (int, string) {
	switch {
	case stay.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case stay.IsValidation(err):
		return http.StatusUnprocessableEntity, validationCode(err)
	case errors.Is(err, stay.ErrRoomUnavailable):
		return http.StatusConflict, CodeRoomUnavailable
	case errors.Is(err, stay.ErrStaleVersion):
		return http.StatusConflict, CodeStaleVersion
	case errors.Is(err, stay.ErrDuplicateReservation):
		return http.StatusConflict, CodeDuplicateReservation
	case errors.Is(err, stay.ErrRoomNotAssigned):
		return http.StatusConflict, CodeRoomNotAssigned
	case errors.Is(err, stay.ErrTooEarlyForNoShow):
		return http.StatusConflict, CodeTooEarly
	case errors.Is(err, stay.ErrIllegalTransition):
		return http.StatusConflict, CodeIllegalTransition
	}
	return http.StatusInternalServerError, CodeInternal
}

// validationCode narrows validation errors so clients can branch without
// parsing messages.
func validationCode(err error) string {
	switch {
	case errors.Is(err, billing.ErrInvalidPaymentAmount):
		return "invalid_payment_amount"
	case errors.Is(err, billing.ErrDiscountExceedsSubtotal):
		return "discount_exceeds_subtotal"
	case errors.Is(err, billing.ErrNegativeChargeAmount):
		return "negative_charge_amount"
	case errors.Is(err, billing.ErrInvalidNightsComputed):
		return "invalid_nights"
	case errors.Is(err, billing.ErrInvalidBillingMethod):
		return "invalid_billing_method"
	case errors.Is(err, billing.ErrInvalidPaymentType):
		return "invalid_payment_type"
	case errors.Is(err, billing.ErrOverpaid):
		return "overpaid"
	case errors.Is(err, billing.ErrInvalidTaxRule):
		return "invalid_tax_rule"
	}
	return CodeValidation
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError renders an engine error. Internal errors are logged by
// the caller; their details are not echoed to the client.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, code, message, nil)
		return
	}
	writeError(w, status, code, message, err)
}

// decodeJSON reads a request body into v. An empty body leaves v unchanged.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
