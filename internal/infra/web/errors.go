package web

import (
	"encoding/json"
	"net/http"

	"carservice-commerce/internal/domain"
)

type errorDetail struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(k domain.Kind) int {
	switch k {
	case domain.KindValidation, domain.KindConflict, domain.KindInsufficientFunds:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConcurrentModification:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": {kind, code, message}}. Internal
// errors never leak their message.
func writeError(w http.ResponseWriter, err error) {
	de := domain.AsError(err)
	if de.Kind == domain.KindInternal {
		de = &domain.Error{Kind: domain.KindInternal, Code: "internal", Message: "internal error"}
	}
	writeJSON(w, statusFor(de.Kind), errorBody{Error: errorDetail{
		Kind:    string(de.Kind),
		Code:    de.Code,
		Message: de.Message,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrInvalidArgument
	}
	return nil
}
