package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	billing "github.com/vorluno/planilla/internal/billing/domain"
	shared "github.com/vorluno/planilla/internal/shared/domain"
)

// APIError is the body of every error response.
type APIError struct {
	Status   int               `json:"-"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Fields   map[string]string `json:"fields,omitempty"`
	Decision *billing.Decision `json:"decision,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common API errors
var (
	ErrBadRequest = &APIError{
		Status:  http.StatusBadRequest,
		Code:    "bad_request",
		Message: "Invalid request",
	}
	ErrUnauthenticated = &APIError{
		Status:  http.StatusUnauthorized,
		Code:    "unauthenticated",
		Message: "authentication required",
	}
	ErrForbidden = &APIError{
		Status:  http.StatusForbidden,
		Code:    "forbidden",
		Message: "forbidden",
	}
	ErrNotFound = &APIError{
		Status:  http.StatusNotFound,
		Code:    "not_found",
		Message: "Resource not found",
	}
	ErrInternalServer = &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "Internal server error",
	}
)

// toAPIError maps a service error onto the response the client sees. Role
// denials and lookups never say more than the status does; entitlement
// denials carry their decision so clients can offer an upgrade.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var denial *billing.DenialError
	if errors.As(err, &denial) {
		d := denial.Decision
		switch denial.Kind() {
		case shared.KindConflict:
			return &APIError{Status: http.StatusConflict, Code: string(d.Code), Message: d.Reason, Decision: &d}
		case shared.KindForbidden:
			return ErrForbidden
		case shared.KindInternal:
			return ErrInternalServer
		default:
			return &APIError{Status: http.StatusPaymentRequired, Code: string(d.Code), Message: d.Reason, Decision: &d}
		}
	}

	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		return &APIError{Status: http.StatusBadRequest, Code: "validation_failed", Message: "validation failed", Fields: verr.Fields}
	}

	if errors.Is(err, billing.ErrBillingDisabled) {
		return &APIError{Status: http.StatusServiceUnavailable, Code: "billing_disabled", Message: billing.ErrBillingDisabled.Error()}
	}

	message := "Internal server error"
	var sentinel *shared.Error
	if errors.As(err, &sentinel) {
		message = sentinel.Error()
	}

	switch shared.KindOf(err) {
	case shared.KindValidation:
		return &APIError{Status: http.StatusBadRequest, Code: "validation_failed", Message: message}
	case shared.KindUnauthenticated:
		return &APIError{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: message}
	case shared.KindForbidden:
		return ErrForbidden
	case shared.KindNotFound:
		return ErrNotFound
	case shared.KindConflict:
		return &APIError{Status: http.StatusConflict, Code: "conflict", Message: message}
	case shared.KindPaymentRequired:
		return &APIError{Status: http.StatusPaymentRequired, Code: "payment_required", Message: message}
	case shared.KindExternal:
		return &APIError{Status: http.StatusBadGateway, Code: "billing_unavailable", Message: billing.ErrBillingProvider.Error()}
	default:
		return ErrInternalServer
	}
}

// fail writes err as a JSON error. Server errors log at ERROR and denials
// at WARN.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	logger := s.logger
	switch {
	case apiErr.Status >= http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	case apiErr.Status == http.StatusForbidden || apiErr.Status == http.StatusPaymentRequired || apiErr.Decision != nil:
		logger.WarnContext(r.Context(), "request denied", "method", r.Method, "path", r.URL.Path, "status", apiErr.Status, "error", err)
	}
	writeJSON(w, apiErr.Status, apiErr)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Log error but can't do much at this point
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}
