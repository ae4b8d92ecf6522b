package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	ingestdomain "github.com/smallbiznis/catalogsync/internal/ingest/domain"
	searchdomain "github.com/smallbiznis/catalogsync/internal/search/domain"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors carries field-level failures straight into the response.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	return "validation error"
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// invalidInput lists sentinel errors reported as a single-field validation
// failure. The code is the sentinel's text.
var invalidInput = []struct {
	err     error
	field   string
	message string
}{
	{ErrInvalidRequest, "request", "invalid request"},
	{searchdomain.ErrInvalidQuery, "q", "query must contain at least one searchable term"},
	{searchdomain.ErrInvalidLimit, "limit", "invalid value"},
	{searchdomain.ErrInvalidOffset, "offset", "invalid value"},
	{searchdomain.ErrInvalidPricing, "pricing", "invalid value"},
	{ingestdomain.ErrInvalidLimit, "limit", "invalid value"},
	{ingestdomain.ErrInvalidArtifact, "artifact", "invalid value"},
}

type errorRule struct {
	matches []error
	status  int
	kind    string
	message string
}

var errorRules = []errorRule{
	{[]error{ErrUnauthorized}, http.StatusUnauthorized, "unauthorized", "unauthorized"},
	{[]error{ErrRateLimited}, http.StatusTooManyRequests, "rate_limited", "too many requests"},
	{[]error{ingestdomain.ErrRunInProgress}, http.StatusConflict, "conflict", "supplier run already in progress"},
	{[]error{ErrConflict}, http.StatusConflict, "conflict", "conflict"},
	{[]error{ingestdomain.ErrSupplierDisabled}, http.StatusUnprocessableEntity, "supplier_disabled", "supplier is disabled"},
	{[]error{ErrNotFound, ingestdomain.ErrSupplierNotFound}, http.StatusNotFound, "not_found", "not found"},
	{[]error{ingestdomain.ErrFetchExhausted}, http.StatusBadGateway, "fetch_failed", "supplier feed could not be fetched"},
	{[]error{ErrServiceUnavailable, ingestdomain.ErrStoreUnavailable}, http.StatusServiceUnavailable, "service_unavailable", "service unavailable"},
}

// ErrorHandlingMiddleware renders the last handler error unless a response
// has already been written.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		status, payload := mapError(last.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var vErrs *ValidationErrors
	if errors.As(err, &vErrs) && vErrs != nil {
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: vErrs.Errors}
	}
	for _, in := range invalidInput {
		if errors.Is(err, in.err) {
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors:  []ValidationError{{Field: in.field, Code: in.err.Error(), Message: in.message}},
			}
		}
	}
	for _, rule := range errorRules {
		for _, target := range rule.matches {
			if errors.Is(err, target) {
				return rule.status, errorPayload{Type: rule.kind, Message: rule.message}
			}
		}
	}
	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}

// classifyErrorForLog gives the access log the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}
