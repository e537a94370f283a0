package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/rukun/internal/audit/domain"
	authdomain "github.com/smallbiznis/rukun/internal/auth/domain"
	"github.com/smallbiznis/rukun/internal/authorization"
	billingdomain "github.com/smallbiznis/rukun/internal/billing/domain"
	invoicedomain "github.com/smallbiznis/rukun/internal/invoice/domain"
	"github.com/smallbiznis/rukun/internal/locking"
	paymentdomain "github.com/smallbiznis/rukun/internal/payment/domain"
	plandomain "github.com/smallbiznis/rukun/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/rukun/internal/subscription/domain"
	"github.com/smallbiznis/rukun/internal/tenancy"
	tenantdomain "github.com/smallbiznis/rukun/internal/tenant/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isUnauthenticatedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "authentication_required",
			Message: "authentication required",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: forbiddenMessage(err),
		}
	case errors.Is(err, billingdomain.ErrBillingRequired):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "billing_required",
			Message: "an active subscription is required",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrProviderTimeout),
		errors.Is(err, paymentdomain.ErrProviderFailure):
		return http.StatusBadGateway, errorPayload{
			Type:    "payment_provider_error",
			Message: "payment provider did not confirm the charge",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, locking.ErrLockTimeout):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded by the access log.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if payload.Type != "internal_error" {
		code = err.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isUnauthenticatedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, tenancy.ErrUnauthenticated),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, tenantdomain.ErrForbidden),
		errors.Is(err, tenancy.ErrCrossTenantModification),
		errors.Is(err, tenancy.ErrTenantRequired),
		errors.Is(err, paymentdomain.ErrCallbackNotAllowed):
		return true
	default:
		return false
	}
}

func forbiddenMessage(err error) string {
	switch {
	case errors.Is(err, tenancy.ErrCrossTenantModification):
		return "cannot modify data of another tenant"
	case errors.Is(err, tenancy.ErrTenantRequired):
		return "a tenant is required for this operation"
	default:
		return "forbidden"
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, authdomain.ErrUserExists),
		errors.Is(err, invoicedomain.ErrOpenInvoiceExists),
		errors.Is(err, invoicedomain.ErrTerminalInvoice),
		errors.Is(err, invoicedomain.ErrInvalidTransition),
		errors.Is(err, invoicedomain.ErrSubscriptionNotAllowed):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, invoicedomain.ErrOpenInvoiceExists):
		return "an open invoice already exists"
	case errors.Is(err, invoicedomain.ErrTerminalInvoice):
		return "invoice is already closed"
	case errors.Is(err, invoicedomain.ErrInvalidTransition):
		return "invoice cannot move to the requested status"
	case errors.Is(err, invoicedomain.ErrSubscriptionNotAllowed):
		return "tenant cannot subscribe right now"
	default:
		return "conflict"
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, tenancy.ErrUnknownTenant),
		errors.Is(err, plandomain.ErrInvalidPlan),
		errors.Is(err, subscriptiondomain.ErrInvalidPlan),
		errors.Is(err, subscriptiondomain.ErrInvalidType),
		errors.Is(err, subscriptiondomain.ErrInvalidTenant),
		errors.Is(err, invoicedomain.ErrInvalidInvoiceID),
		errors.Is(err, invoicedomain.ErrInvalidChannel),
		errors.Is(err, invoicedomain.ErrInvalidStatus),
		errors.Is(err, invoicedomain.ErrInvalidPageToken),
		errors.Is(err, invoicedomain.ErrInvalidTimeRange),
		errors.Is(err, invoicedomain.ErrPlanLevelMismatch),
		errors.Is(err, invoicedomain.ErrInvalidBeneficiary),
		errors.Is(err, tenantdomain.ErrInvalidName),
		errors.Is(err, tenantdomain.ErrInvalidLevel),
		errors.Is(err, tenantdomain.ErrInvalidBillingMode),
		errors.Is(err, tenantdomain.ErrInvalidHierarchy),
		errors.Is(err, tenantdomain.ErrParentNotFound),
		errors.Is(err, authdomain.ErrInvalidEmail),
		errors.Is(err, authdomain.ErrWeakPassword),
		errors.Is(err, authdomain.ErrInvalidRole),
		errors.Is(err, authorization.ErrInvalidRole),
		errors.Is(err, authorization.ErrInvalidPermission),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tenancy.ErrNotFound),
		errors.Is(err, tenantdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "unknown_tenant", "parent_not_found":
		return "tenant_id"
	case "plan_level_mismatch":
		return "plan_id"
	case "invalid_payment_channel", "payment_provider_not_found":
		return "channel"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_plan":
		return "unknown plan"
	case "unknown_tenant":
		return "unknown tenant"
	case "plan_level_mismatch":
		return "plan is not available for this tenant level"
	case "invalid_hierarchy":
		return "tenant hierarchy is invalid"
	default:
		return "invalid value"
	}
}
