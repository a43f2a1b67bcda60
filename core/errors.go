package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput          = "HOOK_BAD_INPUT"
	ServiceErrorNotFound          = "HOOK_NOT_FOUND"
	ServiceErrorPermissionDenied  = "HOOK_PERMISSION_DENIED"
	ServiceErrorUnauthorized      = "HOOK_UNAUTHORIZED"
	ServiceErrorRenderFailed      = "HOOK_RENDER_FAILED"
	ServiceErrorDeliveryRetryable = "HOOK_DELIVERY_RETRYABLE"
	ServiceErrorDeliveryRejected  = "HOOK_DELIVERY_REJECTED"
	ServiceErrorLedgerContention  = "HOOK_LEDGER_CONTENTION"
	ServiceErrorRateLimited       = "HOOK_RATE_LIMITED"
	ServiceErrorExternalFailure   = "HOOK_EXTERNAL_FAILURE"
	ServiceErrorInternal          = "HOOK_INTERNAL_ERROR"
)

var (
	ErrWebhookNotFound  = errors.New("core: webhook not found")
	ErrDeliveryNotFound = errors.New("core: delivery not found")
)

// RenderError marks a payload that can never be produced for a hook. The
// delivery is recorded as failed_terminal and never retried.
func RenderError(source error, webhookID string, message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "core: payload render failed"
	}
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, goerrors.CategoryBadInput, message)
	} else {
		err = goerrors.New(message, goerrors.CategoryBadInput)
	}
	return err.
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(ServiceErrorRenderFailed).
		WithMetadata(map[string]any{"webhook_id": strings.TrimSpace(webhookID)})
}

func RetryableDeliveryError(source error, statusCode int, message string) *goerrors.Error {
	return deliveryError(source, statusCode, message, ServiceErrorDeliveryRetryable)
}

func TerminalDeliveryError(source error, statusCode int, message string) *goerrors.Error {
	return deliveryError(source, statusCode, message, ServiceErrorDeliveryRejected)
}

func deliveryError(source error, statusCode int, message string, textCode string) *goerrors.Error {
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, message)
	} else {
		err = goerrors.New(message, goerrors.CategoryExternal)
	}
	err = err.WithCode(http.StatusBadGateway).WithTextCode(textCode)
	if statusCode > 0 {
		err = err.WithMetadata(map[string]any{"status_code": statusCode})
	}
	return err
}

// LedgerContentionError reports a completion from an instance that no
// longer owns the claim. Callers skip it silently.
func LedgerContentionError(deliveryID string, instanceID string) *goerrors.Error {
	return goerrors.New("core: delivery claim is no longer held", goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ServiceErrorLedgerContention).
		WithMetadata(map[string]any{
			"delivery_id": strings.TrimSpace(deliveryID),
			"instance_id": strings.TrimSpace(instanceID),
		})
}

func NotFoundError(source error, message string) *goerrors.Error {
	if source == nil {
		source = ErrWebhookNotFound
	}
	return goerrors.Wrap(source, goerrors.CategoryNotFound, message).
		WithCode(http.StatusNotFound).
		WithTextCode(ServiceErrorNotFound)
}

func PermissionDeniedError(principal string, action WebhookAction, webhookID string) *goerrors.Error {
	return goerrors.New("core: principal lacks the right for this webhook action", goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(ServiceErrorPermissionDenied).
		WithMetadata(map[string]any{
			"principal":  strings.TrimSpace(principal),
			"action":     string(action),
			"webhook_id": strings.TrimSpace(webhookID),
		})
}

func BadInputError(field string, message string) *goerrors.Error {
	return goerrors.NewValidation("core: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorBadInput)
}

func HasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func IsRenderError(err error) bool {
	return HasTextCode(err, ServiceErrorRenderFailed)
}

func IsLedgerContention(err error) bool {
	return HasTextCode(err, ServiceErrorLedgerContention)
}

func IsNotFound(err error) bool {
	if errors.Is(err, ErrWebhookNotFound) || errors.Is(err, ErrDeliveryNotFound) {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryNotFound
	}
	return false
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}
	if errors.Is(err, ErrWebhookNotFound) || errors.Is(err, ErrDeliveryNotFound) {
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotFound)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotFound)
	case strings.Contains(msg, "template"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorRenderFailed)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryAuth:
		return ServiceErrorUnauthorized
	case goerrors.CategoryAuthz:
		return ServiceErrorPermissionDenied
	case goerrors.CategoryConflict:
		return ServiceErrorLedgerContention
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryExternal:
		return ServiceErrorExternalFailure
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
