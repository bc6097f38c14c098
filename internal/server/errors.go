package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/smallbiznis/tradeboard/internal/entitlement/domain"
	subscriptiondomain "github.com/smallbiznis/tradeboard/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/tradeboard/internal/usage/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`

	// Decision accompanies entitlement refusals so clients can render
	// limits and upgrade prompts without a second call.
	Decision *entitlementdomain.Decision `json:"decision,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
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
		if payload.Decision != nil && payload.Decision.RetryAfter > 0 {
			c.Header("Retry-After", strconv.FormatInt(int64(payload.Decision.RetryAfter/time.Second)+1, 10))
		}
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

func mapError(err error) (int, errorPayload) {
	var denied *entitlementdomain.DeniedError
	if errors.As(err, &denied) {
		payload := errorPayload{
			Message:  denied.Decision.Message,
			Decision: &denied.Decision,
		}
		switch {
		case errors.Is(denied.Reason, entitlementdomain.ErrUnauthorized):
			payload.Type = "unauthorized"
			return http.StatusUnauthorized, payload
		case errors.Is(denied.Reason, entitlementdomain.ErrRateLimited):
			payload.Type = "rate_limited"
			return http.StatusTooManyRequests, payload
		case errors.Is(denied.Reason, entitlementdomain.ErrSubscriptionInactive):
			payload.Type = "subscription_inactive"
			return http.StatusPaymentRequired, payload
		default:
			payload.Type = "entitlement_denied"
			return http.StatusForbidden, payload
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, subscriptiondomain.ErrInvalidUser),
		errors.Is(err, subscriptiondomain.ErrInvalidTier),
		errors.Is(err, subscriptiondomain.ErrInvalidStatus),
		errors.Is(err, subscriptiondomain.ErrInvalidStartAt),
		errors.Is(err, usagedomain.ErrInvalidUser),
		errors.Is(err, usagedomain.ErrInvalidFeature),
		errors.Is(err, usagedomain.ErrInvalidDelta),
		errors.Is(err, usagedomain.ErrInvalidRange):
		return true
	default:
		return false
	}
}
