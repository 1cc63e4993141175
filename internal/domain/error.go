package domain

import (
	"context"
	"errors"
)

// Kind is the closed set of error categories surfaced to callers.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindNotFound               Kind = "not_found"
	KindConflict               Kind = "conflict"
	KindInsufficientFunds      Kind = "insufficient_funds"
	KindConcurrentModification Kind = "concurrent_modification"
	KindUnauthorized           Kind = "unauthorized"
	KindForbidden              Kind = "forbidden"
	KindTransient              Kind = "transient"
	KindInternal               Kind = "internal"
)

// Error is a typed domain failure. Two errors match under errors.Is when
// their codes are equal, so wrapped sentinels keep their identity.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	// Validation
	ErrInvalidArgument = newError(KindValidation, "invalid_argument", "invalid argument")
	ErrInvalidAmount   = newError(KindValidation, "invalid_amount", "amount must be a positive value")
	ErrMissingPlan     = newError(KindValidation, "missing_plan", "plan id is required")
	ErrMissingUser     = newError(KindValidation, "missing_user", "user id is required")
	ErrInvalidWindow   = newError(KindValidation, "invalid_window", "start date must be before end date")
	ErrCodeExpired     = newError(KindValidation, "code_expired", "discount code is not valid at this time")
	ErrBelowMinimum    = newError(KindValidation, "below_minimum_amount", "purchase amount is below the discount minimum")
	ErrOutOfScope      = newError(KindValidation, "out_of_scope", "discount code does not apply to this purchase")
	ErrNotRefundable   = newError(KindValidation, "not_refundable", "transaction cannot be refunded")
	ErrRenewalNotDue   = newError(KindValidation, "renewal_not_allowed", "subscription is not eligible for renewal")

	// Not found
	ErrNotFound             = newError(KindNotFound, "not_found", "entity not found")
	ErrPlanNotFound         = newError(KindNotFound, "plan_not_found", "subscription plan not found")
	ErrUserNotFound         = newError(KindNotFound, "user_not_found", "user not found")
	ErrWalletNotFound       = newError(KindNotFound, "wallet_not_found", "wallet not found")
	ErrTransactionNotFound  = newError(KindNotFound, "transaction_not_found", "transaction not found")
	ErrSubscriptionNotFound = newError(KindNotFound, "subscription_not_found", "subscription not found")
	ErrCategoryNotFound     = newError(KindNotFound, "category_not_found", "category not found")
	ErrParentNotFound       = newError(KindNotFound, "parent_not_found", "parent category not found")
	ErrServiceNotFound      = newError(KindNotFound, "service_not_found", "service not found")
	ErrCodeNotFound         = newError(KindNotFound, "code_not_found", "discount code not found")
	ErrNoActiveSubscription = newError(KindNotFound, "no_active_subscription", "no active subscription")

	// Conflict
	ErrAlreadyExists      = newError(KindConflict, "already_exists", "entity already exists")
	ErrAlreadyActive      = newError(KindConflict, "already_active", "user already has an active subscription")
	ErrCircularReference  = newError(KindConflict, "circular_reference", "category cannot be moved under itself or its descendants")
	ErrHasDependents      = newError(KindConflict, "has_dependents", "entity has dependent records")
	ErrCodeExhausted      = newError(KindConflict, "code_exhausted", "discount code usage limit reached")
	ErrDuplicateCode      = newError(KindConflict, "duplicate_code", "discount code already exists")
	ErrDuplicateSlug      = newError(KindConflict, "duplicate_slug", "category slug already exists")
	ErrInvalidTransition  = newError(KindConflict, "invalid_transition", "subscription status transition not allowed")
	ErrTransactionSettled = newError(KindConflict, "transaction_settled", "transaction already reached a terminal status")

	// Money
	ErrInsufficientFunds = newError(KindInsufficientFunds, "insufficient_funds", "insufficient funds")

	// Concurrency / infrastructure
	ErrConcurrentModification = newError(KindConcurrentModification, "concurrent_modification", "resource was modified concurrently, retry the request")
	ErrTransientFailure       = newError(KindTransient, "transient_failure", "temporary persistence failure, safe to retry")
	ErrOperationFailed        = newError(KindInternal, "operation_failed", "database operation failed")
	ErrReadDatabaseRow        = newError(KindInternal, "read_row_failed", "failed to read database row")
	ErrInvalidExecContext     = newError(KindInternal, "invalid_exec_context", "invalid executor passed to repository")

	// Principal
	ErrUnauthenticated = newError(KindUnauthorized, "unauthenticated", "authentication required")
	ErrForbidden       = newError(KindForbidden, "forbidden", "operation requires administrator role")
)

// ErrVersionConflict is returned by repositories when a version-stamped
// conditional write matched no row, or when the store aborted a transaction
// on a serialization failure. The retry helper converts it into
// ErrConcurrentModification once attempts are exhausted.
var ErrVersionConflict = errors.New("optimistic version conflict")

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindInternal
}

// AsError extracts the typed error, falling back to a generic internal one.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTransientFailure
	}
	return newError(KindInternal, "internal", "internal error")
}
