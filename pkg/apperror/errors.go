package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// WithErr attaches an underlying cause to e.
func (e *AppError) WithErr(err error) *AppError {
	e.Err = err
	return e
}

// ---- Security & Authentication (SEC) ----

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

// ---- Payment Business Logic (PAY) ----

func ErrInsufficientFunds() *AppError {
	return New("PAY_001", "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New("PAY_002", "Invalid amount", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrTransactionLimitExceeded() *AppError {
	return New("PAY_005", "Transaction limit exceeded", http.StatusUnprocessableEntity)
}

func ErrInsufficientFrozenFunds() *AppError {
	return New("PAY_008", "Insufficient frozen balance in wallet", http.StatusUnprocessableEntity)
}

// ---- PIX Routing & Reconciliation (PIX) ----

func ErrNoAcquirerConfigured() *AppError {
	return New("PIX_001", "No acquirer configured for merchant", http.StatusUnprocessableEntity)
}

// ErrAllAcquirersFailed carries the last provider error in its message.
func ErrAllAcquirersFailed(last error) *AppError {
	msg := "All acquirers failed"
	if last != nil {
		msg = fmt.Sprintf("All acquirers failed: %s", last.Error())
	}
	return Wrap("PIX_002", msg, http.StatusBadGateway, last)
}

func ErrProvider(err error) *AppError {
	return Wrap("PIX_003", "Acquirer request failed", http.StatusBadGateway, err)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New("PIX_004", fmt.Sprintf("Invalid status transition from %s to %s", from, to), http.StatusConflict)
}

func ErrDepositNotCancellable() *AppError {
	return New("PIX_005", "Deposit can no longer be cancelled", http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrMerchantSuspended() *AppError {
	return New("AUTH_004", "Merchant account is suspended", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

func ErrPayloadTooLarge() *AppError {
	return New("SYS_004", "Request body too large", http.StatusRequestEntityTooLarge)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New("PAY_002", message, http.StatusBadRequest)
}
