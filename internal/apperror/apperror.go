// Package apperror classifies failures from the commerce platform and the
// image pipeline so the queue layer can decide between retry and permanent
// failure, and so job items record a stable error code.
package apperror

import (
	"errors"
)

type Error struct {
	Code      string
	Message   string
	Retryable bool
	Internal  error
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Internal
}

var (
	ErrThrottled = &Error{
		Code:      "throttled",
		Message:   "platform API rate limit exceeded",
		Retryable: true,
	}

	ErrPlatformUnavailable = &Error{
		Code:      "platform_unavailable",
		Message:   "platform API temporarily unavailable",
		Retryable: true,
	}

	ErrUnauthorized = &Error{
		Code:      "unauthorized",
		Message:   "access token rejected by platform",
		Retryable: false,
	}

	ErrNotFound = &Error{
		Code:      "not_found",
		Message:   "resource not found on platform",
		Retryable: false,
	}

	ErrUserErrors = &Error{
		Code:      "user_errors",
		Message:   "platform mutation returned user errors",
		Retryable: false,
	}

	ErrImageTooLarge = &Error{
		Code:      "image_too_large",
		Message:   "source image exceeds the configured size limit",
		Retryable: false,
	}

	ErrImageDimensions = &Error{
		Code:      "image_dimensions",
		Message:   "source image dimensions are outside the allowed range",
		Retryable: false,
	}

	ErrCorruptedImage = &Error{
		Code:      "corrupted_image",
		Message:   "source image could not be decoded",
		Retryable: false,
	}

	ErrVerifyTimeout = &Error{
		Code:      "verify_timeout",
		Message:   "restored media never reached ready state",
		Retryable: false,
	}
)

func New(code, message string, retryable bool) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: retryable,
	}
}

func Wrap(err error, appErr *Error) *Error {
	return &Error{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Retryable: appErr.Retryable,
		Internal:  err,
	}
}

func Is(err error, target *Error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// Retryable reports whether the queue should re-deliver the job. Unknown
// errors default to retryable so transient network failures are not dropped.
func Retryable(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return true
}

func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "internal_error"
}
