package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// APIError is a business rejection from the document service: the call
// reached the service and was refused with a code and message. Business
// rejections are never retried.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote API error %d: %s", e.Code, e.Message)
}

// Business codes the pipeline reacts to specifically.
const (
	CodeInvalidPermission = 99991672
	CodeFolderNotFound    = 1248005
)

// TransientError wraps a failure worth retrying: a 5xx response or a
// network-level error.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transient remote failure (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transient remote failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports if an error is worth retrying.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// Category buckets an error for user-facing messaging.
type Category string

const (
	CategoryTimeout      Category = "timeout"
	CategoryNetwork      Category = "network"
	CategoryAuth         Category = "auth"
	CategoryFolderConfig Category = "folder-config"
	CategoryGeneric      Category = "generic"
)

// Classify buckets an error by its type, not by its message text, so a
// change in remote wording cannot break the user-facing summary.
func Classify(err error) Category {
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		if transient.Status == 0 {
			return CategoryNetwork
		}
		return CategoryGeneric
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case CodeInvalidPermission:
			return CategoryAuth
		case CodeFolderNotFound:
			return CategoryFolderConfig
		}
	}
	return CategoryGeneric
}
