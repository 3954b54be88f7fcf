package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks timeouts, 5xx responses, and rate limits. Callers
	// retry these through the retry executor.
	ErrTransient = errors.New("transient failure")
	// ErrUnauthorized marks an explicit auth rejection. The retry executor
	// refreshes credentials once before retrying.
	ErrUnauthorized = errors.New("not authorized")
	// ErrFatal marks application-level failures the remote reported
	// explicitly. Never retried within a run.
	ErrFatal = errors.New("fatal failure")
	// ErrNotFound marks a missing remote resource.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether err should be handed back to the retry executor.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Unauthorized reports whether err is an auth rejection.
func Unauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
