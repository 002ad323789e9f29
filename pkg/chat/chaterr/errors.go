// Package chaterr holds the error taxonomy shared by the chat core and its callers.
package chaterr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is rejected input that is never persisted.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence is a failed insert or fetch against the store.
	ErrPersistence = errors.New("persistence failed")
	// ErrSubscription is a change-feed setup or mid-stream failure.
	ErrSubscription = errors.New("subscription failed")
	// ErrPartialFailure is a conversation creation that was rolled back.
	ErrPartialFailure = errors.New("conversation creation failed")
	ErrNotActive      = errors.New("conversation is not active")
	ErrSessionClosed  = errors.New("session closed")
	ErrNotFound       = errors.New("not found")
)

func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func Subscription(key string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSubscription, key, err)
}
