//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2026 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package lockerrors defines the error kinds shared by every locking
// component. Callers are expected to match with errors.Is against the
// sentinel values, wrapped errors keep their kind.
package lockerrors

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument indicates a bad identifier, unknown lock mode or
	// an otherwise malformed request. Not retryable.
	ErrInvalidArgument = stderrors.New("invalid argument")

	// ErrResourceExhausted indicates an allocation limit was hit, e.g. the
	// dependency graph refusing further nodes. Callers should abort the
	// surrounding operation rather than retry.
	ErrResourceExhausted = stderrors.New("resource exhausted")

	// ErrTimeout indicates a bounded wait expired. Retryable.
	ErrTimeout = stderrors.New("lock timeout")

	// ErrWouldDeadlock indicates the requested dependency would close a
	// cycle in the lock dependency graph. Callers should abort.
	ErrWouldDeadlock = stderrors.New("would deadlock")

	// ErrBusy indicates a try-mode acquisition found the lock contended.
	// Retryable.
	ErrBusy = stderrors.New("lock busy")

	// ErrCancelled indicates the caller's context was cancelled while
	// waiting.
	ErrCancelled = stderrors.New("wait cancelled")
)

func InvalidArgumentf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

func ResourceExhaustedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrResourceExhausted, format, args...)
}

func Timeoutf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTimeout, format, args...)
}

func WouldDeadlockf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrWouldDeadlock, format, args...)
}

func Busyf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrBusy, format, args...)
}

func Cancelledf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrCancelled, format, args...)
}

// IsRetryable reports whether the error is one of the expected, transient
// conditions (timeout or try-mode contention) the storage layer may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrBusy)
}
