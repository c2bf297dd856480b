// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and services to distinguish between different failure
// scenarios. For example, ErrSlotTaken indicates that another booking
// already occupies a (slot, date) key, while ErrPaymentNotFound
// signals that a webhook referenced a transaction this system never
// initiated.
package repository

import "errors"

// ErrSlotTaken is returned when a reservation attempt finds an
// active-occupying booking already holding the (slot, date) key.
// Handlers should translate this into an HTTP 409 response.
var ErrSlotTaken = errors.New("slot already taken for this date")

// ErrPaymentNotFound is returned when no payment matches a
// (provider, external id) pair.  It indicates a configuration or
// data error and is surfaced to operators rather than retried.
var ErrPaymentNotFound = errors.New("payment not found")

// ErrInvalidTransition is returned when a status change is requested
// from a state that does not allow it, such as confirming an expired
// booking.  It usually means the caller lost a race and should be
// logged as a warning, not an error.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrDuplicate is returned when a uniqueness constraint would be
// violated, such as registering an email twice or generating a promo
// code that already exists.
var ErrDuplicate = errors.New("duplicate record")
