package domain

import (
	"errors"
	"fmt"
)

//ErrorKind identifies a class of workflow error and can be matched with errors.Is
type ErrorKind struct {
	name string
}

func (k *ErrorKind) Error() string {
	return k.name
}

//Validation error kinds
var (
	ErrEmptyID        = &ErrorKind{"empty-id"}
	ErrMissingDepth   = &ErrorKind{"missing-depth"}
	ErrDuplicateID    = &ErrorKind{"duplicate-id"}
	ErrEmptySelection = &ErrorKind{"empty-selection"}
)

//Capability error kinds
var (
	ErrGeolocationUnavailable     = &ErrorKind{"geolocation-unavailable"}
	ErrGeolocationDeniedOrTimeout = &ErrorKind{"geolocation-denied-or-timeout"}
)

//Workflow precondition failures
var (
	ErrNoSiteSelected = errors.New("no site selected")
	ErrUnknownSite    = errors.New("unknown site")
	ErrEditorClosed   = errors.New("no sensor is open in the editor")
	ErrEditorOpen     = errors.New("a sensor is already open in the editor")
	ErrSensorNotFound = errors.New("sensor not found")
)

//ValidationError is returned when user input is rejected at save or commit time
type ValidationError struct {
	Kind    *ErrorKind
	Message string
}

//NewValidationError creates a ValidationError of the given kind
func NewValidationError(kind *ErrorKind, message string) *ValidationError {
	return &ValidationError{Kind: kind, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Kind, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

//CapabilityError is returned when a client capability such as geolocation is missing or fails
type CapabilityError struct {
	Kind   *ErrorKind
	Reason string
}

//NewCapabilityError creates a CapabilityError of the given kind
func NewCapabilityError(kind *ErrorKind, reason string) *CapabilityError {
	return &CapabilityError{Kind: kind, Reason: reason}
}

func (e *CapabilityError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *CapabilityError) Unwrap() error {
	return e.Kind
}
