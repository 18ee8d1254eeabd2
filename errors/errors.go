/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	crdb "github.com/cockroachdb/errors"
)

// Common sentinel errors
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = crdb.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create an entity that already exists
	ErrAlreadyExists = crdb.New("entity already exists")

	// ErrInvalidInput is returned when an argument or entity fails validation
	ErrInvalidInput = crdb.New("invalid input")

	// ErrNoIndexMap is returned when no index map is found for a type
	ErrNoIndexMap = crdb.New("no index map found for type")

	// ErrConfigurationInvalid is returned when a factory configuration does not validate
	ErrConfigurationInvalid = crdb.New("configuration invalid")

	// ErrNotReady is returned when a context or factory is used outside its started state
	ErrNotReady = crdb.New("not ready")

	// ErrNoSuitableProvider is returned when no bound provider takes care of a type
	ErrNoSuitableProvider = crdb.New("no suitable provider")

	// ErrPropertyNotFound is returned when a dynamic query names an unknown property
	ErrPropertyNotFound = crdb.New("property not found")

	// ErrStartupFailed is returned when one or more provider factories fail to start
	ErrStartupFailed = crdb.New("startup failed")

	// ErrAmbientConflict is returned when a still-ready current context would be replaced
	ErrAmbientConflict = crdb.New("ambient context conflict")

	// ErrInvalidState is returned on an illegal lifecycle transition
	ErrInvalidState = crdb.New("invalid state")

	// ErrTransactionAborted is returned when a commit finds an aborted scope
	ErrTransactionAborted = crdb.New("transaction aborted")

	// ErrNotUnique is returned when a single-row read matches more than one row
	ErrNotUnique = crdb.New("more than one row matched")

	// ErrInternal marks invariant violations
	ErrInternal = crdb.New("internal error")
)

// NotFoundError represents an error when an entity is not found
type NotFoundError struct {
	Type string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with key %q not found", e.Type, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AlreadyExistsError represents an error when an entity already exists
type AlreadyExistsError struct {
	Type string
	Key  string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with key %q already exists", e.Type, e.Key)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// ValidationError represents an invalid argument or a failed entity validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ConfigurationError is raised by factory validation before Start completes.
type ConfigurationError struct {
	Component string
	Field     string
	Message   string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: invalid configuration for %q: %s", e.Component, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: invalid configuration: %s", e.Component, e.Message)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfigurationInvalid
}

// NotReadyError names the component and the operation that was refused.
type NotReadyError struct {
	Component string
	Operation string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s is not ready: cannot %s", e.Component, e.Operation)
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

// NoSuitableProviderError names the type nobody claimed and the providers that were asked.
type NoSuitableProviderError struct {
	Type      string
	Providers []string
}

func (e *NoSuitableProviderError) Error() string {
	return fmt.Sprintf("no provider takes care of %s (bound providers: [%s])", e.Type, strings.Join(e.Providers, ", "))
}

func (e *NoSuitableProviderError) Is(target error) bool {
	return target == ErrNoSuitableProvider
}

// PropertyNotFoundError names the missing property and the type it was resolved against.
type PropertyNotFoundError struct {
	Type     string
	Property string
}

func (e *PropertyNotFoundError) Error() string {
	return fmt.Sprintf("property %q not found on %s", e.Property, e.Type)
}

func (e *PropertyNotFoundError) Is(target error) bool {
	return target == ErrPropertyNotFound
}

// FactoryFailure is one provider factory that failed to start.
type FactoryFailure struct {
	Factory string
	Err     error
}

// StartupError collects every provider factory failure of one Start call.
type StartupError struct {
	Failures []FactoryFailure
}

func (e *StartupError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Factory, f.Err))
	}
	return fmt.Sprintf("%d provider factories failed to start: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *StartupError) Is(target error) bool {
	return target == ErrStartupFailed
}

func (e *StartupError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// AmbientConflictError is returned when a holder already has a ready current context.
type AmbientConflictError struct {
	Current string
}

func (e *AmbientConflictError) Error() string {
	return fmt.Sprintf("current context %s is still ready; commit or close it first", e.Current)
}

func (e *AmbientConflictError) Is(target error) bool {
	return target == ErrAmbientConflict
}

// StateError is an illegal lifecycle transition.
type StateError struct {
	Component string
	State     string
	Operation string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: cannot %s in state %s", e.Component, e.Operation, e.State)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// InternalError marks a code path that must never be reached.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Message
}

func (e *InternalError) Is(target error) bool {
	return target == ErrInternal
}

// Helper functions for creating errors. Each attaches a stack trace.

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entityType, key string) error {
	return crdb.WithStackDepth(&NotFoundError{Type: entityType, Key: key}, 1)
}

// NewAlreadyExistsError creates a new AlreadyExistsError
func NewAlreadyExistsError(entityType, key string) error {
	return crdb.WithStackDepth(&AlreadyExistsError{Type: entityType, Key: key}, 1)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return crdb.WithStackDepth(&ValidationError{Field: field, Message: message}, 1)
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(component, field, message string) error {
	return crdb.WithStackDepth(&ConfigurationError{Component: component, Field: field, Message: message}, 1)
}

// NewNotReadyError creates a new NotReadyError
func NewNotReadyError(component, operation string) error {
	return crdb.WithStackDepth(&NotReadyError{Component: component, Operation: operation}, 1)
}

// NewNoSuitableProviderError creates a new NoSuitableProviderError
func NewNoSuitableProviderError(typeName string, providers []string) error {
	return crdb.WithStackDepth(&NoSuitableProviderError{Type: typeName, Providers: providers}, 1)
}

// NewPropertyNotFoundError creates a new PropertyNotFoundError
func NewPropertyNotFoundError(typeName, property string) error {
	return crdb.WithStackDepth(&PropertyNotFoundError{Type: typeName, Property: property}, 1)
}

// NewAmbientConflictError creates a new AmbientConflictError
func NewAmbientConflictError(current string) error {
	return crdb.WithStackDepth(&AmbientConflictError{Current: current}, 1)
}

// NewStateError creates a new StateError
func NewStateError(component, state, operation string) error {
	return crdb.WithStackDepth(&StateError{Component: component, State: state, Operation: operation}, 1)
}

// NewInternalError creates a new InternalError
func NewInternalError(format string, args ...any) error {
	return crdb.WithStackDepth(&InternalError{Message: fmt.Sprintf(format, args...)}, 1)
}

// New returns an error with a stack trace.
func New(msg string) error {
	return crdb.NewWithDepth(1, msg)
}

// Wrap annotates err with a message and a stack trace. Nil stays nil.
func Wrap(err error, msg string) error {
	return crdb.WrapWithDepth(1, err, msg)
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...any) error {
	return crdb.WrapWithDepthf(1, err, format, args...)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return stderrors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return stderrors.Is(err, ErrInvalidInput)
}

func IsConfigurationInvalid(err error) bool { return stderrors.Is(err, ErrConfigurationInvalid) }

func IsNotReady(err error) bool { return stderrors.Is(err, ErrNotReady) }

func IsNoSuitableProvider(err error) bool { return stderrors.Is(err, ErrNoSuitableProvider) }

func IsPropertyNotFound(err error) bool { return stderrors.Is(err, ErrPropertyNotFound) }

func IsStartupFailed(err error) bool { return stderrors.Is(err, ErrStartupFailed) }

func IsAmbientConflict(err error) bool { return stderrors.Is(err, ErrAmbientConflict) }

func IsInvalidState(err error) bool { return stderrors.Is(err, ErrInvalidState) }

func IsTransactionAborted(err error) bool { return stderrors.Is(err, ErrTransactionAborted) }

func IsInternal(err error) bool { return stderrors.Is(err, ErrInternal) }
