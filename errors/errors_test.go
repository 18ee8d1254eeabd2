/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("Employee", "123")

	expected := `Employee with key "123" not found`
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}

	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}

	if !IsNotFound(err) {
		t.Error("IsNotFound should return true for NotFoundError")
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		message  string
		expected string
	}{
		{
			name:     "with field",
			field:    "AgeBetween",
			message:  "expected exactly two bounds, got 3",
			expected: `validation failed for field "AgeBetween": expected exactly two bounds, got 3`,
		},
		{
			name:     "without field",
			field:    "",
			message:  "entity must be a non-nil pointer",
			expected: "validation failed: entity must be a non-nil pointer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.field, tt.message)

			if err.Error() != tt.expected {
				t.Errorf("Expected error message %q, got %q", tt.expected, err.Error())
			}
			if !IsValidationError(err) {
				t.Error("IsValidationError should return true for ValidationError")
			}
		})
	}
}

func TestTypedErrorsCarryDetails(t *testing.T) {
	t.Run("no suitable provider", func(t *testing.T) {
		err := NewNoSuitableProviderError("model.Invoice", []string{"memory", "sql"})
		if !IsNoSuitableProvider(err) {
			t.Fatal("expected ErrNoSuitableProvider")
		}
		var nsp *NoSuitableProviderError
		if !errors.As(err, &nsp) {
			t.Fatal("errors.As should find *NoSuitableProviderError")
		}
		if nsp.Type != "model.Invoice" || len(nsp.Providers) != 2 {
			t.Errorf("unexpected details: %+v", nsp)
		}
	})

	t.Run("property not found", func(t *testing.T) {
		err := NewPropertyNotFoundError("Employee", "Salary")
		var pnf *PropertyNotFoundError
		if !errors.As(err, &pnf) || pnf.Property != "Salary" {
			t.Fatalf("expected PropertyNotFoundError for Salary, got %v", err)
		}
		if !IsPropertyNotFound(err) {
			t.Error("IsPropertyNotFound should return true")
		}
	})

	t.Run("not ready", func(t *testing.T) {
		err := NewNotReadyError("context 42", "add")
		if err.Error() != "context 42 is not ready: cannot add" {
			t.Errorf("unexpected message %q", err.Error())
		}
		if !IsNotReady(err) {
			t.Error("IsNotReady should return true")
		}
	})
}

func TestStartupError(t *testing.T) {
	boom := errors.New("connection refused")
	err := error(&StartupError{Failures: []FactoryFailure{
		{Factory: "sql", Err: boom},
		{Factory: "dynamodb", Err: NewConfigurationError("dynamodb", "Table", "required")},
	}})

	if !IsStartupFailed(err) {
		t.Error("StartupError should match ErrStartupFailed")
	}
	if !errors.Is(err, boom) {
		t.Error("StartupError should unwrap to each failure")
	}
	if !IsConfigurationInvalid(err) {
		t.Error("StartupError should expose nested configuration failures")
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := NewAmbientConflictError("ctx-1")
	wrappedErr := fmt.Errorf("starting context: %w", baseErr)

	if !errors.Is(wrappedErr, ErrAmbientConflict) {
		t.Error("Wrapped error should still match ErrAmbientConflict")
	}

	annotated := Wrap(NewStateError("context", "committed", "start"), "restart")
	if !IsInvalidState(annotated) {
		t.Error("Wrap should preserve the error chain")
	}
	if Wrap(nil, "nothing") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrInvalidInput,
		ErrNoIndexMap,
		ErrConfigurationInvalid,
		ErrNotReady,
		ErrNoSuitableProvider,
		ErrPropertyNotFound,
		ErrStartupFailed,
		ErrAmbientConflict,
		ErrInvalidState,
		ErrTransactionAborted,
		ErrNotUnique,
		ErrInternal,
	}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v matches %v", err1, err2)
			}
		}
	}
}
