/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package entitywork

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/registry"
)

var validate = validator.New()

// validateEntity runs the entity's own Validate and then its `validate` struct tags.
func validateEntity(entity any) error {
	if v, ok := entity.(Validatable); ok {
		if err := v.Validate(); err != nil {
			if errors.IsValidationError(err) {
				return err
			}
			return errors.NewValidationError(registry.TypeName(reflect.TypeOf(entity)), err.Error())
		}
	}
	if reflect.Indirect(reflect.ValueOf(entity)).Kind() != reflect.Struct {
		return nil
	}
	if err := validate.Struct(entity); err != nil {
		field, message := describeValidation(err)
		return errors.NewValidationError(field, message)
	}
	return nil
}

// ValidateConfig checks the `validate` tags of a provider factory's settings.
func ValidateConfig(component string, cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		field, message := describeValidation(err)
		return errors.NewConfigurationError(component, field, message)
	}
	return nil
}

func describeValidation(err error) (field, message string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fe.Namespace(), fmt.Sprintf("failed on the %q rule (%s)", fe.Tag(), fe.Param())
		}
		return fe.Namespace(), fmt.Sprintf("failed on the %q rule", fe.Tag())
	}
	return "", err.Error()
}
