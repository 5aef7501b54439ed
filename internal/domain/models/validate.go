package models

import (
	"taskboard/internal/domain/errors"

	"github.com/go-playground/validator"
)

var validate = validator.New()

// Validate checks the `validate` tags of a request struct and converts the
// first failing field into the matching domain error.
func Validate(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		return validationErrorToDomain(err)
	}
	return nil
}

func validationErrorToDomain(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, verr := range verrs {
			switch verr.Field() {
			case "Username":
				return errors.ErrInvalidUsername
			case "Email":
				return errors.ErrInvalidEmail
			case "Password":
				return errors.ErrInvalidPassword
			case "Title":
				return errors.ErrInvalidTitle
			case "Description":
				return errors.ErrInvalidDescription
			case "Status":
				return errors.ErrInvalidStatus
			}
		}
	}
	return errors.ErrValidation
}
