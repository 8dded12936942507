package model

import (
	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that understands the question bank's
// enumerations through the questiontype, difficulty and bloom tags.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("questiontype", func(fl validator.FieldLevel) bool {
		return IsValidQuestionType(fl.Field().String())
	})
	_ = v.RegisterValidation("difficulty", func(fl validator.FieldLevel) bool {
		return IsValidDifficulty(fl.Field().String())
	})
	_ = v.RegisterValidation("bloom", func(fl validator.FieldLevel) bool {
		return IsValidBloomLevel(fl.Field().String())
	})
	return v
}
