package validation

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var severities = map[string]bool{
	"low": true, "medium": true, "high": true, "critical": true,
}

var caseStatuses = map[string]bool{
	"detected": true, "investigating": true, "confirmed": true,
	"false_positive": true, "resolved": true, "appealed": true,
}

var signalTypes = map[string]bool{
	"refund_loop": true, "panic_spam": true, "fake_mismatch": true,
	"bot_velocity": true, "prompt_abuse": true, "cancellation_farming": true,
	"token_drain": true,
}

// Validator returns the shared validator with engine-specific tags registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
			return severities[fl.Field().String()]
		})
		_ = validate.RegisterValidation("case_status", func(fl validator.FieldLevel) bool {
			return caseStatuses[fl.Field().String()]
		})
		_ = validate.RegisterValidation("signal_type", func(fl validator.FieldLevel) bool {
			return signalTypes[fl.Field().String()]
		})
	})
	return validate
}

// ValidateStruct validates a struct and converts validator errors into a
// field-level ValidationError.
func ValidateStruct(s interface{}) error {
	if err := Validator().Struct(s); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			return NewValidationError(errs)
		}
		return err
	}
	return nil
}
