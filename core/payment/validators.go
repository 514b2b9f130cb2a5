package payment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trucvy/vietschool/core"
)

const (
	statusTag  = "paymentstatus"
	statusText = "must be one of: paid, partial, unpaid, refunded"
)

// RegisterValidators hooks the payment-specific validations into the app
// validator. Must be called once during wiring, before any request handling.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}
