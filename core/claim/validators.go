package claim

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/rtemis/reimbursement/core"
)

var (
	claimStateTag  = "claimstate"
	claimStateText = "unknown claim status"
)

// InitValidators registers the claim validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(claimStateTag, claimStateValidation)
	core.RegisterCustomTranslation(validate, translator, claimStateTag, claimStateText)
}

func claimStateValidation(fl validator.FieldLevel) bool {
	_, ok := ParseState(fl.Field().String())
	return ok
}
