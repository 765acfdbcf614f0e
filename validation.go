package sessionctl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)
}

// validateSignUp checks the registration request before it is forwarded.
// Field errors are joined into one message wrapped with ErrSignUpInvalid.
func validateSignUp(email, password string, data SignUpData, minPassword int) error {
	if email == "" {
		return ErrEmailRequired
	}
	if err := validate.Var(email, "email"); err != nil {
		return fmt.Errorf("%w: email must be a valid email address", ErrSignUpInvalid)
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if minPassword > 0 && len([]rune(password)) < minPassword {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordPolicy, minPassword)
	}

	data.FirstName = strings.TrimSpace(data.FirstName)
	data.LastName = strings.TrimSpace(data.LastName)
	if err := validate.Struct(data); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", ErrSignUpInvalid, err)
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fe.Translate(translator))
		}
		return fmt.Errorf("%w: %s", ErrSignUpInvalid, strings.Join(msgs, "; "))
	}
	return nil
}
