package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	Validate   *validator.Validate
	Translator ut.Translator

	stepKeyTag   = "stepkey"
	stepKeyText  = "{0} must be a lower_snake_case step key"
	stepKeyRegex = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)
)

func init() {
	Validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	Translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(Validate, Translator)

	// report json names, not Go field names
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = Validate.RegisterValidation(stepKeyTag, func(fl validator.FieldLevel) bool {
		return stepKeyRegex.MatchString(fl.Field().String())
	})
	_ = Validate.RegisterTranslation(stepKeyTag, Translator,
		func(t ut.Translator) error { return t.Add(stepKeyTag, stepKeyText, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(stepKeyTag, fe.Field())
			return s
		},
	)
}

// Struct validates s by its `validate` tags and returns one ValidationResult
// with translated messages.
func Struct(s interface{}) *ValidationResult {
	err := Validate.Struct(s)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationResult{Errors: []ValidationError{{Message: err.Error(), Code: "INVALID"}}}
	}

	out := &ValidationResult{}
	for _, fe := range verrs {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fe.Field(),
			Message: fe.Translate(Translator),
			Code:    strings.ToUpper(fe.Tag()),
		})
	}
	return out
}
