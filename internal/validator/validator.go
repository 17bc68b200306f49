package validator

import (
	"reflect"
	"slices"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/models"
)

// Validator runs struct tag checks followed by cross-field business rules.
type Validator struct {
	tags     *validator.Validate
	business *BusinessValidator
}

var customRules = map[string]validator.Func{
	"forecast_strategy": isForecastStrategy,
	"blend_weight":      isBlendWeight,
	"student_code":      isStudentCode,
}

func New() *Validator {
	tags := validator.New()
	for tag, fn := range customRules {
		// only fails on an empty tag or a nil func
		_ = tags.RegisterValidation(tag, fn)
	}
	tags.RegisterTagNameFunc(jsonFieldName)

	return &Validator{tags: tags, business: NewBusinessValidator()}
}

func (v *Validator) ValidateStruct(s any) error {
	return v.tags.Struct(s)
}

func (v *Validator) ValidateBusiness(s any) ValidationErrors {
	return v.business.Validate(s)
}

// Validate returns the raw tag error or, once tags pass, the business rule errors.
func (v *Validator) Validate(s any) error {
	if err := v.ValidateStruct(s); err != nil {
		return err
	}
	if errs := v.ValidateBusiness(s); len(errs) > 0 {
		return errs
	}
	return nil
}

// Check is Validate with tag failures already converted to ValidationErrors.
func (v *Validator) Check(s any) error {
	if err := v.ValidateStruct(s); err != nil {
		return apperrors.ToValidationErrors(err)
	}
	if errs := v.ValidateBusiness(s); len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *Validator) Business() *BusinessValidator {
	return v.business
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func isForecastStrategy(fl validator.FieldLevel) bool {
	return slices.Contains([]models.ForecastMethod{
		models.MethodTimeSeries,
		models.MethodHybrid,
		models.MethodFeatureRegressor,
	}, models.ForecastMethod(fl.Field().String()))
}

func isBlendWeight(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		w := fl.Field().Float()
		return w >= 0 && w <= 1
	default:
		return false
	}
}

func isStudentCode(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value != "" && !strings.ContainsFunc(value, unicode.IsSpace)
}
