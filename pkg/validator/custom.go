package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var staffCodeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,31}$`)

func RegisterCustomValidations(validate *validator.Validate) {
	validate.RegisterValidation("injury_level", validateInjuryLevel)
	validate.RegisterValidation("staff_code", validateStaffCode)
	validate.RegisterValidation("incident_state", validateIncidentState)
}

// 1 = mild, 2 = moderate, 3 = severe
func validateInjuryLevel(fl validator.FieldLevel) bool {
	lvl := fl.Field().Int()
	return lvl >= 1 && lvl <= 3
}

func validateStaffCode(fl validator.FieldLevel) bool {
	return staffCodeRe.MatchString(fl.Field().String())
}

func validateIncidentState(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "Pending", "Attended":
		return true
	}
	return false
}
