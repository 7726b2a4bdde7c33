package schema

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pkordes/travelogue/internal/domain"
)

const tagEndAfterStart = "endafterstart"

var (
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	hhmmRe    = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// rules is the shared validator instance. Custom tags are registered in init.
var rules *validator.Validate

func init() {
	rules = validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names so error keys match the document shape.
	rules.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	_ = rules.RegisterValidation("isodate", validateISODate)
	_ = rules.RegisterValidation("hhmm", validateHHMM)
	_ = rules.RegisterValidation("notblank", validateNotBlank)

	rules.RegisterStructValidation(validateTripDates, domain.Trip{})
}

// validateISODate accepts YYYY-MM-DD strings that name a real calendar day.
func validateISODate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if !isoDateRe.MatchString(s) {
		return false
	}
	_, err := time.Parse(domain.DateLayout, s)
	return err == nil
}

func validateHHMM(fl validator.FieldLevel) bool {
	return hhmmRe.MatchString(fl.Field().String())
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateTripDates enforces endDate >= startDate. Malformed dates are left
// to the isodate rule.
func validateTripDates(sl validator.StructLevel) {
	trip := sl.Current().Interface().(domain.Trip)
	start, err := time.Parse(domain.DateLayout, trip.StartDate)
	if err != nil {
		return
	}
	end, err := time.Parse(domain.DateLayout, trip.EndDate)
	if err != nil {
		return
	}
	if end.Before(start) {
		sl.ReportError(trip.EndDate, "endDate", "EndDate", tagEndAfterStart, "")
	}
}
