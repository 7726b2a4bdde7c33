package schema

import (
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/pkordes/travelogue/internal/domain"
)

// RootField is the FieldErrors key used for problems that are not tied to a
// single field (e.g. the input is not an object at all).
const RootField = "_root"

// FieldErrors maps a JSON field path (e.g. "activities[0].time") to the
// messages reported for it. It implements error and matches
// domain.ErrValidation under errors.Is.
type FieldErrors map[string][]string

// Add records msg for field.
func (fe FieldErrors) Add(field, msg string) {
	if field == "" {
		field = RootField
	}
	fe[field] = append(fe[field], msg)
}

// Fields returns the failing field paths in sorted order.
func (fe FieldErrors) Fields() []string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Error renders every field error on one line, sorted by field path.
func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, k := range fe.Fields() {
		parts = append(parts, k+": "+strings.Join(fe[k], ", "))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (fe FieldErrors) Unwrap() error { return domain.ErrValidation }

// collectDecodeErrors flattens the joined error tree mapstructure returns.
func collectDecodeErrors(fe FieldErrors, err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			collectDecodeErrors(fe, e)
		}
		return
	}
	var de *mapstructure.DecodeError
	if errors.As(err, &de) {
		inner := de.Unwrap()
		var nested *mapstructure.DecodeError
		if _, isJoined := inner.(interface{ Unwrap() []error }); isJoined || errors.As(inner, &nested) {
			collectDecodeErrors(fe, inner)
			return
		}
		fe.Add(de.Name(), decodeMessage(inner))
		return
	}
	fe.Add(RootField, err.Error())
}

func decodeMessage(err error) string {
	var unconvertible *mapstructure.UnconvertibleTypeError
	if errors.As(err, &unconvertible) {
		return "has the wrong type"
	}
	return err.Error()
}

// collectRuleErrors converts validator output into FieldErrors keyed by JSON
// path. The leading struct name in each namespace is dropped.
func collectRuleErrors(fe FieldErrors, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fe.Add(RootField, err.Error())
		return
	}
	for _, v := range verrs {
		path := v.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		fe.Add(path, ruleMessage(v))
	}
}

func ruleMessage(v validator.FieldError) string {
	switch v.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "isodate":
		return "must be a YYYY-MM-DD calendar date"
	case "hhmm":
		return "must be a 24-hour HH:mm time"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(v.Param(), " ", ", ")
	case "url":
		return "must be an absolute URL"
	case "gt":
		return "must be greater than " + v.Param()
	case "gte":
		return "must be at least " + v.Param()
	case "lte":
		return "must be at most " + v.Param()
	case "min":
		return "must contain at least " + v.Param() + " entries"
	case tagEndAfterStart:
		return "must not be before startDate"
	default:
		return "failed " + v.Tag()
	}
}
