// Package schema is the validation boundary between schema-less documents and
// the typed domain model. Validate accepts any raw value (a decoded document
// map, JSON bytes, or a struct) and returns either a typed entity or a
// FieldErrors map describing every problem found. It never panics.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/timestamp"
)

// Kind names an entity schema. It is used for diagnostics and selects the
// kind-specific normalisation applied before decoding.
type Kind string

const (
	KindTrip          Kind = "trip"
	KindDailyPlan     Kind = "daily_plan"
	KindActivity      Kind = "activity"
	KindBooking       Kind = "booking"
	KindChecklistItem Kind = "checklist_item"
	KindExpense       Kind = "expense"
	KindCollection    Kind = "collection"
)

// Result is the outcome of Validate. Exactly one of Value (OK == true) or
// Errors (OK == false) is meaningful.
type Result[T any] struct {
	Value  T
	Errors FieldErrors
	OK     bool
}

// Err returns Errors as an error, or nil when the value is valid.
func (r Result[T]) Err() error {
	if r.OK {
		return nil
	}
	return r.Errors
}

// Validate decodes raw into T and applies T's validation rules.
func Validate[T any](kind Kind, raw any) (res Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			var zero T
			fe := FieldErrors{}
			fe.Add(RootField, fmt.Sprintf("unexpected input: %v", p))
			res = Result[T]{Value: zero, Errors: fe}
		}
	}()

	fe := FieldErrors{}

	m, err := toMap(raw)
	if err != nil {
		fe.Add(RootField, err.Error())
		return Result[T]{Errors: fe}
	}
	normalize(kind, m, fe)

	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &out,
		TagName:    "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(timeHook, integerHook),
	})
	if err != nil {
		fe.Add(RootField, err.Error())
		return Result[T]{Errors: fe}
	}
	if err := dec.Decode(m); err != nil {
		collectDecodeErrors(fe, err)
	}

	// Rule checks run even after decode failures so the caller sees every
	// problem in one pass. Fields that failed to decode are left at zero.
	if err := rules.Struct(out); err != nil {
		collectRuleErrors(fe, err)
	}

	if len(fe) > 0 {
		return Result[T]{Errors: fe}
	}
	return Result[T]{Value: out, OK: true}
}

// toMap returns a shallow copy of raw as a map so normalisation never
// mutates the caller's document.
func toMap(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("expected an object, got null")
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case []byte:
		return unmarshalObject(v)
	case json.RawMessage:
		return unmarshalObject(v)
	case string:
		return nil, fmt.Errorf("expected an object, got string")
	}

	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("expected an object, got null")
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Map:
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("expected an object: %w", err)
		}
		return unmarshalObject(b)
	}
	return nil, fmt.Errorf("expected an object, got %T", raw)
}

func unmarshalObject(b []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("expected a JSON object: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("expected an object, got null")
	}
	return m, nil
}

// normalize applies the kind-specific rewrites that happen before decoding.
func normalize(kind Kind, m map[string]any, fe FieldErrors) {
	switch kind {
	case KindCollection:
		switch tags := m["tags"].(type) {
		case nil:
			delete(m, "tags")
		case []any:
			m["tags"] = domain.SanitizeTags(tags)
		case []string:
			raw := make([]any, len(tags))
			for i, t := range tags {
				raw[i] = t
			}
			m["tags"] = domain.SanitizeTags(raw)
		default:
			fe.Add("tags", "must be an array")
			delete(m, "tags")
		}
	case KindDailyPlan:
		if m["activities"] == nil {
			m["activities"] = []any{}
		}
	}
}

var timeType = reflect.TypeOf(time.Time{})

// timeHook routes every value bound for a time.Time through the timestamp
// normalizer, so documents may carry any supported representation.
func timeHook(from, to reflect.Type, data any) (any, error) {
	if to != timeType || from == timeType {
		return data, nil
	}
	t, err := timestamp.Normalize(data)
	if err != nil {
		return nil, fmt.Errorf("must be a timestamp")
	}
	return t, nil
}

// integerHook rejects fractional numbers bound for integer fields, which
// mapstructure would otherwise truncate.
func integerHook(from, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return data, nil
	}
	if f, ok := data.(float64); ok && f != math.Trunc(f) {
		return nil, fmt.Errorf("must be an integer")
	}
	return data, nil
}
