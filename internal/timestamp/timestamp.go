// Package timestamp converts the different wire representations of an instant
// into a single UTC time.Time.
//
// Documents reach the sync core from several writers: server-stamped values
// arrive as seconds/nanoseconds pairs, older clients wrote ISO strings or
// epoch milliseconds, and in-process callers pass time.Time directly.
// Normalize accepts all of them.
package timestamp

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkordes/travelogue/internal/domain"
)

// ErrUnrecognized is returned when a value is not any supported timestamp
// representation, or parses to an invalid instant.
var ErrUnrecognized = fmt.Errorf("%w: unrecognized timestamp", domain.ErrValidation)

// Timestamp is the seconds/nanoseconds pair written by the document store for
// server-assigned times.
type Timestamp struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int32 `json:"nanoseconds"`
}

// FromTime returns the pair form of t.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanoseconds: int32(t.Nanosecond())}
}

// ToDate returns the instant as a UTC time.Time.
func (ts Timestamp) ToDate() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanoseconds)).UTC()
}

type dater interface{ ToDate() time.Time }

type protoTime interface{ AsTime() time.Time }

// converter reports ok=false when raw is not its representation, letting the
// next converter in the chain try.
type converter func(raw any) (t time.Time, ok bool)

// chain is tried in order; the first converter that recognises the value wins.
var chain = []converter{
	fromMethod,
	fromPair,
	fromStringOrNumber,
	fromTime,
}

// Normalize converts raw into a UTC time.Time.
// It never panics; any unsupported or invalid input yields ErrUnrecognized.
func Normalize(raw any) (t time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = time.Time{}, fmt.Errorf("%w: %v", ErrUnrecognized, r)
		}
	}()

	if raw == nil {
		return time.Time{}, fmt.Errorf("%w: nil", ErrUnrecognized)
	}
	for _, conv := range chain {
		got, ok := conv(raw)
		if !ok {
			continue
		}
		if got.IsZero() {
			return time.Time{}, fmt.Errorf("%w: zero time", ErrUnrecognized)
		}
		return got.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %T", ErrUnrecognized, raw)
}

func fromMethod(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case *Timestamp:
		if v == nil {
			return time.Time{}, false
		}
		return v.ToDate(), true
	case dater:
		return v.ToDate(), true
	case protoTime:
		return v.AsTime(), true
	}
	return time.Time{}, false
}

func fromPair(raw any) (time.Time, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return time.Time{}, false
	}
	for _, keys := range [][2]string{{"seconds", "nanoseconds"}, {"_seconds", "_nanoseconds"}} {
		secRaw, present := m[keys[0]]
		if !present {
			continue
		}
		sec, ok := integer(secRaw)
		if !ok {
			return time.Time{}, false
		}
		var nanos int64
		if nRaw, present := m[keys[1]]; present && nRaw != nil {
			nanos, ok = integer(nRaw)
			if !ok || nanos < 0 || nanos >= int64(time.Second) {
				return time.Time{}, false
			}
		}
		return time.Unix(sec, nanos), true
	}
	return time.Time{}, false
}

var stringLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	domain.DateLayout,
}

func fromStringOrNumber(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range stringLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case json.Number:
		if ms, err := v.Int64(); err == nil {
			return time.UnixMilli(ms), true
		}
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromMillis(f)
	case int:
		return time.UnixMilli(int64(v)), true
	case int32:
		return time.UnixMilli(int64(v)), true
	case int64:
		return time.UnixMilli(v), true
	case float64:
		return fromMillis(v)
	case float32:
		return fromMillis(float64(v))
	}
	return time.Time{}, false
}

func fromTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	}
	return time.Time{}, false
}

// maxMillis is the largest magnitude a JavaScript Date accepts (±8.64e15 ms).
const maxMillis = 8.64e15

func fromMillis(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxMillis {
		return time.Time{}, false
	}
	ms := math.Trunc(f)
	nanos := int64((f - ms) * float64(time.Millisecond))
	return time.UnixMilli(int64(ms)).Add(time.Duration(nanos)), true
}

// integer accepts the numeric shapes a decoded document may carry.
// Floats must be whole numbers.
func integer(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}
