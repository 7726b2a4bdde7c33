package timestamp_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/timestamp"
)

// calendarTime mimics a client SDK timestamp object exposing ToDate.
type calendarTime struct{ t time.Time }

func (c calendarTime) ToDate() time.Time { return c.t }

// protoStyle mimics timestamppb.Timestamp.
type protoStyle struct{ t time.Time }

func (p protoStyle) AsTime() time.Time { return p.t }

var instant = time.Date(2024, 3, 20, 10, 30, 15, 123456789, time.UTC)

// TestNormalize_RoundTrip verifies that the pair form, the ISO string form,
// and the method-bearing object form of one instant normalize identically.
func TestNormalize_RoundTrip(t *testing.T) {
	forms := map[string]any{
		"pair struct":   timestamp.FromTime(instant),
		"pair pointer":  &timestamp.Timestamp{Seconds: instant.Unix(), Nanoseconds: int32(instant.Nanosecond())},
		"pair map":      map[string]any{"seconds": float64(instant.Unix()), "nanoseconds": float64(instant.Nanosecond())},
		"admin map":     map[string]any{"_seconds": instant.Unix(), "_nanoseconds": int64(instant.Nanosecond())},
		"iso string":    instant.Format(time.RFC3339Nano),
		"offset string": instant.In(time.FixedZone("JST", 9*3600)).Format(time.RFC3339Nano),
		"ToDate object": calendarTime{t: instant},
		"AsTime object": protoStyle{t: instant},
		"time.Time":     instant,
		"*time.Time":    &instant,
	}

	for name, raw := range forms {
		t.Run(name, func(t *testing.T) {
			got, err := timestamp.Normalize(raw)
			require.NoError(t, err)
			assert.True(t, got.Equal(instant), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestNormalize_PairWithoutNanoseconds(t *testing.T) {
	got, err := timestamp.Normalize(map[string]any{"seconds": instant.Unix()})

	require.NoError(t, err)
	assert.True(t, got.Equal(instant.Truncate(time.Second)))
}

func TestNormalize_EpochMillis(t *testing.T) {
	ms := instant.UnixMilli()
	want := instant.Truncate(time.Millisecond)

	for name, raw := range map[string]any{
		"int64":       ms,
		"float64":     float64(ms),
		"json.Number": json.Number("1710930615123"),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := timestamp.Normalize(raw)
			require.NoError(t, err)
			assert.True(t, got.Equal(want), "got %s", got)
		})
	}
}

func TestNormalize_DateOnlyString(t *testing.T) {
	got, err := timestamp.Normalize("2024-03-20")

	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), got)
}

func TestNormalize_Rejects(t *testing.T) {
	var nilTime *time.Time
	var nilPair *timestamp.Timestamp

	cases := map[string]any{
		"nil":              nil,
		"nil *time.Time":   nilTime,
		"nil *Timestamp":   nilPair,
		"garbage string":   "next tuesday",
		"impossible date":  "2024-02-30",
		"bool":             true,
		"zero time":        time.Time{},
		"NaN":              math.NaN(),
		"out of range":     9e15,
		"fractional secs":  map[string]any{"seconds": 1.5},
		"bad nanoseconds":  map[string]any{"seconds": 10, "nanoseconds": int64(2e9)},
		"unrelated map":    map[string]any{"when": "today"},
		"unsupported type": []string{"2024-03-20"},
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := timestamp.Normalize(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, timestamp.ErrUnrecognized)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

// panicky has a ToDate that panics; Normalize must still return an error.
type panicky struct{}

func (panicky) ToDate() time.Time { panic("boom") }

func TestNormalize_RecoversFromConverterPanic(t *testing.T) {
	_, err := timestamp.Normalize(panicky{})

	assert.ErrorIs(t, err, timestamp.ErrUnrecognized)
}
