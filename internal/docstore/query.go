package docstore

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"github.com/pkordes/travelogue/internal/timestamp"
)

// Filter is an equality condition on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Query selects the documents directly inside Collection.
type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// WhereEq returns a copy of q with an additional equality filter.
func (q Query) WhereEq(field string, value any) Query {
	q.Where = append(append([]Filter(nil), q.Where...), Filter{Field: field, Value: value})
	return q
}

// Matches reports whether doc satisfies every filter of q.
func (q Query) Matches(doc Document) bool {
	for _, f := range q.Where {
		v, ok := doc[f.Field]
		if !ok || !equal(v, f.Value) {
			return false
		}
	}
	return true
}

// Apply orders and limits snaps in place according to q and returns the
// (possibly shorter) result. Ties keep document path order so results are
// deterministic across backends.
func (q Query) Apply(snaps []Snapshot) []Snapshot {
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].Path < snaps[j].Path
	})
	if q.OrderBy != "" {
		sort.SliceStable(snaps, func(i, j int) bool {
			a, aok := snaps[i].Data[q.OrderBy]
			b, bok := snaps[j].Data[q.OrderBy]
			// Documents missing the order field sort last in both directions.
			if aok != bok {
				return aok
			}
			c := Compare(a, b)
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(snaps) > q.Limit {
		snaps = snaps[:q.Limit]
	}
	return snaps
}

type valueKind int

const (
	kindNull valueKind = iota
	kindBool
	kindNumber
	kindTime
	kindString
	kindOther
)

func kindOf(v any) valueKind {
	switch x := v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case float64, float32, int, int32, int64, json.Number:
		return kindNumber
	case string:
		return kindString
	case map[string]any:
		if _, ok := x["seconds"]; ok {
			if _, err := timestamp.Normalize(x); err == nil {
				return kindTime
			}
		}
	default:
		if _, err := timestamp.Normalize(x); err == nil {
			return kindTime
		}
	}
	return kindOther
}

func equal(a, b any) bool {
	if k := kindOf(a); k == kindOther || k != kindOf(b) {
		return k == kindOf(b) && reflect.DeepEqual(a, b)
	}
	return Compare(a, b) == 0
}

// Compare orders two field values: null < bool < number < time < string <
// anything else. Values of the same kind compare naturally.
func Compare(a, b any) int {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}
	switch ka {
	case kindBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		}
		return 1
	case kindNumber:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case kindTime:
		ta, _ := timestamp.Normalize(a)
		tb, _ := timestamp.Normalize(b)
		return ta.Compare(tb)
	case kindString:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		f, _ := x.Float64()
		return f
	}
	return 0
}
