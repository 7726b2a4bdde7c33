package docstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkordes/travelogue/internal/timestamp"
)

type serverTimestamp struct{}

// ServerTimestamp is a placeholder field value replaced with the backend's
// clock when the write is applied.
var ServerTimestamp any = serverTimestamp{}

// MarshalJSON fails so an unresolved placeholder can never be persisted.
func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return nil, fmt.Errorf("docstore: unresolved ServerTimestamp")
}

// Encode resolves ServerTimestamp placeholders to now and returns the JSON
// encoding of doc. Every backend stores exactly this encoding (or its
// decoded form), so values read back always have encoding/json shapes.
func Encode(doc Document, now time.Time) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	resolved := resolve(doc, timestamp.FromTime(now)).(map[string]any)
	b, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("docstore.Encode: %w", err)
	}
	return b, nil
}

// Decode parses an encoding produced by Encode.
func Decode(b []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("docstore.Decode: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Canonical round-trips doc through Encode and Decode.
func Canonical(doc Document, now time.Time) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	b, err := Encode(doc, now)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

func resolve(v any, ts timestamp.Timestamp) any {
	switch x := v.(type) {
	case serverTimestamp:
		return ts
	case time.Time:
		return timestamp.FromTime(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return timestamp.FromTime(*x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = resolve(val, ts)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = resolve(val, ts)
		}
		return out
	case nil:
		return nil
	}
	return v
}

// Clone deep-copies the map and slice structure of a decoded document.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	return cloneValue(doc).(map[string]any)
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}

// Merge returns a copy of base with the top-level fields of patch applied.
func Merge(base, patch Document) Document {
	out := make(Document, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
