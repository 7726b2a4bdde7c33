// Package ingest turns raw documents from the store into validated entities.
// Each document is validated on its own; failures are logged and counted,
// then dropped, so one bad document never blocks or reorders the rest.
package ingest

import (
	"log/slog"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/metrics"
	"github.com/pkordes/travelogue/internal/schema"
)

// Pipeline carries the diagnostics sink for validation failures.
type Pipeline struct {
	log *slog.Logger
}

// New returns a Pipeline logging to log, or to slog.Default when log is nil.
func New(log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{log: log}
}

// WithID returns the document body with the snapshot id under "id". The
// stored body never carries its own id.
func WithID(snap docstore.Snapshot) map[string]any {
	m := make(map[string]any, len(snap.Data)+1)
	for k, v := range snap.Data {
		m[k] = v
	}
	m["id"] = snap.ID
	return m
}

// FilterValid validates every snapshot as kind and returns the valid ones
// in their original relative order. prepare shapes a snapshot into the raw
// value handed to the validator; nil means WithID.
func FilterValid[T any](p *Pipeline, kind schema.Kind, snaps []docstore.Snapshot, prepare func(docstore.Snapshot) map[string]any) []T {
	if prepare == nil {
		prepare = WithID
	}
	out := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		if v, ok := One[T](p, kind, snap.ID, prepare(snap)); ok {
			out = append(out, v)
		}
	}
	return out
}

// FilterRaw is FilterValid for values that did not come from the store,
// such as the entries of an import file.
func FilterRaw[T any](p *Pipeline, kind schema.Kind, raw []any) []T {
	out := make([]T, 0, len(raw))
	for _, item := range raw {
		if v, ok := One[T](p, kind, idOf(item), item); ok {
			out = append(out, v)
		}
	}
	return out
}

// One validates a single value, reporting a failure the same way the
// filters do. id is used only for diagnostics.
func One[T any](p *Pipeline, kind schema.Kind, id string, raw any) (T, bool) {
	res := schema.Validate[T](kind, raw)
	if res.OK {
		metrics.IngestAccepted.WithLabelValues(string(kind)).Inc()
		return res.Value, true
	}
	metrics.IngestRejected.WithLabelValues(string(kind)).Inc()
	p.log.Warn("ingest: dropping invalid document",
		"kind", string(kind),
		"id", id,
		"field_errors", map[string][]string(res.Errors),
		"raw", raw,
	)
	var zero T
	return zero, false
}

func idOf(item any) string {
	if m, ok := item.(map[string]any); ok {
		if id, ok := m["id"].(string); ok {
			return id
		}
	}
	return ""
}
