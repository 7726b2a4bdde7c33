package ingest_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/ingest"
	"github.com/pkordes/travelogue/internal/metrics"
	"github.com/pkordes/travelogue/internal/schema"
)

func newPipeline() (*ingest.Pipeline, *bytes.Buffer) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return ingest.New(log), &buf
}

func expense(date string, amount any) docstore.Document {
	return docstore.Document{
		"date": date, "category": "food", "amount": amount, "currency": "JPY",
		"description": "ramen", "payer": "m1",
	}
}

func TestFilterValid_KeepsValidInOrder(t *testing.T) {
	p, logs := newPipeline()
	snaps := []docstore.Snapshot{
		{ID: "e1", Data: expense("2024-03-20", 10)},
		{ID: "bad1", Data: expense("2024-03-20", -5)},
		{ID: "e2", Data: expense("2024-03-19", 20)},
		{ID: "bad2", Data: docstore.Document{"amount": "lots"}},
		{ID: "bad3", Data: nil},
		{ID: "e3", Data: expense("2024-03-21", 30)},
	}

	got := ingest.FilterValid[domain.Expense](p, schema.KindExpense, snaps, nil)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"e1", "e2", "e3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Contains(t, logs.String(), `"id":"bad1"`)
	assert.Contains(t, logs.String(), `"kind":"expense"`)
	assert.Contains(t, logs.String(), `"field_errors"`)
}

func TestFilterValid_AllInvalidYieldsEmpty(t *testing.T) {
	p, _ := newPipeline()
	snaps := []docstore.Snapshot{{ID: "x", Data: docstore.Document{"title": 42}}}

	got := ingest.FilterValid[domain.Trip](p, schema.KindTrip, snaps, nil)

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFilterValid_CustomPrepare(t *testing.T) {
	p, _ := newPipeline()
	snaps := []docstore.Snapshot{{ID: "p1", Data: docstore.Document{"date": "2024-03-20"}}}

	got := ingest.FilterValid[domain.DailyPlan](p, schema.KindDailyPlan, snaps, func(s docstore.Snapshot) map[string]any {
		m := ingest.WithID(s)
		m["tripId"] = "t1"
		return m
	})

	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TripID)
	assert.Empty(t, got[0].Activities)
}

func TestFilterRaw_NeverPanics(t *testing.T) {
	p, _ := newPipeline()
	raw := []any{
		nil, 7, "str", []any{1},
		map[string]any{"id": "c1", "title": "Cafe", "url": "https://example.com", "source": "web",
			"createdAt": "2024-03-20T10:00:00Z", "tags": []any{" a ", "a", ""}},
	}

	var got []domain.Collection
	assert.NotPanics(t, func() { got = ingest.FilterRaw[domain.Collection](p, schema.KindCollection, raw) })

	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, []string{"a"}, got[0].Tags)
}

func TestOne_CountsOutcomes(t *testing.T) {
	p, _ := newPipeline()
	accepted := testutil.ToFloat64(metrics.IngestAccepted.WithLabelValues(string(schema.KindBooking)))
	rejected := testutil.ToFloat64(metrics.IngestRejected.WithLabelValues(string(schema.KindBooking)))

	_, ok := ingest.One[domain.Booking](p, schema.KindBooking, "b1", map[string]any{"id": "b1", "type": "flight", "title": "NH 123"})
	assert.True(t, ok)
	_, ok = ingest.One[domain.Booking](p, schema.KindBooking, "b2", map[string]any{"id": "b2", "type": "rocket"})
	assert.False(t, ok)

	assert.InDelta(t, accepted+1, testutil.ToFloat64(metrics.IngestAccepted.WithLabelValues(string(schema.KindBooking))), 0)
	assert.InDelta(t, rejected+1, testutil.ToFloat64(metrics.IngestRejected.WithLabelValues(string(schema.KindBooking))), 0)
}
