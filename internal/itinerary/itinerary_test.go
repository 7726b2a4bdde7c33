package itinerary_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/itinerary"
)

func tokyo() *domain.Trip {
	return &domain.Trip{
		ID:        "trip-1",
		Title:     "Tokyo",
		StartDate: "2024-03-20",
		EndDate:   "2024-03-22",
		Days:      3,
		Status:    domain.TripUpcoming,
		Plans: []domain.DailyPlan{
			{Date: "2024-03-20", Activities: []domain.Activity{
				{Time: "12:00", Title: "Lunch", Category: domain.CategoryFood},
				{Time: "08:00", Title: "Breakfast", Category: domain.CategoryFood},
				{Time: "18:00", Title: "Dinner", Category: domain.CategoryFood},
				{Time: "08:00", Title: "Coffee", Category: domain.CategoryFood},
			}},
			{Date: "2024-03-21", Activities: []domain.Activity{
				{Time: "12:00", Title: "Museum", Category: domain.CategorySight},
			}},
		},
	}
}

func TestDateRange(t *testing.T) {
	got := itinerary.DateRange(tokyo())
	assert.Equal(t, []domain.DateItem{
		{Day: "03/20", Weekday: "Wed", FullDate: "2024-03-20"},
		{Day: "03/21", Weekday: "Thu", FullDate: "2024-03-21"},
		{Day: "03/22", Weekday: "Fri", FullDate: "2024-03-22"},
	}, got)
}

func TestDateRange_CrossesMonthAndLeapDay(t *testing.T) {
	got := itinerary.DateRange(&domain.Trip{StartDate: "2024-02-28", EndDate: "2024-03-01"})
	require.Len(t, got, 3)
	assert.Equal(t, "2024-02-29", got[1].FullDate)
	assert.Equal(t, "03/01", got[2].Day)
}

func TestDateRange_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		trip *domain.Trip
	}{
		{"nil trip", nil},
		{"bad start", &domain.Trip{StartDate: "soon", EndDate: "2024-03-22"}},
		{"inverted", &domain.Trip{StartDate: "2024-03-22", EndDate: "2024-03-20"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := itinerary.DateRange(tt.trip)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestDayIndex(t *testing.T) {
	trip := tokyo()
	tests := []struct {
		selected string
		want     int
	}{
		{"2024-03-20", 1},
		{"2024-03-21", 2},
		{"2024-03-22", 3},
		{"2024-03-18", -1},
		{"", 1},
		{"not a date", 1},
	}
	for _, tt := range tests {
		t.Run(tt.selected, func(t *testing.T) {
			assert.Equal(t, tt.want, itinerary.DayIndex(trip, tt.selected))
		})
	}
	assert.Equal(t, 1, itinerary.DayIndex(nil, "2024-03-21"))
}

func TestScheduleForDay_SortsStablyByTime(t *testing.T) {
	trip := tokyo()
	got := itinerary.ScheduleForDay(trip.Plans, "2024-03-20")

	titles := make([]string, len(got))
	for i, a := range got {
		titles[i] = a.Title
	}
	assert.Equal(t, []string{"Breakfast", "Coffee", "Lunch", "Dinner"}, titles)
	assert.Equal(t, "Lunch", trip.Plans[0].Activities[0].Title, "input left untouched")
}

func TestScheduleForDay_NoPlan(t *testing.T) {
	got := itinerary.ScheduleForDay(tokyo().Plans, "2024-03-22")
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Empty(t, itinerary.ScheduleForDay(nil, "2024-03-20"))
}

func TestFor(t *testing.T) {
	trip := tokyo()
	d := itinerary.For(trip, nil, "2024-03-21")
	assert.Len(t, d.Dates, 3)
	assert.Equal(t, 2, d.DayIndex)
	require.Len(t, d.Schedule, 1)
	assert.Equal(t, "Museum", d.Schedule[0].Title)

	separate := []domain.DailyPlan{{Date: "2024-03-21", Activities: []domain.Activity{{Time: "07:00", Title: "Run"}}}}
	d = itinerary.For(trip, separate, "2024-03-21")
	require.Len(t, d.Schedule, 1)
	assert.Equal(t, "Run", d.Schedule[0].Title)

	d = itinerary.For(nil, nil, "")
	assert.Empty(t, d.Dates)
	assert.Equal(t, 1, d.DayIndex)
	assert.Empty(t, d.Schedule)
}

func TestMapsURL(t *testing.T) {
	tests := []struct {
		name     string
		activity domain.Activity
		contains []string
	}{
		{
			name: "place id wins",
			activity: domain.Activity{
				Subtitle: "淺草寺", PlaceID: "ChIJVcXzIfGOGBgRxbZldgjJ4Z8",
				Coordinates: &domain.Coordinates{Lat: 10, Lng: 20},
			},
			contains: []string{"query_place_id=ChIJVcXzIfGOGBgRxbZldgjJ4Z8", "query=%E6%B7%BA%E8%8D%89%E5%AF%BA"},
		},
		{
			name:     "coordinates",
			activity: domain.Activity{Subtitle: "Somewhere", Coordinates: &domain.Coordinates{Lat: 35.7133, Lng: 139.7958}},
			contains: []string{"query=35.7133,139.7958"},
		},
		{
			name:     "name and address search",
			activity: domain.Activity{Subtitle: "東京鐵塔", Address: "港區芝公園"},
			contains: []string{"query=%E6%9D%B1%E4%BA%AC%E9%90%B5%E5%A1%94%20%E6%B8%AF%E5%8D%80%E8%8A%9D%E5%85%AC%E5%9C%92"},
		},
		{
			name:     "falls back to title",
			activity: domain.Activity{Title: "Fish & chips"},
			contains: []string{"query=Fish%20%26%20chips"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := itinerary.MapsURL(tt.activity)
			assert.Contains(t, got, "https://www.google.com/maps/search/?api=1")
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
		})
	}
}
