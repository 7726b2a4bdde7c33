// Package itinerary computes the read-only views derived from a trip: its
// calendar, the index of a selected day, and that day's schedule.
package itinerary

import (
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pkordes/travelogue/internal/domain"
)

// maxDays caps DateRange so a corrupt end date cannot produce an unbounded
// calendar.
const maxDays = 366 * 5

// DateRange lists every calendar day from trip.StartDate to trip.EndDate
// inclusive. A nil trip, unparsable bounds or an inverted range yield an
// empty slice.
func DateRange(trip *domain.Trip) []domain.DateItem {
	if trip == nil {
		return []domain.DateItem{}
	}
	start, err := time.Parse(domain.DateLayout, trip.StartDate)
	if err != nil {
		return []domain.DateItem{}
	}
	end, err := time.Parse(domain.DateLayout, trip.EndDate)
	if err != nil || end.Before(start) {
		return []domain.DateItem{}
	}

	out := make([]domain.DateItem, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end) && len(out) < maxDays; d = d.AddDate(0, 0, 1) {
		out = append(out, domain.DateItem{
			Day:      d.Format("01/02"),
			Weekday:  d.Format("Mon"),
			FullDate: d.Format(domain.DateLayout),
		})
	}
	return out
}

// DayIndex returns the 1-based day number of selected within the trip, so
// the start date is day 1. Dates before the start give zero or negative
// values. It returns 1 when the trip or the selected date is missing or
// unparsable.
func DayIndex(trip *domain.Trip, selected string) int {
	if trip == nil || selected == "" {
		return 1
	}
	start, err := time.Parse(domain.DateLayout, trip.StartDate)
	if err != nil {
		return 1
	}
	day, err := time.Parse(domain.DateLayout, selected)
	if err != nil {
		return 1
	}
	return int(math.Round(day.Sub(start).Hours()/24)) + 1
}

// ScheduleForDay returns the activities of the plan dated selected, ordered
// by start time. Activities sharing a time keep their stored order. The
// result is empty, never nil, when no plan matches.
func ScheduleForDay(plans []domain.DailyPlan, selected string) []domain.Activity {
	for _, p := range plans {
		if p.Date != selected {
			continue
		}
		out := slices.Clone(p.Activities)
		if out == nil {
			out = []domain.Activity{}
		}
		slices.SortStableFunc(out, func(a, b domain.Activity) int {
			switch {
			case a.Time < b.Time:
				return -1
			case a.Time > b.Time:
				return 1
			}
			return 0
		})
		return out
	}
	return []domain.Activity{}
}

// Details is everything a day view needs for one trip.
type Details struct {
	Dates    []domain.DateItem `json:"dates"`
	DayIndex int               `json:"dayIndex"`
	Schedule []domain.Activity `json:"schedule"`
}

// For computes Details for the selected date. plans overrides trip.Plans
// when the trip's plans are stored as separate documents.
func For(trip *domain.Trip, plans []domain.DailyPlan, selected string) Details {
	if plans == nil && trip != nil {
		plans = trip.Plans
	}
	return Details{
		Dates:    DateRange(trip),
		DayIndex: DayIndex(trip, selected),
		Schedule: ScheduleForDay(plans, selected),
	}
}

const mapsSearchURL = "https://www.google.com/maps/search/?api=1"

// MapsURL returns a Google Maps universal link for an activity. A place id
// is the most precise target, then coordinates, then a text search on the
// place name and address.
func MapsURL(a domain.Activity) string {
	name := a.Subtitle
	if name == "" {
		name = a.Title
	}
	if a.PlaceID != "" {
		return mapsSearchURL + "&query=" + escape(name) + "&query_place_id=" + url.QueryEscape(a.PlaceID)
	}
	if c := a.Coordinates; c != nil {
		return fmt.Sprintf("%s&query=%s,%s", mapsSearchURL,
			strconv.FormatFloat(c.Lat, 'f', -1, 64), strconv.FormatFloat(c.Lng, 'f', -1, 64))
	}
	q := name
	if a.Address != "" {
		q += " " + a.Address
	}
	return mapsSearchURL + "&query=" + escape(q)
}

// escape percent-encodes s for a query value with spaces as %20, matching
// what Maps links expect.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
