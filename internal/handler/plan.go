package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/itinerary"
)

// PlanResponse is the body of GET /trips/{tripID}/plans/{date}. ID is null
// while the day has no stored plan.
type PlanResponse struct {
	ID   *string          `json:"id"`
	Plan domain.DailyPlan `json:"plan"`
}

// ScheduledActivity is an activity with its map link resolved.
type ScheduledActivity struct {
	domain.Activity
	MapsURL string `json:"mapsUrl"`
}

// ScheduleResponse is the body of GET /trips/{tripID}/schedule.
type ScheduleResponse struct {
	Date     string              `json:"date"`
	Dates    []domain.DateItem   `json:"dates"`
	DayIndex int                 `json:"dayIndex"`
	Schedule []ScheduledActivity `json:"schedule"`
}

// tripExists reports domain.ErrParentNotFound for a trip id with no trip,
// so child writes behave the same under every child layout. Other lookup
// failures are returned as they are.
func (s *Server) tripExists(ctx context.Context, tripID string) error {
	_, err := s.trips.Get(ctx, tripID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("trip %s: %w", tripID, domain.ErrParentNotFound)
	case err != nil:
		return fmt.Errorf("trip %s: %w", tripID, err)
	}
	return nil
}

// ListPlans handles GET /trips/{tripID}/plans, earliest date first.
func (s *Server) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.List(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		s.writeError(w, r, err, "plan")
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// GetPlan handles GET /trips/{tripID}/plans/{date}. A day without a stored
// plan answers with an empty plan and a null id.
func (s *Server) GetPlan(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody(err.Error()))
		return
	}
	id, plan, err := s.plans.GetOrCreate(r.Context(), chi.URLParam(r, "tripID"), date)
	if err != nil {
		s.writeError(w, r, err, "plan")
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{ID: id, Plan: plan})
}

// UpsertActivity handles PUT /trips/{tripID}/plans/{date}/activities. The
// day's plan is created on first use.
func (s *Server) UpsertActivity(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	date, err := parseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody(err.Error()))
		return
	}
	activity, err := decodeObject(r)
	if err != nil {
		s.writeError(w, r, err, "activity")
		return
	}
	if err := s.tripExists(r.Context(), tripID); err != nil {
		s.writeError(w, r, err, "activity")
		return
	}
	id, err := s.plans.UpsertActivity(r.Context(), tripID, date, activity)
	if err != nil {
		s.writeError(w, r, err, "activity")
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// DeleteActivity handles DELETE /trips/{tripID}/plans/{date}/activities/{id}.
func (s *Server) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody(err.Error()))
		return
	}
	err = s.plans.DeleteActivity(r.Context(), chi.URLParam(r, "tripID"), date, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err, "activity")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSchedule handles GET /trips/{tripID}/schedule?date=YYYY-MM-DD. It
// returns the trip's calendar, the selected day's position in it and that
// day's activities ordered by time. Without a date the trip's first day is
// selected.
func (s *Server) GetSchedule(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	trip, err := s.trips.Get(r.Context(), tripID)
	if err != nil {
		s.writeError(w, r, err, "trip")
		return
	}

	selected := trip.StartDate
	if q := r.URL.Query().Get("date"); q != "" {
		if selected, err = parseDate(q); err != nil {
			writeJSON(w, http.StatusBadRequest, requestBody(err.Error()))
			return
		}
	}

	plans, err := s.plans.List(r.Context(), tripID)
	if err != nil {
		s.writeError(w, r, err, "plan")
		return
	}

	d := itinerary.For(&trip, plans, selected)
	schedule := make([]ScheduledActivity, len(d.Schedule))
	for i, a := range d.Schedule {
		schedule[i] = ScheduledActivity{Activity: a, MapsURL: itinerary.MapsURL(a)}
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{
		Date:     selected,
		Dates:    d.Dates,
		DayIndex: d.DayIndex,
		Schedule: schedule,
	})
}
