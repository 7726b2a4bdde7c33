package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// IDResponse is returned by writes that only need to report the id they
// assigned or touched.
type IDResponse struct {
	ID string `json:"id"`
}

// ListTrips handles GET /trips. Trips are ordered by start date, latest
// first; stored trips that fail validation are left out.
func (s *Server) ListTrips(w http.ResponseWriter, r *http.Request) {
	trips, err := s.trips.List(r.Context())
	if err != nil {
		s.writeError(w, r, err, "trip")
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

// CreateTrip handles POST /trips and returns the stored trip.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeObject(r)
	if err != nil {
		s.writeError(w, r, err, "trip")
		return
	}
	id, err := s.trips.Create(r.Context(), payload)
	if err != nil {
		s.writeError(w, r, err, "trip")
		return
	}
	trip, err := s.trips.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, "trip")
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

// GetTrip handles GET /trips/{tripID}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := s.trips.Get(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		s.writeError(w, r, err, "trip")
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// UpdateTrip handles PATCH /trips/{tripID}. Only the fields present in the
// body are written.
func (s *Server) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tripID")
	patch, err := decodeObject(r)
	if err != nil {
		s.writeError(w, r, err, "trip")
		return
	}
	if err := s.trips.Update(r.Context(), id, patch); err != nil {
		s.writeError(w, r, err, "trip")
		return
	}
	trip, err := s.trips.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, "trip")
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// DeleteTrip handles DELETE /trips/{tripID}. Child resources go with it.
func (s *Server) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	if err := s.trips.Delete(r.Context(), chi.URLParam(r, "tripID")); err != nil {
		s.writeError(w, r, err, "trip")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertBooking handles PUT /trips/{tripID}/bookings. A body with an id
// replaces that booking; one without is appended with a new id.
func (s *Server) UpsertBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := decodeObject(r)
	if err != nil {
		s.writeError(w, r, err, "booking")
		return
	}
	id, err := s.trips.UpsertBooking(r.Context(), chi.URLParam(r, "tripID"), booking)
	if err != nil {
		s.writeError(w, r, err, "booking")
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// DeleteBooking handles DELETE /trips/{tripID}/bookings/{id}.
func (s *Server) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := s.trips.DeleteBooking(r.Context(), chi.URLParam(r, "tripID"), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err, "booking")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertChecklistItem handles PUT /trips/{tripID}/checklist.
func (s *Server) UpsertChecklistItem(w http.ResponseWriter, r *http.Request) {
	item, err := decodeObject(r)
	if err != nil {
		s.writeError(w, r, err, "checklist item")
		return
	}
	id, err := s.trips.UpsertChecklistItem(r.Context(), chi.URLParam(r, "tripID"), item)
	if err != nil {
		s.writeError(w, r, err, "checklist item")
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// ToggleChecklistItem handles POST /trips/{tripID}/checklist/{id}/toggle.
func (s *Server) ToggleChecklistItem(w http.ResponseWriter, r *http.Request) {
	if err := s.trips.ToggleChecklistItem(r.Context(), chi.URLParam(r, "tripID"), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err, "checklist item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteChecklistItem handles DELETE /trips/{tripID}/checklist/{id}.
func (s *Server) DeleteChecklistItem(w http.ResponseWriter, r *http.Request) {
	if err := s.trips.DeleteChecklistItem(r.Context(), chi.URLParam(r, "tripID"), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err, "checklist item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
