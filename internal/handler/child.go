package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// childHandler serves the CRUD routes of one kind of trip child.
type childHandler[T any] struct {
	s     *Server
	store ChildStorer[T]
	noun  string
}

func (h childHandler[T]) routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

func (h childHandler[T]) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		h.s.writeError(w, r, err, h.noun)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h childHandler[T]) get(w http.ResponseWriter, r *http.Request) {
	item, err := h.store.Get(r.Context(), chi.URLParam(r, "tripID"), chi.URLParam(r, "id"))
	if err != nil {
		h.s.writeError(w, r, err, h.noun)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h childHandler[T]) create(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	payload, err := decodeObject(r)
	if err != nil {
		h.s.writeError(w, r, err, h.noun)
		return
	}
	if err := h.s.tripExists(r.Context(), tripID); err != nil {
		h.s.writeError(w, r, err, h.noun)
		return
	}
	id, err := h.store.Create(r.Context(), tripID, payload)
	if err != nil {
		h.s.writeError(w, r, err, h.noun)
		return
	}
	item, err := h.store.Get(r.Context(), tripID, id)
	if err != nil {
		h.s.writeError(w, r, err, h.noun)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h childHandler[T]) update(w http.ResponseWriter, r *http.Request) {
	tripID, id := chi.URLParam(r, "tripID"), chi.URLParam(r, "id")
	patch, err := decodeObject(r)
	if err != nil {
		h.s.writeError(w, r, err, h.noun)
		return
	}
	if err := h.store.Update(r.Context(), tripID, id, patch); err != nil {
		h.s.writeError(w, r, err, h.noun)
		return
	}
	item, err := h.store.Get(r.Context(), tripID, id)
	if err != nil {
		h.s.writeError(w, r, err, h.noun)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h childHandler[T]) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "tripID"), chi.URLParam(r, "id")); err != nil {
		h.s.writeError(w, r, err, h.noun)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
