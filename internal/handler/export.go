package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pkordes/travelogue/internal/auth"
)

// owner returns the caller's owner id, writing a 401 when there is none.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := auth.Require(r.Context())
	if err != nil {
		s.writeError(w, r, err, "user")
		return "", false
	}
	return id.OwnerID(), true
}

// attachment marks a JSON download with a dated file name.
func attachment(w http.ResponseWriter, prefix string) {
	name := fmt.Sprintf("%s-%s.json", prefix, time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, name))
}

// ExportAll handles GET /export: every trip owned by the caller with its
// plans, expenses and collections, as a downloadable backup package.
func (s *Server) ExportAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.owner(w, r)
	if !ok {
		return
	}
	pkg, err := s.backups.ExportAll(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err, "backup")
		return
	}
	attachment(w, "travelogue-backup")
	writeJSON(w, http.StatusOK, pkg)
}

// ExportTrip handles GET /trips/{tripID}/export.
func (s *Server) ExportTrip(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.backups.ExportTrip(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		s.writeError(w, r, err, "trip")
		return
	}
	attachment(w, "travelogue-trip")
	writeJSON(w, http.StatusOK, pkg)
}

// ImportAll handles POST /import. The body is a backup package; it is
// validated in full before the caller's existing data is replaced.
func (s *Server) ImportAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.owner(w, r)
	if !ok {
		return
	}
	if err := s.backups.ImportAll(r.Context(), userID, r.Body); err != nil {
		s.writeError(w, r, err, "backup")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportTrip handles POST /import/trip. The trip in the body is added as a
// new trip next to the caller's existing ones.
func (s *Server) ImportTrip(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.owner(w, r)
	if !ok {
		return
	}
	id, err := s.backups.ImportTrip(r.Context(), userID, r.Body)
	if err != nil {
		s.writeError(w, r, err, "trip")
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// ListBackups handles GET /backups, newest first.
func (s *Server) ListBackups(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.owner(w, r)
	if !ok {
		return
	}
	backups, err := s.backups.ListCloudBackups(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err, "backup")
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

// CreateBackup handles POST /backups.
func (s *Server) CreateBackup(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.owner(w, r)
	if !ok {
		return
	}
	b, err := s.backups.CreateCloudBackup(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err, "backup")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// RestoreBackup handles POST /backups/{backupID}/restore.
func (s *Server) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.owner(w, r)
	if !ok {
		return
	}
	if err := s.backups.RestoreCloudBackup(r.Context(), userID, chi.URLParam(r, "backupID")); err != nil {
		s.writeError(w, r, err, "backup")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
