package devserver

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goGateway/middleware"
)

type recordInput struct {
	Title  *string `json:"title"`
	Status *string `json:"status"`
}

var validStatuses = map[string]struct{}{
	"draft":     {},
	"submitted": {},
	"approved":  {},
	"rejected":  {},
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if status == "" || rec.Status == status {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeData(w, http.StatusOK, out, "")
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeRecord(w, r, true)
	if !ok {
		return
	}
	claims, _ := middleware.ClaimsFromContext(r.Context())

	rec := Record{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(*in.Title),
		Status:    "draft",
		UpdatedAt: time.Now().UTC(),
	}
	if in.Status != nil {
		rec.Status = *in.Status
	}
	if claims != nil {
		rec.Owner = claims.Subject
	}

	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()

	writeData(w, http.StatusCreated, rec, "created")
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	rec, ok := s.records[r.PathValue("id")]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "record not found", nil)
		return
	}
	writeData(w, http.StatusOK, rec, "")
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeRecord(w, r, r.Method == http.MethodPut)
	if !ok {
		return
	}
	id := r.PathValue("id")

	s.mu.Lock()
	rec, found := s.records[id]
	if found {
		if in.Title != nil {
			rec.Title = strings.TrimSpace(*in.Title)
		}
		if in.Status != nil {
			rec.Status = *in.Status
		}
		rec.UpdatedAt = time.Now().UTC()
		s.records[id] = rec
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "record not found", nil)
		return
	}
	writeData(w, http.StatusOK, rec, "updated")
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	_, found := s.records[id]
	delete(s.records, id)
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "record not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeRecord validates the body; requireTitle is set for create and full replace.
func decodeRecord(w http.ResponseWriter, r *http.Request, requireTitle bool) (recordInput, bool) {
	var in recordInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", nil)
		return in, false
	}

	fields := map[string][]string{}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" || requireTitle && in.Title == nil {
		fields["title"] = append(fields["title"], "title is required")
	}
	if in.Status != nil {
		if _, ok := validStatuses[*in.Status]; !ok {
			fields["status"] = append(fields["status"], "unknown status")
		}
	}
	if len(fields) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", fields)
		return in, false
	}
	return in, true
}
