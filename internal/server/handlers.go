package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"noteease/internal/model"
	"noteease/internal/notes"
)

type noteRequest struct {
	Title    string  `json:"title" validate:"required_without=Content"`
	Content  string  `json:"content" validate:"required_without=Title"`
	Color    *uint32 `json:"color"`
	IsPinned bool    `json:"is_pinned"`
}

type idsRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid request payload")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		badRequest(w, err.Error())
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, notes.ErrStoreClosed):
		writeError(w, http.StatusServiceUnavailable, "note store closed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	case errors.Is(err, notes.ErrStorage):
		s.logger.Error("storage failure", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "storage failure")
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathID(r *http.Request) int64 {
	// The route pattern guarantees digits.
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

// existing loads the note named in the path, writing 404 when it is missing.
func (s *Server) existing(w http.ResponseWriter, r *http.Request) (*model.Note, bool) {
	n, err := s.store.GetNoteByID(r.Context(), pathID(r))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if n == nil {
		notFound(w, "note not found")
		return nil, false
	}
	return n, true
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.WaitVisibleNotes(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, notes.Filter(all, r.URL.Query().Get("q")))
}

func (s *Server) pinnedNotes(w http.ResponseWriter, r *http.Request) {
	pinned, err := s.store.WaitPinnedNotes(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, pinned)
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	if n, ok := s.existing(w, r); ok {
		success(w, n)
	}
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !s.decode(w, r, &req) {
		return
	}

	n := model.Note{Title: req.Title, Content: req.Content, IsPinned: req.IsPinned}
	if req.Color != nil {
		n.Color = *req.Color
	}

	s.save(w, r, n, http.StatusCreated)
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	current, ok := s.existing(w, r)
	if !ok {
		return
	}

	var req noteRequest
	if !s.decode(w, r, &req) {
		return
	}

	n := *current
	n.Title = req.Title
	n.Content = req.Content
	n.IsPinned = req.IsPinned
	if req.Color != nil {
		n.Color = *req.Color
	}

	s.save(w, r, n, http.StatusOK)
}

func (s *Server) save(w http.ResponseWriter, r *http.Request, n model.Note, status int) {
	id, err := s.store.AddOrUpdate(n).Wait(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	saved, err := s.store.GetNoteByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, saved)
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	n, ok := s.existing(w, r)
	if !ok {
		return
	}
	if _, err := s.store.DeleteNote(*n).Wait(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, map[string]int64{"deleted": n.ID})
}

func (s *Server) togglePin(w http.ResponseWriter, r *http.Request) {
	n, ok := s.existing(w, r)
	if !ok {
		return
	}
	if _, err := s.store.TogglePin(*n).Wait(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	n.IsPinned = !n.IsPinned
	success(w, n)
}

func (s *Server) copyNotes(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !s.decode(w, r, &req) {
		return
	}
	ids, err := s.store.CopyNotes(req.IDs).Wait(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	created(w, map[string][]int64{"ids": ids})
}

func (s *Server) deleteNotes(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if _, err := s.store.DeleteNotes(req.IDs).Wait(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, map[string]int{"requested": len(req.IDs)})
}

func (s *Server) sharePayload(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !s.decode(w, r, &req) {
		return
	}
	payload, err := s.store.SharePayload(r.Context(), req.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, map[string]string{"payload": payload})
}
