package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/sweeney/pw-dashboard/internal/alert"
	"github.com/sweeney/pw-dashboard/internal/schedule"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) scheduleList() ScheduleListJSON {
	names := s.schedules.Names()
	if names == nil {
		names = []string{}
	}
	pending, _ := s.schedules.Pending()
	return ScheduleListJSON{Names: names, Pending: pending}
}

func (s *Server) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduleList())
}

func (s *Server) handleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := s.schedules.Create(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, schedule.ErrEmptyName) || errors.Is(err, schedule.ErrDuplicateName) {
			writeError(w, err)
			return
		}
		s.metrics.IncBackendWrite("schedule", err)
		s.log.Error().Err(err).Str("schedule", req.Name).Msg("failed to create schedule")
		s.tracker.SetAlert(alert.Danger(fmt.Sprintf("failed to create schedule %s", req.Name)))
		writeError(w, err)
		return
	}
	s.metrics.IncBackendWrite("schedule", nil)
	s.tracker.SetAlert(alert.Success(fmt.Sprintf("schedule %s created", req.Name)))
	writeJSON(w, http.StatusCreated, s.scheduleList())
}

func (s *Server) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	confirmed := r.URL.Query().Get("confirm") == "yes"

	err := s.schedules.Delete(r.Context(), name, func(string) bool { return confirmed })
	if errors.Is(err, schedule.ErrNotConfirmed) {
		writeError(w, err)
		return
	}
	s.metrics.IncBackendWrite("schedule", err)
	if err != nil {
		s.log.Error().Err(err).Str("schedule", name).Msg("failed to delete schedule")
		s.tracker.SetAlert(alert.Danger(fmt.Sprintf("failed to delete schedule %s", name)))
		writeError(w, err)
		return
	}
	s.editor.Close(name)
	s.tracker.SetAlert(alert.Success(fmt.Sprintf("schedule %s deleted", name)))
	writeJSON(w, http.StatusOK, s.scheduleList())
}

func (s *Server) handleScheduleExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	loaded, err := s.schedules.Load(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	stored, err := s.schedules.Orientation().ToStored(loaded.Matrix)
	if err != nil {
		writeError(w, err)
		return
	}
	loaded.Matrix = stored
	s.writeXLSX(w, loaded)
}

// handleEditorExport exports the open schedule including unsaved edits.
func (s *Server) handleEditorExport(w http.ResponseWriter, r *http.Request) {
	working, err := s.editor.Stored()
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeXLSX(w, working)
}

func (s *Server) writeXLSX(w http.ResponseWriter, sched schedule.Schedule) {
	var buf bytes.Buffer
	if err := schedule.WriteXLSX(&buf, sched); err != nil {
		s.log.Error().Err(err).Str("schedule", sched.Name).Msg("export schedule")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sched.Name+".xlsx"))
	w.Write(buf.Bytes())
}

func (s *Server) handleEditorGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.editor.Snapshot())
}

func (s *Server) handleEditorOpen(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.editor.Open(r.Context(), req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.editor.Snapshot())
}

func (s *Server) handleEditorCells(w http.ResponseWriter, r *http.Request) {
	var req CellsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	source := req.Source
	switch source {
	case "":
		source = schedule.SourceEdit
	case schedule.SourceEdit, schedule.SourcePaste:
	default:
		// loadData and import batches are produced server-side only.
		writeError(w, fmt.Errorf("%w: edit source %q", errBadRequest, source))
		return
	}
	if err := s.editor.Apply(req.Edits, source); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.editor.Snapshot())
}

func (s *Server) handleEditorDescription(w http.ResponseWriter, r *http.Request) {
	var req DescriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.editor.SetDescription(req.Description); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.editor.Snapshot())
}

func (s *Server) handleEditorSave(w http.ResponseWriter, r *http.Request) {
	err := s.editor.Save(r.Context())
	if errors.Is(err, schedule.ErrNoSchedule) {
		writeError(w, err)
		return
	}
	s.metrics.IncBackendWrite("schedule", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.editor.Snapshot())
}

func (s *Server) handleEditorRevert(w http.ResponseWriter, r *http.Request) {
	if err := s.editor.Revert(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.editor.Snapshot())
}

func (s *Server) handleEditorImport(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, 8*maxBodyBytes)
	description, m, err := schedule.ReadXLSX(body)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if err := s.editor.Import(description, m); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.editor.Snapshot())
}
