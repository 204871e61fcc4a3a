package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/sweeney/pw-dashboard/internal/alert"
	"github.com/sweeney/pw-dashboard/internal/circle"
	"github.com/sweeney/pw-dashboard/internal/mqtt"
	"github.com/sweeney/pw-dashboard/internal/telemetry"
)

func (s *Server) handleCircles(w http.ResponseWriter, r *http.Request) {
	circles := s.tracker.Snapshot().Circles
	if circles == nil {
		circles = []circle.Circle{}
	}
	writeJSON(w, http.StatusOK, circles)
}

func (s *Server) handleCircleStatus(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")
	m, ok := s.tracker.StatusMessage(mac)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", circle.ErrUnknownCircle, mac))
		return
	}
	writeJSON(w, http.StatusOK, CircleStatusJSON{
		MAC:    m.MAC,
		Line:   telemetry.FormatStatusLine(m, s.loc),
		Status: m,
	})
}

// handleCommand returns a handler sending cmd with the requested value to
// the circle named in the path.
func (s *Server) handleCommand(cmd string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.tracker.Circle(chi.URLParam(r, "mac"))
		if !ok {
			writeError(w, fmt.Errorf("%w: %s", circle.ErrUnknownCircle, chi.URLParam(r, "mac")))
			return
		}
		var req CommandRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		command, err := mqtt.NewCommand(s.prefix, cmd, c.MAC, req.Val)
		if err != nil {
			writeError(w, err)
			return
		}

		err = s.commands.SendCommand(r.Context(), command)
		s.metrics.IncCommand(cmd, err)
		if err != nil {
			s.log.Error().Err(err).Str("mac", c.MAC).Str("cmd", cmd).Msg("failed to send command")
			s.tracker.SetAlert(alert.Danger(fmt.Sprintf("failed to send %s command to %s", cmd, c.Name)))
			writeError(w, err)
			return
		}
		s.log.Info().Str("mac", c.MAC).Str("cmd", cmd).Str("val", command.Payload.Val).Msg("command sent")
		writeJSON(w, http.StatusAccepted, command)
	}
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.reload(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.handleJSON(w, r)
}

func (s *Server) handleDeviceOpen(w http.ResponseWriter, r *http.Request) {
	d, err := s.devices.Open(chi.URLParam(r, "mac"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeviceConfirm(w http.ResponseWriter, r *http.Request) {
	var d circle.Draft
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, err)
		return
	}
	d.MAC = chi.URLParam(r, "mac")
	if d.Static == nil || d.Dynamic == nil {
		writeError(w, fmt.Errorf("%w: draft needs static and dynamic records", errBadRequest))
		return
	}

	err := s.devices.Confirm(r.Context(), d)
	if !errors.Is(err, circle.ErrUnknownCircle) {
		s.metrics.IncBackendWrite("control", err)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	c, _ := s.tracker.Circle(d.MAC)
	writeJSON(w, http.StatusOK, c)
}
