package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sweeney/pw-dashboard/internal/circle"
	"github.com/sweeney/pw-dashboard/internal/mqtt"
	"github.com/sweeney/pw-dashboard/internal/schedule"
	"github.com/sweeney/pw-dashboard/internal/telemetry"
)

var errBadRequest = errors.New("bad request")

// ErrorJSON is the body of every failed API call.
type ErrorJSON struct {
	Error string `json:"error"`
}

// CircleStatusJSON is one circle's status line and the message it was built from.
type CircleStatusJSON struct {
	MAC    string            `json:"mac"`
	Line   string            `json:"line"`
	Status telemetry.Message `json:"status"`
}

// ScheduleListJSON is the schedule index.
type ScheduleListJSON struct {
	Names   []string `json:"names"`
	Pending string   `json:"pending,omitempty"`
}

// CommandRequest is the body of a switch or schedule toggle.
type CommandRequest struct {
	Val string `json:"val"`
}

// NameRequest carries a schedule name.
type NameRequest struct {
	Name string `json:"name"`
}

// DescriptionRequest carries a schedule description.
type DescriptionRequest struct {
	Description string `json:"description"`
}

// CellsRequest is one edit batch from the grid.
type CellsRequest struct {
	Edits  []schedule.CellEdit `json:"edits"`
	Source schedule.Source     `json:"source,omitempty"`
}

// statusFor maps an error onto an HTTP status code. Anything not recognised
// is a failure of the backend or transport behind the dashboard.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, schedule.ErrEmptyName),
		errors.Is(err, schedule.ErrInvalidCell),
		errors.Is(err, schedule.ErrCellOutOfRange),
		errors.Is(err, schedule.ErrEmptyMatrix),
		errors.Is(err, schedule.ErrRaggedMatrix),
		errors.Is(err, schedule.ErrShape),
		errors.Is(err, mqtt.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrNotFound),
		errors.Is(err, circle.ErrUnknownCircle):
		return http.StatusNotFound
	case errors.Is(err, schedule.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, schedule.ErrNotConfirmed),
		errors.Is(err, schedule.ErrNoSchedule):
		return http.StatusPreconditionFailed
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorJSON{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

const maxBodyBytes = 1 << 20
