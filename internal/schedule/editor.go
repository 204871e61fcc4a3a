package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sweeney/pw-dashboard/internal/alert"
)

// ErrNoSchedule is returned when the editor has no schedule open.
var ErrNoSchedule = errors.New("schedule: no schedule open")

// Session is a point-in-time view of the editor.
type Session struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Matrix      Matrix      `json:"schedule"`
	Dirty       bool        `json:"changed"`
	Orientation string      `json:"orientation"`
	Alert       alert.Alert `json:"alert"`
}

// Editor is the schedule edit session: it holds the last loaded copy, the
// working copy bound to a Grid, and the dirty flag.
type Editor struct {
	store *Store
	sink  alert.Sink
	log   zerolog.Logger

	mu          sync.Mutex
	name        string
	original    Schedule
	description string
	grid        *Grid
	last        alert.Alert
	onChange    func(name string)
}

// NewEditor creates an editor over store. onChange, if set, is called after
// every committed edit batch; it runs with the editor locked and must not
// call back into it.
func NewEditor(store *Store, sink alert.Sink, log zerolog.Logger, onChange func(name string)) *Editor {
	if sink == nil {
		sink = alert.Discard
	}
	e := &Editor{store: store, sink: sink, log: log, onChange: onChange}
	e.grid = NewGrid(store.Orientation(), alertFunc(e.setAlertLocked), e.changed)
	return e
}

type alertFunc func(alert.Alert)

func (f alertFunc) SetAlert(a alert.Alert) { f(a) }

// setAlertLocked records a and forwards it; e.mu must be held.
func (e *Editor) setAlertLocked(a alert.Alert) {
	e.last = a
	e.sink.SetAlert(a)
}

func (e *Editor) changed() {
	if e.onChange != nil {
		e.onChange(e.name)
	}
}

// Open loads name into the editor, discarding any unsaved edits.
func (e *Editor) Open(ctx context.Context, name string) error {
	s, err := e.store.Load(ctx, name)
	if err != nil {
		e.mu.Lock()
		e.setAlertLocked(alert.Danger(fmt.Sprintf("failed to load schedule %s", name)))
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.grid.Load(s.Matrix); err != nil {
		e.setAlertLocked(alert.Danger(fmt.Sprintf("schedule %s has an invalid shape", name)))
		return err
	}
	e.name = name
	e.original = s.Clone()
	e.description = s.Description
	e.setAlertLocked(alert.Success("schedule loaded"))
	e.log.Debug().Str("schedule", name).Msg("schedule opened")
	return nil
}

// Apply commits an edit batch to the working copy.
func (e *Editor) Apply(edits []CellEdit, source Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.name == "" {
		return ErrNoSchedule
	}
	if err := e.grid.Apply(edits, source); err != nil {
		e.log.Debug().Err(err).Str("schedule", e.name).Msg("edit batch rejected")
		return err
	}
	return nil
}

// SetDescription changes the working description and marks the schedule dirty.
func (e *Editor) SetDescription(description string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.name == "" {
		return ErrNoSchedule
	}
	if description == e.description {
		return nil
	}
	e.description = description
	return e.grid.Apply(nil, SourceEdit)
}

// Save persists the working copy. On success it becomes the new original.
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.name == "" {
		return ErrNoSchedule
	}
	data := e.grid.Data()
	if err := e.store.Save(ctx, e.name, e.description, data); err != nil {
		e.setAlertLocked(alert.Danger(fmt.Sprintf("failed to save schedule %s", e.name)))
		return err
	}
	e.original = Schedule{Name: e.name, Description: e.description, Matrix: data}
	e.grid.MarkClean()
	e.setAlertLocked(alert.Success("schedule saved"))
	return nil
}

// Revert discards uncommitted edits and restores the last loaded copy.
func (e *Editor) Revert() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.name == "" {
		return ErrNoSchedule
	}
	if err := e.grid.Load(e.original.Matrix); err != nil {
		return err
	}
	e.description = e.original.Description
	e.setAlertLocked(alert.Success("reverted to saved"))
	return nil
}

// Close forgets the open schedule if it is name. Used after deletion.
func (e *Editor) Close(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.name != name {
		return
	}
	e.name = ""
	e.original = Schedule{}
	e.description = ""
	rows, cols := e.store.Orientation().EditorDims()
	blank := make(Matrix, rows)
	for r := range blank {
		blank[r] = make([]int, cols)
	}
	_ = e.grid.Load(blank)
}

// Snapshot returns a copy of the editor state.
func (e *Editor) Snapshot() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Session{
		Name:        e.name,
		Description: e.description,
		Matrix:      e.grid.Data(),
		Dirty:       e.grid.Dirty(),
		Orientation: e.store.Orientation().String(),
		Alert:       e.last,
	}
}

// Stored returns the working copy in storage orientation, for export.
func (e *Editor) Stored() (Schedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.name == "" {
		return Schedule{}, ErrNoSchedule
	}
	m, err := e.store.Orientation().ToStored(e.grid.Data())
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{Name: e.name, Description: e.description, Matrix: m}, nil
}
