package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultDescription is the description given to newly created schedules.
const DefaultDescription = "always on"

var (
	ErrEmptyName     = errors.New("schedule: name is empty")
	ErrDuplicateName = errors.New("schedule: name already exists")
	ErrNotConfirmed  = errors.New("schedule: deletion not confirmed")
	ErrNotFound      = errors.New("schedule: not found")
)

// Schedule is the document stored by the backend as schedules/<name>.json.
type Schedule struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Matrix      Matrix `json:"schedule"`
}

// Clone returns a deep copy.
func (s Schedule) Clone() Schedule {
	s.Matrix = s.Matrix.Clone()
	return s
}

// New returns a fresh schedule with the default description and an all-zero matrix.
func New(name string) Schedule {
	return Schedule{Name: name, Description: DefaultDescription, Matrix: Zero()}
}

// Backend persists schedules.
type Backend interface {
	ListSchedules(ctx context.Context) ([]string, error)
	GetSchedule(ctx context.Context, name string) (Schedule, error)
	PutSchedule(ctx context.Context, s Schedule) error
	DeleteSchedule(ctx context.Context, name string) error
}

// Confirmation asks the user whether name may be deleted.
type Confirmation func(name string) bool

// Store keeps the sorted index of schedule names and converts matrices
// between storage and editor orientation at the backend boundary.
type Store struct {
	backend     Backend
	orientation Orientation
	log         zerolog.Logger

	mu      sync.RWMutex
	names   []string
	pending string
}

// NewStore creates a Store. Call Refresh to populate the index.
func NewStore(backend Backend, o Orientation, log zerolog.Logger) *Store {
	return &Store{backend: backend, orientation: o, log: log}
}

// Orientation returns the editor orientation.
func (s *Store) Orientation() Orientation {
	return s.orientation
}

// Refresh reloads the index from the backend.
func (s *Store) Refresh(ctx context.Context) error {
	names, err := s.backend.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	names = append([]string(nil), names...)
	sort.Strings(names)

	s.mu.Lock()
	s.names = names
	s.mu.Unlock()

	s.log.Debug().Int("count", len(names)).Msg("schedule index refreshed")
	return nil
}

// Names returns the sorted committed names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.names...)
}

// Pending returns the name of a create that has not completed yet.
func (s *Store) Pending() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending, s.pending != ""
}

// Has reports whether name is in the committed index.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, found := s.search(name)
	return found
}

func (s *Store) search(name string) (int, bool) {
	i := sort.SearchStrings(s.names, name)
	return i, i < len(s.names) && s.names[i] == name
}

// Create persists a new all-zero schedule and adds it to the index once
// the backend accepted it.
func (s *Store) Create(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	if _, found := s.search(name); found || s.pending == name {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	s.pending = name
	s.mu.Unlock()

	err := s.backend.PutSchedule(ctx, New(name))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == name {
		s.pending = ""
	}
	if err != nil {
		return fmt.Errorf("create schedule %s: %w", name, err)
	}
	if i, found := s.search(name); !found {
		s.names = append(s.names, "")
		copy(s.names[i+1:], s.names[i:])
		s.names[i] = name
	}
	s.log.Info().Str("schedule", name).Msg("schedule created")
	return nil
}

// Load fetches a schedule and returns an independent copy in editor orientation.
func (s *Store) Load(ctx context.Context, name string) (Schedule, error) {
	stored, err := s.backend.GetSchedule(ctx, name)
	if err != nil {
		return Schedule{}, fmt.Errorf("load schedule %s: %w", name, err)
	}
	if err := CheckStorageShape(stored.Matrix); err != nil {
		return Schedule{}, fmt.Errorf("load schedule %s: %w", name, err)
	}
	edited, err := s.orientation.ToEditor(stored.Matrix)
	if err != nil {
		return Schedule{}, fmt.Errorf("load schedule %s: %w", name, err)
	}
	if stored.Name == "" {
		stored.Name = name
	}
	stored.Matrix = edited
	return stored, nil
}

// Save converts the editor matrix to storage orientation and persists the
// full document.
func (s *Store) Save(ctx context.Context, name, description string, edited Matrix) error {
	stored, err := s.orientation.ToStored(edited)
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", name, err)
	}
	if err := CheckStorageShape(stored); err != nil {
		return fmt.Errorf("save schedule %s: %w", name, err)
	}
	doc := Schedule{Name: name, Description: description, Matrix: stored}
	if err := s.backend.PutSchedule(ctx, doc); err != nil {
		return fmt.Errorf("save schedule %s: %w", name, err)
	}
	s.log.Info().Str("schedule", name).Msg("schedule saved")
	return nil
}

// Delete removes a schedule after confirm approves it. The index only
// changes once the backend reports success.
func (s *Store) Delete(ctx context.Context, name string, confirm Confirmation) error {
	if confirm == nil || !confirm(name) {
		return ErrNotConfirmed
	}
	if err := s.backend.DeleteSchedule(ctx, name); err != nil {
		return fmt.Errorf("delete schedule %s: %w", name, err)
	}

	s.mu.Lock()
	if i, found := s.search(name); found {
		s.names = append(s.names[:i], s.names[i+1:]...)
	}
	s.mu.Unlock()

	s.log.Info().Str("schedule", name).Msg("schedule deleted")
	return nil
}
