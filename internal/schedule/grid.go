package schedule

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sweeney/pw-dashboard/internal/alert"
)

// Cell value bounds.
const (
	ForcedOn = -1
	// MaxCap is the highest power cap kept as-is. Higher standby values
	// are treated as always on.
	MaxCap = 3000
)

var (
	ErrInvalidCell    = errors.New("schedule: cell value is not a number")
	ErrCellOutOfRange = errors.New("schedule: cell coordinate out of range")
)

// SanitizeCell normalizes one edited value.
//
//	nil, ""     -> 0
//	non-numeric -> ErrInvalidCell
//	< 0         -> -1
//	> 3000      -> -1
//	otherwise   -> integer value
func SanitizeCell(v any) (int, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCell, x)
		}
		f = parsed
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case float64:
		f = x
	case float32:
		f = float64(x)
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidCell, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCell, v)
	}
	switch {
	case f < 0:
		return ForcedOn, nil
	case f > MaxCap:
		return ForcedOn, nil
	}
	return int(math.Trunc(f)), nil
}

// CellEdit is one pending change from the grid.
type CellEdit struct {
	Row   int `json:"row"`
	Col   int `json:"col"`
	Value any `json:"value"`
}

// Source identifies what produced an edit batch.
type Source string

const (
	SourceEdit     Source = "edit"
	SourcePaste    Source = "paste"
	SourceImport   Source = "import"
	SourceLoadData Source = "loadData"
)

// Grid binds an editor matrix and validates edit batches against it.
// Not safe for concurrent use; the owning Editor serializes access.
type Grid struct {
	data     Matrix
	rows     int
	cols     int
	dirty    bool
	sink     alert.Sink
	onChange func()
}

// NewGrid creates a grid of the editor shape for the given orientation.
func NewGrid(o Orientation, sink alert.Sink, onChange func()) *Grid {
	rows, cols := o.EditorDims()
	if sink == nil {
		sink = alert.Discard
	}
	g := &Grid{rows: rows, cols: cols, sink: sink, onChange: onChange}
	g.data = make(Matrix, rows)
	for r := range g.data {
		g.data[r] = make([]int, cols)
	}
	return g
}

// Load replaces the grid contents without marking it dirty.
func (g *Grid) Load(m Matrix) error {
	rows, cols, err := m.Dims()
	if err != nil {
		return err
	}
	if rows != g.rows || cols != g.cols {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrShape, rows, cols, g.rows, g.cols)
	}
	g.data = m.Clone()
	g.dirty = false
	return nil
}

// Apply validates and commits a batch of edits. The whole batch is rejected
// if any value is not numeric or any coordinate is outside the grid.
func (g *Grid) Apply(edits []CellEdit, source Source) error {
	values := make([]int, len(edits))
	for i, e := range edits {
		if e.Row < 0 || e.Row >= g.rows || e.Col < 0 || e.Col >= g.cols {
			return fmt.Errorf("%w: (%d,%d)", ErrCellOutOfRange, e.Row, e.Col)
		}
		v, err := SanitizeCell(e.Value)
		if err != nil {
			return fmt.Errorf("cell (%d,%d): %w", e.Row, e.Col, err)
		}
		values[i] = v
	}
	for i, e := range edits {
		g.data[e.Row][e.Col] = values[i]
	}
	if source == SourceLoadData {
		return nil
	}
	g.sink.SetAlert(alert.Success("schedule modified"))
	g.dirty = true
	if g.onChange != nil {
		g.onChange()
	}
	return nil
}

// Data returns a copy of the grid contents.
func (g *Grid) Data() Matrix {
	return g.data.Clone()
}

// Dirty reports whether edits were applied since the last Load or MarkClean.
func (g *Grid) Dirty() bool {
	return g.dirty
}

// MarkClean clears the dirty flag.
func (g *Grid) MarkClean() {
	g.dirty = false
}

// Color is the presentation class of a cell.
type Color string

const (
	ColorMuted    Color = "muted"
	ColorForcedOn Color = "forced-on"
	ColorCapped   Color = "capped"
	ColorError    Color = "error"
)

// CellColor returns the presentation class of a sanitized value.
func CellColor(v int) Color {
	switch {
	case v == 0:
		return ColorMuted
	case v < 0:
		return ColorForcedOn
	}
	return ColorCapped
}

// CellColorOf is CellColor for a possibly absent value.
func CellColorOf(v *int) Color {
	if v == nil {
		return ColorError
	}
	return CellColor(*v)
}

var dayNames = [Days]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// DayLabel returns the weekday name of row i in storage orientation.
func DayLabel(i int) string {
	if i < 0 || i >= Days {
		return ""
	}
	return dayNames[i]
}

// SlotLabel returns the HH:MM start time of 15-minute slot i.
func SlotLabel(i int) string {
	if i < 0 || i >= SlotsPerDay {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", i/SlotsPerHour, 15*(i%SlotsPerHour))
}
