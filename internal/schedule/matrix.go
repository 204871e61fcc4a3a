// Package schedule models weekly switching schedules: a 7×96 matrix of
// per-15-minute power thresholds, the index of named schedules stored by the
// backend, and the edit session used by the schedule grid.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Matrix dimensions in storage orientation.
const (
	Days         = 7
	SlotsPerDay  = 96
	SlotsPerHour = 4
)

var (
	ErrEmptyMatrix  = errors.New("schedule: empty matrix")
	ErrRaggedMatrix = errors.New("schedule: matrix rows differ in length")
	ErrShape        = errors.New("schedule: unexpected matrix shape")
)

// Matrix is a rectangular grid of cell values.
// 0 = off, >0 = power cap in watts, -1 = forced on.
type Matrix [][]int

// Zero returns an all-zero matrix in storage orientation (7×96).
func Zero() Matrix {
	m := make(Matrix, Days)
	for d := range m {
		m[d] = make([]int, SlotsPerDay)
	}
	return m
}

// Dims returns the number of rows and columns. A ragged matrix returns
// ErrRaggedMatrix, an empty one ErrEmptyMatrix.
func (m Matrix) Dims() (rows, cols int, err error) {
	if len(m) == 0 || len(m[0]) == 0 {
		return 0, 0, ErrEmptyMatrix
	}
	cols = len(m[0])
	for _, row := range m[1:] {
		if len(row) != cols {
			return 0, 0, ErrRaggedMatrix
		}
	}
	return len(m), cols, nil
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	if m == nil {
		return nil
	}
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]int(nil), row...)
	}
	return out
}

// Equal reports whether both matrices hold the same values.
func (m Matrix) Equal(o Matrix) bool {
	if len(m) != len(o) {
		return false
	}
	for i := range m {
		if len(m[i]) != len(o[i]) {
			return false
		}
		for j := range m[i] {
			if m[i][j] != o[i][j] {
				return false
			}
		}
	}
	return true
}

// Transpose swaps rows and columns. It is its own inverse.
func Transpose(m Matrix) (Matrix, error) {
	rows, cols, err := m.Dims()
	if err != nil {
		return nil, err
	}
	out := make(Matrix, cols)
	for c := 0; c < cols; c++ {
		out[c] = make([]int, rows)
		for r := 0; r < rows; r++ {
			out[c][r] = m[r][c]
		}
	}
	return out, nil
}

// CheckStorageShape verifies m is 7×96.
func CheckStorageShape(m Matrix) error {
	rows, cols, err := m.Dims()
	if err != nil {
		return err
	}
	if rows != Days || cols != SlotsPerDay {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrShape, rows, cols, Days, SlotsPerDay)
	}
	return nil
}

// UnmarshalJSON accepts the loose cell encodings found in schedule files:
// null and "" become 0, numeric strings are parsed, fractions are truncated.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var raw [][]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Matrix, len(raw))
	for r, row := range raw {
		out[r] = make([]int, len(row))
		for c, v := range row {
			n, err := normalizeStored(v)
			if err != nil {
				return fmt.Errorf("cell [%d][%d]: %w", r, c, err)
			}
			out[r][c] = n
		}
	}
	*m = out
	return nil
}

func normalizeStored(v any) (int, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int(math.Trunc(x)), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return 0, fmt.Errorf("%w: %q", ErrInvalidCell, x)
			}
			n = int(math.Trunc(f))
		}
		return n, nil
	case bool:
		return 0, fmt.Errorf("%w: %v", ErrInvalidCell, x)
	}
	return 0, fmt.Errorf("%w: %v", ErrInvalidCell, v)
}

// Orientation selects how the matrix is laid out in the editor.
type Orientation int

const (
	// Wide edits the matrix as stored: days are rows, slots are columns.
	Wide Orientation = iota
	// Tall edits the transposed matrix: slots are rows, days are columns.
	Tall
)

func (o Orientation) String() string {
	if o == Tall {
		return "tall"
	}
	return "wide"
}

// ParseOrientation maps "wide"/"tall" (case-insensitive) to an Orientation.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wide":
		return Wide, nil
	case "tall":
		return Tall, nil
	}
	return Wide, fmt.Errorf("unknown orientation %q", s)
}

// EditorDims returns the rows and columns of the editor grid.
func (o Orientation) EditorDims() (rows, cols int) {
	if o == Tall {
		return SlotsPerDay, Days
	}
	return Days, SlotsPerDay
}

// ToEditor converts a stored matrix into an independent editor copy.
func (o Orientation) ToEditor(stored Matrix) (Matrix, error) {
	if o == Tall {
		return Transpose(stored)
	}
	if _, _, err := stored.Dims(); err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

// ToStored converts an editor matrix back into an independent stored copy.
func (o Orientation) ToStored(edited Matrix) (Matrix, error) {
	// Transpose is self-inverse, so both directions are the same transform.
	return o.ToEditor(edited)
}
