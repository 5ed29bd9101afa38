package features

import (
	"fmt"

	"github.com/RyanBlaney/sonido-emotion/algorithms/common"
)

// Tensor is a row-major 2D grid of float32 features.
type Tensor struct {
	Rows int
	Cols int
	Data []float32
}

// NewTensor allocates a zeroed rows x cols tensor.
func NewTensor(rows, cols int) *Tensor {
	return &Tensor{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// At returns the value at row r, column c.
func (t *Tensor) At(r, c int) float32 {
	return t.Data[r*t.Cols+c]
}

// Shape returns (Rows, Cols).
func (t *Tensor) Shape() (int, int) {
	return t.Rows, t.Cols
}

// Validate checks the classifier contract: 128x128, backing slice of the
// right length, every value finite.
func (t *Tensor) Validate() error {
	if t == nil {
		return fmt.Errorf("nil tensor")
	}
	if t.Rows != Rows || t.Cols != Cols {
		return fmt.Errorf("tensor shape %dx%d, want %dx%d", t.Rows, t.Cols, Rows, Cols)
	}
	if len(t.Data) != t.Rows*t.Cols {
		return fmt.Errorf("tensor data length %d, want %d", len(t.Data), t.Rows*t.Cols)
	}
	if !common.AllFinite(t.Data) {
		return fmt.Errorf("tensor holds non-finite values")
	}
	return nil
}
