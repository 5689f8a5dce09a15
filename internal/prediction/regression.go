package prediction

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// fitLinear solves ordinary least squares with an intercept column and
// returns [intercept, w1, ..., wn]
func fitLinear(rows [][]float64, labels []float64) ([]float64, error) {
	if len(rows) == 0 || len(rows) != len(labels) {
		return nil, fmt.Errorf("%w: %d rows for %d labels", ErrDegenerateModel, len(rows), len(labels))
	}

	features := len(rows[0])
	cols := features + 1
	if len(rows) < cols {
		return nil, fmt.Errorf("%w: %d rows for %d coefficients", ErrDegenerateModel, len(rows), cols)
	}

	// a constant feature is indistinguishable from the intercept
	for j := 0; j < features; j++ {
		constant := true
		for i := 1; i < len(rows); i++ {
			if rows[i][j] != rows[0][j] {
				constant = false
				break
			}
		}
		if constant {
			return nil, fmt.Errorf("%w: feature %d is constant", ErrDegenerateModel, j)
		}
	}

	data := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		data = append(data, 1)
		data = append(data, row...)
	}
	a := mat.NewDense(len(rows), cols, data)
	b := mat.NewVecDense(len(labels), labels)

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateModel, err)
	}

	coefficients := make([]float64, cols)
	for i := range coefficients {
		v := x.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite coefficient", ErrDegenerateModel)
		}
		coefficients[i] = v
	}

	return coefficients, nil
}
