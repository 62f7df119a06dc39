package proc

import (
	"fmt"
	"math"
	"math/cmplx"
	"testing"
)

func TestGenEigh(t *testing.T) {
	t.Parallel()
	tests := []struct {
		h    [][]complex128
		o    [][]complex128
		vals []float64
	}{
		{
			h: [][]complex128{
				{1, 0, 0},
				{0, 3, 0},
				{0, 0, 2},
			},
			o: [][]complex128{
				{1, 0, 0},
				{0, 1, 0},
				{0, 0, 1},
			},
			vals: []float64{1, 2, 3},
		},
		{
			h: [][]complex128{
				{2, 1i},
				{-1i, 2},
			},
			o: [][]complex128{
				{1, 0},
				{0, 1},
			},
			vals: []float64{1, 3},
		},
		{
			// O^-1·H = diag(1, 3).
			h: [][]complex128{
				{4, 0},
				{0, 3},
			},
			o: [][]complex128{
				{4, 0},
				{0, 1},
			},
			vals: []float64{1, 3},
		},
		{
			// Degenerate spectrum.
			h: [][]complex128{
				{5, 0},
				{0, 5},
			},
			o: [][]complex128{
				{1, 0},
				{0, 1},
			},
			vals: []float64{5, 5},
		},
		{
			h: [][]complex128{
				{1, 1 + 1i},
				{1 - 1i, -1},
			},
			o: [][]complex128{
				{2, 0.5},
				{0.5, 1},
			},
			vals: nil,
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.h), func(t *testing.T) {
			t.Parallel()
			vals, vecs, err := GenEigh(test.h, test.o, 1e-12)
			if err != nil {
				t.Fatalf("%+v", err)
			}

			d := len(test.h)
			if len(vals) != d {
				t.Fatalf("%d, expected %d", len(vals), d)
			}
			for k := 1; k < d; k++ {
				if vals[k] < vals[k-1] {
					t.Fatalf("not ascending %v", vals)
				}
			}
			if test.vals != nil {
				for k := range test.vals {
					if math.Abs(vals[k]-test.vals[k]) > 1e-9 {
						t.Fatalf("%v, expected %v", vals, test.vals)
					}
				}
			}

			// Residual of H·v = λ·O·v.
			for k := 0; k < d; k++ {
				for i := 0; i < d; i++ {
					var hv, ov complex128
					for j := 0; j < d; j++ {
						hv += test.h[i][j] * vecs[j][k]
						ov += test.o[i][j] * vecs[j][k]
					}
					if r := cmplx.Abs(hv - complex(vals[k], 0)*ov); r > 1e-9 {
						t.Fatalf("eigenpair %d residual %g", k, r)
					}
				}
			}
		})
	}
}

func TestGenEighBadOverlap(t *testing.T) {
	t.Parallel()
	h := [][]complex128{
		{2, 0},
		{0, 3},
	}
	tests := []struct {
		o [][]complex128
	}{
		// Singular overlap.
		{
			o: [][]complex128{
				{1, 0},
				{0, 0},
			},
		},
		// Indefinite overlap. Whitening a negative direction would
		// silently solve a different problem, so it must fail too.
		{
			o: [][]complex128{
				{1, 0},
				{0, -1},
			},
		},
		// Negative definite overlap.
		{
			o: [][]complex128{
				{-1, 0},
				{0, -2},
			},
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.o), func(t *testing.T) {
			t.Parallel()
			if _, _, err := GenEigh(h, test.o, 1e-12); err == nil {
				t.Fatalf("expected error on overlap %v", test.o)
			}
		})
	}
}

func TestFermiSigns(t *testing.T) {
	t.Parallel()
	tests := []struct {
		states [][]int
		signs  []float64
	}{
		{states: [][]int{{0, 1, 2}}, signs: []float64{1}},
		{states: [][]int{{1, 0, 2}}, signs: []float64{-1}},
		{states: [][]int{{2, 0, 1}}, signs: []float64{1}},
		{states: [][]int{{0, 1}, {3, 2}, {3, 1, 2, 0}}, signs: []float64{1, -1, -1}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.states), func(t *testing.T) {
			t.Parallel()
			signs, err := FermiSigns(test.states, map[string]string{"Lx": "2", "Ly": "1"})
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if len(signs) != len(test.signs) {
				t.Fatalf("%d, expected %d", len(signs), len(test.signs))
			}
			for i := range signs {
				if signs[i] != test.signs[i] {
					t.Fatalf("%v, expected %v", signs, test.signs)
				}
			}
		})
	}
}

func TestFermiSignsBad(t *testing.T) {
	t.Parallel()
	tests := []struct {
		states [][]int
	}{
		{states: [][]int{{0, 0}}},
		{states: [][]int{{-1}}},
		{states: [][]int{{4}}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.states), func(t *testing.T) {
			t.Parallel()
			if _, err := FermiSigns(test.states, map[string]string{"Lx": "2", "Ly": "1"}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
