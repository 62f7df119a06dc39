package stagflux

import (
	"fmt"
	"math"
	"math/cmplx"
	"testing"

	"vmcpostproc/load"
)

func TestMBZ(t *testing.T) {
	t.Parallel()
	tests := []struct {
		p load.Params
	}{
		{p: load.Params{Lx: 2, Ly: 2}},
		{p: load.Params{Lx: 4, Ly: 2}},
		{p: load.Params{Lx: 4, Ly: 4}},
		{p: load.Params{Lx: 6, Ly: 6}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%dx%d", test.p.Lx, test.p.Ly), func(t *testing.T) {
			t.Parallel()
			ks, err := MBZ(test.p)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if len(ks) != test.p.Lx*test.p.Ly/2 {
				t.Fatalf("%d momenta, expected %d", len(ks), test.p.Lx*test.p.Ly/2)
			}

			// No two momenta are equivalent under a (pi, pi) shift.
			for i, k := range ks {
				if !InMBZ(k[0], k[1]) {
					t.Fatalf("%v outside the magnetic zone", k)
				}
				for _, l := range ks[i+1:] {
					dx := math.Abs(math.Remainder(k[0]-l[0]-math.Pi, 2*math.Pi))
					dy := math.Abs(math.Remainder(k[1]-l[1]-math.Pi, 2*math.Pi))
					if dx < 1e-9 && dy < 1e-9 {
						t.Fatalf("%v and %v are equivalent", k, l)
					}
				}
			}
		})
	}
}

func TestMBZMod(t *testing.T) {
	t.Parallel()
	p := load.Params{Lx: 4, Ly: 4}
	for jy := 0; jy < p.Ly; jy++ {
		for jx := 0; jx < p.Lx; jx++ {
			kx := 2 * math.Pi * float64(jx) / float64(p.Lx)
			ky := 2 * math.Pi * float64(jy) / float64(p.Ly)
			fx, fy := MBZMod(p, kx, ky)
			if !InMBZ(fx, fy) {
				t.Fatalf("MBZMod(%f, %f) = (%f, %f) outside the magnetic zone", kx, ky, fx, fy)
			}
		}
	}
}

func TestCoherence(t *testing.T) {
	t.Parallel()
	p := load.Params{Lx: 4, Ly: 4, Phi: 0.2, Neel: 0.4}
	ks, err := MBZ(p)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for _, k := range ks {
		for band := 0; band < 2; band++ {
			u, v := Coherence(p, k[0], k[1], band)
			n := cmplx.Abs(u)*cmplx.Abs(u) + cmplx.Abs(v)*cmplx.Abs(v)
			if math.Abs(n-1) > 1e-9 {
				t.Fatalf("k %v band %d: |u|^2+|v|^2 = %f", k, band, n)
			}
		}
	}
}

func TestSpinOps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		p load.Params
	}{
		{p: load.Params{Lx: 2, Ly: 2, Phi: 0.1, Neel: 0.4, Q: [2]int{1, 0}}},
		{p: load.Params{Lx: 4, Ly: 4, Phi: 0.3, Neel: 0.2, Q: [2]int{2, 1}}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%dx%d", test.p.Lx, test.p.Ly), func(t *testing.T) {
			t.Parallel()
			ops, err := SpinOps(test.p)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if len(ops) != 3 {
				t.Fatalf("%d operators, expected 3", len(ops))
			}
			d := test.p.Lx * test.p.Ly
			for a, op := range ops {
				shape := op.Shape()
				if !(len(shape) == 1 && shape[0] == d) {
					t.Fatalf("operator %d shape %v, expected [%d]", a, shape, d)
				}
				for i := 0; i < d; i++ {
					if v := complex128(op.At(i)); cmplx.IsNaN(v) || cmplx.IsInf(v) {
						t.Fatalf("operator %d component %d is %v", a, i, v)
					}
				}
			}

			// The transverse and longitudinal channels differ.
			var diff float64
			for i := 0; i < d; i++ {
				diff += cmplx.Abs(complex128(ops[1].At(i) - ops[2].At(i)))
			}
			if diff < 1e-6 {
				t.Fatalf("transverse and longitudinal operators are identical")
			}
		})
	}
}
