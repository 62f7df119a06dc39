// Package sfpnxphz builds the momentum-space spin operators of the
// staggered flux trial wavefunction with an in-plane Neel field, where
// the spin channels mix and all three operators are measured at once.
package sfpnxphz

import (
	"math"
	"math/cmplx"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"vmcpostproc/load"
	"vmcpostproc/stagflux"
)

// SpinOps returns the three spin operator vectors of momentum channel
// p.Q over the two-spinon excitation basis. Since the in-plane field
// breaks the spin rotation symmetry about z, the x, y and z channels
// are all distinct and all three are returned.
func SpinOps(p load.Params) ([]*tensor.Dense, error) {
	ks, err := stagflux.MBZ(p)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	d := 2 * len(ks)
	qx := 2 * math.Pi * float64(p.Q[0]) / float64(p.Lx)
	qy := 2 * math.Pi * float64(p.Q[1]) / float64(p.Ly)
	norm := complex(1/math.Sqrt(float64(p.Lx*p.Ly)), 0)

	ops := make([]*tensor.Dense, 3)
	for a := range ops {
		ops[a] = tensor.Zeros(d)
	}
	for ik, k := range ks {
		kqx, kqy := stagflux.MBZMod(p, k[0]+qx, k[1]+qy)
		for band := 0; band < 2; band++ {
			u0, v0 := stagflux.Coherence(p, k[0], k[1], 0)
			ub, vb := stagflux.Coherence(p, kqx, kqy, band)

			x := (u0*ub + cmplx.Conj(v0)*vb) * norm
			y := 1i * (u0*vb - v0*ub) * norm
			z := (u0*ub - cmplx.Conj(v0)*vb) * norm
			if band == 1 {
				x, z = -x, -z
			}

			i := []int{2*ik + band}
			ops[0].SetAt(i, complex64(x))
			ops[1].SetAt(i, complex64(y))
			ops[2].SetAt(i, complex64(z))
		}
	}
	return ops, nil
}
