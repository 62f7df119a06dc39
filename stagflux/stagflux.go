// Package stagflux builds the momentum-space spin operators of the
// staggered flux trial wavefunction.
//
// References:
//   - Fractional excitations in the square-lattice quantum antiferromagnet, B. Dalla Piazza et al.
package stagflux

import (
	"math"
	"math/cmplx"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"vmcpostproc/load"
)

// SpinOps returns the spin operator vectors of momentum channel p.Q over
// the two-spinon excitation basis.
//
// The basis is one state per (magnetic Brillouin zone momentum, band)
// pair. Vector 0 is the same-band density operator, vector 1 the
// transverse channel and vector 2 the longitudinal channel.
func SpinOps(p load.Params) ([]*tensor.Dense, error) {
	ks, err := MBZ(p)
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
		kqx, kqy := MBZMod(p, k[0]+qx, k[1]+qy)
		for band := 0; band < 2; band++ {
			u0, v0 := Coherence(p, k[0], k[1], 0)
			ub, vb := Coherence(p, kqx, kqy, band)

			same := (u0*vb + v0*ub) * norm
			trans := (u0*ub + cmplx.Conj(v0)*vb) * norm
			long := (u0*ub - cmplx.Conj(v0)*vb) * norm
			if band == 1 {
				same, trans, long = -same, trans, -long
			}

			i := []int{2*ik + band}
			ops[0].SetAt(i, complex64(same))
			ops[1].SetAt(i, complex64(trans))
			ops[2].SetAt(i, complex64(long))
		}
	}
	return ops, nil
}

// MBZ enumerates the momenta of the lattice that lie inside the
// magnetic Brillouin zone. At periodic boundary conditions there are
// Lx·Ly/2 of them.
func MBZ(p load.Params) ([][2]float64, error) {
	if p.Lx <= 0 || p.Ly <= 0 || p.Lx%2 != 0 && p.Ly%2 != 0 {
		return nil, errors.Errorf("bad lattice %d %d", p.Lx, p.Ly)
	}
	ks := make([][2]float64, 0, p.Lx*p.Ly/2)
	for jy := 0; jy < p.Ly; jy++ {
		for jx := 0; jx < p.Lx; jx++ {
			kx := (2*math.Pi*float64(jx) + math.Pi*p.BCPhase[0]) / float64(p.Lx)
			ky := (2*math.Pi*float64(jy) + math.Pi*p.BCPhase[1]) / float64(p.Ly)
			if InMBZ(kx, ky) {
				ks = append(ks, [2]float64{fold(kx), fold(ky)})
			}
		}
	}
	return ks, nil
}

// InMBZ reports whether k is inside the magnetic Brillouin zone, the
// diamond |kx|+|ky| <= pi. Of two boundary momenta equivalent under a
// (pi, pi) shift only one is kept.
func InMBZ(kx, ky float64) bool {
	const eps = 1e-9
	fx, fy := fold(kx), fold(ky)
	s := math.Abs(fx) + math.Abs(fy)
	switch {
	case s < math.Pi-eps:
		return true
	case s > math.Pi+eps:
		return false
	}
	return fy > eps
}

// MBZMod folds k back into the magnetic Brillouin zone by a (pi, pi)
// shift when necessary.
func MBZMod(p load.Params, kx, ky float64) (float64, float64) {
	if InMBZ(kx, ky) {
		return fold(kx), fold(ky)
	}
	return fold(kx + math.Pi), fold(ky + math.Pi)
}

// Delta is the staggered flux gap function.
func Delta(p load.Params, kx, ky float64) complex128 {
	re := 2 * math.Cos(p.Phi) * (math.Cos(kx) + math.Cos(ky))
	im := 2 * math.Sin(p.Phi) * (math.Cos(kx) - math.Cos(ky))
	return complex(re, im)
}

// Omega is the mean-field spinon dispersion.
func Omega(p load.Params, kx, ky float64) float64 {
	return math.Sqrt(p.Neel*p.Neel + sqAbs(Delta(p, kx, ky)))
}

// Coherence returns the Bogoliubov coherence factors (U, V) of band 0
// or 1 at momentum k.
func Coherence(p load.Params, kx, ky float64, band int) (complex128, complex128) {
	delta := Delta(p, kx, ky)
	omega := Omega(p, kx, ky)
	if omega == 0 {
		// Gapless point of the pure flux state, split evenly.
		return complex(math.Sqrt2/2, 0), complex(math.Sqrt2/2, 0)
	}

	sgn := 1.0
	if band == 1 {
		sgn = -1
	}
	u := complex(math.Sqrt((omega+sgn*p.Neel)/(2*omega)), 0)
	phase := complex(1, 0)
	if delta != 0 {
		phase = delta / complex(cmplx.Abs(delta), 0)
	}
	v := complex(sgn, 0) * phase * complex(math.Sqrt((omega-sgn*p.Neel)/(2*omega)), 0)
	return u, v
}

// fold maps k to (-pi, pi].
func fold(k float64) float64 {
	k = math.Mod(k, 2*math.Pi)
	switch {
	case k > math.Pi:
		k -= 2 * math.Pi
	case k <= -math.Pi:
		k += 2 * math.Pi
	}
	return k
}

func sqAbs(v complex128) float64 {
	return real(v)*real(v) + imag(v)*imag(v)
}
