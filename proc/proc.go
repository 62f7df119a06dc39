// Package proc holds the numerical routines of the post-processing
// pipeline: the fermion-sign correction and the generalized Hermitian
// eigensolver.
package proc

import (
	"fmt"
	"math"
	"math/cmplx"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// FermiSigns returns the fermionic reordering sign of every excitation
// basis state of the trial wavefunction.
//
// states[s] is the fermion orbital order as stored by the simulation.
// The sign of state s is the parity of the permutation that sorts this
// order into the canonical ascending one, which is the sign picked up
// when commuting the creation operators of the sampled matrices into
// the physical operator basis.
func FermiSigns(states [][]int, attrs map[string]string) ([]float64, error) {
	norb := -1
	lx, lxErr := strconv.Atoi(attrs["Lx"])
	ly, lyErr := strconv.Atoi(attrs["Ly"])
	if lxErr == nil && lyErr == nil {
		// Two spin species on an Lx times Ly lattice.
		norb = 2 * lx * ly
	}

	signs := make([]float64, len(states))
	seen := make(map[int]bool)
	for s, orbs := range states {
		clear(seen)
		inversions := 0
		for a := range orbs {
			if orbs[a] < 0 || (norb >= 0 && orbs[a] >= norb) {
				return nil, errors.Errorf("state %d orbital %d out of range %d", s, orbs[a], norb)
			}
			if seen[orbs[a]] {
				return nil, errors.Errorf("state %d orbital %d duplicated", s, orbs[a])
			}
			seen[orbs[a]] = true

			for b := a + 1; b < len(orbs); b++ {
				if orbs[a] > orbs[b] {
					inversions++
				}
			}
		}

		signs[s] = 1
		if inversions%2 == 1 {
			signs[s] = -1
		}
	}
	return signs, nil
}

// GenEigh solves the generalized eigenvalue problem h·v = λ·o·v for
// Hermitian h and positive definite o.
//
// Eigenvalues are sorted in ascending order, and evecs[:][k] is the
// eigenvector of evals[k]. The eigenvectors are o-orthonormal.
// GenEigh fails when o is not positive definite within tolerance, that
// is when any of its eigenvalues lies below tol times its largest one.
// Noisy Monte Carlo overlaps can be indefinite, and a negative
// direction admits no whitening, so it fails the same way a singular
// one does.
func GenEigh(h, o [][]complex128, tol float64) ([]float64, [][]complex128, error) {
	d := len(h)
	s, u, err := hermEig(o)
	if err != nil {
		return nil, nil, errors.Wrap(err, "overlap")
	}

	var smax float64
	for _, si := range s {
		smax = math.Max(smax, math.Abs(si))
	}
	for _, si := range s {
		if si <= tol*smax {
			return nil, nil, errors.Errorf("overlap matrix is not positive definite within tolerance: %g %g", si, tol*smax)
		}
	}

	// w = u·diag(1/sqrt(s)) whitens the overlap.
	w := make([][]complex128, d)
	for i := range w {
		w[i] = make([]complex128, d)
		for j := range w[i] {
			w[i][j] = u[i][j] * complex(1/math.Sqrt(s[j]), 0)
		}
	}

	// hp = conj(w)ᵀ·h·w.
	hw := matMul(h, w)
	hp := make([][]complex128, d)
	for i := range hp {
		hp[i] = make([]complex128, d)
		for j := range hp[i] {
			var v complex128
			for l := 0; l < d; l++ {
				v += cmplx.Conj(w[l][i]) * hw[l][j]
			}
			hp[i][j] = v
		}
	}

	evals, x, err := hermEig(hp)
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	evecs := matMul(w, x)
	return evals, evecs, nil
}

// hermEig is the Hermitian eigendecomposition c = u·diag(vals)·conj(u)ᵀ.
//
// The decomposition is delegated to gonum through the real symmetric
// embedding [[re(c), -im(c)], [im(c), re(c)]], whose spectrum is that of
// c doubled. A real eigenvector (x, y) of the embedding maps to the
// complex eigenvector x+iy, and one representative per doubled
// eigenvalue is selected by Gram-Schmidt over the ascending spectrum.
// c is Hermitized by averaging with its conjugate transpose first.
func hermEig(c [][]complex128) ([]float64, [][]complex128, error) {
	d := len(c)
	emb := mat.NewSymDense(2*d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := (c[i][j] + cmplx.Conj(c[j][i])) / 2
			emb.SetSym(i, j, real(v))
			emb.SetSym(i+d, j+d, real(v))
			// SetSym on (i, j+d) also fixes (j+d, i).
			emb.SetSym(i, j+d, -imag(v))
			if i != j {
				emb.SetSym(j, i+d, imag(v))
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(emb, true); !ok {
		return nil, nil, errors.Errorf("factorization failed")
	}
	embVals := eig.Values(nil)
	var embVecs mat.Dense
	eig.VectorsTo(&embVecs)

	vals := make([]float64, 0, d)
	// vecs[j][k] is component j of the k-th kept eigenvector.
	vecs := make([][]complex128, d)
	for i := range vecs {
		vecs[i] = make([]complex128, 0, d)
	}
	kept := make([][]complex128, 0, d)
	cand := make([]complex128, d)
	for k := 0; k < 2*d && len(kept) < d; k++ {
		for j := 0; j < d; j++ {
			cand[j] = complex(embVecs.At(j, k), embVecs.At(j+d, k))
		}

		// Remove the span of the kept vectors.
		for _, u := range kept {
			var p complex128
			for j := range cand {
				p += cmplx.Conj(u[j]) * cand[j]
			}
			for j := range cand {
				cand[j] -= p * u[j]
			}
		}
		var nrm float64
		for _, v := range cand {
			nrm += real(v)*real(v) + imag(v)*imag(v)
		}
		nrm = math.Sqrt(nrm)
		// The doubled partner of an already kept vector has zero
		// residual and is skipped.
		if nrm < 1e-6 {
			continue
		}

		u := make([]complex128, d)
		for j := range u {
			u[j] = cand[j] / complex(nrm, 0)
		}
		kept = append(kept, u)
		vals = append(vals, embVals[k])
		for j := range u {
			vecs[j] = append(vecs[j], u[j])
		}
	}
	if len(kept) != d {
		return nil, nil, errors.Errorf("%d eigenvectors, expected %d", len(kept), d)
	}
	return vals, vecs, nil
}

func matMul(a, b [][]complex128) [][]complex128 {
	rows, inner, cols := len(a), len(b), len(b[0])
	if len(a[0]) != inner {
		panic(fmt.Sprintf("%d %d", len(a[0]), inner))
	}
	c := make([][]complex128, rows)
	for i := range c {
		c[i] = make([]complex128, cols)
		for l := 0; l < inner; l++ {
			ail := a[i][l]
			for j := 0; j < cols; j++ {
				c[i][j] += ail * b[l][j]
			}
		}
	}
	return c
}
