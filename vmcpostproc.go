// Package vmcpostproc post-processes variational Monte Carlo
// measurements of quantum spin systems. It solves the generalized
// eigenvalue problem H·v = λ·O·v of the sampled Hamiltonian and overlap
// matrices for every Monte Carlo sample, and projects the eigenvectors
// onto momentum-resolved spin operators to obtain dynamical structure
// factor amplitudes.
//
// References:
//   - Fractional excitations in the square-lattice quantum antiferromagnet, B. Dalla Piazza et al.
package vmcpostproc

import (
	"fmt"
	"math/cmplx"
	"regexp"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"vmcpostproc/load"
	"vmcpostproc/proc"
	"vmcpostproc/sfpnxphz"
	"vmcpostproc/stagflux"
)

// DefaultTol is the overlap matrix tolerance used when none is given.
const DefaultTol = 1e-12

// EigSys is the per-sample eigensystem of a measurement run.
type EigSys struct {
	// H and O are the sign-corrected Hamiltonian and overlap batches,
	// of shape (sample, d, d).
	H *tensor.Dense
	O *tensor.Dense
	// Vals[s] are the eigenvalues of sample s in ascending order.
	Vals [][]float64
	// Vecs has shape (sample, d, d), with Vecs[s][:][k] the
	// eigenvector of Vals[s][k].
	Vecs *tensor.Dense
}

var wavRe = regexp.MustCompile(`^(.*/[0-9]+)-ProjHeis\.h5$`)

// WavefunctionFile derives the wavefunction filename from a measurement
// filename. A measurement file "<dir>/<run>-ProjHeis.h5" where <run> is
// numeric stores its wavefunction in "<dir>/<run>-WaveFunction.h5";
// filenames outside this convention are rejected.
func WavefunctionFile(fname string) (string, error) {
	m := wavRe.FindStringSubmatch(fname)
	if m == nil {
		return "", errors.Errorf("cannot derive wavefunction file from %q", fname)
	}
	return m[1] + "-WaveFunction.h5", nil
}

// GetEigSys loads nsamp samples of the measurement files fnames and
// solves the generalized eigenvalue problem of every sample.
//
// wav is the wavefunction file, derived with WavefunctionFile from
// fnames[0] when empty. tol is the overlap matrix tolerance of
// proc.GenEigh, DefaultTol when non-positive.
func GetEigSys(fnames []string, nsamp int, wav string, tol float64) (EigSys, error) {
	if tol <= 0 {
		tol = DefaultTol
	}
	ho, err := load.GetQuantity(fnames, nsamp)
	if err != nil {
		return EigSys{}, errors.Wrap(err, "")
	}
	shape := ho.Shape()
	d := shape[2]
	if shape[1] != 2*d {
		return EigSys{}, errors.Errorf("%v is not a stacked H, O batch", shape)
	}

	if wav == "" {
		if wav, err = WavefunctionFile(fnames[0]); err != nil {
			return EigSys{}, errors.Wrap(err, "")
		}
	}
	states, err := load.GetWav(wav)
	if err != nil {
		return EigSys{}, errors.Wrap(err, "")
	}
	attrs, err := load.GetAttr(fnames[0])
	if err != nil {
		return EigSys{}, errors.Wrap(err, "")
	}
	signs, err := proc.FermiSigns(states, attrs)
	if err != nil {
		return EigSys{}, errors.Wrap(err, "")
	}
	if len(signs) != d {
		return EigSys{}, errors.Errorf("%d wavefunction states, expected %d", len(signs), d)
	}

	// Split the stack and fix the fermion sign convention.
	es := EigSys{H: tensor.Zeros(nsamp, d, d), O: tensor.Zeros(nsamp, d, d)}
	for s := 0; s < nsamp; s++ {
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				es.H.SetAt([]int{s, i, j}, ho.At(s, i, j))
				es.O.SetAt([]int{s, i, j}, ho.At(s, d+i, j))
			}
		}
	}
	applySigns(es.H, signs)
	applySigns(es.O, signs)

	es.Vals = make([][]float64, nsamp)
	es.Vecs = tensor.Zeros(nsamp, d, d)
	for s := 0; s < nsamp; s++ {
		vals, vecs, err := proc.GenEigh(sampleMatrix(es.H, s), sampleMatrix(es.O, s), tol)
		if err != nil {
			return EigSys{}, errors.Wrap(err, fmt.Sprintf("sample %d", s))
		}
		es.Vals[s] = vals
		for j := 0; j < d; j++ {
			for k := 0; k < d; k++ {
				es.Vecs.SetAt([]int{s, j, k}, complex64(vecs[j][k]))
			}
		}
	}
	return es, nil
}

// GetSqAmpl returns the squared structure factor amplitudes
//
//	|Σ_i Σ_j conj(p_i)·O[s,i,j]·V[s,j,k]|²
//
// of the spin operators p of the run's wavefunction family, indexed by
// (channel, sample, eigenindex). For the staggered flux family the
// single channel selected by the "channel" attribute (trans or long) is
// returned; for the sfpnxphz family all three channels are.
//
// es is an optional precomputed eigensystem; when nil it is computed
// with GetEigSys(fnames, nsamp, wav, tol).
func GetSqAmpl(fnames []string, nsamp int, wav string, tol float64, es *EigSys) ([][][]float64, error) {
	attrs, err := load.GetAttr(fnames[0])
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	// Reject unsupported configurations before any eigendecomposition.
	params, err := load.ParseParams(attrs)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	if es == nil {
		sys, err := GetEigSys(fnames, nsamp, wav, tol)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		es = &sys
	} else if es.H == nil || es.O == nil || es.Vals == nil || es.Vecs == nil {
		return nil, errors.Errorf("incomplete eigensystem %#v", es)
	}

	var ops []*tensor.Dense
	switch params.Family {
	case load.FamilyStagFlux:
		ops, err = stagflux.SpinOps(params)
	case load.FamilySfPnXPhZ:
		ops, err = sfpnxphz.SpinOps(params)
	default:
		return nil, errors.Errorf("wavefunction family %v not implemented", params.Family)
	}
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	switch params.Family {
	case load.FamilyStagFlux:
		var op *tensor.Dense
		switch params.Channel {
		case "trans":
			op = ops[1]
		case "long":
			op = ops[2]
		default:
			return nil, errors.Errorf("channel %q not understood", params.Channel)
		}
		ampl, err := project(op, es)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		return [][][]float64{ampl}, nil
	default:
		out := make([][][]float64, 3)
		for a := 0; a < 3; a++ {
			if out[a], err = project(ops[a], es); err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("channel %d", a))
			}
		}
		return out, nil
	}
}

// applySigns conjugates every sample of batch by the diagonal sign
// matrix, M[s,i,j] = signs[i]·M[s,i,j]·signs[j].
func applySigns(batch *tensor.Dense, signs []float64) {
	shape := batch.Shape()
	for s := 0; s < shape[0]; s++ {
		for i := 0; i < shape[1]; i++ {
			for j := 0; j < shape[2]; j++ {
				c := complex(float32(signs[i]*signs[j]), 0)
				batch.SetAt([]int{s, i, j}, c*batch.At(s, i, j))
			}
		}
	}
}

// project contracts the conjugated operator vector against the overlap
// and eigenvector batches, sample by sample.
func project(op *tensor.Dense, es *EigSys) ([][]float64, error) {
	shape := es.O.Shape()
	nsamp, d := shape[0], shape[2]
	if !(len(op.Shape()) == 1 && op.Shape()[0] == d) {
		return nil, errors.Errorf("operator shape %v, expected [%d]", op.Shape(), d)
	}

	pc := op.Conj()
	o := tensor.Zeros(1)
	v := tensor.Zeros(1)
	bufs := [2]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1)}
	out := make([][]float64, nsamp)
	for s := 0; s < nsamp; s++ {
		o.Reset(d, d)
		v.Reset(d, d)
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				o.SetAt([]int{i, j}, es.O.At(s, i, j))
				v.SetAt([]int{i, j}, es.Vecs.At(s, i, j))
			}
		}

		w := tensor.Contract(bufs[0], pc, o, [][2]int{{0, 0}})
		a := tensor.Contract(bufs[1], w, v, [][2]int{{0, 0}})

		out[s] = make([]float64, d)
		for k := 0; k < d; k++ {
			ab := cmplx.Abs(complex128(a.At(k)))
			out[s][k] = ab * ab
		}
	}
	return out, nil
}

// sampleMatrix copies sample s of batch into a complex128 matrix.
func sampleMatrix(batch *tensor.Dense, s int) [][]complex128 {
	shape := batch.Shape()
	m := make([][]complex128, shape[1])
	for i := range m {
		m[i] = make([]complex128, shape[2])
		for j := range m[i] {
			m[i][j] = complex128(batch.At(s, i, j))
		}
	}
	return m
}
