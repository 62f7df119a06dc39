// Package load reads and writes VMC measurement files.
//
// A measurement file is a sqlite database holding up to three tables:
//
//   - q(s, i, j, re, im): the sampled quantity, one matrix per sample s.
//   - attr(k, v): the run attributes as text.
//   - wav(s, pos, orb): the fermion orbital order of every excitation
//     basis state of the trial wavefunction.
//
// By the historical naming convention of the simulation code, the files
// keep the ".h5" extension even though their content is sqlite.
package load

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/fumin/tensor"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	tableQuantity = "q"
	tableAttr     = "attr"
	tableWav      = "wav"
)

// GetQuantity loads the sampled matrices of fnames concatenated along the
// sample axis, and returns the first nsamp of them as a
// (nsamp, rows, cols) tensor.
func GetQuantity(fnames []string, nsamp int) (*tensor.Dense, error) {
	if nsamp <= 0 {
		return nil, errors.Errorf("%d samples requested", nsamp)
	}
	var batch *tensor.Dense
	loaded := 0
	for _, fname := range fnames {
		if loaded >= nsamp {
			break
		}
		n, err := readQuantity(&batch, loaded, nsamp, fname)
		if err != nil {
			return nil, errors.Wrap(err, fname)
		}
		loaded += n
	}
	if loaded < nsamp {
		return nil, errors.Errorf("%d samples in %#v, expected %d", loaded, fnames, nsamp)
	}
	return batch, nil
}

// readQuantity reads samples of fname into *batch starting at sample
// offset, allocating *batch upon reading the first entry.
// It returns the number of samples read, capped so that offset+n <= nsamp.
func readQuantity(batch **tensor.Dense, offset, nsamp int, fname string) (int, error) {
	db, err := openDB(fname)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT max(s), max(i), max(j) FROM %s`, tableQuantity)
	var ns, rows, cols int
	if err := db.QueryRowContext(ctx, sqlStr).Scan(&ns, &rows, &cols); err != nil {
		return 0, errors.Wrap(err, "")
	}
	ns, rows, cols = ns+1, rows+1, cols+1

	if *batch == nil {
		*batch = tensor.Zeros(nsamp, rows, cols)
	}
	shape := (*batch).Shape()
	if !(rows == shape[1] && cols == shape[2]) {
		return 0, errors.Errorf("%d %d, expected %d %d", rows, cols, shape[1], shape[2])
	}
	n := min(ns, nsamp-offset)

	sqlStr = fmt.Sprintf(`SELECT s, i, j, re, im FROM %s WHERE s < ? ORDER BY s, i, j`, tableQuantity)
	dbRows, err := db.QueryContext(ctx, sqlStr, n)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	defer dbRows.Close()
	for dbRows.Next() {
		var s, i, j int
		var re, im float64
		if err := dbRows.Scan(&s, &i, &j, &re, &im); err != nil {
			return 0, errors.Wrap(err, "")
		}
		(*batch).SetAt([]int{offset + s, i, j}, complex(float32(re), float32(im)))
	}
	if err := dbRows.Err(); err != nil {
		return 0, errors.Wrap(err, "")
	}
	return n, nil
}

// GetAttr loads the run attributes of fname.
func GetAttr(fname string) (map[string]string, error) {
	db, err := openDB(fname)
	if err != nil {
		return nil, errors.Wrap(err, fname)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT k, v FROM %s`, tableAttr)
	rows, err := db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, fname)
	}
	defer rows.Close()

	attrs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.Wrap(err, "")
		}
		attrs[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return attrs, nil
}

// GetWav loads the trial wavefunction state of fname.
// states[s] is the stored fermion orbital order of basis state s.
func GetWav(fname string) ([][]int, error) {
	db, err := openDB(fname)
	if err != nil {
		return nil, errors.Wrap(err, fname)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT s, orb FROM %s ORDER BY s, pos`, tableWav)
	rows, err := db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, fname)
	}
	defer rows.Close()

	states := make([][]int, 0)
	for rows.Next() {
		var s, orb int
		if err := rows.Scan(&s, &orb); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if s >= len(states) {
			for len(states) <= s {
				states = append(states, nil)
			}
		}
		states[s] = append(states[s], orb)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(states) == 0 {
		return nil, errors.Errorf("empty wavefunction %s", fname)
	}
	return states, nil
}

// WriteQuantity appends samples to the quantity table of fname.
// Every entry is written, zeros included, so that readers recover the
// matrix shape from the largest stored indices.
func WriteQuantity(fname string, samples [][][]complex64) error {
	db, err := openDB(fname)
	if err != nil {
		return errors.Wrap(err, fname)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (s INTEGER, i INTEGER, j INTEGER, re REAL, im REAL, PRIMARY KEY (s, i, j)) STRICT`, tableQuantity)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}

	var offset int
	sqlStr = fmt.Sprintf(`SELECT count(DISTINCT s) FROM %s`, tableQuantity)
	if err := db.QueryRowContext(ctx, sqlStr).Scan(&offset); err != nil {
		return errors.Wrap(err, "")
	}

	sqlStr = fmt.Sprintf(`INSERT INTO %s (s, i, j, re, im) VALUES (?, ?, ?, ?, ?)`, tableQuantity)
	for s, m := range samples {
		for i, row := range m {
			for j, v := range row {
				args := []any{offset + s, i, j, float64(real(v)), float64(imag(v))}
				if _, err := db.ExecContext(ctx, sqlStr, args...); err != nil {
					return errors.Wrap(err, fmt.Sprintf("%#v", args))
				}
			}
		}
	}
	return nil
}

// WriteAttr stores the run attributes in fname.
func WriteAttr(fname string, attrs map[string]string) error {
	db, err := openDB(fname)
	if err != nil {
		return errors.Wrap(err, fname)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, v TEXT) STRICT`, tableAttr)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr = fmt.Sprintf(`INSERT OR REPLACE INTO %s (k, v) VALUES (?, ?)`, tableAttr)
	for k, v := range attrs {
		if _, err := db.ExecContext(ctx, sqlStr, k, v); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%s %s", k, v))
		}
	}
	return nil
}

// WriteWav stores the trial wavefunction state in fname.
func WriteWav(fname string, states [][]int) error {
	db, err := openDB(fname)
	if err != nil {
		return errors.Wrap(err, fname)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (s INTEGER, pos INTEGER, orb INTEGER, PRIMARY KEY (s, pos)) STRICT`, tableWav)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr = fmt.Sprintf(`INSERT OR REPLACE INTO %s (s, pos, orb) VALUES (?, ?, ?)`, tableWav)
	for s, orbs := range states {
		for pos, orb := range orbs {
			if _, err := db.ExecContext(ctx, sqlStr, s, pos, orb); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%d %d %d", s, pos, orb))
			}
		}
	}
	return nil
}

func openDB(fname string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", fname))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return db, nil
}

// Family is the trial wavefunction family of a run.
type Family int

const (
	FamilyStagFlux Family = iota
	FamilySfPnXPhZ
)

func (f Family) String() string {
	switch f {
	case FamilyStagFlux:
		return "stagflux"
	case FamilySfPnXPhZ:
		return "sfpnxphz"
	}
	return strconv.Itoa(int(f))
}

// Params are the run parameters parsed from the attribute table.
type Params struct {
	Family  Family
	Channel string

	// Lx, Ly are the lattice dimensions.
	Lx, Ly int
	// Phi is the staggered flux along a bond.
	Phi float64
	// Neel is the Neel field.
	Neel float64
	// Q is the momentum channel in units of the reciprocal lattice.
	Q [2]int
	// BCPhase is the boundary condition phase shift in units of pi.
	BCPhase [2]float64
}

// ParseParams parses the run attributes.
// A run whose attributes select no known wavefunction family is rejected.
func ParseParams(attrs map[string]string) (Params, error) {
	var p Params
	switch {
	case isTrue(attrs["sfpnxphz_wav"]):
		p.Family = FamilySfPnXPhZ
	case isTrue(attrs["stagflux_wav"]):
		p.Family = FamilyStagFlux
	default:
		return Params{}, errors.Errorf("wavefunction family not implemented: %#v", attrs)
	}
	p.Channel = attrs["channel"]

	var err error
	if p.Lx, err = strconv.Atoi(attrs["Lx"]); err != nil {
		return Params{}, errors.Wrap(err, "Lx")
	}
	if p.Ly, err = strconv.Atoi(attrs["Ly"]); err != nil {
		return Params{}, errors.Wrap(err, "Ly")
	}
	if p.Phi, err = optFloat(attrs, "phi"); err != nil {
		return Params{}, errors.Wrap(err, "")
	}
	if p.Neel, err = optFloat(attrs, "neel"); err != nil {
		return Params{}, errors.Wrap(err, "")
	}
	for i, k := range []string{"qx", "qy"} {
		q, err := optFloat(attrs, k)
		if err != nil {
			return Params{}, errors.Wrap(err, "")
		}
		p.Q[i] = int(q)
	}
	for i, k := range []string{"phase_shift_x", "phase_shift_y"} {
		if p.BCPhase[i], err = optFloat(attrs, k); err != nil {
			return Params{}, errors.Wrap(err, "")
		}
	}
	return p, nil
}

func isTrue(v string) bool {
	switch v {
	case "1", "true", "True":
		return true
	}
	return false
}

func optFloat(attrs map[string]string, k string) (float64, error) {
	s, ok := attrs[k]
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrap(err, k)
	}
	return v, nil
}
