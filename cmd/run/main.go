// Command run post-processes a VMC measurement run: it solves the
// per-sample generalized eigenvalue problem, projects the eigenvectors
// onto the spin operators of the run's wavefunction family, and writes
// the eigenvalues, amplitudes and their sample statistics as CSV.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"vmcpostproc"
)

const (
	fnameEigen   = "eig.csv"
	fnameSummary = "summary.csv"
)

var (
	files  = flag.String("f", "", "comma separated measurement files")
	nsamp  = flag.Int("n", 1, "number of Monte Carlo samples")
	wav    = flag.String("wav", "", "wavefunction file, derived from the first measurement file when empty")
	tol    = flag.Float64("tol", vmcpostproc.DefaultTol, "overlap matrix tolerance")
	outDir = flag.String("o", filepath.Join("runs", "postproc"), "output directory")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	if *files == "" {
		return errors.Errorf("no measurement files")
	}
	fnames := strings.Split(*files, ",")
	if err := os.MkdirAll(*outDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	es, err := vmcpostproc.GetEigSys(fnames, *nsamp, *wav, *tol)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := writeCSV(filepath.Join(*outDir, fnameEigen), es.Vals); err != nil {
		return errors.Wrap(err, "")
	}

	ampl, err := vmcpostproc.GetSqAmpl(fnames, *nsamp, *wav, *tol, &es)
	if err != nil {
		return errors.Wrap(err, "")
	}
	for c, channel := range ampl {
		fpath := filepath.Join(*outDir, fmt.Sprintf("ampl-%d.csv", c))
		if err := writeCSV(fpath, channel); err != nil {
			return errors.Wrap(err, fpath)
		}
	}
	if err := writeSummary(filepath.Join(*outDir, fnameSummary), es.Vals, ampl); err != nil {
		return errors.Wrap(err, "")
	}

	log.Printf("%d samples, %d channels, results in %s", *nsamp, len(ampl), *outDir)
	return nil
}

// writeSummary writes the mean and standard deviation over samples of
// every eigenvalue and amplitude column.
func writeSummary(fpath string, vals [][]float64, ampl [][][]float64) error {
	f, err := os.Create(fpath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(f)

	col := make([]float64, len(vals))
	put := func(name string, cols [][]float64) {
		for k := 0; k < len(cols[0]); k++ {
			for s := range cols {
				col[s] = cols[s][k]
			}
			record := []string{
				fmt.Sprintf("%s%d", name, k),
				strconv.FormatFloat(stat.Mean(col, nil), 'g', -1, 64),
				strconv.FormatFloat(stat.StdDev(col, nil), 'g', -1, 64),
			}
			if err1 := w.Write(record); err1 != nil && err == nil {
				err = errors.Wrap(err1, "")
			}
		}
	}
	put("e", vals)
	for c, channel := range ampl {
		put(fmt.Sprintf("s%d_", c), channel)
	}

	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

// writeCSV writes one sample per row.
func writeCSV(fpath string, rows [][]float64) error {
	f, err := os.Create(fpath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(f)

	for _, row := range rows {
		record := make([]string, len(row))
		for j, v := range row {
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err1 := w.Write(record); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}

	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}
