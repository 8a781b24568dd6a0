// Package spectral computes one-sided frequency-domain views of evenly
// spaced series: the periodogram and the raw DFT spectrum.
//
// Only frequencies k/N for k = 0..N/2 are returned. For real input the
// negative frequencies mirror these and carry no extra information.
package spectral

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/derickschaefer/tsprep/internal/model"
)

// Options configures the transforms.
type Options struct {
	// Demean subtracts the series mean before transforming, which removes
	// the DC spike at frequency zero.
	Demean bool
}

// Periodogram returns power |X_k|²/N at each frequency k/N.
func Periodogram(s *model.Series, opts ...Options) (model.Spectrum, error) {
	coef, err := transform("periodogram", s, opts)
	if err != nil {
		return model.Spectrum{}, err
	}
	n := s.Len()
	out := model.Spectrum{SeriesID: s.ID(), Kind: model.SpectrumPeriodogram, N: n}
	out.Points = make([]model.SpectrumPoint, len(coef))
	for k, c := range coef {
		a := cmplx.Abs(c)
		out.Points[k] = model.SpectrumPoint{Frequency: float64(k) / float64(n), Power: a * a / float64(n)}
	}
	return out, nil
}

// FFTSpectrum returns the one-sided DFT coefficients X_k together with their
// magnitudes |X_k| as Points.
func FFTSpectrum(s *model.Series, opts ...Options) (model.Spectrum, error) {
	coef, err := transform("fft", s, opts)
	if err != nil {
		return model.Spectrum{}, err
	}
	n := s.Len()
	out := model.Spectrum{SeriesID: s.ID(), Kind: model.SpectrumFFT, N: n, Coefficients: coef}
	out.Points = make([]model.SpectrumPoint, len(coef))
	for k, c := range coef {
		out.Points[k] = model.SpectrumPoint{Frequency: float64(k) / float64(n), Power: cmplx.Abs(c)}
	}
	return out, nil
}

// DominantPeriod returns the period in samples (1/frequency) of the
// strongest non-DC component.
func DominantPeriod(sp model.Spectrum) (float64, bool) {
	p, ok := sp.Peak()
	if !ok || p.Frequency == 0 {
		return math.Inf(1), false
	}
	return 1 / p.Frequency, true
}

func transform(op string, s *model.Series, opts []Options) ([]complex128, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if s.Len() < 2 {
		return nil, model.InsufficientData(op, "need at least 2 points, got %d", s.Len())
	}
	if !s.Regular() {
		return nil, model.InvalidParameter(op, "series is not evenly spaced; resample it first")
	}

	x := s.Values()
	if o.Demean {
		mean := stat.Mean(x, nil)
		for i := range x {
			x[i] -= mean
		}
	}
	fft := fourier.NewFFT(len(x))
	return fft.Coefficients(nil, x), nil
}
