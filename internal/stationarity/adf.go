// Package stationarity implements the Augmented Dickey-Fuller unit-root test.
//
// The test regresses Δy_t on deterministic terms, the lagged level y_{t-1}
// and p lagged differences, and reports the t-statistic on the lagged level.
// p-values follow MacKinnon's (1994) response surfaces and critical values
// his (2010) finite-sample tables.
package stationarity

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/derickschaefer/tsprep/internal/model"
)

// Regression variants.
const (
	RegressionConstant      = "c"
	RegressionConstantTrend = "ct"
	RegressionNone          = "n"
)

// Lag selection methods.
const (
	AutoLagAIC   = "aic"
	AutoLagBIC   = "bic"
	AutoLagTStat = "t-stat"
)

// SignificanceLevel is the p-value below which a series is reported stationary.
const SignificanceLevel = 0.05

// Options configures ADF.
type Options struct {
	// Lags is the fixed number of lagged differences, used when AutoLag is empty.
	Lags int
	// MaxLag bounds the lag search. Zero selects ceil(12*(n/100)^(1/4)).
	MaxLag int
	// AutoLag is "aic", "bic", "t-stat" or empty for a fixed lag count.
	AutoLag string
	// Regression is "c" (constant, default), "ct" (constant and trend) or "n".
	Regression string
}

// DefaultOptions selects the lag count by AIC with a constant term.
func DefaultOptions() Options {
	return Options{AutoLag: AutoLagAIC, Regression: RegressionConstant}
}

const op = "adf"

// ADF runs the Augmented Dickey-Fuller test on s.
func ADF(s *model.Series, opts Options) (model.StationarityResult, error) {
	reg := opts.Regression
	if reg == "" {
		reg = RegressionConstant
	}
	ntrend, ok := trendTerms[reg]
	if !ok {
		return model.StationarityResult{}, model.InvalidParameter(op, "unknown regression %q (want c, ct or n)", reg)
	}
	switch opts.AutoLag {
	case "", AutoLagAIC, AutoLagBIC, AutoLagTStat:
	default:
		return model.StationarityResult{}, model.InvalidParameter(op, "unknown autolag %q (want aic, bic or t-stat)", opts.AutoLag)
	}
	if opts.Lags < 0 || opts.MaxLag < 0 {
		return model.StationarityResult{}, model.InvalidParameter(op, "lags must be non-negative")
	}

	x := s.Values()
	n := len(x)

	var usedLag int
	var icBest float64
	if opts.AutoLag == "" {
		usedLag = opts.Lags
		if n <= usedLag+2 {
			return model.StationarityResult{}, model.InsufficientData(op, "%d observations cannot support %d lags", n, usedLag)
		}
		if n-1-usedLag <= usedLag+1+ntrend {
			return model.StationarityResult{}, model.InsufficientData(op, "%d observations leave too few degrees of freedom for %d lags", n, usedLag)
		}
		if constantSeries(x) {
			return model.StationarityResult{}, model.DegenerateInput(op, "series is constant")
		}
	} else {
		maxLag := opts.MaxLag
		if maxLag == 0 {
			maxLag = int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
		}
		if limit := n/2 - ntrend - 1; maxLag > limit {
			maxLag = limit
		}
		if maxLag < 0 {
			return model.StationarityResult{}, model.InsufficientData(op, "%d observations are too few for regression %q", n, reg)
		}
		if constantSeries(x) {
			return model.StationarityResult{}, model.DegenerateInput(op, "series is constant")
		}
		lag, ic, err := selectLag(x, maxLag, ntrend, opts.AutoLag)
		if err != nil {
			return model.StationarityResult{}, err
		}
		usedLag, icBest = lag, ic
	}

	nobs := n - 1 - usedLag
	X, y := design(x, usedLag, nobs, ntrend)
	fit, err := ols(X, y)
	if err != nil {
		return model.StationarityResult{}, err
	}
	stat := fit.tvalue(ntrend)
	if math.IsNaN(stat) || math.IsInf(stat, 0) {
		return model.StationarityResult{}, model.DegenerateInput(op, "regression fits exactly; statistic undefined")
	}

	p := PValue(stat, reg)
	return model.StationarityResult{
		SeriesID:       s.ID(),
		Test:           "adf",
		Statistic:      stat,
		PValue:         p,
		CriticalValues: CriticalValues(reg, nobs),
		LagsUsed:       usedLag,
		NObs:           nobs,
		Regression:     reg,
		AutoLag:        opts.AutoLag,
		ICBest:         icBest,
		Stationary:     p < SignificanceLevel,
	}, nil
}

var trendTerms = map[string]int{
	RegressionNone:          0,
	RegressionConstant:      1,
	RegressionConstantTrend: 2,
}

// selectLag fits every lag count 0..maxLag on the common sample that the
// largest lag allows and returns the best one with its criterion value.
func selectLag(x []float64, maxLag, ntrend int, method string) (int, float64, error) {
	nobs := len(x) - 1 - maxLag
	if nobs <= maxLag+1+ntrend {
		return 0, 0, model.InsufficientData(op, "%d observations leave too few degrees of freedom for %d lags", len(x), maxLag)
	}
	fits := make([]olsFit, maxLag+1)
	for lag := 0; lag <= maxLag; lag++ {
		X, y := design(x, lag, nobs, ntrend)
		f, err := ols(X, y)
		if err != nil {
			return 0, 0, err
		}
		fits[lag] = f
	}

	switch method {
	case AutoLagTStat:
		// Walk down from the largest lag until the last lagged difference
		// clears the one-sided 5% normal cutoff.
		const stop = 1.6448536269514722
		for lag := maxLag; lag >= 0; lag-- {
			tv := math.Abs(fits[lag].tvalue(fits[lag].k - 1))
			if tv >= stop || lag == 0 {
				return lag, tv, nil
			}
		}
	}

	best, bestIC := 0, math.Inf(1)
	for lag, f := range fits {
		ic := f.aic()
		if method == AutoLagBIC {
			ic = f.bic()
		}
		if ic < bestIC {
			best, bestIC = lag, ic
		}
	}
	return best, bestIC, nil
}

// design builds the regression of Δy_t on [deterministic, y_{t-1},
// Δy_{t-1}..Δy_{t-lags}] over the last rows time steps of x.
func design(x []float64, lags, rows, ntrend int) (*mat.Dense, *mat.VecDense) {
	n := len(x)
	k := ntrend + 1 + lags
	X := mat.NewDense(rows, k, nil)
	y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := n - rows + r
		y.SetVec(r, x[t]-x[t-1])
		c := 0
		if ntrend >= 1 {
			X.Set(r, c, 1)
			c++
		}
		if ntrend == 2 {
			X.Set(r, c, float64(r+1))
			c++
		}
		X.Set(r, c, x[t-1])
		c++
		for j := 1; j <= lags; j++ {
			X.Set(r, c, x[t-j]-x[t-j-1])
			c++
		}
	}
	return X, y
}

func constantSeries(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}
