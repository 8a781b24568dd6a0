package stationarity

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/derickschaefer/tsprep/internal/model"
)

// olsFit holds what the test needs from a least-squares fit.
type olsFit struct {
	beta []float64
	se   []float64
	ssr  float64
	n    int
	k    int
}

// ols solves y = Xβ by QR and derives standard errors from σ²(XᵀX)⁻¹.
func ols(X *mat.Dense, y *mat.VecDense) (olsFit, error) {
	n, k := X.Dims()
	if n <= k {
		return olsFit{}, model.InsufficientData(op, "%d observations for %d regressors", n, k)
	}

	var qr mat.QR
	qr.Factorize(X)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); singular(err) {
		return olsFit{}, model.DegenerateInput(op, "singular design matrix: %v", err)
	}

	var fitted, resid mat.VecDense
	fitted.MulVec(X, &beta)
	resid.SubVec(y, &fitted)
	ssr := mat.Dot(&resid, &resid)

	var xtx, inv mat.Dense
	xtx.Mul(X.T(), X)
	if err := inv.Inverse(&xtx); singular(err) {
		return olsFit{}, model.DegenerateInput(op, "singular design matrix: %v", err)
	}

	sigma2 := ssr / float64(n-k)
	se := make([]float64, k)
	for j := range se {
		se[j] = math.Sqrt(sigma2 * inv.At(j, j))
	}

	return olsFit{
		beta: mat.Col(nil, 0, &beta),
		se:   se,
		ssr:  ssr,
		n:    n,
		k:    k,
	}, nil
}

// singular reports whether err means the system had no usable solution.
// Ill-conditioned but finite systems still return a result.
func singular(err error) bool {
	if err == nil {
		return false
	}
	var cond mat.Condition
	if errors.As(err, &cond) {
		return math.IsInf(float64(cond), 1)
	}
	return true
}

func (f olsFit) tvalue(j int) float64 {
	return f.beta[j] / f.se[j]
}

// llf is the Gaussian log-likelihood at the ML variance estimate.
func (f olsFit) llf() float64 {
	n := float64(f.n)
	return -n / 2 * (math.Log(2*math.Pi) + math.Log(f.ssr/n) + 1)
}

func (f olsFit) aic() float64 {
	return -2*f.llf() + 2*float64(f.k)
}

func (f olsFit) bic() float64 {
	return -2*f.llf() + math.Log(float64(f.n))*float64(f.k)
}
