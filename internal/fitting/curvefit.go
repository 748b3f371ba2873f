package fitting

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Default solver settings.
const (
	// DefaultMaxIterations bounds the number of accepted or rejected
	// Levenberg–Marquardt rounds.
	DefaultMaxIterations = 200

	// DefaultTolerance is the relative cost and step tolerance.
	DefaultTolerance = 1e-10

	initialLambda = 1e-3
	maxLambda     = 1e16
	minLambda     = 1e-12
)

// Options configures CurveFit.
type Options struct {
	// P0 is the initial guess. Its length fixes the number of parameters.
	P0 []float64

	// Lower and Upper bound each parameter. A nil slice means unbounded on
	// that side.
	Lower []float64
	Upper []float64

	// Sigma is the per-point uncertainty of y. Residuals are divided by it.
	// Nil means unit weights. Non-positive or non-finite entries are
	// replaced by the mean of the valid ones.
	Sigma []float64

	// MaxIterations caps the solver rounds. Zero selects DefaultMaxIterations.
	MaxIterations int

	// Tolerance is the relative convergence threshold. Zero selects
	// DefaultTolerance.
	Tolerance float64
}

// Result holds the outcome of a fit.
type Result struct {
	// Params are the fitted parameters.
	Params []float64

	// Errors are one-standard-deviation parameter uncertainties, zero
	// when the covariance could not be estimated.
	Errors []float64

	// Cost is ½·Σ r² at Params.
	Cost float64

	// Iterations is the number of solver rounds used.
	Iterations int
}

// CurveFit fits model to (x, y) by bounded weighted least squares.
// It returns an error matching ErrFitConvergence when no acceptable
// minimum can be found and ErrInvalidInput for malformed arguments.
func CurveFit(model Model, x, y []float64, opts Options) (*Result, error) {
	n := len(opts.P0)
	m := len(x)

	if n == 0 {
		return nil, fmt.Errorf("%w: no initial parameters", ErrInvalidInput)
	}
	if len(y) != m {
		return nil, fmt.Errorf("%w: len(x)=%d, len(y)=%d", ErrInvalidInput, m, len(y))
	}
	if opts.Sigma != nil && len(opts.Sigma) != m {
		return nil, fmt.Errorf("%w: len(sigma)=%d, want %d", ErrInvalidInput, len(opts.Sigma), m)
	}
	if m < n {
		return nil, fmt.Errorf("%w: %d points for %d parameters", ErrFitConvergence, m, n)
	}
	for i := range x {
		if !isFinite(x[i]) || !isFinite(y[i]) {
			return nil, fmt.Errorf("%w: non-finite data at point %d", ErrFitConvergence, i)
		}
	}

	lower, upper, err := bounds(opts, n)
	if err != nil {
		return nil, err
	}

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	w := weights(opts.Sigma, m)
	residuals := func(dst, p []float64) {
		for i := range x {
			dst[i] = (y[i] - model(x[i], p)) * w[i]
		}
	}

	// Cost below this is indistinguishable from an exact fit.
	var scale float64
	for i := range y {
		scale += y[i] * w[i] * y[i] * w[i]
	}
	exact := 1e-28 * (0.5*scale + math.SmallestNonzeroFloat64)

	p := make([]float64, n)
	for i := range p {
		p[i] = clamp(opts.P0[i], lower[i], upper[i])
	}
	res := make([]float64, m)
	residuals(res, p)
	cost := 0.5 * floats.Dot(res, res)
	if !isFinite(cost) {
		return nil, fmt.Errorf("%w: non-finite model at initial guess", ErrFitConvergence)
	}

	cand := make([]float64, n)
	candRes := make([]float64, m)
	lambda := initialLambda

	for iter := 1; iter <= maxIter; iter++ {
		if cost <= exact {
			return finish(residuals, p, cost, iter-1, m), nil
		}

		jac := jacobian(residuals, p, m)

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(m, res))

		// Try increasingly damped steps until one lowers the cost.
		for {
			a := mat.NewSymDense(n, nil)
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					v := jtj.At(i, j)
					if i == j {
						d := v
						if d <= 0 {
							d = 1
						}
						v += lambda * d
					}
					a.SetSym(i, j, v)
				}
			}

			var chol mat.Cholesky
			var delta mat.VecDense
			solved := chol.Factorize(a) && chol.SolveVecTo(&delta, &grad) == nil
			if solved {
				for i := range cand {
					cand[i] = clamp(p[i]-delta.AtVec(i), lower[i], upper[i])
				}
				residuals(candRes, cand)
				candCost := 0.5 * floats.Dot(candRes, candRes)

				if isFinite(candCost) && candCost < cost {
					converged := cost-candCost <= tol*cost ||
						floats.Distance(cand, p, 2) <= tol*(floats.Norm(p, 2)+tol)

					copy(p, cand)
					copy(res, candRes)
					cost = candCost
					lambda = math.Max(lambda/10, minLambda)

					if converged {
						return finish(residuals, p, cost, iter, m), nil
					}
					break
				}
			}

			lambda *= 10
			if lambda > maxLambda {
				// No damped step improves the cost: p is a (possibly
				// bound-constrained) minimum to working precision.
				return finish(residuals, p, cost, iter, m), nil
			}
		}
	}

	return nil, fmt.Errorf("%w: no convergence after %d iterations", ErrFitConvergence, maxIter)
}

// jacobian returns d(residual)/dp. Differences are taken in coordinates
// scaled by |p| so the step is relative to each parameter's magnitude.
func jacobian(residuals func(dst, p []float64), p []float64, m int) *mat.Dense {
	n := len(p)
	scale := make([]float64, n)
	u := make([]float64, n)
	for i, v := range p {
		scale[i] = math.Abs(v)
		if scale[i] == 0 {
			scale[i] = 1
		}
		u[i] = v / scale[i]
	}

	buf := make([]float64, n)
	f := func(dst, uu []float64) {
		for i := range uu {
			buf[i] = uu[i] * scale[i]
		}
		residuals(dst, buf)
	}

	jac := mat.NewDense(m, n, nil)
	fd.Jacobian(jac, f, u, &fd.JacobianSettings{Formula: fd.Central})
	for j := 0; j < n; j++ {
		for i := 0; i < m; i++ {
			jac.Set(i, j, jac.At(i, j)/scale[j])
		}
	}
	return jac
}

// finish builds the Result, estimating parameter errors from the
// covariance (JᵀJ)⁻¹·s² with s² the reduced chi-square.
func finish(residuals func(dst, p []float64), p []float64, cost float64, iter, m int) *Result {
	n := len(p)
	r := &Result{
		Params:     append([]float64(nil), p...),
		Errors:     make([]float64, n),
		Cost:       cost,
		Iterations: iter,
	}
	if m <= n {
		return r
	}

	jac := jacobian(residuals, p, m)
	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, jtj.At(i, j))
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return r
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return r
	}

	s2 := 2 * cost / float64(m-n)
	for i := 0; i < n; i++ {
		v := cov.At(i, i) * s2
		if v > 0 && isFinite(v) {
			r.Errors[i] = math.Sqrt(v)
		}
	}
	return r
}

// bounds expands Options bounds to full vectors and checks consistency.
func bounds(opts Options, n int) (lower, upper []float64, err error) {
	lower = make([]float64, n)
	upper = make([]float64, n)
	for i := range n {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}
	if opts.Lower != nil {
		if len(opts.Lower) != n {
			return nil, nil, fmt.Errorf("%w: %d lower bounds for %d parameters", ErrInvalidInput, len(opts.Lower), n)
		}
		copy(lower, opts.Lower)
	}
	if opts.Upper != nil {
		if len(opts.Upper) != n {
			return nil, nil, fmt.Errorf("%w: %d upper bounds for %d parameters", ErrInvalidInput, len(opts.Upper), n)
		}
		copy(upper, opts.Upper)
	}
	for i := range n {
		if math.IsNaN(lower[i]) || math.IsNaN(upper[i]) || lower[i] > upper[i] {
			return nil, nil, fmt.Errorf("%w: empty bounds [%g, %g] for parameter %d",
				ErrFitConvergence, lower[i], upper[i], i)
		}
	}
	return lower, upper, nil
}

// weights converts per-point sigma into residual multipliers.
func weights(sigma []float64, m int) []float64 {
	w := make([]float64, m)
	if sigma == nil {
		for i := range w {
			w[i] = 1
		}
		return w
	}

	var sum float64
	var count int
	for _, s := range sigma {
		if s > 0 && isFinite(s) {
			sum += s
			count++
		}
	}
	fallback := 1.0
	if count > 0 {
		fallback = sum / float64(count)
	}

	for i, s := range sigma {
		if !(s > 0) || !isFinite(s) {
			s = fallback
		}
		w[i] = 1 / s
	}
	return w
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
