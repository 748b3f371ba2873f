// Package fitting provides the curve models used by saxsflow and a bounded,
// weighted nonlinear least-squares solver.
//
// CurveFit minimises Σ((y−f(x;p))/σ)² with a Levenberg–Marquardt iteration.
// The Jacobian comes from central finite differences (gonum/diff/fd), the
// damped normal equations are solved with a Cholesky factorisation
// (gonum/mat), and every trial step is projected back onto the parameter
// box. Parameter uncertainties are taken from the inverse of JᵀJ scaled
// by the reduced chi-square.
package fitting
