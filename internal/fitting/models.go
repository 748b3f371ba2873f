package fitting

import "math"

// Model evaluates a curve at x for the parameter vector p.
type Model func(x float64, p []float64) float64

// Parabola returns amplitude·(1 − ((x−mu)/sigma)²) with p = (sigma, amplitude).
// It is only meaningful close to mu and is used for a first width estimate.
func Parabola(mu float64) Model {
	return func(x float64, p []float64) float64 {
		d := (x - mu) / p[0]
		return p[1] * (1 - d*d)
	}
}

// Gaussian returns amplitude·exp(−((x−mu)/sigma)²) with p = (sigma, amplitude).
func Gaussian(mu float64) Model {
	return func(x float64, p []float64) float64 {
		d := (x - mu) / p[0]
		return p[1] * math.Exp(-d*d)
	}
}

// Hyperbola returns b·x^(−a) with p = (a, b).
func Hyperbola(x float64, p []float64) float64 {
	return p[1] * math.Pow(x, -p[0])
}

// Exponent returns b·exp(a·x) with p = (a, b).
func Exponent(x float64, p []float64) float64 {
	return p[1] * math.Exp(p[0]*x)
}

// GaussianSum returns the sum of Gaussians described by p in groups of
// three: (mean, amplitude, sigma). A trailing incomplete group is ignored.
func GaussianSum(x float64, p []float64) float64 {
	var sum float64
	for i := 0; i+2 < len(p); i += 3 {
		d := (x - p[i]) / p[i+2]
		sum += p[i+1] * math.Exp(-d*d)
	}
	return sum
}

// Evaluate applies model to every x.
func Evaluate(model Model, x, p []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = model(v, p)
	}
	return out
}
