// Package stats provides the closed-form approximations the decision
// policy is built on: the inverse normal CDF, the Student-t 0.975
// quantile, and the Wilson score lower bound.
//
// Every function is pure and total over its documented domain. Outside
// that domain it returns NaN rather than panicking, so callers can
// branch on definedness with math.IsNaN.
package stats

import "math"

// Acklam rational approximation coefficients for the inverse normal CDF.
var (
	acklamA = [6]float64{
		-39.69683028665376, 220.9460984245205, -275.9285104469687,
		138.357751867269, -30.66479806614716, 2.506628277459239,
	}
	acklamB = [5]float64{
		-54.47609879822406, 161.5858368580409, -155.6989798598866,
		66.80131188771972, -13.28068155288572,
	}
	acklamC = [6]float64{
		-0.007784894002430293, -0.3223964580411365, -2.400758277161838,
		-2.549732539343734, 4.374664141464968, 2.938163982698783,
	}
	acklamD = [4]float64{
		0.007784695709041462, 0.3224671290700398, 2.445134137142996,
		3.754408661907416,
	}
)

// t-distribution 0.975 quantiles for df 1..30.
var t975Table = [31]float64{
	0, // df 0 unused
	12.706, 4.303, 3.182, 2.776, 2.571, 2.447, 2.365, 2.306, 2.262, 2.228,
	2.201, 2.179, 2.16, 2.145, 2.131, 2.12, 2.11, 2.101, 2.093, 2.086,
	2.08, 2.074, 2.069, 2.064, 2.06, 2.056, 2.052, 2.048, 2.045, 2.042,
}

// z for the two-sided 95% interval under the normal approximation,
// used once the t distribution is indistinguishable from normal.
const normal975 = 1.959963984540054

// InverseNormalCDF returns z such that P(Z <= z) = p for a standard
// normal Z, using the Acklam rational approximation. Returns NaN for
// p outside (0, 1).
func InverseNormalCDF(p float64) float64 {
	if !(p > 0 && p < 1) {
		return math.NaN()
	}

	const plow = 0.02425

	if p < plow {
		q := math.Sqrt(-2 * math.Log(p))
		return (((((acklamC[0]*q+acklamC[1])*q+acklamC[2])*q+acklamC[3])*q+acklamC[4])*q + acklamC[5]) /
			((((acklamD[0]*q+acklamD[1])*q+acklamD[2])*q+acklamD[3])*q + 1)
	}

	if p <= 1-plow {
		q := p - 0.5
		r := q * q
		return (((((acklamA[0]*r+acklamA[1])*r+acklamA[2])*r+acklamA[3])*r+acklamA[4])*r + acklamA[5]) * q /
			(((((acklamB[0]*r+acklamB[1])*r+acklamB[2])*r+acklamB[3])*r+acklamB[4])*r + 1)
	}

	q := math.Sqrt(-2 * math.Log(1-p))
	return -(((((acklamC[0]*q+acklamC[1])*q+acklamC[2])*q+acklamC[3])*q+acklamC[4])*q + acklamC[5]) /
		((((acklamD[0]*q+acklamD[1])*q+acklamD[2])*q+acklamD[3])*q + 1)
}

// TQuantile975 returns the 0.975 quantile of the Student-t distribution
// with df degrees of freedom: exact table lookup for df 1..30, a
// Cornish-Fisher expansion for 31..100, and the normal constant above
// 100. Returns NaN for df <= 0 or non-finite df.
func TQuantile975(df float64) float64 {
	if math.IsNaN(df) || math.IsInf(df, 0) || df <= 0 {
		return math.NaN()
	}
	if df <= 30 {
		if idx := int(df); idx >= 1 {
			return t975Table[idx]
		}
		// fractional df below 1 has no table row; use the flattest entry
		return t975Table[30]
	}
	if df > 100 {
		return normal975
	}
	z := InverseNormalCDF(0.975)
	z2 := z * z
	z3 := z2 * z
	return z + (z3+z)/(4*df) + (5*z3*z2+16*z3+3*z)/(96*df*df)
}

// WilsonLowerBound returns the lower bound of the Wilson score interval
// for a true proportion, given positives successes out of n trials at
// the given confidence level (e.g. 0.95). Returns NaN for n <= 0; the
// result is clamped to >= 0.
func WilsonLowerBound(positives, n int, confidence float64) float64 {
	if n <= 0 {
		return math.NaN()
	}
	phat := float64(positives) / float64(n)
	z := InverseNormalCDF(1 - (1-confidence)/2)
	z2 := z * z
	fn := float64(n)
	center := phat + z2/(2*fn)
	margin := z * math.Sqrt((phat*(1-phat)+z2/(4*fn))/fn)
	return math.Max(0, (center-margin)/(1+z2/fn))
}

// Mean returns the arithmetic mean of xs, or NaN for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// SampleStdDev returns the Bessel-corrected sample standard deviation
// of xs. Requires at least two values; returns NaN otherwise.
func SampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	mu := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
