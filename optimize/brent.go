package optimize

import (
	"math"
)

const (
	goldenRatio = 0.3819660112501051
	brentEps    = 1e-10
)

// BrentMin minimizes f on [a, b] using Brent's method with the given
// relative tolerance and iteration limit. It returns the located
// minimum point and value.
func BrentMin(f func(float64) float64, a, b, tol float64, maxIter int) (xmin, fmin float64) {
	if a > b {
		a, b = b, a
	}
	x := a + goldenRatio*(b-a)
	w, v := x, x
	fx := f(x)
	fw, fv := fx, fx
	var d, e float64

	for iter := 0; iter < maxIter; iter++ {
		xm := 0.5 * (a + b)
		tol1 := tol*math.Abs(x) + brentEps
		tol2 := 2 * tol1
		if math.Abs(x-xm) <= tol2-0.5*(b-a) {
			break
		}
		parabolic := false
		if math.Abs(e) > tol1 {
			// parabolic fit through x, v, w
			r := (x - w) * (fx - fv)
			q := (x - v) * (fx - fw)
			p := (x-v)*q - (x-w)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			etmp := e
			e = d
			if math.Abs(p) < math.Abs(0.5*q*etmp) && p > q*(a-x) && p < q*(b-x) {
				parabolic = true
				d = p / q
				u := x + d
				if u-a < tol2 || b-u < tol2 {
					d = math.Copysign(tol1, xm-x)
				}
			}
		}
		if !parabolic {
			if x >= xm {
				e = a - x
			} else {
				e = b - x
			}
			d = goldenRatio * e
		}
		var u float64
		if math.Abs(d) >= tol1 {
			u = x + d
		} else {
			u = x + math.Copysign(tol1, d)
		}
		fu := f(u)
		if fu <= fx {
			if u >= x {
				a = x
			} else {
				b = x
			}
			v, w, x = w, x, u
			fv, fw, fx = fw, fx, fu
		} else {
			if u < x {
				a = u
			} else {
				b = u
			}
			if fu <= fw || w == x {
				v, w = w, u
				fv, fw = fw, fu
			} else if fu <= fv || v == x || v == w {
				v = u
				fv = fu
			}
		}
	}
	return x, fx
}

// BrentMax maximizes f on [a, b].
func BrentMax(f func(float64) float64, a, b, tol float64, maxIter int) (xmax, fmax float64) {
	x, neg := BrentMin(func(v float64) float64 { return -f(v) }, a, b, tol, maxIter)
	return x, -neg
}
