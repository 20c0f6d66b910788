package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrTooFewPoints is returned when fewer than four correspondences are given.
	ErrTooFewPoints = errors.New("homography needs at least 4 correspondences")
	// ErrDegenerate is returned when the correspondences do not determine a projective transform.
	ErrDegenerate = errors.New("degenerate point configuration")
)

// Homography is a 3x3 projective transform stored row-major. Indices are [row][column].
type Homography [3][3]float64

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// NewHomography builds a Homography from nine row-major values.
func NewHomography(vals []float64) (Homography, error) {
	var h Homography
	if len(vals) != 9 {
		return h, fmt.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	for i, v := range vals {
		h[i/3][i%3] = v
	}
	return h, nil
}

// Values returns the nine row-major entries.
func (h Homography) Values() []float64 {
	out := make([]float64, 0, 9)
	for _, row := range h {
		out = append(out, row[:]...)
	}
	return out
}

// Apply maps a camera-space point to screen space. A point on the line at
// infinity maps to a non-finite point.
func (h Homography) Apply(p Point) Point {
	x := h[0][0]*p.X + h[0][1]*p.Y + h[0][2]
	y := h[1][0]*p.X + h[1][1]*p.Y + h[1][2]
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	if w == 0 {
		return Screen(math.Inf(1), math.Inf(1))
	}
	return Screen(x/w, y/w)
}

// Fit describes the numerical quality of an estimated homography.
type Fit struct {
	// Residual is the RMS reprojection error in destination units.
	Residual float64 `json:"residual"`
	// Condition is the 2-norm condition number of the normalized design matrix.
	Condition float64 `json:"condition"`
}

// EstimateHomography computes the least-squares homography mapping src[i] onto
// dst[i]. Coordinates are normalized before solving (translate to the centroid,
// scale to a mean distance of sqrt 2) and the result is de-normalized.
func EstimateHomography(src, dst []Point) (Homography, Fit, error) {
	if len(src) != len(dst) {
		return Homography{}, Fit{}, fmt.Errorf("mismatched correspondences: %d source, %d destination", len(src), len(dst))
	}
	if len(src) < 4 {
		return Homography{}, Fit{}, ErrTooFewPoints
	}

	srcNorm, ok := normalizer(src)
	if !ok {
		return Homography{}, Fit{}, ErrDegenerate
	}
	dstNorm, ok := normalizer(dst)
	if !ok {
		return Homography{}, Fit{}, ErrDegenerate
	}

	n := len(src)
	a := mat.NewDense(2*n, 8, nil)
	b := mat.NewDense(2*n, 1, nil)
	for i := range n {
		p := srcNorm.apply(src[i].Vec())
		q := dstNorm.apply(dst[i].Vec())
		r := 2 * i

		// x' = (h00 X + h01 Y + h02) / (h20 X + h21 Y + 1)
		a.SetRow(r, []float64{p.X, p.Y, 1, 0, 0, 0, -p.X * q.X, -p.Y * q.X})
		b.Set(r, 0, q.X)

		// y' = (h10 X + h11 Y + h12) / (h20 X + h21 Y + 1)
		a.SetRow(r+1, []float64{0, 0, 0, p.X, p.Y, 1, -p.X * q.Y, -p.Y * q.Y})
		b.Set(r+1, 0, q.Y)
	}

	cond := mat.Cond(a, 2)
	if math.IsInf(cond, 1) || math.IsNaN(cond) {
		return Homography{}, Fit{Condition: cond}, ErrDegenerate
	}

	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		return Homography{}, Fit{Condition: cond}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	hn := mat.NewDense(3, 3, []float64{
		x.At(0, 0), x.At(1, 0), x.At(2, 0),
		x.At(3, 0), x.At(4, 0), x.At(5, 0),
		x.At(6, 0), x.At(7, 0), 1,
	})

	// H = inv(Tdst) * Hn * Tsrc
	var tmp, full mat.Dense
	tmp.Mul(dstNorm.inverse(), hn)
	full.Mul(&tmp, srcNorm.matrix())

	scale := full.At(2, 2)
	if scale == 0 || math.IsNaN(scale) {
		return Homography{}, Fit{Condition: cond}, ErrDegenerate
	}

	var h Homography
	for r := range 3 {
		for c := range 3 {
			h[r][c] = full.At(r, c) / scale
		}
	}

	return h, Fit{Residual: reprojectionError(h, src, dst), Condition: cond}, nil
}

// reprojectionError returns the RMS distance between h(src[i]) and dst[i].
func reprojectionError(h Homography, src, dst []Point) float64 {
	var sum float64
	for i := range src {
		d := h.Apply(src[i]).Distance(dst[i])
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(src)))
}

// similarity is the isotropic normalizing transform p -> s*(p - c).
type similarity struct {
	c r2.Point
	s float64
}

func normalizer(pts []Point) (similarity, bool) {
	var c r2.Point
	for _, p := range pts {
		c = c.Add(p.Vec())
	}
	c = c.Mul(1 / float64(len(pts)))

	var mean float64
	for _, p := range pts {
		mean += p.Vec().Sub(c).Norm()
	}
	mean /= float64(len(pts))
	if mean < 1e-12 {
		return similarity{}, false
	}
	return similarity{c: c, s: math.Sqrt2 / mean}, true
}

func (t similarity) apply(p r2.Point) r2.Point {
	return p.Sub(t.c).Mul(t.s)
}

func (t similarity) matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		t.s, 0, -t.s * t.c.X,
		0, t.s, -t.s * t.c.Y,
		0, 0, 1,
	})
}

func (t similarity) inverse() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1 / t.s, 0, t.c.X,
		0, 1 / t.s, t.c.Y,
		0, 0, 1,
	})
}
