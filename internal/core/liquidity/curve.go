// Package liquidity implements piecewise-linear liquidity curves.
//
// A curve maps a source amount to the destination amount obtainable for it.
// Curves are non-decreasing and defined by an ordered list of break-points;
// between break-points the value is linearly interpolated. All arithmetic is
// arbitrary-precision decimal, never floating point.
package liquidity

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	// ErrNonMonotonic is returned when curve points are not strictly
	// increasing in x or not non-decreasing in y.
	ErrNonMonotonic = errors.New("curve points must be strictly increasing in x and non-decreasing in y")

	// ErrNegativePoint is returned when a curve point has a negative coordinate.
	ErrNegativePoint = errors.New("curve points must be non-negative")
)

// Point is a single break-point of a curve.
type Point struct {
	X decimal.Decimal
	Y decimal.Decimal
}

// Curve is an immutable piecewise-linear non-decreasing function.
// The zero value is the empty curve, which represents no liquidity.
type Curve struct {
	points []Point
}

// NewCurve builds a curve from break-points, validating the monotonicity
// invariant: xs strictly increasing, ys non-decreasing, all coordinates
// non-negative.
func NewCurve(points []Point) (Curve, error) {
	for i, p := range points {
		if p.X.IsNegative() || p.Y.IsNegative() {
			return Curve{}, ErrNegativePoint
		}
		if i > 0 {
			prev := points[i-1]
			if p.X.Cmp(prev.X) <= 0 || p.Y.Cmp(prev.Y) < 0 {
				return Curve{}, ErrNonMonotonic
			}
		}
	}
	cp := make([]Point, len(points))
	copy(cp, points)
	return Curve{points: cp}, nil
}

// NewCurveFromStrings builds a curve from [x, y] decimal-string pairs, the
// external wire representation of curve points.
func NewCurveFromStrings(pairs [][2]string) (Curve, error) {
	points := make([]Point, 0, len(pairs))
	for _, pair := range pairs {
		x, err := decimal.NewFromString(pair[0])
		if err != nil {
			return Curve{}, fmt.Errorf("invalid curve point x %q: %w", pair[0], err)
		}
		y, err := decimal.NewFromString(pair[1])
		if err != nil {
			return Curve{}, fmt.Errorf("invalid curve point y %q: %w", pair[1], err)
		}
		points = append(points, Point{X: x, Y: y})
	}
	return NewCurve(points)
}

// Points returns a copy of the curve's break-points.
func (c Curve) Points() []Point {
	cp := make([]Point, len(c.points))
	copy(cp, c.points)
	return cp
}

// PointStrings returns the break-points as [x, y] decimal-string pairs.
func (c Curve) PointStrings() [][2]string {
	out := make([][2]string, len(c.points))
	for i, p := range c.points {
		out[i] = [2]string{p.X.String(), p.Y.String()}
	}
	return out
}

// Len returns the number of break-points.
func (c Curve) Len() int {
	return len(c.points)
}

// IsEmpty reports whether the curve has no break-points.
func (c Curve) IsEmpty() bool {
	return len(c.points) == 0
}

// Equal reports point-sequence equality between two curves.
func (c Curve) Equal(other Curve) bool {
	if len(c.points) != len(other.points) {
		return false
	}
	for i, p := range c.points {
		if !p.X.Equal(other.points[i].X) || !p.Y.Equal(other.points[i].Y) {
			return false
		}
	}
	return true
}

// AmountAt evaluates the curve at source amount x.
//
// Below the first break-point the curve yields zero; above the last it
// clamps to the final y. An empty curve yields zero everywhere.
func (c Curve) AmountAt(x decimal.Decimal) decimal.Decimal {
	if len(c.points) == 0 {
		return decimal.Zero
	}
	first := c.points[0]
	last := c.points[len(c.points)-1]
	if x.Cmp(first.X) < 0 {
		return decimal.Zero
	}
	if x.Cmp(last.X) >= 0 {
		return last.Y
	}
	for i := 0; i < len(c.points)-1; i++ {
		a, b := c.points[i], c.points[i+1]
		if x.Cmp(a.X) >= 0 && x.Cmp(b.X) < 0 {
			// y = ya + (yb-ya) * (x-xa) / (xb-xa)
			dy := b.Y.Sub(a.Y)
			dx := b.X.Sub(a.X)
			return a.Y.Add(dy.Mul(x.Sub(a.X)).Div(dx))
		}
	}
	return last.Y
}

// AmountReverse finds the minimum source amount needed to obtain destination
// amount y. The second return value is false when y exceeds the curve's
// maximum, i.e. the amount is unachievable at any source amount.
func (c Curve) AmountReverse(y decimal.Decimal) (decimal.Decimal, bool) {
	if len(c.points) == 0 {
		return decimal.Zero, false
	}
	first := c.points[0]
	last := c.points[len(c.points)-1]
	if y.Cmp(last.Y) > 0 {
		return decimal.Zero, false
	}
	if y.Cmp(first.Y) <= 0 {
		return first.X, true
	}
	for i := 0; i < len(c.points)-1; i++ {
		a, b := c.points[i], c.points[i+1]
		if y.Cmp(a.Y) >= 0 && y.Cmp(b.Y) <= 0 {
			dy := b.Y.Sub(a.Y)
			if dy.IsZero() {
				return a.X, true
			}
			dx := b.X.Sub(a.X)
			return a.X.Add(dx.Mul(y.Sub(a.Y)).Div(dy)), true
		}
	}
	return last.X, true
}

// Combine merges two curves in parallel: at every source amount the result
// takes whichever curve yields more. Break-points are the union of both
// curves' break-points plus any crossing points between segments.
func (c Curve) Combine(other Curve) Curve {
	if c.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return c
	}
	xs := mergeXs(c.points, other.points)
	xs = appendCrossings(xs, c, other)

	points := make([]Point, 0, len(xs))
	for _, x := range xs {
		ya := c.AmountAt(x)
		yb := other.AmountAt(x)
		y := ya
		if yb.Cmp(ya) > 0 {
			y = yb
		}
		points = append(points, Point{X: x, Y: y})
	}
	return Curve{points: dedupe(points)}
}

// Join composes two curves in series: the result at x is
// other.AmountAt(c.AmountAt(x)). Break-points are emitted wherever either
// input breaks.
func (c Curve) Join(other Curve) Curve {
	if c.IsEmpty() || other.IsEmpty() {
		return Curve{}
	}
	xs := make([]decimal.Decimal, 0, len(c.points)+len(other.points))
	for _, p := range c.points {
		xs = append(xs, p.X)
	}
	// Pull the tail curve's break-points back through this curve. Where the
	// tail breaks at u, this curve breaks the composition at AmountReverse(u).
	for _, p := range other.points {
		if x, ok := c.AmountReverse(p.X); ok {
			xs = append(xs, x)
		}
	}
	xs = sortUnique(xs)

	points := make([]Point, 0, len(xs))
	for _, x := range xs {
		points = append(points, Point{X: x, Y: other.AmountAt(c.AmountAt(x))})
	}
	return Curve{points: dedupe(points)}
}

// ShiftX adds dx to every x coordinate. Negative shifts clamp the submerged
// coordinate to zero and drop the points before it.
func (c Curve) ShiftX(dx decimal.Decimal) Curve {
	return c.shift(dx, decimal.Zero)
}

// ShiftY adds dy to every y coordinate. Negative shifts clamp the submerged
// coordinate to zero and drop the points before it.
func (c Curve) ShiftY(dy decimal.Decimal) Curve {
	return c.shift(decimal.Zero, dy)
}

func (c Curve) shift(dx, dy decimal.Decimal) Curve {
	shifted := make([]Point, 0, len(c.points))
	for _, p := range c.points {
		shifted = append(shifted, Point{X: p.X.Add(dx), Y: p.Y.Add(dy)})
	}
	// Index of the last point pushed below either axis. That point is
	// clamped to the axis; everything before it is dropped.
	lastBelow := -1
	for i, p := range shifted {
		if p.X.IsNegative() || p.Y.IsNegative() {
			lastBelow = i
		}
	}
	if lastBelow >= 0 {
		clamped := shifted[lastBelow]
		if clamped.X.IsNegative() {
			clamped.X = decimal.Zero
		}
		if clamped.Y.IsNegative() {
			clamped.Y = decimal.Zero
		}
		shifted = append([]Point{clamped}, shifted[lastBelow+1:]...)
	}
	return Curve{points: dedupe(shifted)}
}

// Simplify reduces the curve to at most maxPoints break-points by repeatedly
// removing the interior point whose removal introduces the smallest vertical
// error. Endpoints are always preserved, so maxPoints must be at least 2.
func (c Curve) Simplify(maxPoints int) (Curve, error) {
	if maxPoints < 2 {
		return Curve{}, fmt.Errorf("maxPoints must be at least 2, got %d", maxPoints)
	}
	if len(c.points) <= maxPoints {
		return c, nil
	}
	points := make([]Point, len(c.points))
	copy(points, c.points)

	for len(points) > maxPoints {
		bestIdx := -1
		var bestErr decimal.Decimal
		for i := 1; i < len(points)-1; i++ {
			e := verticalError(points[i-1], points[i], points[i+1])
			if bestIdx < 0 || e.Cmp(bestErr) < 0 {
				bestIdx = i
				bestErr = e
			}
		}
		points = append(points[:bestIdx], points[bestIdx+1:]...)
	}
	return Curve{points: points}, nil
}

// verticalError is the vertical distance between mid and the chord from a to b.
func verticalError(a, mid, b Point) decimal.Decimal {
	dx := b.X.Sub(a.X)
	if dx.IsZero() {
		return decimal.Zero
	}
	interp := a.Y.Add(b.Y.Sub(a.Y).Mul(mid.X.Sub(a.X)).Div(dx))
	return interp.Sub(mid.Y).Abs()
}

// mergeXs returns the sorted union of the x coordinates of two point lists.
func mergeXs(a, b []Point) []decimal.Decimal {
	xs := make([]decimal.Decimal, 0, len(a)+len(b))
	for _, p := range a {
		xs = append(xs, p.X)
	}
	for _, p := range b {
		xs = append(xs, p.X)
	}
	return sortUnique(xs)
}

// appendCrossings adds the x coordinates where the two curves cross strictly
// inside an interval between adjacent known break-points. Both curves are
// linear on such intervals, so the crossing is solved exactly.
func appendCrossings(xs []decimal.Decimal, a, b Curve) []decimal.Decimal {
	crossings := make([]decimal.Decimal, 0)
	for i := 0; i < len(xs)-1; i++ {
		x1, x2 := xs[i], xs[i+1]
		d1 := a.AmountAt(x1).Sub(b.AmountAt(x1))
		d2 := a.AmountAt(x2).Sub(b.AmountAt(x2))
		if d1.Sign()*d2.Sign() < 0 {
			// d(x) is linear on [x1, x2]; root at x1 - d1*(x2-x1)/(d2-d1).
			x := x1.Sub(d1.Mul(x2.Sub(x1)).Div(d2.Sub(d1)))
			crossings = append(crossings, x)
		}
	}
	if len(crossings) == 0 {
		return xs
	}
	return sortUnique(append(xs, crossings...))
}

func sortUnique(xs []decimal.Decimal) []decimal.Decimal {
	if len(xs) == 0 {
		return xs
	}
	sorted := make([]decimal.Decimal, len(xs))
	copy(sorted, xs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	out := sorted[:1]
	for _, x := range sorted[1:] {
		if !x.Equal(out[len(out)-1]) {
			out = append(out, x)
		}
	}
	return out
}

// dedupe drops points that repeat the previous x coordinate, keeping the
// later one, and enforces non-decreasing y by clamping to the running max.
func dedupe(points []Point) []Point {
	if len(points) == 0 {
		return points
	}
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if len(out) > 0 && p.X.Equal(out[len(out)-1].X) {
			out[len(out)-1] = p
			continue
		}
		if len(out) > 0 && p.Y.Cmp(out[len(out)-1].Y) < 0 {
			p.Y = out[len(out)-1].Y
		}
		out = append(out, p)
	}
	return out
}
