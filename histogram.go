package calcify

import (
	"math"
)

// histPad widens the top edge so that the maximum value falls inside the
// last bin.
const histPad = 0.01

// Hist buckets the values of c into numBins equal-width bins spanning
// [min, max+0.01). NaN values are skipped. Panics if numBins < 2.
func Hist(c *Collection[F64], numBins int) *Collection[Bin] {
	if numBins < 2 {
		panic("calcify: Hist needs at least 2 bins")
	}
	lo, hi, ok := floatRange(c.Len(), func(i int) float64 { return float64(c.Vec[i]) })
	if !ok {
		return &Collection[Bin]{}
	}
	edges := binEdges(lo, hi, numBins)
	out := &Collection[Bin]{Vec: make([]Bin, numBins)}
	for i := range out.Vec {
		out.Vec[i] = NewBin(edges[i], edges[i+1], 0)
	}
	for _, v := range c.Vec {
		x := float64(v)
		if math.IsNaN(x) {
			continue
		}
		out.At(binIndex(x, lo, edges)).Inc(1)
	}
	return out
}

// Hist2D buckets points into an nx by ny grid covering their bounding box,
// padded like Hist. Cells are ordered by x bin, then y bin. Points with a NaN
// coordinate are skipped. Panics if nx or ny is less than 2.
func Hist2D(c *Collection[Point], nx, ny int) *Collection[PointBin] {
	if nx < 2 || ny < 2 {
		panic("calcify: Hist2D needs at least 2 bins per axis")
	}
	n := c.Len()
	xlo, xhi, okx := floatRange(n, func(i int) float64 { return c.Vec[i].X })
	ylo, yhi, oky := floatRange(n, func(i int) float64 { return c.Vec[i].Y })
	if !okx || !oky {
		return &Collection[PointBin]{}
	}
	xe, ye := binEdges(xlo, xhi, nx), binEdges(ylo, yhi, ny)
	out := &Collection[PointBin]{Vec: make([]PointBin, 0, nx*ny)}
	for i := range nx {
		for j := range ny {
			out.Push(NewPointBin(xe[i], xe[i+1], ye[j], ye[j+1], 0))
		}
	}
	for _, p := range c.Vec {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		i, j := binIndex(p.X, xlo, xe), binIndex(p.Y, ylo, ye)
		out.At(i*ny + j).Inc(1)
	}
	return out
}

// Plot pairs ind and dep into points, stopping at the shorter of the two.
func Plot(ind, dep []float64) *Collection[Point] {
	n := min(len(ind), len(dep))
	out := &Collection[Point]{Vec: make([]Point, n)}
	for i := range n {
		out.Vec[i] = NewPoint(ind[i], dep[i])
	}
	return out
}

func floatRange(n int, at func(i int) float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for i := range n {
		x := at(i)
		if math.IsNaN(x) {
			continue
		}
		lo, hi, ok = min(lo, x), max(hi, x), true
	}
	return
}

func binEdges(lo, hi float64, n int) []float64 {
	width := (hi + histPad - lo) / float64(n)
	edges := make([]float64, n+1)
	for i := range edges {
		edges[i] = lo + width*float64(i)
	}
	return edges
}

// binIndex finds the bin of x. Edges are computed by repeated multiplication,
// so the direct estimate is corrected against them.
func binIndex(x, lo float64, edges []float64) int {
	n := len(edges) - 1
	width := edges[1] - edges[0]
	i := min(max(int((x-lo)/width), 0), n-1)
	for i > 0 && x < edges[i] {
		i--
	}
	for i < n-1 && x >= edges[i+1] {
		i++
	}
	return i
}
