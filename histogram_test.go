package calcify

import (
	"math"
	"testing"
)

func TestHist(t *testing.T) {
	h := Hist(NewCollection[F64](0, 1, 2, 3, 4, F64(math.NaN())), 2)
	if h.Len() != 2 {
		t.Fatalf("Len = %d, wanted 2", h.Len())
	}
	if h.Vec[0].Count != 3 || h.Vec[1].Count != 2 {
		t.Errorf("counts = %d, %d, wanted 3, 2", h.Vec[0].Count, h.Vec[1].Count)
	}
	if h.Vec[0].InEdge != 0 || math.Abs(h.Vec[1].ExEdge-4.01) > 1e-12 {
		t.Errorf("range = [%v, %v), wanted [0, 4.01)", h.Vec[0].InEdge, h.Vec[1].ExEdge)
	}
	if h.Vec[0].ExEdge != h.Vec[1].InEdge {
		t.Errorf("bins are not contiguous: %v", h.Vec)
	}
}

func TestHist_everyValueLandsInItsBin(t *testing.T) {
	c := &Collection[F64]{}
	for i := range 1000 {
		c.Push(F64(math.Sin(float64(i)) * 7.3))
	}
	h := Hist(c, 17)
	var total uint64
	for _, b := range h.Vec {
		total += b.Count
	}
	if total != 1000 {
		t.Fatalf("total = %d, wanted 1000", total)
	}
	for _, v := range c.Vec {
		i := binIndex(float64(v), h.Vec[0].InEdge, histEdges(h))
		if !h.Vec[i].Contains(float64(v)) {
			t.Fatalf("%v assigned to %+v", v, h.Vec[i])
		}
	}
}

func histEdges(h *Collection[Bin]) []float64 {
	edges := make([]float64, 0, h.Len()+1)
	for _, b := range h.Vec {
		edges = append(edges, b.InEdge)
	}
	return append(edges, h.Vec[h.Len()-1].ExEdge)
}

func TestHist_degenerate(t *testing.T) {
	if h := Hist(&Collection[F64]{}, 3); h.Len() != 0 {
		t.Errorf("Hist(empty) = %v, wanted empty", h.Vec)
	}
	if h := Hist(NewCollection(F64(math.NaN())), 3); h.Len() != 0 {
		t.Errorf("Hist(NaN) = %v, wanted empty", h.Vec)
	}
	h := Hist(NewCollection[F64](5), 2)
	if h.Vec[0].Count != 1 || h.Vec[1].Count != 0 {
		t.Errorf("Hist(single) = %v, wanted the value in the first bin", h.Vec)
	}
	expectPanic(t, func() { Hist(NewCollection[F64](1), 1) })
}

func TestHist2D(t *testing.T) {
	h := Hist2D(NewCollection(Point{0, 0}, Point{1, 1}, Point{0, 1}), 2, 2)
	if h.Len() != 4 {
		t.Fatalf("Len = %d, wanted 4", h.Len())
	}
	var counts []uint64
	for _, b := range h.Vec {
		counts = append(counts, b.Count)
	}
	deepEq(t, counts, []uint64{1, 1, 0, 1})
	if !h.Vec[1].Contains(Point{0, 1}) {
		t.Errorf("cell 1 = %+v, wanted it to cover (0, 1)", h.Vec[1])
	}
	expectPanic(t, func() { Hist2D(NewCollection(Point{}), 1, 2) })
}

func TestPlot(t *testing.T) {
	p := Plot([]float64{1, 2, 3}, []float64{4, 5})
	deepEq(t, p.Vec, []Point{{1, 4}, {2, 5}})
	if p := Plot(nil, []float64{1}); p.Len() != 0 {
		t.Errorf("Plot(nil) = %v, wanted empty", p.Vec)
	}
}
