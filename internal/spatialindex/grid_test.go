package spatialindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CxyCH/tapir/internal/solver"
)

type vec []float64

func (v vec) Equals(other solver.State) bool {
	o, ok := other.(vec)
	if !ok || len(o) != len(v) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}
func (v vec) Hash() uint64 {
	var h uint64
	for _, x := range v {
		h = h*31 + uint64(x)
	}
	return h
}
func (v vec) DistanceTo(other solver.State) float64 { return 0 }
func (v vec) Vector() []float64                     { return v }
func (v vec) String() string                        { return "" }

func infoFor(pool *solver.StatePool, x, y float64) *solver.StateInfo {
	return pool.CreateOrGetInfo(vec{x, y})
}

func TestGridRangeQueryFindsPointsInsideBox(t *testing.T) {
	g := NewGrid(1.0)
	pool := solver.NewStatePool(g)

	a := infoFor(pool, 0, 0)
	b := infoFor(pool, 5, 5)
	c := infoFor(pool, 0.5, 0.5)

	found := g.RangeQuery([]float64{-1, -1}, []float64{1, 1})

	assert.Contains(t, found, a)
	assert.Contains(t, found, c)
	assert.NotContains(t, found, b)
}

func TestGridRemoveDropsFromFutureQueries(t *testing.T) {
	g := NewGrid(1.0)
	pool := solver.NewStatePool(g)
	a := infoFor(pool, 0, 0)

	g.Remove(a)

	found := g.RangeQuery([]float64{-1, -1}, []float64{1, 1})
	assert.NotContains(t, found, a)
}

func TestNearestReturnsClosestByEuclideanDistance(t *testing.T) {
	g := NewGrid(1.0)
	pool := solver.NewStatePool(g)
	a := infoFor(pool, 0, 0)
	b := infoFor(pool, 10, 10)

	best, dist, ok := Nearest([]*solver.StateInfo{a, b}, []float64{1, 1})
	require.True(t, ok)
	assert.Same(t, a, best)
	assert.Greater(t, dist, 0.0)
}
