// Package spatialindex provides the default StateIndex implementation for
// solver.Model.CreateStateIndex: a bucket grid over a State's fixed-arity
// numeric vector projection.
package spatialindex

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/CxyCH/tapir/internal/solver"
)

// Grid buckets StateInfos by the cell their Vector() falls into, so a range
// query only has to visit the cells overlapping the query box instead of
// every indexed state.
type Grid struct {
	cellSize float64
	buckets  map[string][]*solver.StateInfo
	cellOf   map[*solver.StateInfo]string
}

// NewGrid constructs an empty grid with the given cell width. A non-positive
// cellSize is replaced with 1.0.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = 1.0
	}
	return &Grid{
		cellSize: cellSize,
		buckets:  make(map[string][]*solver.StateInfo),
		cellOf:   make(map[*solver.StateInfo]string),
	}
}

func (g *Grid) cellIndex(x float64) int64 {
	return int64(math.Floor(x / g.cellSize))
}

func cellKey(cells []int64) string {
	var sb strings.Builder
	for _, c := range cells {
		sb.WriteString(strconv.FormatInt(c, 10))
		sb.WriteByte('|')
	}
	return sb.String()
}

func (g *Grid) keyFor(vector []float64) string {
	cells := make([]int64, len(vector))
	for i, x := range vector {
		cells[i] = g.cellIndex(x)
	}
	return cellKey(cells)
}

// Insert adds info to the grid, bucketed by its state vector's cell.
func (g *Grid) Insert(info *solver.StateInfo) {
	key := g.keyFor(info.State().Vector())
	g.buckets[key] = append(g.buckets[key], info)
	g.cellOf[info] = key
}

// Remove drops info from the grid.
func (g *Grid) Remove(info *solver.StateInfo) {
	key, ok := g.cellOf[info]
	if !ok {
		return
	}
	bucket := g.buckets[key]
	for i, candidate := range bucket {
		if candidate == info {
			g.buckets[key] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(g.buckets[key]) == 0 {
		delete(g.buckets, key)
	}
	delete(g.cellOf, info)
}

// RangeQuery returns every indexed StateInfo whose vector falls within the
// axis-aligned box [min, max], visiting only the grid cells that overlap
// that box.
func (g *Grid) RangeQuery(min, max []float64) []*solver.StateInfo {
	if len(min) != len(max) || len(min) == 0 {
		return nil
	}
	lowCell := make([]int64, len(min))
	highCell := make([]int64, len(min))
	for i := range min {
		lowCell[i] = g.cellIndex(min[i])
		highCell[i] = g.cellIndex(max[i])
	}

	seen := make(map[*solver.StateInfo]struct{})
	var out []*solver.StateInfo

	var walk func(dim int, cur []int64)
	walk = func(dim int, cur []int64) {
		if dim == len(min) {
			for _, info := range g.buckets[cellKey(cur)] {
				if _, ok := seen[info]; ok {
					continue
				}
				if withinBox(info.State().Vector(), min, max) {
					seen[info] = struct{}{}
					out = append(out, info)
				}
			}
			return
		}
		next := make([]int64, len(cur)+1)
		copy(next, cur)
		for c := lowCell[dim]; c <= highCell[dim]; c++ {
			next[dim] = c
			walk(dim+1, next)
		}
	}
	walk(0, make([]int64, 0, len(min)))
	return out
}

func withinBox(v, min, max []float64) bool {
	for i := range v {
		if v[i] < min[i] || v[i] > max[i] {
			return false
		}
	}
	return true
}

// Nearest returns the indexed StateInfo whose vector is closest to query
// under the Euclidean norm, along with that distance. It returns false if
// infos is empty.
func Nearest(infos []*solver.StateInfo, query []float64) (*solver.StateInfo, float64, bool) {
	var best *solver.StateInfo
	bestDist := math.Inf(1)
	for _, info := range infos {
		d := floats.Distance(info.State().Vector(), query, 2)
		if best == nil || d < bestDist {
			best = info
			bestDist = d
		}
	}
	return best, bestDist, best != nil
}
