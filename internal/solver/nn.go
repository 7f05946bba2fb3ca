package solver

// findNearestNeighbor locates the belief node nearest to node by
// L1-independent particle-histogram distance, among every other node in
// tree with at least one particle, subject to a comparison budget and a
// maximum acceptable distance (spec.md §4.7, C7). It returns false if no
// node within maxDistance was found inside the budget.
//
// The result is cached on node and only recomputed when a particle has
// been added to node since the cached comparison was made, avoiding
// redundant O(n) scans across repeated lookups from the same node within
// one trial (spec.md §4.7, "freshness caching").
func findNearestNeighbor(tree *BeliefTree, node *BeliefNode, maxComparisons int64, maxDistance float64) (*BeliefNode, bool) {
	if cached, at := node.NNCache(); cached != nil && at >= node.TLastAddedParticle() {
		return cached, true
	}
	if maxComparisons <= 0 {
		return nil, false
	}

	var best *BeliefNode
	bestDist := maxDistance
	var compared int64
	for _, candidate := range tree.AllNodes() {
		if candidate == node || candidate.NParticles() == 0 {
			continue
		}
		if compared >= maxComparisons {
			break
		}
		compared++
		d := distL1Independent(node, candidate)
		if d <= bestDist {
			best = candidate
			bestDist = d
		}
	}

	now := tree.Tick()
	node.SetNNCache(best, now)
	return best, best != nil
}
