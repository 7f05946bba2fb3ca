package solver

import "github.com/CxyCH/tapir/internal/diag"

// searchParams snapshots the Model's tunables once per trial, avoiding
// repeated interface dispatch inside the descent loop (spec.md §4.5, C5).
type searchParams struct {
	discount         float64
	maxDepth         int64
	ucbC             float64
	heuristicC       float64
	maxNnComparisons int64
	maxNnDistance    float64
}

func (s *Solver) currentParams() searchParams {
	return searchParams{
		discount:         s.model.DiscountFactor(),
		maxDepth:         s.model.MaxDepth(),
		ucbC:             s.model.UcbExploreCoefficient(),
		heuristicC:       s.model.HeuristicExploreCoefficient(),
		maxNnComparisons: s.model.MaxNnComparisons(),
		maxNnDistance:    s.model.MaxNnDistance(),
	}
}

// Improve runs up to Model.MaxTrials simulations rooted at the current
// belief, refining the action statistics of every node touched along the
// way (spec.md §4.5, C5). It is the planner's "think" operation, called
// repeatedly between environment steps.
func (s *Solver) Improve() error {
	trials := s.model.MaxTrials()
	for i := int64(0); i < trials; i++ {
		if err := s.singleSearch(); err != nil {
			return err
		}
	}
	return nil
}

// singleSearch runs one simulation: sample a particle from the root belief,
// descend the tree picking untried actions first and UCB-selected actions
// thereafter, extend past the tree's frontier with a rollout when the
// descent does not end at a terminal state, then backs up the resulting
// trajectory (spec.md §4.5).
func (s *Solver) singleSearch() error {
	p := s.currentParams()
	root := s.tree.Root()
	if root.NParticles() == 0 {
		return &PlannerError{Kind: ErrParticleDepletion, Msg: "root belief has no particles"}
	}
	initialRootQ := root.BestMeanQValue()

	seq := s.histories.AddNew(0)
	startState := root.SampleAParticle(s.rng)
	info := s.statePool.CreateOrGetInfo(startState)
	entry := seq.addEntry(info, 1.0)
	entry.RegisterNode(root)

	node := root
	discount := 1.0
	depth := int64(0)
	terminal := false

	var fromNode *BeliefNode
	var takenAction Action
	var takenObs Observation

	for depth < p.maxDepth {
		var action Action
		if node.HasUntriedAction() {
			action = node.NextActionToTry()
		} else {
			action = node.SearchAction(p.ucbC)
		}
		if action == nil {
			break
		}

		step := s.model.GenerateStep(entry.State(), action)
		entry.SetActionTaken(action)
		entry.SetObservationReceived(step.Observation)
		entry.SetTransitionParameters(step.TransitionParameters)
		entry.SetReward(step.Reward)

		nextInfo := s.statePool.CreateOrGetInfo(step.NextState)
		discount *= p.discount
		nextEntry := seq.addEntry(nextInfo, discount)

		child, created := s.tree.CreateOrGetChild(node, action, step.Observation)
		nextEntry.RegisterNode(child)
		child.touchParticleClock(s.tree.Tick())

		fromNode = node
		takenAction = action
		takenObs = step.Observation

		node = child
		entry = nextEntry
		depth++

		if step.IsTerminal {
			terminal = true
			break
		}
		if created {
			break
		}
	}

	var rolloutValue float64
	rolloutUsed := false
	var usedMode RolloutMode
	var elapsed float64
	if !terminal {
		rolloutValue, usedMode, elapsed = s.rolloutFrom(fromNode, takenAction, takenObs, entry.State(), p, p.maxDepth-depth)
		rolloutUsed = true
	}

	s.backup(seq, rolloutValue)

	if rolloutUsed {
		delta := root.BestMeanQValue() - initialRootQ
		s.rollout.Notify(usedMode, delta, p.heuristicC, s.model.MaxVal(), elapsed)
	}
	return nil
}

// backup propagates rolloutValue up through seq's entries, setting each
// entry's cached return. For an entry not yet backed up, the action taken
// from it gains one visit and that return as total Q; for an entry that
// still holds an earlier backup, only the difference between the new and
// old return is added, with no extra visit (spec.md §4.5, "Backup").
func (s *Solver) backup(seq *HistorySequence, rolloutValue float64) {
	entries := seq.Entries()
	k := len(entries) - 1
	if k < 0 {
		return
	}
	total := rolloutValue
	entries[k].setBackupResult(total)
	discountFactor := s.model.DiscountFactor()
	for i := k - 1; i >= 0; i-- {
		total = entries[i].Reward() + discountFactor*total
		deltaQ, deltaVisits := total, 1
		if entries[i].HasBeenBackedUp() {
			deltaQ, deltaVisits = total-entries[i].TotalDiscountedReward(), 0
		}
		entries[i].setBackupResult(total)
		if action := entries[i].ActionTaken(); action != nil {
			if node := entries[i].OwningBeliefNode(); node != nil {
				node.ActionMapping().UpdateQValue(action, deltaQ, deltaVisits)
			}
		}
	}
}

// undoBackup reverses the contribution of every entry from fromIndex to the
// end of seq, used by the Change Engine before a suffix is regenerated
// (spec.md §4.8, step 2). It returns an ErrInvariant PlannerError if an
// entry in range was never backed up.
func (s *Solver) undoBackup(seq *HistorySequence, fromIndex int64) error {
	entries := seq.Entries()
	for i := int64(len(entries)) - 1; i >= fromIndex; i-- {
		e := entries[i]
		if !e.HasBeenBackedUp() {
			return &PlannerError{Kind: ErrInvariant, Msg: "undoBackup: entry was never backed up"}
		}
		if action := e.ActionTaken(); action != nil {
			if node := e.OwningBeliefNode(); node != nil {
				node.ActionMapping().UpdateQValue(action, -e.TotalDiscountedReward(), -1)
			}
		}
		e.resetBackup()
	}
	return nil
}

// rolloutFrom extends a trajectory past the tree's frontier, choosing a
// rollout mode via the Rollout Coordinator. fromNode is the belief node that
// held the untried action, action/obs are the (action, observation) pair
// that action actually produced, and nextState is the resulting state
// (spec.md §4.6, C6). It reports the rollout's value estimate, which mode
// was actually used (after any downgrade), and how many belief-tree clock
// ticks the rollout took.
func (s *Solver) rolloutFrom(fromNode *BeliefNode, action Action, obs Observation, nextState State, p searchParams, depthBudget int64) (float64, RolloutMode, float64) {
	mode := s.rollout.ChooseMode()
	startTick := s.tree.Tick()

	value, usedMode := s.runRollout(fromNode, action, obs, nextState, p, depthBudget, mode)

	elapsed := s.tree.Tick() - startTick
	return value, usedMode, elapsed
}

func (s *Solver) runRollout(fromNode *BeliefNode, action Action, obs Observation, nextState State, p searchParams, depthBudget int64, mode RolloutMode) (float64, RolloutMode) {
	if mode == ModePolicyTransplant {
		if v, ok := s.policyTransplantRollout(fromNode, action, obs, nextState, p, depthBudget); ok {
			return v, ModePolicyTransplant
		}
		// No usable neighbor, child, or particle: downgrade rather than
		// fail the trial (spec.md §7, ErrRolloutUnreachable).
		diag.Logf("rollout: policy-transplant unreachable at depth budget %d, downgrading to rand-heuristic", depthBudget)
	}
	return s.randHeuristicRollout(nextState, p), ModeRandHeuristic
}

// randHeuristicRollout takes no further model step: the untried action has
// already been applied by the caller, so the tail value is just the
// Model's heuristic estimate of the resulting state (spec.md §4.6,
// "RAND_HEURISTIC").
func (s *Solver) randHeuristicRollout(state State, p searchParams) float64 {
	return s.model.GetHeuristicValue(state)
}

// policyTransplantRollout looks up the nearest existing belief node to
// fromNode (the node that held the untried action, before it was taken),
// descends into that neighbor's child for the same (action, obs) pair the
// untried action actually produced, and from there greedily follows each
// node's RecommendedAction, stepping the Model forward and accumulating
// discounted reward, until termination or a dead end (spec.md §4.6,
// "POLICY_TRANSPLANT"). It reports false, signaling the caller to downgrade
// to RAND_HEURISTIC, when fromNode is nil, when no neighbor can be found, or
// when the neighbor's child for that pair is missing or has no particles or
// children; a dead end reached deeper in the borrowed subtree contributes
// zero rather than downgrading.
func (s *Solver) policyTransplantRollout(fromNode *BeliefNode, action Action, obs Observation, nextState State, p searchParams, depthBudget int64) (float64, bool) {
	if fromNode == nil {
		return 0, false
	}
	neighbor, ok := findNearestNeighbor(s.tree, fromNode, p.maxNnComparisons, p.maxNnDistance)
	if !ok {
		return 0, false
	}
	child := childOf(neighbor, action, obs)
	if child == nil || child.NParticles() == 0 || child.NActChildren() == 0 {
		return 0, false
	}
	return s.rolloutPolicyHelper(child, nextState, p, depthBudget), true
}

// childOf returns the belief-tree child neighbor already has for (action,
// obs), without creating one, or nil if none exists yet.
func childOf(neighbor *BeliefNode, action Action, obs Observation) *BeliefNode {
	om, ok := neighbor.ActionMapping().ChildMapping(action)
	if !ok {
		return nil
	}
	child, ok := om.Child(obs)
	if !ok {
		return nil
	}
	return child
}

// rolloutTail estimates the discounted value-to-go from state, choosing a
// rollout mode via the Rollout Coordinator but starting directly from node
// with no preceding untried-action hop. Used by the Change Engine's
// Reintegrate step, which needs a fresh tail estimate for a revised
// sequence that no longer ends in a terminal state (spec.md §4.8).
func (s *Solver) rolloutTail(node *BeliefNode, state State, p searchParams, depthBudget int64) float64 {
	mode := s.rollout.ChooseMode()
	if mode == ModePolicyTransplant {
		if neighbor, ok := findNearestNeighbor(s.tree, node, p.maxNnComparisons, p.maxNnDistance); ok {
			return s.rolloutPolicyHelper(neighbor, state, p, depthBudget)
		}
		diag.Logf("rollout: policy-transplant unreachable during reintegration, downgrading to rand-heuristic")
	}
	return s.randHeuristicRollout(state, p)
}

// rolloutPolicyHelper recurses through the borrowed neighbor subtree,
// stepping the Model with each node's RecommendedAction and following the
// matching child, until termination or a node with no particles or
// children is reached, which contributes zero (spec.md §4.6).
func (s *Solver) rolloutPolicyHelper(nnNode *BeliefNode, state State, p searchParams, depthBudget int64) float64 {
	if nnNode == nil || nnNode.NParticles() == 0 || nnNode.NActChildren() == 0 || depthBudget <= 0 {
		return 0
	}
	action, ok := nnNode.RecommendedAction()
	if !ok {
		return 0
	}

	step := s.model.GenerateStep(state, action)
	s.tree.Tick()
	total := step.Reward
	if !step.IsTerminal {
		total += p.discount * s.rolloutPolicyHelper(childOf(nnNode, action, step.Observation), step.NextState, p, depthBudget-1)
	}
	return total
}
