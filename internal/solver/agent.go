package solver

// Agent tracks the planner's live belief as the environment is actually
// stepped through, distinct from the hypothetical beliefs explored inside
// the belief tree during search (spec.md §4.9, C9). Its surface is
// deliberately narrow: recommend an action, then fold in what actually
// happened.
type Agent struct {
	solver  *Solver
	current *BeliefNode
}

// NewAgent constructs an Agent rooted at solver's current belief tree root.
// Solver.Initialize must have already been called.
func NewAgent(s *Solver) *Agent {
	return &Agent{solver: s, current: s.tree.Root()}
}

// CurrentBelief returns the belief node the Agent currently tracks.
func (a *Agent) CurrentBelief() *BeliefNode { return a.current }

// RecommendAction returns the action with the highest mean Q-value at the
// current belief, falling back to a uniformly random legal action if the
// current belief has no visited action yet.
func (a *Agent) RecommendAction() (Action, error) {
	if action, ok := a.current.RecommendedAction(); ok {
		return action, nil
	}
	if action, ok := a.current.ActionMapping().RandomLegalAction(a.solver.rng); ok {
		return action, nil
	}
	return nil, &PlannerError{Kind: ErrInvariant, Msg: "no legal action at current belief"}
}

// UpdateBelief advances the live belief past (action, obs), creating the
// child belief node on first arrival and replenishing its particle
// reservoir from the Model when it falls short of the configured target
// (spec.md §4.9, §4.3, "particle reinvigoration"). The new current belief
// becomes the tree's root; nodes no longer reachable from it are not
// removed and stay listed in the tree's AllNodes.
func (a *Agent) UpdateBelief(action Action, obs Observation) (*BeliefNode, error) {
	child, _ := a.solver.tree.CreateOrGetChild(a.current, action, obs)

	target := int(a.solver.model.NParticles())
	if child.NParticles() < target {
		prior := make([]State, 0, a.current.NParticles())
		for _, e := range a.current.Particles() {
			prior = append(prior, e.State())
		}
		particles := a.solver.model.GenerateParticles(child, action, obs, prior)
		if len(particles) == 0 {
			particles = a.solver.model.GenerateParticlesUninformed(child, action, obs)
		}
		if len(particles) == 0 {
			return nil, &PlannerError{Kind: ErrParticleDepletion, Msg: "no particles generated for new belief"}
		}
		a.seedParticles(child, particles)
	}

	a.current = child
	a.solver.tree.SetRoot(child)
	return child, nil
}

func (a *Agent) seedParticles(node *BeliefNode, states []State) {
	for _, st := range states {
		info := a.solver.statePool.CreateOrGetInfo(st)
		seq := a.solver.histories.AddNew(node.Depth())
		entry := seq.addEntry(info, 1.0)
		entry.RegisterNode(node)
	}
	node.touchParticleClock(a.solver.tree.Tick())
}
