package solver

import "math"

// ActionMapping is the per-belief-node bookkeeping of which actions have
// been tried, their Q-values and visit counts, and the children reached per
// observation (spec.md §4.2, C2).
type ActionMapping interface {
	HasUntriedAction() bool
	NextActionToTry() Action
	SearchAction(explorationCoefficient float64) Action
	RecommendedAction() (Action, bool)
	BestMeanQValue() float64
	UpdateQValue(action Action, deltaTotalQ float64, deltaVisits int)
	ChildMapping(action Action) (ObservationMapping, bool)
	EnsureChildMapping(action Action) ObservationMapping
	TotalVisitCount() int64
	NumChildren() int
	RandomLegalAction(rng *RandomGenerator) (Action, bool)
}

// actionEntry is one action's statistics within an EnumeratedActionMapping.
type actionEntry struct {
	action     EnumeratedAction
	visits     int64
	totalQ     float64
	legal      bool
	tried      bool
	obsMapping ObservationMapping
}

func (e *actionEntry) meanQ() float64 {
	if e.visits == 0 {
		return 0
	}
	return e.totalQ / float64(e.visits)
}

// EnumeratedActionMapping implements ActionMapping for a finite action
// space enumerated in canonical order at construction (spec.md §4.2,
// "Enumerated actions").
type EnumeratedActionMapping struct {
	node        *BeliefNode
	obsPool     ObservationPool
	entries     []*actionEntry
	byCode      map[int]*actionEntry
	totalVisits int64
}

// NewEnumeratedActionMapping constructs a mapping over actions, which must
// already be in canonical order. Every action starts legal.
func NewEnumeratedActionMapping(node *BeliefNode, actions []EnumeratedAction, obsPool ObservationPool) *EnumeratedActionMapping {
	m := &EnumeratedActionMapping{
		node:    node,
		obsPool: obsPool,
		entries: make([]*actionEntry, 0, len(actions)),
		byCode:  make(map[int]*actionEntry, len(actions)),
	}
	for _, a := range actions {
		e := &actionEntry{action: a, legal: true}
		m.entries = append(m.entries, e)
		m.byCode[a.Code()] = e
	}
	return m
}

// SetLegal flips the legality bit of the action with the given code.
func (m *EnumeratedActionMapping) SetLegal(code int, legal bool) {
	if e, ok := m.byCode[code]; ok {
		e.legal = legal
	}
}

func (m *EnumeratedActionMapping) HasUntriedAction() bool {
	for _, e := range m.entries {
		if e.legal && !e.tried {
			return true
		}
	}
	return false
}

func (m *EnumeratedActionMapping) NextActionToTry() Action {
	for _, e := range m.entries {
		if e.legal && !e.tried {
			e.tried = true
			return e.action
		}
	}
	return nil
}

// SearchAction implements UCB action selection: maximize
// meanQ + c*sqrt(ln(N)/n_a) over legal actions, ties broken by action order
// (spec.md §4.2).
func (m *EnumeratedActionMapping) SearchAction(c float64) Action {
	logN := math.Log(float64(m.totalVisits))
	var best *actionEntry
	var bestScore float64
	for _, e := range m.entries {
		if !e.legal || e.visits == 0 {
			continue
		}
		score := e.meanQ() + c*math.Sqrt(logN/float64(e.visits))
		if best == nil || score > bestScore {
			best = e
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	return best.action
}

// RecommendedAction returns the legal action maximizing meanQ, ties broken
// by higher visit count, then action order.
func (m *EnumeratedActionMapping) RecommendedAction() (Action, bool) {
	var best *actionEntry
	for _, e := range m.entries {
		if !e.legal || e.visits == 0 {
			continue
		}
		if best == nil {
			best = e
			continue
		}
		if e.meanQ() > best.meanQ() {
			best = e
		} else if e.meanQ() == best.meanQ() && e.visits > best.visits {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.action, true
}

func (m *EnumeratedActionMapping) BestMeanQValue() float64 {
	best := 0.0
	found := false
	for _, e := range m.entries {
		if e.visits == 0 {
			continue
		}
		if !found || e.meanQ() > best {
			best = e.meanQ()
			found = true
		}
	}
	return best
}

func (m *EnumeratedActionMapping) UpdateQValue(action Action, deltaTotalQ float64, deltaVisits int) {
	e := m.entryFor(action)
	if e == nil {
		return
	}
	e.totalQ += deltaTotalQ
	e.visits += int64(deltaVisits)
	m.totalVisits += int64(deltaVisits)
}

func (m *EnumeratedActionMapping) ChildMapping(action Action) (ObservationMapping, bool) {
	e := m.entryFor(action)
	if e == nil || e.obsMapping == nil {
		return nil, false
	}
	return e.obsMapping, true
}

func (m *EnumeratedActionMapping) EnsureChildMapping(action Action) ObservationMapping {
	e := m.entryFor(action)
	if e == nil {
		return nil
	}
	if e.obsMapping == nil {
		e.obsMapping = m.obsPool.CreateObservationMapping(m.node, action)
	}
	return e.obsMapping
}

func (m *EnumeratedActionMapping) TotalVisitCount() int64 { return m.totalVisits }

func (m *EnumeratedActionMapping) NumChildren() int {
	n := 0
	for _, e := range m.entries {
		if e.obsMapping != nil {
			n += len(e.obsMapping.Children())
		}
	}
	return n
}

// RandomLegalAction picks a uniformly random legal action, used by the
// RAND_HEURISTIC rollout mode (spec.md §4.6).
func (m *EnumeratedActionMapping) RandomLegalAction(rng *RandomGenerator) (Action, bool) {
	legal := make([]Action, 0, len(m.entries))
	for _, e := range m.entries {
		if e.legal {
			legal = append(legal, e.action)
		}
	}
	if len(legal) == 0 {
		return nil, false
	}
	return legal[rng.Intn(len(legal))], true
}

func (m *EnumeratedActionMapping) entryFor(action Action) *actionEntry {
	ea, ok := action.(EnumeratedAction)
	if !ok {
		return nil
	}
	return m.byCode[ea.Code()]
}

// ActionStat is a read-only snapshot of one action's statistics, used by
// property tests and diagnostics.
type ActionStat struct {
	Action Action
	Visits int64
	TotalQ float64
	MeanQ  float64
	Legal  bool
}

// Stats returns a snapshot of every action's statistics in canonical order.
func (m *EnumeratedActionMapping) Stats() []ActionStat {
	out := make([]ActionStat, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, ActionStat{
			Action: e.action,
			Visits: e.visits,
			TotalQ: e.totalQ,
			MeanQ:  e.meanQ(),
			Legal:  e.legal,
		})
	}
	return out
}

// restoreStat overwrites one action's statistics from a checkpoint
// snapshot, used only by ImportSnapshot on a freshly created mapping whose
// totalVisits is still zero.
func (m *EnumeratedActionMapping) restoreStat(action Action, visits int64, totalQ float64, legal bool) {
	e := m.entryFor(action)
	if e == nil {
		return
	}
	e.visits = visits
	e.totalQ = totalQ
	e.legal = legal
	e.tried = true
	m.totalVisits += visits
}

// EnumeratedActionPool is the plain ActionPool for models whose legal
// action set never varies by belief node.
type EnumeratedActionPool struct {
	actionsFunc func(node *BeliefNode) []EnumeratedAction
	obsPool     ObservationPool
}

// NewEnumeratedActionPool constructs an ActionPool that enumerates the same
// canonically-ordered action set (as produced by actionsFunc) for every
// belief node.
func NewEnumeratedActionPool(actionsFunc func(*BeliefNode) []EnumeratedAction) *EnumeratedActionPool {
	return &EnumeratedActionPool{actionsFunc: actionsFunc}
}

func (p *EnumeratedActionPool) SetObservationPool(op ObservationPool) { p.obsPool = op }

func (p *EnumeratedActionPool) CreateActionMapping(node *BeliefNode) ActionMapping {
	return NewEnumeratedActionMapping(node, p.actionsFunc(node), p.obsPool)
}

// LegalActionsPool groups the EnumeratedActionMappings created for a common
// Model-supplied equivalence key (e.g. a grid position), so that a legality
// change at that key can be broadcast to every mapping indexed under it
// (spec.md §4.2, "Discretized actions with legality pool").
type LegalActionsPool struct {
	keyFunc     func(node *BeliefNode) any
	actionsFunc func(node *BeliefNode) []EnumeratedAction
	obsPool     ObservationPool
	byKey       map[any][]*EnumeratedActionMapping
	defaults    map[any]map[int]bool
}

// NewLegalActionsPool constructs a pool keyed by keyFunc, enumerating each
// node's action set via actionsFunc.
func NewLegalActionsPool(keyFunc func(*BeliefNode) any, actionsFunc func(*BeliefNode) []EnumeratedAction) *LegalActionsPool {
	return &LegalActionsPool{
		keyFunc:     keyFunc,
		actionsFunc: actionsFunc,
		byKey:       make(map[any][]*EnumeratedActionMapping),
		defaults:    make(map[any]map[int]bool),
	}
}

func (p *LegalActionsPool) SetObservationPool(op ObservationPool) { p.obsPool = op }

func (p *LegalActionsPool) CreateActionMapping(node *BeliefNode) ActionMapping {
	key := p.keyFunc(node)
	m := NewEnumeratedActionMapping(node, p.actionsFunc(node), p.obsPool)
	if overrides, ok := p.defaults[key]; ok {
		for code, legal := range overrides {
			m.SetLegal(code, legal)
		}
	}
	p.byKey[key] = append(p.byKey[key], m)
	return m
}

// SetLegal flips the legal bit for action on every mapping indexed under
// key whose owning node is in affected; for the rest, the change only takes
// effect on mappings created after this call (spec.md §4.2).
func (p *LegalActionsPool) SetLegal(key any, action EnumeratedAction, legal bool, affected map[*BeliefNode]bool) {
	if p.defaults[key] == nil {
		p.defaults[key] = make(map[int]bool)
	}
	p.defaults[key][action.Code()] = legal
	for _, m := range p.byKey[key] {
		if affected[m.node] {
			m.SetLegal(action.Code(), legal)
		}
	}
}
