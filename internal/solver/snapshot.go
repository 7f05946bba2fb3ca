package solver

import (
	"math/rand"
	"sort"
)

// StateSnapshot is one StatePool entry, byte-encoded via a Model Codec.
type StateSnapshot struct {
	ID    int64
	State []byte
	Flags ChangeFlag
}

// EntrySnapshot is one HistoryEntry, byte-encoded via a Model Codec.
type EntrySnapshot struct {
	EntryID               int64
	StateID               int64
	Discount              float64
	Reward                float64
	Action                []byte // nil if none recorded yet
	Observation           []byte // nil if none recorded yet
	TotalDiscountedReward float64
	HasBeenBackedUp       bool
	// BeliefNodeID is the id this entry's particle was registered to at
	// snapshot time, or -1 if it was not registered to any node.
	BeliefNodeID int64
}

// SequenceSnapshot is one HistorySequence.
type SequenceSnapshot struct {
	ID                  int64
	StartDepth          int64
	IsTerminal          bool
	InvalidLinksStartID int64
	Entries             []EntrySnapshot
}

// NodeStatSnapshot is one action's statistics at a belief node, from
// EnumeratedActionMapping.Stats. Nodes backed by a Model-specific
// ActionMapping that does not expose Stats are snapshotted without
// NodeStatSnapshot entries.
type NodeStatSnapshot struct {
	Action []byte
	Visits int64
	TotalQ float64
	Legal  bool
}

// NodeSnapshot is one BeliefNode's identity and statistics. The tree edges
// themselves are not stored directly; ImportSnapshot rebuilds them by
// replaying the recorded HistorySequences through Model.GenerateStep's
// recorded (action, observation) pairs, which is exactly how the original
// search built them.
type NodeSnapshot struct {
	ID    int64
	Depth int64
	Stats []NodeStatSnapshot
}

// Snapshot is everything spec.md §6 names as persisted planner state:
// StatePool contents, Histories contents, the BeliefTree (identified by
// node statistics, with edges re-derived from history replay), and the RNG
// seed. internal/checkpoint stores one of these per checkpoint row; the
// core never imports internal/checkpoint or any storage package.
type Snapshot struct {
	Seed       int64
	States     []StateSnapshot
	Sequences  []SequenceSnapshot
	Nodes      []NodeSnapshot
	RootNodeID int64
	Clock      float64
}

// ExportSnapshot encodes the solver's entire persisted state using codec.
// It returns ErrConfiguration if codec is nil.
func (s *Solver) ExportSnapshot(codec Codec) (*Snapshot, error) {
	if codec == nil {
		return nil, newPlannerError(ErrConfiguration, "ExportSnapshot requires a non-nil Codec", nil)
	}

	snap := &Snapshot{Seed: s.seed, RootNodeID: -1, Clock: s.tree.clock}
	if s.tree.root != nil {
		snap.RootNodeID = s.tree.root.id
	}

	for _, info := range s.statePool.byIndex {
		encoded, err := codec.EncodeState(info.state)
		if err != nil {
			return nil, newPlannerError(ErrConfiguration, "encoding state", err)
		}
		snap.States = append(snap.States, StateSnapshot{ID: info.id, State: encoded, Flags: info.flags})
	}
	sort.Slice(snap.States, func(i, j int) bool { return snap.States[i].ID < snap.States[j].ID })

	seqs := s.histories.All()
	sort.Slice(seqs, func(i, j int) bool { return seqs[i].id < seqs[j].id })
	for _, seq := range seqs {
		ss := SequenceSnapshot{
			ID:                  seq.id,
			StartDepth:          seq.startDepth,
			IsTerminal:          seq.isTerminal,
			InvalidLinksStartID: seq.invalidLinksStartID,
		}
		for _, e := range seq.entries {
			es := EntrySnapshot{
				EntryID:               e.entryID,
				StateID:               e.stateInfo.id,
				Discount:              e.discount,
				Reward:                e.reward,
				TotalDiscountedReward: e.totalDiscountedReward,
				HasBeenBackedUp:       e.hasBeenBackedUp,
				BeliefNodeID:          -1,
			}
			if e.owningBeliefNode != nil {
				es.BeliefNodeID = e.owningBeliefNode.id
			}
			if e.action != nil {
				encoded, err := codec.EncodeAction(e.action)
				if err != nil {
					return nil, newPlannerError(ErrConfiguration, "encoding action", err)
				}
				es.Action = encoded
			}
			if e.observation != nil {
				encoded, err := codec.EncodeObservation(e.observation)
				if err != nil {
					return nil, newPlannerError(ErrConfiguration, "encoding observation", err)
				}
				es.Observation = encoded
			}
			ss.Entries = append(ss.Entries, es)
		}
		snap.Sequences = append(snap.Sequences, ss)
	}

	for _, node := range s.tree.allNodes {
		ns := NodeSnapshot{ID: node.id, Depth: node.depth}
		if eam, ok := node.actionMapping.(*EnumeratedActionMapping); ok {
			for _, stat := range eam.Stats() {
				encoded, err := codec.EncodeAction(stat.Action)
				if err != nil {
					return nil, newPlannerError(ErrConfiguration, "encoding action stat", err)
				}
				ns.Stats = append(ns.Stats, NodeStatSnapshot{
					Action: encoded,
					Visits: stat.Visits,
					TotalQ: stat.TotalQ,
					Legal:  stat.Legal,
				})
			}
		}
		snap.Nodes = append(snap.Nodes, ns)
	}

	return snap, nil
}

// ImportSnapshot replaces the solver's StatePool, Histories, and BeliefTree
// with the state recorded in snap, decoded via codec. The RNG is reseeded
// from snap.Seed, matching "save -> kill -> restore -> continue" (spec.md
// §8 scenario S6). ImportSnapshot must be called on a freshly constructed
// Solver, before Initialize.
func (s *Solver) ImportSnapshot(snap *Snapshot, codec Codec) error {
	if codec == nil {
		return newPlannerError(ErrConfiguration, "ImportSnapshot requires a non-nil Codec", nil)
	}

	s.seed = snap.Seed
	s.rng = rand.New(rand.NewSource(snap.Seed))

	s.statePool = NewStatePool(s.model.CreateStateIndex())
	infoByID := make(map[int64]*StateInfo, len(snap.States))
	for _, ss := range snap.States {
		state, err := codec.DecodeState(ss.State)
		if err != nil {
			return newPlannerError(ErrConfiguration, "decoding state", err)
		}
		info := s.statePool.CreateOrGetInfo(state)
		info.flags = ss.Flags
		infoByID[ss.ID] = info
	}

	s.actionPool = s.model.CreateActionPool()
	s.obsPool = s.model.CreateObservationPool()
	s.actionPool.SetObservationPool(s.obsPool)
	s.tree = NewBeliefTree(s.actionPool, s.obsPool)
	s.tree.clock = snap.Clock
	root := s.tree.CreateRoot()

	nodeByOriginalID := map[int64]*BeliefNode{snap.RootNodeID: root}

	s.histories = NewHistories()
	for _, ss := range snap.Sequences {
		seq := s.histories.AddNew(ss.StartDepth)
		seq.isTerminal = ss.IsTerminal
		seq.invalidLinksStartID = ss.InvalidLinksStartID

		var cur *BeliefNode
		for i, es := range ss.Entries {
			info, ok := infoByID[es.StateID]
			if !ok {
				return newPlannerError(ErrInvariant, "snapshot entry references unknown state id", nil)
			}
			entry := seq.addEntry(info, es.Discount)
			entry.reward = es.Reward
			entry.totalDiscountedReward = es.TotalDiscountedReward
			entry.hasBeenBackedUp = es.HasBeenBackedUp

			if es.Action != nil {
				action, err := codec.DecodeAction(es.Action)
				if err != nil {
					return newPlannerError(ErrConfiguration, "decoding action", err)
				}
				entry.action = action
			}
			if es.Observation != nil {
				obs, err := codec.DecodeObservation(es.Observation)
				if err != nil {
					return newPlannerError(ErrConfiguration, "decoding observation", err)
				}
				entry.observation = obs
			}

			if i == 0 {
				cur = root
			} else if prev := seq.entries[i-1]; prev.action != nil && prev.observation != nil {
				child, _ := s.tree.CreateOrGetChild(cur, prev.action, prev.observation)
				cur = child
			}
			if es.BeliefNodeID >= 0 {
				if cur != nil {
					entry.RegisterNode(cur)
				}
				if _, known := nodeByOriginalID[es.BeliefNodeID]; !known && cur != nil {
					nodeByOriginalID[es.BeliefNodeID] = cur
				}
			}
		}
	}

	for _, ns := range snap.Nodes {
		node, ok := nodeByOriginalID[ns.ID]
		if !ok || len(ns.Stats) == 0 {
			continue
		}
		eam, ok := node.actionMapping.(*EnumeratedActionMapping)
		if !ok {
			continue
		}
		for _, stat := range ns.Stats {
			action, err := codec.DecodeAction(stat.Action)
			if err != nil {
				return newPlannerError(ErrConfiguration, "decoding action stat", err)
			}
			eam.restoreStat(action, stat.Visits, stat.TotalQ, stat.Legal)
		}
	}

	s.rollout = NewRolloutCoordinator(s.rng)
	s.historyCorrector = s.model.CreateHistoryCorrector()
	if s.historyCorrector != nil {
		s.historyCorrector.SetSolver(s)
	}

	return nil
}
