package solver

// ApplyChanges drives one environment-model change through the full
// Collect -> Undo -> Purge -> Revise -> Reintegrate pipeline (spec.md §4.8,
// C8). Relink is the History Corrector's responsibility: it holds a
// back-reference to this Solver (set via Model.CreateHistoryCorrector's
// HistoryCorrector.SetSolver) and calls HistoryEntry.RegisterNode /
// BeliefTree.CreateOrGetChild as it extends a sequence's repaired suffix.
func (s *Solver) ApplyChanges(time int64) error {
	// Collect: the Model mutates its own geometry and flags every StateInfo
	// the mutation touches.
	if err := s.model.Update(time, s.statePool); err != nil {
		return &PlannerError{Kind: ErrModelInconsistency, Msg: "model update failed", Err: err}
	}

	affectedStates := s.statePool.GetAffectedStates()
	if len(affectedStates) == 0 {
		return nil
	}

	// Collect: propagate each affected entry's change-flag to its sequence's
	// per-index flag set, and from there to its predecessor (spec.md §4.8
	// step 1). A DELETED entry means its predecessor's transition now lands
	// in void; an OBSERVATION_BEFORE entry means its predecessor's
	// observation is stale.
	affectedSeqs := make(map[*HistorySequence]int64)
	for _, info := range affectedStates {
		for entry := range info.UsedInHistoryEntries() {
			seq := entry.OwningSequence()
			idx := entry.EntryID()
			if cur, ok := affectedSeqs[seq]; !ok || idx < cur {
				affectedSeqs[seq] = idx
			}

			seq.setChangeFlags(idx, info.ChangeFlags())
			if idx > 0 {
				if HasFlag(info.ChangeFlags(), ChangeDelState|ChangeDeleted) {
					seq.setChangeFlags(idx-1, ChangeTransition)
				}
				if HasFlag(info.ChangeFlags(), ChangeObservationBefore) {
					seq.setChangeFlags(idx-1, ChangeObservation)
				}
			}
		}
	}

	toRevise := make([]*HistorySequence, 0, len(affectedSeqs))
	for seq, idx := range affectedSeqs {
		// Undo: peel off the stale backup contribution before the suffix
		// changes underneath it.
		if err := s.undoBackup(seq, idx); err != nil {
			return err
		}

		// Purge: a sequence whose entry 0 is flagged deleted has no valid
		// continuation at all and is dropped from the repair set entirely
		// (spec.md §4.8 step 3). This is routine, not fatal — the fatal case
		// is the live execution state, checked separately by the Simulation
		// Loop (spec.md §4.9).
		if HasFlag(seq.Entry(0).ChangeFlags(), ChangeDelState|ChangeDeleted) {
			s.histories.DeleteByID(seq.ID())
			continue
		}

		seq.SetInvalidLinksStartID(idx)
		toRevise = append(toRevise, seq)
	}

	// Revise: the Model-supplied corrector regenerates each sequence's
	// affected suffix against the updated Model.
	if s.historyCorrector != nil {
		s.historyCorrector.ReviseHistories(toRevise)
	}

	// Reintegrate: back up the repaired sequences so their belief nodes'
	// Q-statistics reflect the revised trajectory.
	for _, seq := range toRevise {
		if err := s.reintegrate(seq); err != nil {
			return err
		}
		seq.SetInvalidLinksStartID(-1)
		seq.resetChangeFlags()
	}

	s.statePool.ResetAffectedStates()
	for _, info := range affectedStates {
		info.ResetChangeFlags()
	}
	return nil
}

// reintegrate backs up seq after a revision. A sequence that no longer ends
// in a terminal state gets a fresh rollout estimate from its last entry's
// belief node so its tail contribution is not silently dropped.
func (s *Solver) reintegrate(seq *HistorySequence) error {
	last := seq.LastEntry()
	var tail float64
	if !seq.IsTerminal() {
		node := last.OwningBeliefNode()
		if node == nil {
			node = s.tree.Root()
		}
		p := s.currentParams()
		depthBudget := p.maxDepth - int64(len(seq.Entries())-1)
		if depthBudget < 0 {
			depthBudget = 0
		}
		tail = s.rolloutTail(node, last.State(), p, depthBudget)
	}
	s.backup(seq, tail)
	return nil
}
