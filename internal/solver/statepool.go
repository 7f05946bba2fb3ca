package solver

// StateInfo is the canonical record for one distinct State value (spec.md
// §3). Two equal States always resolve to the same StateInfo; the pool
// enforces this via a hash-bucketed canonicalization table.
type StateInfo struct {
	id      int64
	state   State
	flags   ChangeFlag
	index   int // position in StatePool.byIndex, for O(1) removal

	// usedInHistoryEntries is the complete back-reference set of
	// HistoryEntries whose stateInfo_ points here. The State Pool never
	// owns this set's contents; Histories is responsible for keeping it
	// in sync on add/delete.
	usedInHistoryEntries map[*HistoryEntry]struct{}
}

// ID returns this StateInfo's stable integer id.
func (si *StateInfo) ID() int64 { return si.id }

// State returns the canonicalized State value.
func (si *StateInfo) State() State { return si.state }

// ChangeFlags returns the current change-flag bitset.
func (si *StateInfo) ChangeFlags() ChangeFlag { return si.flags }

// SetChangeFlags ORs bits into this StateInfo's change-flag bitset.
func (si *StateInfo) SetChangeFlags(bits ChangeFlag) {
	si.flags = SetFlag(si.flags, bits)
}

// ResetChangeFlags clears this StateInfo's change-flag bitset.
func (si *StateInfo) ResetChangeFlags() {
	si.flags = ChangeUnchanged
}

// UsedInHistoryEntries returns the back-reference set of HistoryEntries
// that reference this StateInfo.
func (si *StateInfo) UsedInHistoryEntries() map[*HistoryEntry]struct{} {
	return si.usedInHistoryEntries
}

func (si *StateInfo) addBackReference(entry *HistoryEntry) {
	si.usedInHistoryEntries[entry] = struct{}{}
}

func (si *StateInfo) removeBackReference(entry *HistoryEntry) {
	delete(si.usedInHistoryEntries, entry)
}

// StatePool canonicalizes sampled states, indexes them spatially, and
// tracks which ones a model change has flagged (C1).
type StatePool struct {
	index      StateIndex
	byHash     map[uint64][]*StateInfo
	byIndex    []*StateInfo
	nextID     int64
	affected   map[*StateInfo]struct{}
}

// NewStatePool constructs a StatePool backed by the given spatial index,
// normally obtained from Model.CreateStateIndex.
func NewStatePool(index StateIndex) *StatePool {
	return &StatePool{
		index:    index,
		byHash:   make(map[uint64][]*StateInfo),
		affected: make(map[*StateInfo]struct{}),
	}
}

// CreateOrGetInfo idempotently canonicalizes a sampled State, returning the
// existing StateInfo if an equal state was already seen.
func (p *StatePool) CreateOrGetInfo(s State) *StateInfo {
	h := s.Hash()
	for _, candidate := range p.byHash[h] {
		if candidate.state.Equals(s) {
			return candidate
		}
	}
	info := &StateInfo{
		id:                   p.nextID,
		state:                s,
		usedInHistoryEntries: make(map[*HistoryEntry]struct{}),
		index:                len(p.byIndex),
	}
	p.nextID++
	p.byHash[h] = append(p.byHash[h], info)
	p.byIndex = append(p.byIndex, info)
	if p.index != nil {
		p.index.Insert(info)
	}
	return info
}

// GetInfo looks up the StateInfo for an equal State without creating one.
// It returns nil if no such state has been seen.
func (p *StatePool) GetInfo(s State) *StateInfo {
	for _, candidate := range p.byHash[s.Hash()] {
		if candidate.state.Equals(s) {
			return candidate
		}
	}
	return nil
}

// StateIndexFor returns the spatial index supplied at construction.
func (p *StatePool) StateIndexFor() StateIndex { return p.index }

// FlagAffected ORs bits into info's change flags and tracks info as
// affected, so a subsequent GetAffectedStates call will see it.
func (p *StatePool) FlagAffected(info *StateInfo, bits ChangeFlag) {
	info.SetChangeFlags(bits)
	p.affected[info] = struct{}{}
}

// GetAffectedStates returns every StateInfo flagged since the last
// ResetAffectedStates call.
func (p *StatePool) GetAffectedStates() []*StateInfo {
	out := make([]*StateInfo, 0, len(p.affected))
	for info := range p.affected {
		out = append(out, info)
	}
	return out
}

// ResetAffectedStates clears the affected-state tracking set. It does not
// clear individual StateInfo change flags — callers that want those cleared
// too should call StateInfo.ResetChangeFlags explicitly.
func (p *StatePool) ResetAffectedStates() {
	p.affected = make(map[*StateInfo]struct{})
}

// DeleteInfo removes a StateInfo entirely from the pool, along with its
// spatial-index entry. Callers must have already cleared its back-reference
// set (Histories is responsible for this ordering, per spec.md §4.4).
func (p *StatePool) DeleteInfo(info *StateInfo) {
	if p.index != nil {
		p.index.Remove(info)
	}
	delete(p.affected, info)
	bucket := p.byHash[info.state.Hash()]
	for i, candidate := range bucket {
		if candidate == info {
			p.byHash[info.state.Hash()] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	last := len(p.byIndex) - 1
	p.byIndex[info.index] = p.byIndex[last]
	p.byIndex[info.index].index = info.index
	p.byIndex = p.byIndex[:last]
}

// Len returns the number of distinct StateInfos currently held.
func (p *StatePool) Len() int { return len(p.byIndex) }
