package solver

// HistoryEntry is one step of one simulated trajectory (spec.md §3).
type HistoryEntry struct {
	owningSequence *HistorySequence
	entryID        int64
	stateInfo      *StateInfo
	discount       float64
	reward         float64
	action         Action
	observation    Observation
	transitionParameters any
	owningBeliefNode      *BeliefNode

	totalDiscountedReward float64
	hasBeenBackedUp       bool
	changeFlags           ChangeFlag
}

// EntryID returns this entry's position within its owning sequence.
func (e *HistoryEntry) EntryID() int64 { return e.entryID }

// OwningSequence returns the HistorySequence this entry belongs to.
func (e *HistoryEntry) OwningSequence() *HistorySequence { return e.owningSequence }

// StateInfoRef returns the StateInfo this entry's particle points to.
func (e *HistoryEntry) StateInfoRef() *StateInfo { return e.stateInfo }

// State is a convenience accessor for e.StateInfoRef().State().
func (e *HistoryEntry) State() State { return e.stateInfo.State() }

// Discount returns the cumulative discount factor at this entry's depth.
func (e *HistoryEntry) Discount() float64 { return e.discount }

// Reward returns the immediate reward recorded at this entry.
func (e *HistoryEntry) Reward() float64 { return e.reward }

// SetReward sets the immediate reward recorded at this entry.
func (e *HistoryEntry) SetReward(r float64) { e.reward = r }

// ActionTaken returns the action taken from this entry, or nil if none has
// been recorded yet (e.g. the last entry of an in-progress sequence).
func (e *HistoryEntry) ActionTaken() Action { return e.action }

// SetActionTaken records the action taken from this entry.
func (e *HistoryEntry) SetActionTaken(a Action) { e.action = a }

// ObservationReceived returns the observation received after taking
// ActionTaken from this entry.
func (e *HistoryEntry) ObservationReceived() Observation { return e.observation }

// SetObservationReceived records the observation received from this entry.
func (e *HistoryEntry) SetObservationReceived(o Observation) { e.observation = o }

// TransitionParameters returns the opaque transition parameters Model
// attached to the step that produced this entry.
func (e *HistoryEntry) TransitionParameters() any { return e.transitionParameters }

// SetTransitionParameters records opaque transition parameters.
func (e *HistoryEntry) SetTransitionParameters(p any) { e.transitionParameters = p }

// OwningBeliefNode returns the belief node that owns this entry's particle
// at this depth.
func (e *HistoryEntry) OwningBeliefNode() *BeliefNode { return e.owningBeliefNode }

// TotalDiscountedReward returns the cached backed-up return from this entry
// to the end of its sequence.
func (e *HistoryEntry) TotalDiscountedReward() float64 { return e.totalDiscountedReward }

// HasBeenBackedUp reports whether backup has already incorporated this
// entry's contribution into its owning belief node's Q-statistics.
func (e *HistoryEntry) HasBeenBackedUp() bool { return e.hasBeenBackedUp }

// ChangeFlags returns this entry's own change-flag bitset, distinct from
// its StateInfo's.
func (e *HistoryEntry) ChangeFlags() ChangeFlag { return e.changeFlags }

func (e *HistoryEntry) setChangeFlags(bits ChangeFlag) {
	e.changeFlags = SetFlag(e.changeFlags, bits)
}

func (e *HistoryEntry) resetChangeFlags() {
	e.changeFlags = ChangeUnchanged
}

// setBackupResult records the outcome of a backup pass touching this entry.
func (e *HistoryEntry) setBackupResult(total float64) {
	e.totalDiscountedReward = total
	e.hasBeenBackedUp = true
}

// resetBackup clears this entry's backup state, used by undoBackup before a
// repaired suffix is re-backed-up (spec.md §4.8).
func (e *HistoryEntry) resetBackup() {
	e.totalDiscountedReward = 0
	e.hasBeenBackedUp = false
}

// RegisterNode links this entry to the belief node that owns its particle
// at this depth, maintaining the BeliefNode<->HistoryEntry particle-list
// invariant (spec.md §3 ownership summary): the node gains this entry in
// its particle list, and if the entry was already registered to a
// different node, it is removed from that node's list first.
func (e *HistoryEntry) RegisterNode(node *BeliefNode) {
	if e.owningBeliefNode == node {
		return
	}
	if e.owningBeliefNode != nil {
		e.owningBeliefNode.removeParticle(e)
	}
	e.owningBeliefNode = node
	if node != nil {
		node.addParticle(e)
	}
}

// HistorySequence is an ordered, non-empty sequence of HistoryEntries
// (spec.md §3).
type HistorySequence struct {
	id                   int64
	entries              []*HistoryEntry
	startDepth           int64
	isTerminal           bool
	invalidLinksStartID  int64 // -1 means "no stale links"
}

// ID returns this sequence's stable integer id within its owning Histories.
func (s *HistorySequence) ID() int64 { return s.id }

// StartDepth returns the depth at which this sequence's first entry starts.
func (s *HistorySequence) StartDepth() int64 { return s.startDepth }

// IsTerminal reports whether this sequence ended at a terminal state.
func (s *HistorySequence) IsTerminal() bool { return s.isTerminal }

// SetTerminal sets the terminal bit.
func (s *HistorySequence) SetTerminal(terminal bool) { s.isTerminal = terminal }

// Entries returns the sequence's entries in order. Callers must not mutate
// the returned slice.
func (s *HistorySequence) Entries() []*HistoryEntry { return s.entries }

// Entry returns the entry at position i.
func (s *HistorySequence) Entry(i int64) *HistoryEntry { return s.entries[i] }

// LastEntry returns the sequence's final entry.
func (s *HistorySequence) LastEntry() *HistoryEntry { return s.entries[len(s.entries)-1] }

// InvalidLinksStartID returns the earliest entry index whose belief-node
// link may be stale, or -1 if none.
func (s *HistorySequence) InvalidLinksStartID() int64 { return s.invalidLinksStartID }

// SetInvalidLinksStartID records the earliest repaired index after a
// revision, per spec.md §4.8 step 4.
func (s *HistorySequence) SetInvalidLinksStartID(id int64) { s.invalidLinksStartID = id }

// addEntry appends a new HistoryEntry bound to stateInfo, registers the
// back-reference on stateInfo, and returns it.
func (s *HistorySequence) addEntry(stateInfo *StateInfo, discount float64) *HistoryEntry {
	entry := &HistoryEntry{
		owningSequence: s,
		entryID:        int64(len(s.entries)),
		stateInfo:      stateInfo,
		discount:       discount,
	}
	s.entries = append(s.entries, entry)
	stateInfo.addBackReference(entry)
	return entry
}

// setChangeFlags ORs bits into the change flags of the entry at index i.
func (s *HistorySequence) setChangeFlags(i int64, bits ChangeFlag) {
	s.entries[i].setChangeFlags(bits)
}

// resetChangeFlags clears every entry's change-flag bitset.
func (s *HistorySequence) resetChangeFlags() {
	for _, e := range s.entries {
		e.resetChangeFlags()
	}
}

// truncateFrom drops every entry from index i onward, removing their
// StateInfo back-references and belief-node particle links first — the
// ordering spec.md §4.4 requires before storage is reclaimed.
func (s *HistorySequence) truncateFrom(i int64) {
	for _, e := range s.entries[i:] {
		e.stateInfo.removeBackReference(e)
		if e.owningBeliefNode != nil {
			e.owningBeliefNode.removeParticle(e)
		}
	}
	s.entries = s.entries[:i]
}

// Histories owns all HistorySequences by integer id (C4).
type Histories struct {
	byID   map[int64]*HistorySequence
	nextID int64
}

// NewHistories constructs an empty Histories store.
func NewHistories() *Histories {
	return &Histories{byID: make(map[int64]*HistorySequence)}
}

// AddNew creates and registers a new HistorySequence starting at startDepth.
func (h *Histories) AddNew(startDepth int64) *HistorySequence {
	seq := &HistorySequence{
		id:                  h.nextID,
		startDepth:          startDepth,
		invalidLinksStartID: -1,
	}
	h.byID[seq.id] = seq
	h.nextID++
	return seq
}

// Get returns the sequence with the given id, or nil if it does not exist.
func (h *Histories) Get(id int64) *HistorySequence {
	return h.byID[id]
}

// DeleteByID removes a sequence entirely, de-registering every entry's
// StateInfo back-reference and belief-node particle link before reclaiming
// storage (spec.md §4.4).
func (h *Histories) DeleteByID(id int64) {
	seq, ok := h.byID[id]
	if !ok {
		return
	}
	seq.truncateFrom(0)
	delete(h.byID, id)
}

// Len returns the number of sequences currently owned.
func (h *Histories) Len() int { return len(h.byID) }

// All returns every owned sequence, in no particular order.
func (h *Histories) All() []*HistorySequence {
	out := make([]*HistorySequence, 0, len(h.byID))
	for _, seq := range h.byID {
		out = append(out, seq)
	}
	return out
}
