package enemy

// Tracker follows one boss instance through its phase table. Transitions
// are one-way: a phase once entered is never left, even if the boss is
// healed back above its threshold.
type Tracker struct {
	tpl     *Template
	current *Phase
	next    int
}

// NewTracker returns a tracker positioned before the first phase.
func NewTracker(tpl *Template) *Tracker {
	return &Tracker{tpl: tpl}
}

// Current returns the phase the boss is in, nil while still in its base
// state.
func (tr *Tracker) Current() *Phase {
	return tr.current
}

// Advance checks the health fraction against the remaining thresholds and
// enters every phase now crossed. When a single hit crosses several
// thresholds the intermediate phases collapse: only the deepest one is
// entered and returned. Returns false when no new phase was entered.
func (tr *Tracker) Advance(healthFraction float64) (*Phase, bool) {
	entered := false
	for tr.next < len(tr.tpl.Phases) && healthFraction <= tr.tpl.Phases[tr.next].Threshold {
		tr.current = &tr.tpl.Phases[tr.next]
		tr.next++
		entered = true
	}
	if !entered {
		return nil, false
	}
	return tr.current, true
}
