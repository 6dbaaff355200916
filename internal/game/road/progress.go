package road

// Progress tracks a party's position along one road. Waves are consumed
// strictly in order and never replayed; abandoning a road means discarding
// the Progress.
type Progress struct {
	road *Template
	next int
}

// NewProgress positions the party before the road's first wave.
func NewProgress(road *Template) *Progress {
	return &Progress{road: road}
}

// NewProgressAt resumes a march with the first consumed waves already
// behind the party, as restored from a save. An out-of-range index clamps
// to the road's bounds.
func NewProgressAt(road *Template, consumed int) *Progress {
	if consumed < 0 {
		consumed = 0
	}
	if consumed > len(road.Encounters) {
		consumed = len(road.Encounters)
	}
	return &Progress{road: road, next: consumed}
}

// Road returns the road being marched.
func (p *Progress) Road() *Template {
	return p.road
}

// Next consumes and returns the next wave. The second return is false once
// the road is complete.
func (p *Progress) Next() (Wave, bool) {
	if p.next >= len(p.road.Encounters) {
		return Wave{}, false
	}
	wave := p.road.Encounters[p.next]
	p.next++
	return wave, true
}

// WaveIndex returns how many waves have been consumed.
func (p *Progress) WaveIndex() int {
	return p.next
}

// Remaining returns the number of waves still ahead.
func (p *Progress) Remaining() int {
	return len(p.road.Encounters) - p.next
}

// Completed reports whether every wave has been consumed.
func (p *Progress) Completed() bool {
	return p.next >= len(p.road.Encounters)
}
