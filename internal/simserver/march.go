// Package simserver hosts the combat core as a long-running service. The
// march owns the single live encounter, drives ticks from a fixed-rate
// loop, fans events out to websocket subscribers, and persists the roster
// only at the save boundary between encounters.
package simserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marchaven/roadband/internal/config"
	"github.com/marchaven/roadband/internal/game/ability"
	"github.com/marchaven/roadband/internal/game/combatant"
	"github.com/marchaven/roadband/internal/game/encounter"
	"github.com/marchaven/roadband/internal/game/enemy"
	"github.com/marchaven/roadband/internal/game/party"
	"github.com/marchaven/roadband/internal/game/resolver"
	"github.com/marchaven/roadband/internal/game/rng"
	"github.com/marchaven/roadband/internal/game/road"
	"github.com/marchaven/roadband/internal/game/threat"
	"github.com/marchaven/roadband/internal/scripting"
	"github.com/marchaven/roadband/internal/storage/postgres"
)

// persistTimeout bounds every storage write the march makes on its own.
const persistTimeout = 5 * time.Second

var (
	// ErrMarchActive indicates an operation that needs the party idle while
	// a road is being walked.
	ErrMarchActive = errors.New("a march is already underway")
	// ErrNoMarch indicates a march operation with no road underway.
	ErrNoMarch = errors.New("no march underway")
	// ErrNoParty indicates a save with no party loaded.
	ErrNoParty = errors.New("no party loaded")
	// ErrNoEncounter indicates a combat query outside an encounter.
	ErrNoEncounter = errors.New("no active encounter")
)

// PartyStore is the persistence surface the march needs. Implemented by
// postgres.PartyRepository.
type PartyStore interface {
	Create(ctx context.Context, name string, states []party.SaveState) (postgres.PartyRecord, error)
	GetByName(ctx context.Context, name string) (postgres.PartyRecord, error)
	List(ctx context.Context) ([]postgres.PartyRecord, error)
	Delete(ctx context.Context, partyID int64) error
	LoadMembers(ctx context.Context, partyID int64) ([]party.MemberSpec, error)
	SaveMembers(ctx context.Context, partyID int64, states []party.SaveState) error
	SaveProgress(ctx context.Context, partyID int64, roadID string, waveIndex int) error
}

// MarchConfig wires the march's collaborators. Store and the four content
// registries are required; Scripts, Hub, Logger, and Source are optional.
type MarchConfig struct {
	Sim       config.SimConfig
	Combat    config.CombatConfig
	Store     PartyStore
	Heroes    *party.Registry
	Abilities *ability.Registry
	Enemies   *enemy.Registry
	Roads     *road.Registry
	Scripts   *scripting.Manager
	Hub       *Hub
	Logger    *zap.Logger
	// Source overrides the roll stream. nil builds one from Sim.Seed:
	// zero selects crypto randomness, anything else a replayable stream.
	Source rng.Source
}

// HeroSpec names one hero to recruit into a new party.
type HeroSpec struct {
	Name      string `json:"name"`
	Archetype string `json:"archetype"`
}

// EncounterStatus is the running encounter's position.
type EncounterStatus struct {
	ID      string  `json:"id"`
	State   string  `json:"state"`
	Tick    uint64  `json:"tick"`
	Elapsed float64 `json:"elapsed"`
}

// Status is the march's externally visible position.
type Status struct {
	Party       string            `json:"party,omitempty"`
	Road        string            `json:"road,omitempty"`
	Wave        int               `json:"wave"`
	Waves       int               `json:"waves"`
	Marching    bool              `json:"marching"`
	PendingSave bool              `json:"pendingSave"`
	Encounter   *EncounterStatus  `json:"encounter,omitempty"`
	Heroes      []combatant.State `json:"heroes,omitempty"`
}

// marchMessage is the feed envelope for march-level notices. It shares the
// "type" discriminator with encounter events so subscribers decode one
// stream.
type marchMessage struct {
	Type        string             `json:"type"`
	Party       string             `json:"party,omitempty"`
	Road        string             `json:"road,omitempty"`
	Wave        int                `json:"wave"`
	Label       string             `json:"label,omitempty"`
	Enemies     []string           `json:"enemies,omitempty"`
	EncounterID string             `json:"encounterId,omitempty"`
	LevelUps    []party.LevelUp    `json:"levelUps,omitempty"`
	Summary     *encounter.Summary `json:"summary,omitempty"`
}

type announcement struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// March is the host of the simulation: one party walking one road, one
// encounter at a time. The core stays single-threaded; every entry point
// here serializes on the march lock, and the tick loop is the only writer
// of combat state while an encounter runs.
type March struct {
	cfg      MarchConfig
	logger   *zap.Logger
	src      rng.Source
	resolver *resolver.Resolver
	tuning   encounter.Tuning

	stopOnce sync.Once
	stopCh   chan struct{}

	mu          sync.Mutex
	partyID     int64
	partyName   string
	party       *party.Party
	roadTpl     *road.Template
	progress    *road.Progress
	waves       [][]*enemy.Template
	hooks       encounter.Hooks
	enc         *encounter.Encounter
	lastEvents  []encounter.Event
	waveWait    float64
	pendingSave bool
}

// NewMarch validates the wiring and builds an idle march.
func NewMarch(cfg MarchConfig) (*March, error) {
	if cfg.Store == nil {
		return nil, errors.New("march: party store is required")
	}
	if cfg.Heroes == nil || cfg.Abilities == nil || cfg.Enemies == nil || cfg.Roads == nil {
		return nil, errors.New("march: all content registries are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Sim.TickInterval <= 0 {
		return nil, fmt.Errorf("march: tick interval must be positive, got %v", cfg.Sim.TickInterval)
	}

	src := cfg.Source
	if src == nil {
		if cfg.Sim.Seed != 0 {
			src = rng.NewSeededSource(cfg.Sim.Seed)
		} else {
			src = rng.NewCryptoSource()
		}
	}
	res, err := resolver.New(resolver.Tuning{
		CritMultiplier: cfg.Combat.CritMultiplier,
		BlockReduction: cfg.Combat.BlockReduction,
		ResistScale:    cfg.Combat.ResistScale,
		MaxMitigation:  cfg.Combat.MaxMitigation,
	}, src)
	if err != nil {
		return nil, fmt.Errorf("march: %w", err)
	}
	tuning := encounter.Tuning{
		BaseActionInterval:  cfg.Sim.BaseActionInterval,
		ThreatPerDamage:     cfg.Sim.ThreatPerDamage,
		HealingThreatFactor: cfg.Sim.HealingThreatFactor,
		HealerThreshold:     cfg.Sim.HealerThreshold,
		EventLogSize:        cfg.Sim.EventLogSize,
	}
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("march: %w", err)
	}

	m := &March{
		cfg:      cfg,
		logger:   cfg.Logger,
		src:      src,
		resolver: res,
		tuning:   tuning,
		stopCh:   make(chan struct{}),
	}
	if cfg.Scripts != nil {
		cfg.Scripts.GetCombatant = m.scriptCombatant
		cfg.Scripts.Combatants = m.scriptCombatants
		cfg.Scripts.Announce = m.announce
	}
	return m, nil
}

// Start runs the march loop until Stop is called. It implements the
// lifecycle Service contract and blocks for the life of the service.
func (m *March) Start() error {
	ticker := time.NewTicker(m.cfg.Sim.TickInterval)
	defer ticker.Stop()

	var autosave <-chan time.Time
	if m.cfg.Sim.AutosaveInterval > 0 {
		at := time.NewTicker(m.cfg.Sim.AutosaveInterval)
		defer at.Stop()
		autosave = at.C
	}

	last := time.Now()
	for {
		select {
		case <-m.stopCh:
			return nil
		case now := <-ticker.C:
			m.step(now.Sub(last).Seconds())
			last = now
		case <-autosave:
			m.autosave()
		}
	}
}

// Stop halts the loop, aborts any running encounter, and saves the roster
// at its resume position.
func (m *March) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	defer m.mu.Unlock()
	roadID, wave := m.resumePointLocked()
	if m.enc != nil && m.enc.State() == encounter.StateActive {
		_ = m.enc.Abort()
		m.enc = nil
	}
	if m.party != nil {
		if err := m.persistLocked(roadID, wave); err != nil {
			m.logger.Error("march: final save failed", zap.Error(err))
		}
	}
}

// step advances the simulation by delta seconds of real time: tick the
// running encounter, settle it when it turns terminal, or count down the
// marching time to the next wave.
func (m *March) step(delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enc != nil && m.enc.State() == encounter.StateActive {
		if err := m.enc.Tick(delta); err != nil {
			m.logger.Error("march: tick failed", zap.Error(err))
			return
		}
		if m.enc.State().Terminal() {
			m.settleEncounter()
		}
		return
	}
	if m.progress == nil {
		return
	}
	m.waveWait -= delta
	if m.waveWait > 0 {
		return
	}
	m.startNextWave()
}

// startNextWave consumes the next wave and spins up a fresh encounter for
// it. Terminal encounters never restart, so every wave gets its own.
func (m *March) startNextWave() {
	wave, ok := m.progress.Next()
	if !ok {
		m.logger.Error("march: no wave left to start", zap.String("road", m.roadTpl.ID))
		m.clearMarchLocked()
		return
	}
	idx := m.progress.WaveIndex() - 1

	var sinks []encounter.Sink
	if m.cfg.Hub != nil {
		sinks = append(sinks, m.cfg.Hub)
	}
	enc, err := encounter.New(encounter.Config{
		Tuning:    m.tuning,
		Resolver:  m.resolver,
		Abilities: m.cfg.Abilities,
		Logger:    m.logger,
		Hooks:     m.hooks,
		Sinks:     sinks,
	})
	if err != nil {
		m.logger.Error("march: build encounter", zap.Error(err))
		m.clearMarchLocked()
		return
	}
	if err := enc.Start(m.party.Combatants(), m.waves[idx]); err != nil {
		m.logger.Error("march: wave start failed",
			zap.String("road", m.roadTpl.ID),
			zap.Int("wave", idx),
			zap.Error(err),
		)
		if err := m.persistLocked(m.roadTpl.ID, idx); err != nil {
			m.logger.Error("march: save after failed start", zap.Error(err))
		}
		m.clearMarchLocked()
		return
	}
	m.enc = enc
	m.broadcast(marchMessage{
		Type:        "wave_started",
		Party:       m.partyName,
		Road:        m.roadTpl.ID,
		Wave:        idx,
		Label:       wave.Label,
		Enemies:     wave.Enemies,
		EncounterID: enc.ID(),
	})
	m.logger.Info("march: wave started",
		zap.String("road", m.roadTpl.ID),
		zap.Int("wave", idx),
		zap.Strings("enemies", wave.Enemies),
	)
}

// settleEncounter applies the terminal encounter's outcome: experience and
// recovery on victory, a retry position on defeat, and in both cases a save.
// Any save deferred during the fight lands here.
func (m *March) settleEncounter() {
	summary := m.enc.Stats()
	victory := m.enc.State() == encounter.StateVictory
	m.lastEvents = m.enc.Events()
	m.enc = nil

	if !victory {
		// Wiped. The road is kept at the failed wave so it can be retried;
		// the heroes limp home at the recovery fraction.
		retry := m.progress.WaveIndex() - 1
		m.party.Revive(m.cfg.Sim.RecoveryFraction)
		if err := m.persistLocked(m.roadTpl.ID, retry); err != nil {
			m.logger.Error("march: save after defeat", zap.Error(err))
		}
		m.broadcast(marchMessage{
			Type:    "road_failed",
			Party:   m.partyName,
			Road:    m.roadTpl.ID,
			Wave:    retry,
			Summary: &summary,
		})
		m.logger.Info("march: party defeated",
			zap.String("road", m.roadTpl.ID),
			zap.Int("wave", retry),
			zap.Uint64("ticks", summary.Ticks),
		)
		m.clearMarchLocked()
		return
	}

	xp := summary.XPEarned
	if m.progress.Completed() {
		xp += m.roadTpl.BonusXP
	}
	ups := m.party.AwardExperience(xp)
	m.party.Revive(m.cfg.Sim.RecoveryFraction)

	cleared := m.progress.WaveIndex() - 1
	m.broadcast(marchMessage{
		Type:     "wave_cleared",
		Party:    m.partyName,
		Road:     m.roadTpl.ID,
		Wave:     cleared,
		Summary:  &summary,
		LevelUps: ups,
	})

	if m.progress.Completed() {
		if err := m.persistLocked("", 0); err != nil {
			m.logger.Error("march: save after completion", zap.Error(err))
		}
		m.broadcast(marchMessage{
			Type:  "road_completed",
			Party: m.partyName,
			Road:  m.roadTpl.ID,
			Wave:  cleared,
		})
		m.logger.Info("march: road completed",
			zap.String("road", m.roadTpl.ID),
			zap.Int("bonusXp", m.roadTpl.BonusXP),
		)
		m.clearMarchLocked()
		return
	}

	if err := m.persistLocked(m.roadTpl.ID, m.progress.WaveIndex()); err != nil {
		m.logger.Error("march: save between waves", zap.Error(err))
	}
	m.waveWait = m.cfg.Sim.WaveDelay.Seconds()
}

// CreateParty validates the lineup against the loaded content and persists
// a fresh level-one roster with full pools.
func (m *March) CreateParty(ctx context.Context, name string, lineup []HeroSpec) (postgres.PartyRecord, error) {
	if strings.TrimSpace(name) == "" {
		return postgres.PartyRecord{}, fmt.Errorf("party name must not be empty")
	}
	specs := make([]party.MemberSpec, 0, len(lineup))
	for _, h := range lineup {
		specs = append(specs, party.MemberSpec{
			HeroID:    uuid.NewString(),
			Name:      h.Name,
			Archetype: h.Archetype,
			Level:     1,
		})
	}
	p, err := party.Assemble(specs, m.cfg.Heroes, m.cfg.Abilities)
	if err != nil {
		return postgres.PartyRecord{}, err
	}
	return m.cfg.Store.Create(ctx, name, p.SaveStates())
}

// DeleteParty removes a stored party. The party currently on the road
// cannot be deleted.
func (m *March) DeleteParty(ctx context.Context, name string) error {
	rec, err := m.cfg.Store.GetByName(ctx, name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	marching := m.progress != nil && m.partyID == rec.ID
	m.mu.Unlock()
	if marching {
		return ErrMarchActive
	}
	return m.cfg.Store.Delete(ctx, rec.ID)
}

// StartRoad loads the named party from storage and sets it marching down
// the named road. A save made on the same road resumes at its wave.
func (m *March) StartRoad(ctx context.Context, partyName, roadID string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.progress != nil || (m.enc != nil && m.enc.State() == encounter.StateActive) {
		return Status{}, ErrMarchActive
	}

	rec, err := m.cfg.Store.GetByName(ctx, partyName)
	if err != nil {
		return Status{}, err
	}
	specs, err := m.cfg.Store.LoadMembers(ctx, rec.ID)
	if err != nil {
		return Status{}, err
	}
	p, err := party.Assemble(specs, m.cfg.Heroes, m.cfg.Abilities)
	if err != nil {
		return Status{}, fmt.Errorf("assemble party %q: %w", partyName, err)
	}
	tpl, err := m.cfg.Roads.Get(roadID)
	if err != nil {
		return Status{}, err
	}
	waves, err := tpl.Resolve(m.cfg.Enemies)
	if err != nil {
		return Status{}, err
	}

	start := 0
	if rec.RoadID == roadID && rec.WaveIndex > 0 && rec.WaveIndex < len(waves) {
		start = rec.WaveIndex
	}

	// Heroes that went down before the save stand back up before marching.
	p.Revive(m.cfg.Sim.RecoveryFraction)

	m.party = p
	m.partyID = rec.ID
	m.partyName = rec.Name
	m.roadTpl = tpl
	m.waves = waves
	m.progress = road.NewProgressAt(tpl, start)
	if m.cfg.Scripts != nil {
		m.hooks = scripting.NewEncounterHooks(m.cfg.Scripts, roadID)
	} else {
		m.hooks = nil
	}
	m.waveWait = 0
	m.pendingSave = false
	m.lastEvents = nil

	// Record the position immediately so a crash resumes correctly.
	if err := m.persistLocked(roadID, start); err != nil {
		m.logger.Error("march: save at start", zap.Error(err))
	}

	m.broadcast(marchMessage{Type: "march_started", Party: rec.Name, Road: roadID, Wave: start})
	m.logger.Info("march started",
		zap.String("party", rec.Name),
		zap.String("road", roadID),
		zap.Int("wave", start),
	)
	return m.statusLocked(), nil
}

// Abandon aborts the march out of band: any running encounter is torn down
// without a combat result, and the save keeps the road for a later resume.
func (m *March) Abandon(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.progress == nil {
		return ErrNoMarch
	}
	roadID, wave := m.resumePointLocked()
	if m.enc != nil && m.enc.State() == encounter.StateActive {
		if err := m.enc.Abort(); err != nil {
			return err
		}
		m.lastEvents = m.enc.Events()
		m.enc = nil
	}
	if err := m.persistLocked(roadID, wave); err != nil {
		m.logger.Error("march: save on abandon", zap.Error(err))
	}
	m.broadcast(marchMessage{Type: "march_abandoned", Party: m.partyName, Road: roadID, Wave: wave})
	m.logger.Info("march abandoned", zap.String("road", roadID), zap.Int("wave", wave))
	m.clearMarchLocked()
	return nil
}

// RequestSave persists the roster now, or defers to the end of the running
// encounter: mid-combat hero rows would capture transient effect-modified
// state the load path cannot rebuild.
func (m *March) RequestSave(ctx context.Context) (deferred bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.party == nil {
		return false, ErrNoParty
	}
	if m.enc != nil && m.enc.State() == encounter.StateActive {
		m.pendingSave = true
		return true, nil
	}
	roadID, wave := m.resumePointLocked()
	return false, m.persistLocked(roadID, wave)
}

// Status reports the march position. Safe to call at any time.
func (m *March) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// States returns combat snapshots while an encounter runs, and the party
// roster between encounters.
func (m *March) States() []combatant.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enc != nil {
		return m.enc.States()
	}
	if m.party == nil {
		return nil
	}
	out := make([]combatant.State, 0, party.Size)
	for _, c := range m.party.Combatants() {
		out = append(out, c.Snapshot())
	}
	return out
}

// ThreatSnapshot returns the named enemy's threat rows for the running
// encounter.
func (m *March) ThreatSnapshot(enemyID string) ([]threat.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enc == nil {
		return nil, ErrNoEncounter
	}
	return m.enc.ThreatSnapshot(enemyID)
}

// CombatLog returns the running encounter's retained events, or the last
// finished encounter's when the party is between fights.
func (m *March) CombatLog() []encounter.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enc != nil {
		return m.enc.Events()
	}
	out := make([]encounter.Event, 0, len(m.lastEvents))
	return append(out, m.lastEvents...)
}

// statusLocked builds the status view. Callers hold the march lock.
func (m *March) statusLocked() Status {
	st := Status{
		Party:       m.partyName,
		Marching:    m.progress != nil,
		PendingSave: m.pendingSave,
	}
	if m.roadTpl != nil {
		st.Road = m.roadTpl.ID
		st.Waves = len(m.roadTpl.Encounters)
	}
	if m.progress != nil {
		st.Wave = m.progress.WaveIndex()
	}
	if m.enc != nil {
		st.Encounter = &EncounterStatus{
			ID:      m.enc.ID(),
			State:   string(m.enc.State()),
			Tick:    m.enc.TickCount(),
			Elapsed: m.enc.Elapsed(),
		}
	}
	if m.party != nil {
		for _, c := range m.party.Combatants() {
			st.Heroes = append(st.Heroes, c.Snapshot())
		}
	}
	return st
}

// resumePointLocked returns where a save should put the party. A wave
// consumed but not settled rolls back so the resume replays it.
func (m *March) resumePointLocked() (string, int) {
	if m.progress == nil {
		return "", 0
	}
	wave := m.progress.WaveIndex()
	if m.enc != nil && wave > 0 {
		wave--
	}
	return m.roadTpl.ID, wave
}

// persistLocked writes the roster and the road position. Callers hold the
// march lock; combat is over on every path that reaches here.
func (m *March) persistLocked(roadID string, waveIndex int) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := m.cfg.Store.SaveMembers(ctx, m.partyID, m.party.SaveStates()); err != nil {
		return fmt.Errorf("save members: %w", err)
	}
	if err := m.cfg.Store.SaveProgress(ctx, m.partyID, roadID, waveIndex); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	m.pendingSave = false
	return nil
}

// clearMarchLocked ends the march session. The party stays loaded so the
// roster remains visible between roads.
func (m *March) clearMarchLocked() {
	m.progress = nil
	m.roadTpl = nil
	m.waves = nil
	m.hooks = nil
	m.waveWait = 0
}

// autosave persists outside combat on the configured interval. A running
// encounter defers it to the settle path.
func (m *March) autosave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.party == nil {
		return
	}
	if m.enc != nil && m.enc.State() == encounter.StateActive {
		m.pendingSave = true
		return
	}
	roadID, wave := m.resumePointLocked()
	if err := m.persistLocked(roadID, wave); err != nil {
		m.logger.Error("march: autosave failed", zap.Error(err))
		return
	}
	m.logger.Debug("march: autosaved", zap.String("road", roadID), zap.Int("wave", wave))
}

// broadcast sends a march notice to the feed, when one is wired.
func (m *March) broadcast(msg marchMessage) {
	if m.cfg.Hub == nil {
		return
	}
	m.cfg.Hub.Broadcast(msg)
}

// announce backs the scripting layer's engine.world.announce.
func (m *March) announce(msg string) {
	m.logger.Info("announcement", zap.String("message", msg))
	if m.cfg.Hub != nil {
		m.cfg.Hub.Broadcast(announcement{Type: "announcement", Message: msg})
	}
}

// scriptCombatant backs engine.combatant lookups. Script hooks only run
// from inside encounter dispatch, on a goroutine that already holds the
// march lock, so the encounter is read directly.
func (m *March) scriptCombatant(id string) *scripting.CombatantInfo {
	if m.enc == nil {
		return nil
	}
	st, err := m.enc.CombatantState(id)
	if err != nil {
		return nil
	}
	return infoFromState(st)
}

// scriptCombatants backs engine.encounter counting. Same locking contract
// as scriptCombatant.
func (m *March) scriptCombatants() []*scripting.CombatantInfo {
	if m.enc == nil {
		return nil
	}
	states := m.enc.States()
	out := make([]*scripting.CombatantInfo, 0, len(states))
	for _, st := range states {
		out = append(out, infoFromState(st))
	}
	return out
}

func infoFromState(st combatant.State) *scripting.CombatantInfo {
	effects := make([]string, 0, len(st.Effects))
	for _, v := range st.Effects {
		effects = append(effects, string(v.Kind))
	}
	return &scripting.CombatantInfo{
		ID:          st.ID,
		Name:        st.Name,
		Side:        string(st.Side),
		Health:      st.Health,
		MaxHealth:   st.MaxHealth,
		Resource:    st.Resource,
		MaxResource: st.MaxResource,
		Defeated:    st.Defeated,
		Effects:     effects,
	}
}
