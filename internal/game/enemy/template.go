// Package enemy turns static enemy content into per-encounter combatants.
// Unlike heroes, enemies never persist: every encounter instantiates fresh
// combatants from the template, and bosses additionally walk a one-way
// phase table as their health drops.
package enemy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marchaven/roadband/internal/game/ability"
	"github.com/marchaven/roadband/internal/game/combatant"
	"github.com/marchaven/roadband/internal/game/stats"
	"github.com/marchaven/roadband/internal/game/status"
)

// ErrUnknownTemplate indicates a lookup for an enemy template id that was
// never registered.
var ErrUnknownTemplate = errors.New("unknown enemy template")

// Phase is one row of a boss phase table. The phase activates when the
// boss's health fraction drops to or below Threshold; its ability pool
// replaces the previous one and its immunities replace the previous
// phase's.
type Phase struct {
	Name       string        `yaml:"name"`
	Threshold  float64       `yaml:"threshold"`
	Abilities  []string      `yaml:"abilities"`
	Immunities []status.Kind `yaml:"immunities,omitempty"`
	Script     string        `yaml:"script,omitempty"`
}

// Template is a single enemy kind as authored in content.
type Template struct {
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	Role          combatant.Role `yaml:"role"`
	Boss          bool           `yaml:"boss,omitempty"`
	Base          stats.Block    `yaml:"stats"`
	Abilities     []string       `yaml:"abilities"`
	Phases        []Phase        `yaml:"phases,omitempty"`
	XP            int            `yaml:"xp"`
	ResourceRegen float64        `yaml:"resourceRegen,omitempty"`
}

// Validate checks the template's authoring rules.
func (t *Template) Validate() []error {
	var violations []error
	if strings.TrimSpace(t.ID) == "" {
		violations = append(violations, fmt.Errorf("enemy template is missing an id"))
	}
	if strings.TrimSpace(t.Name) == "" {
		violations = append(violations, fmt.Errorf("enemy template %q is missing a name", t.ID))
	}
	if !combatant.KnownRole(t.Role) {
		violations = append(violations, fmt.Errorf("enemy template %q has unknown role %q", t.ID, t.Role))
	}
	if err := t.Base.Validate(); err != nil {
		violations = append(violations, fmt.Errorf("enemy template %q: %w", t.ID, err))
	}
	if len(t.Abilities) == 0 {
		violations = append(violations, fmt.Errorf("enemy template %q has no abilities", t.ID))
	}
	if t.XP < 0 {
		violations = append(violations, fmt.Errorf("enemy template %q has negative xp %d", t.ID, t.XP))
	}
	if t.ResourceRegen < 0 {
		violations = append(violations, fmt.Errorf("enemy template %q has negative resource regen %v", t.ID, t.ResourceRegen))
	}
	if len(t.Phases) > 0 && !t.Boss {
		violations = append(violations, fmt.Errorf("enemy template %q has phases but is not a boss", t.ID))
	}
	prev := 1.0
	for i, phase := range t.Phases {
		if phase.Threshold <= 0 || phase.Threshold >= 1 {
			violations = append(violations, fmt.Errorf("enemy template %q phase %d threshold %v outside (0, 1)", t.ID, i, phase.Threshold))
		}
		if phase.Threshold >= prev {
			violations = append(violations, fmt.Errorf("enemy template %q phase thresholds must strictly decrease", t.ID))
		}
		prev = phase.Threshold
		if len(phase.Abilities) == 0 {
			violations = append(violations, fmt.Errorf("enemy template %q phase %d has no abilities", t.ID, i))
		}
		for _, kind := range phase.Immunities {
			if !status.KnownKind(kind) {
				violations = append(violations, fmt.Errorf("enemy template %q phase %d has unknown immunity kind %q", t.ID, i, kind))
			}
		}
	}
	return violations
}

// Spawn instantiates a fresh combatant from the template. The instance id
// is the template id plus the spawn index, which keeps roster order and
// event transcripts deterministic for seeded simulations.
func Spawn(tpl *Template, index int, abilities *ability.Registry) (*combatant.Combatant, error) {
	defs, err := abilities.Resolve(tpl.Abilities)
	if err != nil {
		return nil, fmt.Errorf("enemy %q: %w", tpl.ID, err)
	}
	return combatant.New(combatant.Config{
		ID:            fmt.Sprintf("%s-%d", tpl.ID, index+1),
		Name:          tpl.Name,
		Side:          combatant.SideEnemy,
		Role:          tpl.Role,
		ArchetypeID:   tpl.ID,
		Slot:          index,
		Base:          tpl.Base,
		Abilities:     defs,
		ResourceRegen: tpl.ResourceRegen,
	})
}

// Registry holds validated enemy templates keyed by id.
type Registry struct {
	templates map[string]*Template
}

// NewRegistry returns an empty enemy registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]*Template)}
}

// Register adds a template, rejecting duplicates and invalid definitions.
func (r *Registry) Register(tpl *Template) error {
	if tpl == nil {
		return fmt.Errorf("register: nil enemy template")
	}
	if violations := tpl.Validate(); len(violations) > 0 {
		return fmt.Errorf("enemy template %q is invalid: %w", tpl.ID, errors.Join(violations...))
	}
	if _, exists := r.templates[tpl.ID]; exists {
		return fmt.Errorf("enemy template %q is already registered", tpl.ID)
	}
	r.templates[tpl.ID] = tpl
	return nil
}

// Get returns the template for the given id.
func (r *Registry) Get(id string) (*Template, error) {
	tpl, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
	}
	return tpl, nil
}

// Resolve maps template ids to templates, preserving order.
func (r *Registry) Resolve(ids []string) ([]*Template, error) {
	out := make([]*Template, 0, len(ids))
	for _, id := range ids {
		tpl, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, nil
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	return len(r.templates)
}

type enemyFile struct {
	Enemies []*Template `yaml:"enemies"`
}

// LoadDirectory reads every .yaml file under dir into a fresh registry with
// strict field checking.
func LoadDirectory(dir string) (*Registry, error) {
	registry := NewRegistry()
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open enemy file %s: %w", path, err)
		}
		defer file.Close()

		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		var contents enemyFile
		if err := dec.Decode(&contents); err != nil {
			return fmt.Errorf("decode enemy file %s: %w", path, err)
		}
		for _, tpl := range contents.Enemies {
			if err := registry.Register(tpl); err != nil {
				return fmt.Errorf("enemy file %s: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return registry, nil
}
