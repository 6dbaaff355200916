// Package party turns hero archetype content into the five-slot party that
// marches the road. Heroes persist across encounters: health, resource,
// level, and experience carry forward, and only the save boundary resets
// them.
package party

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marchaven/roadband/internal/game/combatant"
	"github.com/marchaven/roadband/internal/game/stats"
)

// ErrUnknownArchetype indicates a lookup for a hero archetype id that was
// never registered.
var ErrUnknownArchetype = errors.New("unknown hero archetype")

// Growth is the additive per-level stat gain of an archetype.
type Growth struct {
	MaxHealth   float64 `yaml:"max_health,omitempty"`
	MaxResource float64 `yaml:"max_resource,omitempty"`
	AttackPower float64 `yaml:"attack_power,omitempty"`
	SpellPower  float64 `yaml:"spell_power,omitempty"`
	Armor       float64 `yaml:"armor,omitempty"`
}

func (g Growth) validate() error {
	if g.MaxHealth < 0 || g.MaxResource < 0 || g.AttackPower < 0 || g.SpellPower < 0 || g.Armor < 0 {
		return fmt.Errorf("growth values must be >= 0")
	}
	return nil
}

// Template is a hero archetype as authored in content.
type Template struct {
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	Role          combatant.Role `yaml:"role"`
	Base          stats.Block    `yaml:"stats"`
	Growth        Growth         `yaml:"growth,omitempty"`
	Abilities     []string       `yaml:"abilities"`
	ResourceRegen float64        `yaml:"resourceRegen,omitempty"`
}

// Validate checks the archetype's authoring rules.
func (t *Template) Validate() []error {
	var violations []error
	if strings.TrimSpace(t.ID) == "" {
		violations = append(violations, fmt.Errorf("hero template is missing an id"))
	}
	if strings.TrimSpace(t.Name) == "" {
		violations = append(violations, fmt.Errorf("hero template %q is missing a name", t.ID))
	}
	if !combatant.KnownRole(t.Role) {
		violations = append(violations, fmt.Errorf("hero template %q has unknown role %q", t.ID, t.Role))
	}
	if err := t.Base.Validate(); err != nil {
		violations = append(violations, fmt.Errorf("hero template %q: %w", t.ID, err))
	}
	if err := t.Growth.validate(); err != nil {
		violations = append(violations, fmt.Errorf("hero template %q: %w", t.ID, err))
	}
	if len(t.Abilities) == 0 {
		violations = append(violations, fmt.Errorf("hero template %q has no abilities", t.ID))
	}
	if t.ResourceRegen < 0 {
		violations = append(violations, fmt.Errorf("hero template %q has negative resource regen %v", t.ID, t.ResourceRegen))
	}
	return violations
}

// StatsAt returns the archetype's base block at the given level: the level
// one block plus growth per level gained.
func (t *Template) StatsAt(level int) stats.Block {
	block := t.Base.Clone()
	if level <= 1 {
		return block
	}
	gained := float64(level - 1)
	block.MaxHealth += t.Growth.MaxHealth * gained
	block.MaxResource += t.Growth.MaxResource * gained
	block.AttackPower += t.Growth.AttackPower * gained
	block.SpellPower += t.Growth.SpellPower * gained
	block.Armor += t.Growth.Armor * gained
	return block
}

// Registry holds validated hero archetypes keyed by id.
type Registry struct {
	templates map[string]*Template
}

// NewRegistry returns an empty archetype registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]*Template)}
}

// Register adds a template, rejecting duplicates and invalid definitions.
func (r *Registry) Register(tpl *Template) error {
	if tpl == nil {
		return fmt.Errorf("register: nil hero template")
	}
	if violations := tpl.Validate(); len(violations) > 0 {
		return fmt.Errorf("hero template %q is invalid: %w", tpl.ID, errors.Join(violations...))
	}
	if _, exists := r.templates[tpl.ID]; exists {
		return fmt.Errorf("hero template %q is already registered", tpl.ID)
	}
	r.templates[tpl.ID] = tpl
	return nil
}

// Get returns the template for the given archetype id.
func (r *Registry) Get(id string) (*Template, error) {
	tpl, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownArchetype, id)
	}
	return tpl, nil
}

// Len returns the number of registered archetypes.
func (r *Registry) Len() int {
	return len(r.templates)
}

type heroFile struct {
	Heroes []*Template `yaml:"heroes"`
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
			return fmt.Errorf("open hero file %s: %w", path, err)
		}
		defer file.Close()

		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		var contents heroFile
		if err := dec.Decode(&contents); err != nil {
			return fmt.Errorf("decode hero file %s: %w", path, err)
		}
		for _, tpl := range contents.Heroes {
			if err := registry.Register(tpl); err != nil {
				return fmt.Errorf("hero file %s: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return registry, nil
}
