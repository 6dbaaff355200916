// Package road holds the authored encounter sequences the party marches
// through. A road is an ordered list of waves; each wave names the enemy
// templates that spawn when the party reaches it. Roads are pure content:
// the march service owns progression, the encounter package owns combat.
package road

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marchaven/roadband/internal/game/enemy"
)

// ErrUnknownRoad indicates a lookup for an id never registered.
var ErrUnknownRoad = errors.New("unknown road")

// Wave is one encounter on the road. Enemies lists enemy template ids in
// spawn order.
type Wave struct {
	Label   string   `yaml:"label,omitempty"`
	Enemies []string `yaml:"enemies"`
}

// Template is a single road as authored in content.
type Template struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Level is the recommended party level, used by the host to gate
	// road selection. It does not scale the enemies.
	Level      int    `yaml:"level"`
	Encounters []Wave `yaml:"encounters"`
	// BonusXP is granted once when the final wave falls.
	BonusXP int `yaml:"bonusXp,omitempty"`
}

// Validate checks the road's authoring rules.
func (t *Template) Validate() []error {
	var violations []error
	if strings.TrimSpace(t.ID) == "" {
		violations = append(violations, fmt.Errorf("road is missing an id"))
	}
	if strings.TrimSpace(t.Name) == "" {
		violations = append(violations, fmt.Errorf("road %q is missing a name", t.ID))
	}
	if t.Level < 1 {
		violations = append(violations, fmt.Errorf("road %q has level %d, want >= 1", t.ID, t.Level))
	}
	if len(t.Encounters) == 0 {
		violations = append(violations, fmt.Errorf("road %q has no encounters", t.ID))
	}
	for i, wave := range t.Encounters {
		if len(wave.Enemies) == 0 {
			violations = append(violations, fmt.Errorf("road %q wave %d has no enemies", t.ID, i))
		}
	}
	if t.BonusXP < 0 {
		violations = append(violations, fmt.Errorf("road %q has negative bonus xp %d", t.ID, t.BonusXP))
	}
	return violations
}

// Resolve maps every wave to its enemy templates, failing on the first id
// the registry does not know. Called at load time so a broken road never
// reaches the march loop.
func (t *Template) Resolve(enemies *enemy.Registry) ([][]*enemy.Template, error) {
	out := make([][]*enemy.Template, 0, len(t.Encounters))
	for i, wave := range t.Encounters {
		tpls, err := enemies.Resolve(wave.Enemies)
		if err != nil {
			return nil, fmt.Errorf("road %q wave %d: %w", t.ID, i, err)
		}
		out = append(out, tpls)
	}
	return out, nil
}

// Registry is the id-keyed set of loaded roads.
type Registry struct {
	roads map[string]*Template
}

// NewRegistry returns an empty road registry.
func NewRegistry() *Registry {
	return &Registry{roads: make(map[string]*Template)}
}

// Register validates and stores a road, rejecting duplicates.
func (r *Registry) Register(tpl *Template) error {
	if violations := tpl.Validate(); len(violations) > 0 {
		return fmt.Errorf("invalid road %q: %w", tpl.ID, errors.Join(violations...))
	}
	if _, exists := r.roads[tpl.ID]; exists {
		return fmt.Errorf("road %q is already registered", tpl.ID)
	}
	r.roads[tpl.ID] = tpl
	return nil
}

// Get returns the road with the given id.
func (r *Registry) Get(id string) (*Template, error) {
	tpl, ok := r.roads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoad, id)
	}
	return tpl, nil
}

// IDs returns every registered road id in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.roads))
	for id := range r.roads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered roads.
func (r *Registry) Len() int {
	return len(r.roads)
}

type roadFile struct {
	Roads []*Template `yaml:"roads"`
}

// LoadDirectory walks dir and registers every road found in *.yaml files.
// Unknown fields are rejected so content typos surface at startup.
func LoadDirectory(dir string) (*Registry, error) {
	registry := NewRegistry()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		var file roadFile
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for _, tpl := range file.Roads {
			if err := registry.Register(tpl); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return registry, nil
}
