package ability

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marchaven/roadband/internal/game/stats"
)

// ErrUnknownAbility indicates a lookup for an ability id that is not in the
// registry.
var ErrUnknownAbility = errors.New("unknown ability")

// BasicAttackID is the id of the built-in fallback attack every combatant
// can always use.
const BasicAttackID = "basic_attack"

// Basic returns the built-in fallback attack. It costs nothing, has no
// cooldown, and scales attack power at 1x.
func Basic() *Definition {
	return &Definition{
		ID:           BasicAttackID,
		Name:         "Basic Attack",
		Kind:         KindAttack,
		School:       stats.SchoolPhysical,
		Multiplier:   1,
		ThreatFactor: 1,
	}
}

// Registry holds the validated ability catalog keyed by id. The built-in
// basic attack is always present.
type Registry struct {
	definitions map[string]*Definition
}

// NewRegistry returns an empty registry seeded with the basic attack.
func NewRegistry() *Registry {
	r := &Registry{definitions: make(map[string]*Definition)}
	r.definitions[BasicAttackID] = Basic()
	return r
}

// Register adds a definition to the registry. It returns an error when the
// definition fails validation or when the id is already taken.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("register: nil ability definition")
	}
	if violations := def.Validate(); len(violations) > 0 {
		return fmt.Errorf("ability %q is invalid: %w", def.ID, errors.Join(violations...))
	}
	if _, exists := r.definitions[def.ID]; exists {
		return fmt.Errorf("ability %q is already registered", def.ID)
	}
	r.definitions[def.ID] = def
	return nil
}

// Get returns the definition for the given id.
func (r *Registry) Get(id string) (*Definition, error) {
	def, ok := r.definitions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAbility, id)
	}
	return def, nil
}

// Resolve maps a list of ability ids to their definitions, preserving
// order. It fails on the first unknown id.
func (r *Registry) Resolve(ids []string) ([]*Definition, error) {
	defs := make([]*Definition, 0, len(ids))
	for _, id := range ids {
		def, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// IDs returns all registered ability ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.definitions))
	for id := range r.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered abilities, including the built-in
// basic attack.
func (r *Registry) Len() int {
	return len(r.definitions)
}

type abilityFile struct {
	Abilities []*Definition `yaml:"abilities"`
}

// LoadDirectory reads every .yaml file under dir into a fresh registry.
// Unknown fields in the content are rejected so that typos fail loudly at
// startup instead of silently authoring a different ability.
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
			return fmt.Errorf("open ability file %s: %w", path, err)
		}
		defer file.Close()

		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		var contents abilityFile
		if err := dec.Decode(&contents); err != nil {
			return fmt.Errorf("decode ability file %s: %w", path, err)
		}
		for _, def := range contents.Abilities {
			if err := registry.Register(def); err != nil {
				return fmt.Errorf("ability file %s: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return registry, nil
}
