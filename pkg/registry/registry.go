// pkg/registry/registry.go
package registry

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadRegistry reads and validates a pass registry file.
func LoadRegistry(path string) (*PassRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a registry document. Unknown fields are rejected.
func Parse(data []byte) (*PassRegistry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var reg PassRegistry
	if err := dec.Decode(&reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks ids, artifact kinds and that dependencies exist and form
// no cycle.
func (r *PassRegistry) Validate() error {
	seen := make(map[string]bool, len(r.Passes))
	for _, p := range r.Passes {
		if p.ID == "" {
			return fmt.Errorf("pass with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate pass %q", p.ID)
		}
		seen[p.ID] = true
		if !p.ArtifactKind.Valid() {
			return fmt.Errorf("pass %q: invalid artifact kind %q", p.ID, p.ArtifactKind)
		}
		if p.MaxRetries != nil && *p.MaxRetries < 0 {
			return fmt.Errorf("pass %q: max_retries must not be negative", p.ID)
		}
	}
	for _, p := range r.Passes {
		for _, dep := range p.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("pass %q depends on unknown pass %q", p.ID, dep)
			}
		}
	}
	if cycle := r.findCycle(); cycle != nil {
		return fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> "))
	}
	return nil
}

const (
	unvisited = iota
	visiting
	done
)

func (r *PassRegistry) findCycle() []string {
	state := make(map[string]int, len(r.Passes))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = visiting
		stack = append(stack, id)
		p, _ := r.Get(id)
		for _, dep := range p.DependsOn {
			switch state[dep] {
			case visiting:
				for i, s := range stack {
					if s == dep {
						return append(append([]string{}, stack[i:]...), dep)
					}
				}
			case unvisited:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, p := range r.Passes {
		if state[p.ID] == unvisited {
			if c := visit(p.ID); c != nil {
				return c
			}
		}
	}
	return nil
}

// Get returns the pass with the given id.
func (r *PassRegistry) Get(id string) (*Pass, bool) {
	for i := range r.Passes {
		if r.Passes[i].ID == id {
			return &r.Passes[i], true
		}
	}
	return nil, false
}

// Order returns pass ids so that every pass follows its dependencies. Ties
// keep file order. The registry must be valid.
func (r *PassRegistry) Order() []string {
	placed := make(map[string]bool, len(r.Passes))
	out := make([]string, 0, len(r.Passes))
	for len(out) < len(r.Passes) {
		progressed := false
		for _, p := range r.Passes {
			if placed[p.ID] || !allPlaced(p.DependsOn, placed) {
				continue
			}
			placed[p.ID] = true
			out = append(out, p.ID)
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

func allPlaced(ids []string, placed map[string]bool) bool {
	for _, id := range ids {
		if !placed[id] {
			return false
		}
	}
	return true
}

// Retries returns the pass override or def.
func (p *Pass) Retries(def int) int {
	if p.MaxRetries != nil {
		return *p.MaxRetries
	}
	return def
}
