// Package registry holds the item type registry. Item types are an open
// enumeration configured in YAML, not a fixed Go enum; core algorithms
// consult capability flags on a descriptor and never branch on type names.
package registry

import (
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/cadencehq/cadence/errors"
)

// PropertyDef describes a known property of an item type. Unknown
// properties are still accepted on items; a def only adds metadata such
// as which normalizer the comparison engine should use.
type PropertyDef struct {
	Name       string `yaml:"name" json:"name"`
	Label      string `yaml:"label,omitempty" json:"label,omitempty"`
	Normalizer string `yaml:"normalizer,omitempty" json:"normalizer,omitempty"`
}

// TypeDescriptor describes one item type and its capabilities.
type TypeDescriptor struct {
	Name  string `yaml:"name" json:"name"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`

	// Temporal marks the type usable as a snapshot time anchor. Temporal
	// items carry an integer ordinal property that defines sequencing.
	Temporal bool `yaml:"temporal,omitempty" json:"temporal,omitempty"`

	// Source marks the type as a domain authority that may assert
	// snapshots about other items.
	Source bool `yaml:"source,omitempty" json:"source,omitempty"`

	// Workflow marks derived bookkeeping types. Workflow items never
	// participate as sources in conflict detection or the resolved view.
	Workflow bool `yaml:"workflow,omitempty" json:"workflow,omitempty"`

	// Navigable marks types that appear in breadcrumb navigation.
	Navigable bool `yaml:"navigable,omitempty" json:"navigable,omitempty"`

	// ActionItem marks types surfaced as pending work (changes,
	// conflicts awaiting review).
	ActionItem bool `yaml:"action_item,omitempty" json:"action_item,omitempty"`

	// UniqueIdentifier enforces type-scoped identifier uniqueness on
	// creation. Off by default; duplicate identifiers are legal.
	UniqueIdentifier bool `yaml:"unique_identifier,omitempty" json:"unique_identifier,omitempty"`

	// OrdinalProperty names the property holding the sequencing ordinal
	// for temporal types. Defaults to "ordinal".
	OrdinalProperty string `yaml:"ordinal_property,omitempty" json:"ordinal_property,omitempty"`

	Properties []PropertyDef `yaml:"properties,omitempty" json:"properties,omitempty"`

	// ValidTargets restricts which types this type may connect to.
	// Empty means unrestricted.
	ValidTargets []string `yaml:"valid_targets,omitempty" json:"valid_targets,omitempty"`
}

// DefaultOrdinalProperty is the property temporal items use for
// sequencing unless their descriptor overrides it.
const DefaultOrdinalProperty = "ordinal"

type registryFile struct {
	Types []TypeDescriptor `yaml:"types"`
}

// Registry is a thread-safe lookup of type descriptors. It is safe to
// swap the descriptor set at runtime (hot reload).
type Registry struct {
	mu    sync.RWMutex
	types map[string]TypeDescriptor
	order []string

	watcher *watcher
}

// New builds a registry from descriptors.
func New(descriptors []TypeDescriptor) (*Registry, error) {
	r := &Registry{}
	if err := r.replace(descriptors); err != nil {
		return nil, err
	}
	return r, nil
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "parsing type registry")
	}
	return New(file.Types)
}

func (r *Registry) replace(descriptors []TypeDescriptor) error {
	types := make(map[string]TypeDescriptor, len(descriptors))
	order := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" {
			return errors.New("type descriptor missing name")
		}
		if _, dup := types[d.Name]; dup {
			return errors.Newf("duplicate type descriptor %q", d.Name)
		}
		if d.Temporal && d.OrdinalProperty == "" {
			d.OrdinalProperty = DefaultOrdinalProperty
		}
		types[d.Name] = d
		order = append(order, d.Name)
	}

	r.mu.Lock()
	r.types = types
	r.order = order
	r.mu.Unlock()
	return nil
}

// Get returns the descriptor for a type name.
func (r *Registry) Get(name string) (TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[name]
	return d, ok
}

// All returns descriptors in declaration order.
func (r *Registry) All() []TypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TypeDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// Known reports whether the type name is registered.
func (r *Registry) Known(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// IsTemporal reports whether items of the type may serve as time anchors.
func (r *Registry) IsTemporal(name string) bool {
	d, ok := r.Get(name)
	return ok && d.Temporal
}

// IsWorkflow reports whether the type is derived bookkeeping. Workflow
// items are excluded as sources from conflict detection and the
// resolved view.
func (r *Registry) IsWorkflow(name string) bool {
	d, ok := r.Get(name)
	return ok && d.Workflow
}

// IsSource reports whether items of the type may assert snapshots about
// other items.
func (r *Registry) IsSource(name string) bool {
	d, ok := r.Get(name)
	return ok && d.Source
}

// IsNavigable reports whether the type participates in breadcrumbs.
func (r *Registry) IsNavigable(name string) bool {
	d, ok := r.Get(name)
	return ok && d.Navigable
}

// OrdinalProperty returns the sequencing property for a temporal type,
// or empty if the type is unknown or not temporal.
func (r *Registry) OrdinalProperty(name string) string {
	d, ok := r.Get(name)
	if !ok || !d.Temporal {
		return ""
	}
	return d.OrdinalProperty
}

// NormalizerFor returns the registered normalizer name for a property of
// a type, or empty when none is configured.
func (r *Registry) NormalizerFor(typeName, property string) string {
	d, ok := r.Get(typeName)
	if !ok {
		return ""
	}
	for _, p := range d.Properties {
		if p.Name == property {
			return p.Normalizer
		}
	}
	return ""
}

// ValidTarget reports whether fromType may connect to toType. Types
// without a ValidTargets list may connect to anything.
func (r *Registry) ValidTarget(fromType, toType string) bool {
	d, ok := r.Get(fromType)
	if !ok {
		return false
	}
	if len(d.ValidTargets) == 0 {
		return true
	}
	for _, t := range d.ValidTargets {
		if t == toType {
			return true
		}
	}
	return false
}
