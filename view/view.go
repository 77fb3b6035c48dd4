// Package view composes read-time merges of multi-source assertions.
// Nothing here is a system of record; every result is re-derivable from
// the snapshot store.
package view

import (
	"context"
	"sort"

	"github.com/cadencehq/cadence/norm"
	"github.com/cadencehq/cadence/store"
	"github.com/cadencehq/cadence/temporal"
)

// Per-property statuses of the resolved view.
const (
	StatusSingleSource = "single_source"
	StatusAgreed       = "agreed"
	StatusConflicted   = "conflicted"
	StatusResolved     = "resolved"
)

// PropertyStatus is one property of the resolved view: who says what,
// and where the property stands.
type PropertyStatus struct {
	Property string `json:"property"`
	Status   string `json:"status"`
	// Value is the merged value: the sole value for single_source and
	// agreed, the decision's chosen value for resolved, nil while
	// conflicted.
	Value any `json:"value"`
	// Values maps source id to that source's effective value.
	Values map[string]any `json:"values"`
	// DecisionID is set when a decision resolves the property.
	DecisionID string `json:"decision_id,omitempty"`
}

// Composer builds resolved views.
type Composer struct {
	store    *store.Store
	resolver *temporal.Resolver
}

// New creates a composer over the store.
func New(s *store.Store) *Composer {
	return &Composer{store: s, resolver: temporal.New(s)}
}

// ResolvedView merges every source's effective assertion about the
// subject as of an anchor into per-property statuses, sorted by property
// name. Workflow items never contribute values. Disagreement with an
// existing decision reports resolved with the decided value; without one
// it reports conflicted.
func (c *Composer) ResolvedView(ctx context.Context, subjectID, anchorID string) ([]PropertyStatus, error) {
	subject, err := c.store.GetItem(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	effectives, err := c.resolver.EffectiveBySource(ctx, subjectID, anchorID)
	if err != nil {
		return nil, err
	}

	byProp := make(map[string]map[string]any)
	for sourceID, eff := range effectives {
		for prop, value := range eff.Snapshot.Properties {
			if byProp[prop] == nil {
				byProp[prop] = make(map[string]any)
			}
			byProp[prop][sourceID] = value
		}
	}

	lookup := func(prop string) string {
		return c.store.Types().NormalizerFor(subject.Type, prop)
	}

	statuses := make([]PropertyStatus, 0, len(byProp))
	for prop, values := range byProp {
		status, err := c.propertyStatus(ctx, subjectID, prop, values, lookup(prop))
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Property < statuses[j].Property
	})
	return statuses, nil
}

func (c *Composer) propertyStatus(ctx context.Context, subjectID, prop string, values map[string]any, normalizer string) (PropertyStatus, error) {
	status := PropertyStatus{Property: prop, Values: values}

	if len(values) == 1 {
		status.Status = StatusSingleSource
		for _, v := range values {
			status.Value = v
		}
		return status, nil
	}

	agreed := true
	var reference any
	first := true
	for _, v := range values {
		if first {
			reference = v
			first = false
			continue
		}
		if !norm.EqualWith(normalizer, reference, v) {
			agreed = false
			break
		}
	}
	if agreed {
		status.Status = StatusAgreed
		status.Value = reference
		return status, nil
	}

	decision, err := c.findDecision(ctx, subjectID, prop)
	if err != nil {
		return status, err
	}
	if decision != nil {
		status.Status = StatusResolved
		status.Value = decision.Properties["chosen_value"]
		status.DecisionID = decision.ID
		return status, nil
	}

	status.Status = StatusConflicted
	return status, nil
}

// findDecision returns the newest decision for (subject, property), or
// nil when none exists.
func (c *Composer) findDecision(ctx context.Context, subjectID, prop string) (*store.Item, error) {
	decisions, err := c.store.ListItems(ctx, store.ItemFilter{Type: "decision"})
	if err != nil {
		return nil, err
	}

	var newest *store.Item
	for _, d := range decisions {
		if sid, _ := d.Properties["subject_id"].(string); sid != subjectID {
			continue
		}
		if p, _ := d.Properties["property"].(string); p != prop {
			continue
		}
		if newest == nil || d.CreatedAt.After(newest.CreatedAt) {
			newest = d
		}
	}
	return newest, nil
}

// EffectiveValue exposes one source's carried-forward assertion for a
// subject, with the anchor it actually came from. Returns nil when the
// source has never asserted at or before the anchor.
func (c *Composer) EffectiveValue(ctx context.Context, subjectID, sourceID, anchorID string) (*temporal.Effective, error) {
	return c.resolver.EffectiveAssertion(ctx, subjectID, sourceID, anchorID)
}
