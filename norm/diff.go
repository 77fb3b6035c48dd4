package norm

import "sort"

// PropertyChange records one property differing between two bags.
type PropertyChange struct {
	Property string `json:"property"`
	Old      any    `json:"old_value"`
	New      any    `json:"new_value"`
}

// NormalizerLookup resolves the normalizer name for a property. A nil
// lookup means no property uses a named normalizer.
type NormalizerLookup func(property string) string

// Diff compares two property bags and returns the changes, sorted by
// property name. A property present on only one side is a change with a
// nil counterpart. Equality goes through the per-property normalizer
// when lookup provides one.
func Diff(prev, next map[string]any, lookup NormalizerLookup) []PropertyChange {
	seen := make(map[string]bool, len(prev)+len(next))
	var changes []PropertyChange

	check := func(prop string) {
		if seen[prop] {
			return
		}
		seen[prop] = true

		oldVal, hadOld := prev[prop]
		newVal, hasNew := next[prop]
		if hadOld && hasNew && equalProp(prop, oldVal, newVal, lookup) {
			return
		}
		if !hadOld && !hasNew {
			return
		}
		changes = append(changes, PropertyChange{Property: prop, Old: oldVal, New: newVal})
	}

	for prop := range prev {
		check(prop)
	}
	for prop := range next {
		check(prop)
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Property < changes[j].Property
	})
	return changes
}

// DiffOverlap compares only properties present in both bags. Conflict
// detection uses this: a property one source never asserted is
// single-source, not a disagreement.
func DiffOverlap(a, b map[string]any, lookup NormalizerLookup) []PropertyChange {
	var changes []PropertyChange
	for prop, av := range a {
		bv, ok := b[prop]
		if !ok {
			continue
		}
		if equalProp(prop, av, bv, lookup) {
			continue
		}
		changes = append(changes, PropertyChange{Property: prop, Old: av, New: bv})
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Property < changes[j].Property
	})
	return changes
}

func equalProp(prop string, a, b any, lookup NormalizerLookup) bool {
	if lookup != nil {
		if name := lookup(prop); name != "" {
			return EqualWith(name, a, b)
		}
	}
	return ValuesEqual(a, b)
}
