// Package nav imposes a hierarchical feel on the flat item graph. The
// client carries a breadcrumb (ordered item ids); navigating to a target
// either backtracks, drills forward, or bounces back to the nearest
// ancestor that connects to the target. The graph is cyclic, so every
// traversal is depth-bounded and visited-set tracked.
package nav

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/store"
)

// Engine answers navigation queries against the store.
type Engine struct {
	store    *store.Store
	maxDepth int
	logger   *zap.SugaredLogger
}

// New creates a navigation engine. maxDepth bounds reachability
// traversal; logger may be nil.
func New(s *store.Store, maxDepth int, logger *zap.SugaredLogger) *Engine {
	if maxDepth <= 0 {
		maxDepth = 16
	}
	return &Engine{store: s, maxDepth: maxDepth, logger: logger}
}

// Navigate computes the breadcrumb after moving to target.
//
//  1. Target already at the head: no-op.
//  2. Target elsewhere in the breadcrumb: pure backtrack, pop everything
//     after it.
//  3. Target connected to the head: forward drill, push.
//  4. Otherwise scan ancestors from the second-to-last entry backward;
//     the first one connected to target becomes the truncation point,
//     then target is pushed (bounce-back).
//  5. No ancestor connects: ErrNoPath. The caller decides what that
//     means; the engine never silently resets.
//
// An empty breadcrumb starts fresh at the target.
//
// Only navigable types can be targets; workflow bookkeeping and time
// anchors are reviewed through their own surfaces, not walked to.
func (e *Engine) Navigate(ctx context.Context, breadcrumb []string, target string) ([]string, error) {
	item, err := e.store.GetItem(ctx, target)
	if err != nil {
		return nil, err
	}
	if !e.store.Types().IsNavigable(item.Type) {
		return nil, errors.NewInvalidRequestf("item %s (%s) is not navigable", item.ID, item.Type)
	}

	if len(breadcrumb) == 0 {
		return []string{target}, nil
	}

	head := breadcrumb[len(breadcrumb)-1]
	if head == target {
		return breadcrumb, nil
	}

	for i, id := range breadcrumb {
		if id == target {
			return append([]string(nil), breadcrumb[:i+1]...), nil
		}
	}

	connected, err := e.store.AreConnected(ctx, head, target)
	if err != nil {
		return nil, err
	}
	if connected {
		return append(append([]string(nil), breadcrumb...), target), nil
	}

	for i := len(breadcrumb) - 2; i >= 0; i-- {
		connected, err := e.store.AreConnected(ctx, breadcrumb[i], target)
		if err != nil {
			return nil, err
		}
		if connected {
			next := append([]string(nil), breadcrumb[:i+1]...)
			return append(next, target), nil
		}
	}

	return nil, errors.Wrapf(errors.ErrNoPath, "from %s to %s", head, target)
}

// Reachable reports whether to can be reached from from within the
// engine's depth bound, following live edges in both directions.
func (e *Engine) Reachable(ctx context.Context, from, to string) (bool, error) {
	if from == to {
		return true, nil
	}

	visited := map[string]bool{from: true}
	frontier := []string{from}

	for depth := 0; depth < e.maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := e.store.ConnectedItems(ctx, id, store.AdjacencyFilter{})
			if err != nil {
				return false, err
			}
			for _, n := range neighbors {
				if n.ID == to {
					return true, nil
				}
				if visited[n.ID] {
					continue
				}
				visited[n.ID] = true
				next = append(next, n.ID)
			}
		}
		frontier = next
	}
	return false, nil
}

// ActionCounts tallies pending action items attached to an item, keyed
// by their type name (changes, conflicts, and whatever other types a
// deployment flags as action items).
type ActionCounts map[string]int

// ConnectedItem is one neighbor with its pending action counts.
type ConnectedItem struct {
	Item    *store.Item  `json:"item"`
	Actions ActionCounts `json:"actions"`
}

// Group is the neighbors of one type, sorted by identifier.
type Group struct {
	Type  string          `json:"type"`
	Items []ConnectedItem `json:"items"`
}

// Connected returns an item's non-workflow neighbors grouped by type,
// each annotated with how many unreviewed changes and unresolved
// conflicts hang off it.
func (e *Engine) Connected(ctx context.Context, itemID string, filter store.AdjacencyFilter) ([]Group, error) {
	neighbors, err := e.store.ConnectedItems(ctx, itemID, filter)
	if err != nil {
		return nil, err
	}

	byType := make(map[string][]ConnectedItem)
	for _, item := range neighbors {
		if e.store.Types().IsWorkflow(item.Type) {
			continue
		}
		actions, err := e.pendingActions(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		byType[item.Type] = append(byType[item.Type], ConnectedItem{Item: item, Actions: actions})
	}

	groups := make([]Group, 0, len(byType))
	for itemType, items := range byType {
		sort.Slice(items, func(i, j int) bool {
			return items[i].Item.Identifier < items[j].Item.Identifier
		})
		groups = append(groups, Group{Type: itemType, Items: items})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Type < groups[j].Type
	})
	return groups, nil
}

// pendingActions counts the item's attached action items (per their
// registry flag) whose latest status is still DETECTED.
func (e *Engine) pendingActions(ctx context.Context, itemID string) (ActionCounts, error) {
	var actionTypes []string
	for _, desc := range e.store.Types().All() {
		if desc.ActionItem {
			actionTypes = append(actionTypes, desc.Name)
		}
	}

	counts := make(ActionCounts)
	if len(actionTypes) == 0 {
		return counts, nil
	}

	attached, err := e.store.ConnectedItems(ctx, itemID, store.AdjacencyFilter{
		Types: actionTypes,
	})
	if err != nil {
		return counts, err
	}

	for _, action := range attached {
		snaps, err := e.store.ListSnapshots(ctx, store.SnapshotFilter{
			ItemID: action.ID, SourceID: action.ID,
		})
		if err != nil {
			return counts, err
		}
		if len(snaps) == 0 {
			continue
		}
		if status, _ := snaps[0].Properties["status"].(string); status != "DETECTED" {
			continue
		}
		counts[action.Type]++
	}
	return counts, nil
}
