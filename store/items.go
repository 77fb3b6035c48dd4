package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/norm"
)

// Item is a typed node in the entity graph.
type Item struct {
	ID         string         `json:"id"`
	Type       string         `json:"item_type"`
	Identifier string         `json:"identifier,omitempty"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

const (
	itemColumns = "id, item_type, identifier, properties, created_at, updated_at"

	itemInsertQuery = `
		INSERT INTO items (id, item_type, identifier, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	itemSelectQuery = `SELECT ` + itemColumns + ` FROM items WHERE id = ?`
)

// CreateItem creates a new item. The type must be registered. When the
// type descriptor sets unique_identifier, a second item with the same
// normalized identifier fails with ErrConflict.
func (s *Store) CreateItem(ctx context.Context, itemType, identifier string, properties map[string]any) (*Item, error) {
	desc, ok := s.types.Get(itemType)
	if !ok {
		return nil, errors.NewInvalidRequestf("unknown item type %q", itemType)
	}

	if desc.UniqueIdentifier && identifier != "" {
		existing, err := s.FindByIdentifier(ctx, itemType, identifier)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, errors.WithHintf(
				errors.Wrapf(errors.ErrConflict, "identifier %q already exists for type %s", identifier, itemType),
				"identifiers of type %s must be unique", itemType)
		}
	}

	propsJSON, err := marshalProps(properties)
	if err != nil {
		return nil, err
	}

	item := &Item{
		ID:         uuid.NewString(),
		Type:       itemType,
		Identifier: identifier,
		Properties: properties,
		CreatedAt:  now(),
		UpdatedAt:  now(),
	}
	if item.Properties == nil {
		item.Properties = map[string]any{}
	}

	_, err = s.q.ExecContext(ctx, itemInsertQuery,
		item.ID, item.Type, item.Identifier, propsJSON, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s item", itemType)
	}

	if s.logger != nil {
		s.logger.Debugw("item created",
			"item_id", item.ID,
			"item_type", itemType,
			"identifier", identifier,
		)
	}
	return item, nil
}

// GetItem fetches an item by id.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.q.QueryRowContext(ctx, itemSelectQuery, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundf("item %s", id)
	}
	return item, err
}

// GetItems fetches multiple items by id, skipping ids that do not exist.
func (s *Store) GetItems(ctx context.Context, ids []string) ([]*Item, error) {
	items := make([]*Item, 0, len(ids))
	for _, id := range ids {
		item, err := s.GetItem(ctx, id)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// MergeItemProperties merges the given keys into the item's property bag.
// Absent keys are untouched; a nil value removes the key.
func (s *Store) MergeItemProperties(ctx context.Context, id string, updates map[string]any) (*Item, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	for k, v := range updates {
		if v == nil {
			delete(item.Properties, k)
			continue
		}
		item.Properties[k] = v
	}

	propsJSON, err := marshalProps(item.Properties)
	if err != nil {
		return nil, err
	}

	item.UpdatedAt = now()
	_, err = s.q.ExecContext(ctx,
		"UPDATE items SET properties = ?, updated_at = ? WHERE id = ?",
		propsJSON, item.UpdatedAt, id)
	if err != nil {
		return nil, errors.Wrapf(err, "updating item %s", id)
	}
	return item, nil
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	Type string
	// IdentifierQuery matches items whose normalized identifier contains
	// the normalized query string.
	IdentifierQuery string
	Limit           int
}

// ListItems returns items matching the filter, most recently updated
// first. Identifier search happens on the normalized form so "door 101"
// finds "Door101".
func (s *Store) ListItems(ctx context.Context, filter ItemFilter) ([]*Item, error) {
	query := "SELECT " + itemColumns + " FROM items"
	var conds []string
	var args []any

	if filter.Type != "" {
		conds = append(conds, "item_type = ?")
		args = append(args, filter.Type)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC, id"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing items")
	}
	defer rows.Close()

	needle := norm.NormalizeIdentifier(filter.IdentifierQuery)
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		if needle != "" && !strings.Contains(norm.NormalizeIdentifier(item.Identifier), needle) {
			continue
		}
		items = append(items, item)
		if filter.Limit > 0 && len(items) >= filter.Limit {
			break
		}
	}
	return items, rows.Err()
}

// FindByIdentifier returns the item of the given type whose normalized
// identifier matches, or nil when none does. With duplicate identifiers
// permitted, the oldest item wins; the identity matcher surfaces the
// rest as candidates.
func (s *Store) FindByIdentifier(ctx context.Context, itemType, identifier string) (*Item, error) {
	matches, err := s.FindAllByIdentifier(ctx, itemType, identifier)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

// FindAllByIdentifier returns every item of the type whose normalized
// identifier matches, oldest first.
func (s *Store) FindAllByIdentifier(ctx context.Context, itemType, identifier string) ([]*Item, error) {
	needle := norm.NormalizeIdentifier(identifier)
	if needle == "" {
		return nil, nil
	}

	rows, err := s.q.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM items WHERE item_type = ? ORDER BY created_at, id",
		itemType)
	if err != nil {
		return nil, errors.Wrap(err, "querying items by identifier")
	}
	defer rows.Close()

	var matches []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		if norm.NormalizeIdentifier(item.Identifier) == needle {
			matches = append(matches, item)
		}
	}
	return matches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var identifier sql.NullString
	var propsJSON string
	if err := row.Scan(&item.ID, &item.Type, &identifier, &propsJSON, &item.CreatedAt, &item.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scanning item")
	}
	item.Identifier = identifier.String

	props, err := unmarshalProps(propsJSON)
	if err != nil {
		return nil, err
	}
	item.Properties = props
	return &item, nil
}
