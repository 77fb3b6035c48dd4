package logger

// Standard field names for consistent structured logging across Cadence.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldItemID     = "item_id"
	FieldAnchorID   = "anchor_id"
	FieldSourceID   = "source_id"
	FieldBatchID    = "batch_id"
	FieldScope      = "scope"
	FieldIdentifier = "identifier"
	FieldItemType   = "item_type"
	FieldProperty   = "property"

	// Components
	FieldComponent = "component"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount     = "count"
	FieldRowCount  = "row_count"
	FieldBatchSize = "batch_size"

	// Status
	FieldStatus = "status"
)
