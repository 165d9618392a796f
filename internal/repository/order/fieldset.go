package order

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Additional-Code/palate/internal/entity"
)

// Fieldset is a sparse patch as received from a caller. Values stay raw so the
// type of each one can be checked before anything is written.
type Fieldset map[string]json.RawMessage

// ItemsField is the only non-string key a patch may carry.
const ItemsField = "items"

// StringFields lists the patchable text columns in validation order.
var StringFields = []string{
	"customer_name",
	"customer_phone",
	"customer_email",
	"customer_address",
	"allergies",
	"status",
}

// ValidationError names the patch field whose value was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Assignment is one validated column update.
type Assignment struct {
	Column string
	Value  string
}

// Changes is a validated patch, ready to be applied.
type Changes struct {
	Assignments []Assignment
	Items       []entity.LineItem
	HasItems    bool
}

// Empty reports whether applying the changes would write nothing.
func (c Changes) Empty() bool {
	return len(c.Assignments) == 0 && !c.HasItems
}

// Validate checks every recognised key of the fieldset and returns the
// resulting changes. Unknown keys are ignored. Nothing is returned on error,
// so a rejected patch can never be half-applied.
func (f Fieldset) Validate() (Changes, error) {
	var changes Changes

	for _, field := range StringFields {
		raw, ok := f[field]
		if !ok {
			continue
		}
		value, err := coerceString(raw)
		if err != nil {
			return Changes{}, &ValidationError{Field: field, Message: fmt.Sprintf("%s must be a string", field)}
		}
		changes.Assignments = append(changes.Assignments, Assignment{Column: field, Value: value})
	}

	if raw, ok := f[ItemsField]; ok {
		items, err := decodeItems(raw)
		if err != nil {
			return Changes{}, &ValidationError{Field: ItemsField, Message: "Items must be an array"}
		}
		changes.Items = items
		changes.HasItems = true
	}

	return changes, nil
}

// coerceString accepts JSON strings and treats the falsy literals null, false
// and 0 as the empty string. Anything else is rejected.
func coerceString(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case 'n', 'f':
		if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("false")) {
			return "", nil
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err == nil {
			if v, err := n.Float64(); err == nil && v == 0 {
				return "", nil
			}
		}
	}

	return "", fmt.Errorf("not a string: %s", trimmed)
}

func decodeItems(raw json.RawMessage) ([]entity.LineItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("not an array")
	}

	items := make([]entity.LineItem, 0)
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	return items, nil
}
