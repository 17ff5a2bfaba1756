package records

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/schema"
)

// Record is one row keyed by column name
type Record map[string]interface{}

// ValueValidator coerces client values to the declared field types
type ValueValidator struct {
	validate *validator.Validate
}

// NewValueValidator creates a value validator
func NewValueValidator() *ValueValidator {
	return &ValueValidator{validate: validator.New()}
}

// Values checks every key of values against table and returns the
// coerced copy. On create, missing fields receive their declared default
// and missing required fields are rejected.
func (v *ValueValidator) Values(table *schema.Table, values map[string]interface{}, create bool) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(values))

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		raw := values[name]
		if name == schema.ColumnOrganizationID && table.OrganizationScoped {
			out[name] = raw
			continue
		}
		field, ok := table.Field(name)
		if !ok {
			return nil, apperrors.Validationf("Unknown field '%s'", name)
		}
		val, err := v.coerce(field, raw)
		if err != nil {
			return nil, err
		}
		out[name] = val
	}

	if !create {
		return out, nil
	}
	for i := range table.Fields {
		f := &table.Fields[i]
		if f.Name == table.PrimaryKey {
			continue
		}
		if _, ok := out[f.Name]; ok {
			continue
		}
		if f.Default != nil {
			val, err := v.coerce(f, f.Default)
			if err != nil {
				return nil, err
			}
			out[f.Name] = val
			continue
		}
		if f.Required {
			return nil, apperrors.Validationf("Field '%s' is required", f.Name)
		}
	}
	return out, nil
}

func (v *ValueValidator) coerce(f *schema.Field, raw interface{}) (interface{}, error) {
	if raw == nil {
		if f.Required {
			return nil, apperrors.Validationf("Field '%s' is required", f.Name)
		}
		return nil, nil
	}

	invalid := func() error {
		return apperrors.Validationf("Invalid value for field '%s': expected %s", f.Name, f.Type)
	}

	switch f.Type {
	case schema.TypeText:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid()
		}
		return s, nil

	case schema.TypeEmail, schema.TypeUUID:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid()
		}
		tag := "email"
		if f.Type == schema.TypeUUID {
			tag = "uuid"
		}
		if err := v.validate.Var(s, tag); err != nil {
			return nil, invalid()
		}
		return s, nil

	case schema.TypeInteger:
		n, ok := toInt64(raw)
		if !ok {
			return nil, invalid()
		}
		return n, nil

	case schema.TypeDecimal:
		switch n := raw.(type) {
		case json.Number:
			if _, err := n.Float64(); err != nil {
				return nil, invalid()
			}
			return n.String(), nil
		case float64:
			return strconv.FormatFloat(n, 'f', -1, 64), nil
		case int, int64:
			return fmt.Sprint(n), nil
		case string:
			if _, err := strconv.ParseFloat(n, 64); err != nil {
				return nil, invalid()
			}
			return n, nil
		}
		return nil, invalid()

	case schema.TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, invalid()
		}
		return b, nil

	case schema.TypeDatetime:
		switch t := raw.(type) {
		case time.Time:
			return t, nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, invalid()
			}
			return parsed, nil
		}
		return nil, invalid()

	case schema.TypeJSON:
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, invalid()
		}
		return string(data), nil
	}

	return nil, invalid()
}

func toInt64(raw interface{}) (int64, bool) {
	switch n := raw.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// decodeColumn converts a scanned driver value into its response form.
// lib/pq returns numeric, uuid and jsonb columns as bytes.
func decodeColumn(t schema.FieldType, raw interface{}) interface{} {
	b, ok := raw.([]byte)
	if !ok {
		return raw
	}
	switch t {
	case schema.TypeDecimal:
		return json.Number(string(b))
	case schema.TypeJSON:
		return json.RawMessage(append([]byte(nil), b...))
	}
	return string(b)
}
