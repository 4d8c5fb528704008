package ledger

import "fmt"

// fieldValidator is the one concrete Validator adapter: a small,
// struct-tag-free field checker matching the sanitize-and-validate
// contract of spec §6.
type fieldValidator struct{}

// NewFieldValidator returns the default Validator collaborator.
func NewFieldValidator() Validator { return fieldValidator{} }

func (fieldValidator) Validate(fields map[string]FieldSpec) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for name, spec := range fields {
		v := spec.Value
		if v == nil {
			if spec.Required {
				return nil, fmt.Errorf("%s is required", name)
			}
			v = spec.Default
		}
		if v != nil {
			if err := checkType(name, v, spec.Type); err != nil {
				return nil, err
			}
		}
		out[name] = v
	}
	return out, nil
}

func checkType(name string, v interface{}, kind string) error {
	switch kind {
	case "string":
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%s must be a string", name)
		}
	case "int":
		switch v.(type) {
		case int, int64, int32:
		default:
			return fmt.Errorf("%s must be an integer", name)
		}
	case "bool":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s must be a boolean", name)
		}
	case "map":
		if _, ok := v.(map[string]interface{}); !ok {
			return fmt.Errorf("%s must be an object", name)
		}
	}
	return nil
}
