package fields

import (
	"fmt"
	"math"
	"reflect"

	"github.com/goccy/go-json"
)

// Kind — закрытый набор семантических типов значений.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindObject Kind = "object"
)

// Valid проверяет, что тип известен.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindNumber, KindBool, KindList, KindObject:
		return true
	default:
		return false
	}
}

// Coerce приводит значение к каноническому представлению типа:
//   - string → string
//   - number → конечный float64 (принимаются все числовые типы Go и json.Number)
//   - bool   → bool
//   - list   → []any (элементы приводятся по elem, если он задан)
//   - object → map[string]any (структуры конвертируются через JSON)
//
// Списки и объекты копируются вглубь: результат не разделяет память
// с value. nil не является допустимым значением ни для одного типа.
func (k Kind) Coerce(value any, elem Kind) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("nil value")
	}

	switch k {
	case KindString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("got %T", value)
		}
		return s, nil

	case KindNumber:
		return toNumber(value)

	case KindBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("got %T", value)
		}
		return b, nil

	case KindList:
		return toList(value, elem)

	case KindObject:
		return toObject(value)

	default:
		return nil, fmt.Errorf("unsupported kind %q", k)
	}
}

func toNumber(value any) (any, error) {
	var f float64
	switch n := value.(type) {
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, err
		}
		f = parsed
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f = float64(rv.Uint())
		case reflect.Float32, reflect.Float64:
			f = rv.Float()
		default:
			return nil, fmt.Errorf("got %T", value)
		}
	}

	// NaN и ±Inf не кодируются в JSON
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return f, nil
}

func toList(value any, elem Kind) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("got %T", value)
	}

	result := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item := Clone(rv.Index(i).Interface())
		if elem != "" {
			coerced, err := elem.Coerce(item, "")
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			item = coerced
		}
		result[i] = item
	}
	return result, nil
}

func toObject(value any) (any, error) {
	switch m := value.(type) {
	case map[string]any:
		return Clone(m), nil
	case map[string]string:
		result := make(map[string]any, len(m))
		for k, v := range m {
			result[k] = v
		}
		return result, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("nil %T", value)
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key must be string, got %s", rv.Type().Key())
		}
		result := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			result[iter.Key().String()] = Clone(iter.Value().Interface())
		}
		return result, nil

	case reflect.Struct:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal %T: %w", value, err)
		}
		var result map[string]any
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("unmarshal %T: %w", value, err)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("got %T", value)
	}
}

// Clone возвращает глубокую копию вложенных []any и map[string]any.
// Прочие значения возвращаются как есть.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	default:
		return value
	}
}
