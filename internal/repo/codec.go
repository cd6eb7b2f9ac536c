package repo

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// encodeJSON сериализует значение для хранения.
// Nil map сохраняется как пустой объект.
func encodeJSON(v any) ([]byte, error) {
	if m, ok := v.(map[string]any); ok && m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return b, nil
}

// decodeJSON десериализует сохранённое значение. Пустой ввод — no-op.
func decodeJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}
