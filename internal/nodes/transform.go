package nodes

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	json "github.com/goccy/go-json"

	"github.com/shaiso/Flowstack/internal/fields"
	"github.com/shaiso/Flowstack/internal/node"
)

// NameTransform — имя node трансформации.
const NameTransform = "transform"

// Transform — node трансформации данных.
//
// Рендерит Go template из TEMPLATE над снимком FlowContext и записывает
// результат в TEMPLATE_RESULT:
//
//	{{ .HTTP_STATUS_CODE }} {{ .HTTP_RESPONSE_BODY | fromJSON | json }}
//	{{ default "GET" .HTTP_METHOD | upper }}
//
// Отсутствующий ключ рендерится как "<no value>"; ошибка разбора или
// выполнения шаблона является явным отказом node.
type Transform struct{}

// NewTransform создаёт новый Transform.
func NewTransform() *Transform {
	return &Transform{}
}

// Meta возвращает метаданные node.
func (t *Transform) Meta() node.Meta {
	return node.Meta{
		Name:        NameTransform,
		Description: "render a Go template over the flow context",
		Group:       "data",
		Inputs:      []string{fields.Template},
		Outputs:     []string{fields.TemplateResult},
	}
}

// Execute рендерит шаблон.
func (t *Transform) Execute(ctx context.Context, fc *node.Context) (*node.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	text, err := fc.String(fields.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, NameTransform, err)
	}

	rendered, err := Render(text, fc.Snapshot())
	if err != nil {
		return node.Failed(err.Error()), nil
	}

	return node.Success(map[string]any{fields.TemplateResult: rendered}), nil
}

// Render рендерит строковый шаблон над данными.
// Строка без "{{" возвращается без изменений.
func Render(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New(NameTransform).Funcs(templateFuncs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

// templateFuncs — дополнительные функции шаблонов.
var templateFuncs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	},

	"fromJSON": func(s string) (any, error) {
		var result any
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			return nil, err
		}
		return result, nil
	},

	// default возвращает def, если val пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	"join": func(sep string, items []any) string {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, sep)
	},

	"split":     func(sep, s string) []string { return strings.Split(s, sep) },
	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   strings.ReplaceAll,
}
