package domain

import (
	"time"

	json "github.com/goccy/go-json"
)

// FlowDefinition — DAG из node, описывающий один flow.
//
// Инварианты:
//   - NodeID уникален в пределах одного DAG
//   - граф рёбер (NextNodeIDs) ацикличен
//
// Оба инварианта проверяются engine.Validator, а не здесь.
type FlowDefinition struct {
	// Name — имя flow (дублирует FlowRecord.Name для удобства логирования).
	Name string `json:"name" yaml:"name"`

	// Nodes — узлы DAG в порядке объявления.
	// Порядок объявления определяет порядок выполнения независимых узлов.
	Nodes []FlowNode `json:"nodes" yaml:"nodes"`
}

// FlowNode — узел DAG.
type FlowNode struct {
	// NodeID — уникальный идентификатор узла внутри DAG.
	NodeID string `json:"node_id" yaml:"node_id"`

	// Name — имя реализации node в реестре (node.Meta.Name).
	Name string `json:"name" yaml:"name"`

	// InputParams — значения входных параметров (ключ поля → значение).
	InputParams map[string]ParamValue `json:"input_params,omitempty" yaml:"input_params,omitempty"`

	// NextNodeIDs — узлы-преемники. Определяют рёбра DAG.
	NextNodeIDs []string `json:"next_node_ids,omitempty" yaml:"next_node_ids,omitempty"`
}

// ParamValue — значение параметра вместе с его источником.
type ParamValue struct {
	// Value — литерал для MANUAL; для NODE_OUTPUT игнорируется.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`

	// Source — откуда берётся значение.
	Source ParamSource `json:"source" yaml:"source"`
}

// Manual создаёт MANUAL-параметр.
func Manual(v any) ParamValue {
	return ParamValue{Value: v, Source: ParamSourceManual}
}

// FromNodeOutput создаёт NODE_OUTPUT-параметр.
func FromNodeOutput() ParamValue {
	return ParamValue{Source: ParamSourceNodeOutput}
}

// UnmarshalJSON подставляет MANUAL, если source не указан.
func (p *ParamValue) UnmarshalJSON(data []byte) error {
	type raw ParamValue
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if r.Source == "" {
		r.Source = ParamSourceManual
	}
	*p = ParamValue(r)
	return nil
}

// UnmarshalYAML подставляет MANUAL, если source не указан.
func (p *ParamValue) UnmarshalYAML(unmarshal func(any) error) error {
	type raw ParamValue
	var r raw
	if err := unmarshal(&r); err != nil {
		return err
	}
	if r.Source == "" {
		r.Source = ParamSourceManual
	}
	*p = ParamValue(r)
	return nil
}

// Node возвращает узел по NodeID.
func (d *FlowDefinition) Node(nodeID string) (*FlowNode, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].NodeID == nodeID {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// ManualParams возвращает все MANUAL-значения по всем узлам.
// При совпадении ключей побеждает узел, объявленный позже.
func (d *FlowDefinition) ManualParams() map[string]any {
	result := make(map[string]any)
	for _, n := range d.Nodes {
		for key, param := range n.InputParams {
			if param.Source == ParamSourceManual {
				result[key] = param.Value
			}
		}
	}
	return result
}

// FlowRecord — сохранённое определение flow.
//
// Удаление логическое (Deleted), чтобы не терять историю выполнений,
// которая ссылается на flow.
type FlowRecord struct {
	// ID — идентификатор flow.
	ID int64 `json:"id"`

	// Name — уникальное среди неудалённых flows имя.
	Name string `json:"name"`

	// Description — описание назначения flow.
	Description string `json:"description,omitempty"`

	// Definition — сериализуемый DAG.
	Definition FlowDefinition `json:"definition"`

	// CronExpr — cron-выражение расписания.
	// Формат: "минуты часы дни месяцы дни_недели" или дескриптор (@every 1h).
	CronExpr string `json:"cron_expr"`

	// Enabled — флаг активности расписания.
	Enabled bool `json:"enabled"`

	// Deleted — флаг логического удаления.
	Deleted bool `json:"deleted"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsSchedulable возвращает true, если flow должен иметь активный cron-триггер.
func (f *FlowRecord) IsSchedulable() bool {
	return f.Enabled && !f.Deleted
}

// FlowInfo — сводка по flow для списка в UI/CLI.
type FlowInfo struct {
	FlowID   int64  `json:"flow_id"`
	Name     string `json:"name"`
	CronExpr string `json:"cron_expr"`
	Enabled  bool   `json:"enabled"`

	// LastStatus — статус последнего выполнения (PENDING, если выполнений не было).
	LastStatus ExecStatus `json:"last_status"`

	// LastDurationSec — длительность последнего выполнения в секундах.
	// Для незавершённого выполнения считается до текущего момента.
	LastDurationSec int64 `json:"last_duration_sec"`
}
