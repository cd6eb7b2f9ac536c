package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Flowstack/internal/domain"
	"github.com/shaiso/Flowstack/internal/node"
)

// Validator проверяет FlowDefinition перед выполнением.
type Validator struct {
	nodes *node.Registry
}

// NewValidator создаёт валидатор поверх реестра node.
func NewValidator(nodes *node.Registry) *Validator {
	return &Validator{nodes: nodes}
}

// Validate проверяет определение и возвращает узлы в порядке выполнения.
//
// Порядок проверок:
//  1. ID узлов непустые и уникальные (до любой сортировки)
//  2. каждая реализация node зарегистрирована
//  3. топологическая сортировка (ссылки на преемников, циклы)
func (v *Validator) Validate(def *domain.FlowDefinition) ([]domain.FlowNode, error) {
	if err := checkNodeIDs(def); err != nil {
		return nil, err
	}

	for _, n := range def.Nodes {
		if _, err := v.Implementation(n.Name); err != nil {
			return nil, NewValidationError(n.NodeID,
				fmt.Sprintf("unknown node implementation: %s", n.Name), ErrNodeImplementNotFound)
		}
	}

	return TopologicalSort(def)
}

// Implementation возвращает реализацию node по объявленному имени.
func (v *Validator) Implementation(name string) (node.Node, error) {
	impl, err := v.nodes.Get(name)
	if err != nil {
		if errors.Is(err, node.ErrNodeNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNodeImplementNotFound, name)
		}
		return nil, err
	}
	return impl, nil
}

// TopologicalSort упорядочивает узлы алгоритмом Кана по рёбрам NextNodeIDs.
//
// Узлы без входящих рёбер попадают в очередь в порядке объявления,
// преемники — в порядке, в котором они перечислены у узла. Если
// упорядочить удалось не все узлы, возвращается *CycleError.
func TopologicalSort(def *domain.FlowDefinition) ([]domain.FlowNode, error) {
	if err := checkNodeIDs(def); err != nil {
		return nil, err
	}

	total := len(def.Nodes)
	index := make(map[string]int, total)
	for i, n := range def.Nodes {
		index[n.NodeID] = i
	}

	inDegree := make([]int, total)
	for _, n := range def.Nodes {
		for _, next := range n.NextNodeIDs {
			j, ok := index[next]
			if !ok {
				return nil, NewValidationError(n.NodeID,
					fmt.Sprintf("successor not found: %s", next), ErrUnknownSuccessor)
			}
			inDegree[j]++
		}
	}

	queue := make([]int, 0, total)
	for i := range def.Nodes {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]domain.FlowNode, 0, total)
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, def.Nodes[i])

		for _, next := range def.Nodes[i].NextNodeIDs {
			j := index[next]
			inDegree[j]--
			if inDegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}

	if len(order) < total {
		remaining := make([]string, 0, total-len(order))
		for i, n := range def.Nodes {
			if inDegree[i] > 0 {
				remaining = append(remaining, n.NodeID)
			}
		}
		return nil, &CycleError{Ordered: len(order), Total: total, Remaining: remaining}
	}

	return order, nil
}

// checkNodeIDs проверяет, что ID узлов непустые и уникальные.
func checkNodeIDs(def *domain.FlowDefinition) error {
	seen := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		if n.NodeID == "" {
			return NewValidationError("", fmt.Sprintf("node %q has empty ID", n.Name), ErrEmptyNodeID)
		}
		if seen[n.NodeID] {
			return NewValidationError(n.NodeID, "duplicate node ID", ErrDuplicateNodeID)
		}
		seen[n.NodeID] = true
	}
	return nil
}
