package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flowstack/internal/domain"
)

func ids(nodes []domain.FlowNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.NodeID
	}
	return out
}

func chain(idsInOrder ...string) *domain.FlowDefinition {
	def := &domain.FlowDefinition{Name: "chain"}
	for i, id := range idsInOrder {
		n := domain.FlowNode{NodeID: id, Name: "pass"}
		if i+1 < len(idsInOrder) {
			n.NextNodeIDs = []string{idsInOrder[i+1]}
		}
		def.Nodes = append(def.Nodes, n)
	}
	return def
}

func TestTopologicalSort_Chain(t *testing.T) {
	order, err := TopologicalSort(chain("A", "B", "C"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(order))
}

func TestTopologicalSort_ReverseDeclaration(t *testing.T) {
	// C → B → A, объявлены в обратном порядке
	def := &domain.FlowDefinition{Nodes: []domain.FlowNode{
		{NodeID: "A"},
		{NodeID: "B", NextNodeIDs: []string{"A"}},
		{NodeID: "C", NextNodeIDs: []string{"B"}},
	}}

	order, err := TopologicalSort(def)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, ids(order))
}

func TestTopologicalSort_Diamond(t *testing.T) {
	// A → B → D
	// A → C → D
	def := &domain.FlowDefinition{Nodes: []domain.FlowNode{
		{NodeID: "A", NextNodeIDs: []string{"C", "B"}},
		{NodeID: "B", NextNodeIDs: []string{"D"}},
		{NodeID: "C", NextNodeIDs: []string{"D"}},
		{NodeID: "D"},
	}}

	order, err := TopologicalSort(def)
	require.NoError(t, err)
	// преемники в порядке перечисления у узла
	assert.Equal(t, []string{"A", "C", "B", "D"}, ids(order))
}

func TestTopologicalSort_IndependentNodesKeepDeclarationOrder(t *testing.T) {
	def := &domain.FlowDefinition{Nodes: []domain.FlowNode{
		{NodeID: "C"}, {NodeID: "A"}, {NodeID: "B"},
	}}

	order, err := TopologicalSort(def)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, ids(order))
}

func TestTopologicalSort_Empty(t *testing.T) {
	order, err := TopologicalSort(&domain.FlowDefinition{})
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestTopologicalSort_RandomAcyclicRespectsEdges(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(12)

		// рёбра только из меньшего ранга в больший — граф ацикличен
		rank := rng.Perm(n)
		def := &domain.FlowDefinition{}
		for i := 0; i < n; i++ {
			def.Nodes = append(def.Nodes, domain.FlowNode{NodeID: fmt.Sprintf("n%d", i)})
		}
		var edges [][2]int
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if rank[i] < rank[j] && rng.Intn(3) == 0 {
					def.Nodes[i].NextNodeIDs = append(def.Nodes[i].NextNodeIDs, def.Nodes[j].NodeID)
					edges = append(edges, [2]int{i, j})
				}
			}
		}

		order, err := TopologicalSort(def)
		require.NoError(t, err)
		require.Len(t, order, n)

		pos := make(map[string]int, n)
		for i, node := range order {
			pos[node.NodeID] = i
		}
		require.Len(t, pos, n, "result must be a permutation")

		for _, e := range edges {
			from, to := def.Nodes[e[0]].NodeID, def.Nodes[e[1]].NodeID
			assert.Less(t, pos[from], pos[to], "edge %s→%s", from, to)
		}
	}
}

func TestTopologicalSort_Cycle(t *testing.T) {
	def := &domain.FlowDefinition{Nodes: []domain.FlowNode{
		{NodeID: "A", NextNodeIDs: []string{"B"}},
		{NodeID: "B", NextNodeIDs: []string{"C"}},
		{NodeID: "C", NextNodeIDs: []string{"A"}},
		{NodeID: "D"},
	}}

	_, err := TopologicalSort(def)
	require.ErrorIs(t, err, ErrCyclicDependency)

	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Ordered)
	assert.Equal(t, 4, ce.Total)
	assert.Less(t, ce.Ordered, ce.Total)
	assert.Equal(t, []string{"A", "B", "C"}, ce.Remaining)
}

func TestTopologicalSort_SelfLoop(t *testing.T) {
	def := &domain.FlowDefinition{Nodes: []domain.FlowNode{
		{NodeID: "A", NextNodeIDs: []string{"A"}},
	}}

	_, err := TopologicalSort(def)
	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 0, ce.Ordered)
	assert.Equal(t, 1, ce.Total)
}

func TestTopologicalSort_RandomCyclicOrdersFewer(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 100; iter++ {
		n := 2 + rng.Intn(10)
		def := &domain.FlowDefinition{}
		for i := 0; i < n; i++ {
			def.Nodes = append(def.Nodes, domain.FlowNode{NodeID: fmt.Sprintf("n%d", i)})
		}
		for i := 0; i+1 < n; i++ {
			if rng.Intn(2) == 0 {
				def.Nodes[i].NextNodeIDs = append(def.Nodes[i].NextNodeIDs, def.Nodes[i+1].NodeID)
			}
		}
		// замыкаем цикл между двумя случайными узлами
		a := rng.Intn(n - 1)
		b := a + 1 + rng.Intn(n-a-1)
		def.Nodes[a].NextNodeIDs = append(def.Nodes[a].NextNodeIDs, def.Nodes[b].NodeID)
		def.Nodes[b].NextNodeIDs = append(def.Nodes[b].NextNodeIDs, def.Nodes[a].NodeID)

		_, err := TopologicalSort(def)
		var ce *CycleError
		require.True(t, errors.As(err, &ce))
		assert.Less(t, ce.Ordered, ce.Total)
		assert.Equal(t, n, ce.Total)
	}
}

func TestTopologicalSort_UnknownSuccessor(t *testing.T) {
	def := &domain.FlowDefinition{Nodes: []domain.FlowNode{
		{NodeID: "A", NextNodeIDs: []string{"Z"}},
	}}

	_, err := TopologicalSort(def)
	assert.ErrorIs(t, err, ErrUnknownSuccessor)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "A", ve.NodeID)
}

func TestValidate_DuplicateRejectedBeforeSort(t *testing.T) {
	// и дубликат, и цикл: должна сработать проверка дубликатов
	def := &domain.FlowDefinition{Nodes: []domain.FlowNode{
		{NodeID: "A", Name: "pass", NextNodeIDs: []string{"A"}},
		{NodeID: "A", Name: "missing"},
	}}

	v := NewValidator(testNodes())
	_, err := v.Validate(def)
	assert.ErrorIs(t, err, ErrDuplicateNodeID)
	assert.NotErrorIs(t, err, ErrCyclicDependency)
	assert.NotErrorIs(t, err, ErrNodeImplementNotFound)
}

func TestValidate_EmptyNodeID(t *testing.T) {
	v := NewValidator(testNodes())
	_, err := v.Validate(&domain.FlowDefinition{Nodes: []domain.FlowNode{{Name: "pass"}}})
	assert.ErrorIs(t, err, ErrEmptyNodeID)
}

func TestValidate_UnknownImplementation(t *testing.T) {
	v := NewValidator(testNodes())
	_, err := v.Validate(&domain.FlowDefinition{Nodes: []domain.FlowNode{
		{NodeID: "A", Name: "pass", NextNodeIDs: []string{"B"}},
		{NodeID: "B", Name: "rsync"},
	}})

	assert.ErrorIs(t, err, ErrNodeImplementNotFound)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "B", ve.NodeID)
	assert.True(t, IsValidationError(err))
}

func TestValidate_OK(t *testing.T) {
	v := NewValidator(testNodes())
	order, err := v.Validate(chain("A", "B"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(order))

	impl, err := v.Implementation("pass")
	require.NoError(t, err)
	assert.Equal(t, "pass", impl.Meta().Name)

	_, err = v.Implementation("nope")
	assert.ErrorIs(t, err, ErrNodeImplementNotFound)
}
