package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flowstack/internal/channel"
	"github.com/shaiso/Flowstack/internal/domain"
	"github.com/shaiso/Flowstack/internal/fields"
	"github.com/shaiso/Flowstack/internal/node"
	"github.com/shaiso/Flowstack/internal/telemetry"
)

// Test helpers

type execFunc func(ctx context.Context, fc *node.Context) (*node.Result, error)

type fakeNode struct {
	meta  node.Meta
	exec  execFunc
	calls atomic.Int32
}

func (n *fakeNode) Meta() node.Meta { return n.meta }

func (n *fakeNode) Execute(ctx context.Context, fc *node.Context) (*node.Result, error) {
	n.calls.Add(1)
	if n.exec != nil {
		return n.exec(ctx, fc)
	}
	return node.Success(nil), nil
}

// producer — node, записывающий своё имя в поле out.
func producer(name, out string) *fakeNode {
	return &fakeNode{
		meta: node.Meta{Name: name, Outputs: []string{out}},
		exec: func(context.Context, *node.Context) (*node.Result, error) {
			return node.Success(map[string]any{out: name}), nil
		},
	}
}

func testFields() *fields.Registry {
	r := fields.NewRegistry()
	r.MustRegister(
		fields.Definition{Key: "OUT_A", Kind: fields.KindString, Group: "test"},
		fields.Definition{Key: "OUT_B", Kind: fields.KindString, Group: "test"},
		fields.Definition{Key: "OUT_C", Kind: fields.KindString, Group: "test"},
		fields.Definition{Key: "SEED", Kind: fields.KindString, Group: "test"},
		fields.Definition{Key: "COUNT", Kind: fields.KindNumber, Group: "test"},
	)
	r.Seal()
	return r
}

func testNodes(extra ...node.Node) *node.Registry {
	r := node.NewRegistry()
	r.Register(&fakeNode{meta: node.Meta{Name: "pass"}})
	r.Register(extra...)
	return r
}

type recorder struct {
	mu     sync.Mutex
	events []channel.Event
}

func (r *recorder) Send(ev channel.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recorder) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.String()
	}
	return out
}

func (r *recorder) all() []channel.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]channel.Event(nil), r.events...)
}

func newTestEngine(rec *recorder, nodes ...node.Node) *Engine {
	cfg := Config{
		Nodes:  testNodes(nodes...),
		Fields: testFields(),
		Logger: telemetry.Discard(),
	}
	if rec != nil {
		cfg.Emitter = rec
	}
	return New(cfg)
}

func defOf(nodes ...domain.FlowNode) *domain.FlowDefinition {
	return &domain.FlowDefinition{Name: "test", Nodes: nodes}
}

func waitHandle(t *testing.T, h *Handle) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := h.Wait(ctx)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "execution did not finish")
	return err
}

// Execute Tests

func TestExecute_AllSucceed(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec, producer("a", "OUT_A"), producer("b", "OUT_B"), producer("c", "OUT_C"))

	h, err := e.Execute(context.Background(), 10, defOf(
		domain.FlowNode{NodeID: "A", Name: "a", NextNodeIDs: []string{"B"}},
		domain.FlowNode{NodeID: "B", Name: "b", NextNodeIDs: []string{"C"}},
		domain.FlowNode{NodeID: "C", Name: "c"},
	))
	require.NoError(t, err)
	require.NoError(t, waitHandle(t, h))

	assert.Equal(t, []string{
		"FLOW RUNNING",
		"NODE RUNNING(A)", "NODE SUCCESS(A)",
		"NODE RUNNING(B)", "NODE SUCCESS(B)",
		"NODE RUNNING(C)", "NODE SUCCESS(C)",
		"FLOW SUCCESS",
	}, rec.sequence())

	assert.True(t, h.Finished())
	assert.Equal(t, domain.ExecStatusSuccess, h.Status())
	assert.Equal(t, map[string]any{"OUT_A": "a", "OUT_B": "b", "OUT_C": "c"}, h.Context().Snapshot())

	for _, ev := range rec.all() {
		assert.Equal(t, int64(10), ev.FlowID)
		assert.Equal(t, h.ExecutionID(), ev.FlowExecutionID)
	}

	// RUNNING и SUCCESS одного node имеют общий UUID, разные node — разные
	events := rec.all()
	assert.Equal(t, events[1].NodeExecutionID, events[2].NodeExecutionID)
	assert.NotEqual(t, events[1].NodeExecutionID, events[3].NodeExecutionID)

	// финальный снимок содержит все выходы
	assert.Len(t, events[len(events)-1].Data, 3)
}

func TestExecute_FirstNodeFails(t *testing.T) {
	rec := &recorder{}
	b := producer("b", "OUT_B")
	a := &fakeNode{
		meta: node.Meta{Name: "a"},
		exec: func(context.Context, *node.Context) (*node.Result, error) {
			return node.Failed("disk full"), nil
		},
	}
	e := newTestEngine(rec, a, b)

	h, err := e.Execute(context.Background(), 1, defOf(
		domain.FlowNode{NodeID: "A", Name: "a", NextNodeIDs: []string{"B"}},
		domain.FlowNode{NodeID: "B", Name: "b"},
	))
	require.NoError(t, err)

	runErr := waitHandle(t, h)
	require.ErrorIs(t, runErr, ErrNodeFailed)

	var ne *NodeError
	require.True(t, errors.As(runErr, &ne))
	assert.Equal(t, "A", ne.NodeID)
	assert.Equal(t, "disk full", ne.Message)

	assert.Equal(t, []string{
		"FLOW RUNNING",
		"NODE RUNNING(A)", "NODE FAILED(A)",
		"FLOW FAILED",
	}, rec.sequence())

	events := rec.all()
	assert.Equal(t, "disk full", events[2].Error)
	assert.Equal(t, "disk full", events[3].Error)
	assert.Equal(t, int32(0), b.calls.Load())
	assert.Equal(t, domain.ExecStatusFailed, h.Status())
}

func TestExecute_MiddleNodeFailureModes(t *testing.T) {
	tests := []struct {
		name    string
		exec    execFunc
		wantErr string
	}{
		{
			name: "returned error",
			exec: func(context.Context, *node.Context) (*node.Result, error) {
				return nil, errors.New("rsync exited with 23")
			},
			wantErr: "rsync exited with 23",
		},
		{
			name: "panic",
			exec: func(context.Context, *node.Context) (*node.Result, error) {
				panic("nil pointer")
			},
			wantErr: "panic: nil pointer",
		},
		{
			name: "nil result",
			exec: func(context.Context, *node.Context) (*node.Result, error) {
				return nil, nil
			},
			wantErr: "node returned no result",
		},
		{
			name: "failed without text",
			exec: func(context.Context, *node.Context) (*node.Result, error) {
				return &node.Result{Status: domain.ExecStatusFailed}, nil
			},
			wantErr: "node returned FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			first := producer("first", "OUT_A")
			broken := &fakeNode{meta: node.Meta{Name: "broken"}, exec: tt.exec}
			last := producer("last", "OUT_C")
			e := newTestEngine(rec, first, broken, last)

			h, err := e.Execute(context.Background(), 1, defOf(
				domain.FlowNode{NodeID: "n1", Name: "first", NextNodeIDs: []string{"n2"}},
				domain.FlowNode{NodeID: "n2", Name: "broken", NextNodeIDs: []string{"n3"}},
				domain.FlowNode{NodeID: "n3", Name: "last"},
			))
			require.NoError(t, err)
			require.ErrorIs(t, waitHandle(t, h), ErrNodeFailed)

			assert.Equal(t, []string{
				"FLOW RUNNING",
				"NODE RUNNING(n1)", "NODE SUCCESS(n1)",
				"NODE RUNNING(n2)", "NODE FAILED(n2)",
				"FLOW FAILED",
			}, rec.sequence())

			events := rec.all()
			assert.Equal(t, tt.wantErr, events[4].Error)
			assert.Equal(t, tt.wantErr, events[5].Error)
			assert.Equal(t, int32(0), last.calls.Load())
		})
	}
}

func TestExecute_OutputsRestrictedAndValidated(t *testing.T) {
	undeclared := &fakeNode{
		meta: node.Meta{Name: "undeclared", Outputs: []string{"OUT_A"}},
		exec: func(context.Context, *node.Context) (*node.Result, error) {
			return node.Success(map[string]any{"OUT_A": "x", "OUT_B": "leak"}), nil
		},
	}
	e := newTestEngine(nil, undeclared)

	fc, err := e.RunOnce(context.Background(), defOf(domain.FlowNode{NodeID: "A", Name: "undeclared"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"OUT_A": "x"}, fc.Snapshot())

	badType := &fakeNode{
		meta: node.Meta{Name: "bad", Outputs: []string{"COUNT"}},
		exec: func(context.Context, *node.Context) (*node.Result, error) {
			return node.Success(map[string]any{"COUNT": "many"}), nil
		},
	}
	e = newTestEngine(nil, badType)

	_, err = e.RunOnce(context.Background(), defOf(domain.FlowNode{NodeID: "A", Name: "bad"}))
	require.ErrorIs(t, err, ErrNodeFailed)
	assert.Contains(t, err.Error(), "invalid node output")
}

func TestExecute_SeedsManualParams(t *testing.T) {
	var seen atomic.Value
	reader := &fakeNode{
		meta: node.Meta{Name: "reader", Inputs: []string{"SEED", "OUT_A"}},
		exec: func(_ context.Context, fc *node.Context) (*node.Result, error) {
			s, err := fc.String("SEED")
			if err != nil {
				return nil, err
			}
			seen.Store(s)
			return node.Success(nil), nil
		},
	}
	e := newTestEngine(nil, reader)

	_, err := e.RunOnce(context.Background(), defOf(domain.FlowNode{
		NodeID: "A",
		Name:   "reader",
		InputParams: map[string]domain.ParamValue{
			"SEED":  domain.Manual("hello"),
			"OUT_A": domain.FromNodeOutput(),
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, "hello", seen.Load())
}

func TestExecute_InvalidSeedIsSynchronousValidationError(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	h, err := e.Execute(context.Background(), 1, defOf(domain.FlowNode{
		NodeID:      "A",
		Name:        "pass",
		InputParams: map[string]domain.ParamValue{"COUNT": domain.Manual("ten")},
	}))
	assert.Nil(t, h)
	require.ErrorIs(t, err, ErrInvalidParam)
	assert.ErrorIs(t, err, fields.ErrTypeMismatch)
	assert.True(t, IsValidationError(err))
	assert.Empty(t, rec.sequence())
}

func TestExecute_StructuralErrorsBlockExecution(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	_, err := e.Execute(context.Background(), 1, defOf(
		domain.FlowNode{NodeID: "A", Name: "pass", NextNodeIDs: []string{"B"}},
		domain.FlowNode{NodeID: "B", Name: "pass", NextNodeIDs: []string{"A"}},
	))
	assert.ErrorIs(t, err, ErrCyclicDependency)
	assert.Empty(t, rec.sequence())
}

func TestExecute_CancelRunningNode(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})
	blocker := &fakeNode{
		meta: node.Meta{Name: "blocker"},
		exec: func(ctx context.Context, _ *node.Context) (*node.Result, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	e := newTestEngine(rec, blocker)

	h, err := e.Execute(context.Background(), 1, defOf(domain.FlowNode{NodeID: "A", Name: "blocker"}))
	require.NoError(t, err)

	<-started
	assert.False(t, h.Finished())
	h.Cancel()

	require.ErrorIs(t, waitHandle(t, h), ErrNodeFailed)
	assert.Equal(t, []string{"FLOW RUNNING", "NODE RUNNING(A)", "NODE FAILED(A)", "FLOW FAILED"}, rec.sequence())
	assert.Equal(t, context.Canceled.Error(), rec.all()[2].Error)
}

func TestExecute_CancelObservedBetweenNodes(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	canceller := &fakeNode{
		meta: node.Meta{Name: "canceller"},
		exec: func(context.Context, *node.Context) (*node.Result, error) {
			cancel()
			return node.Success(nil), nil
		},
	}
	next := producer("next", "OUT_B")
	e := newTestEngine(rec, canceller, next)

	h, err := e.Execute(ctx, 1, defOf(
		domain.FlowNode{NodeID: "A", Name: "canceller", NextNodeIDs: []string{"B"}},
		domain.FlowNode{NodeID: "B", Name: "next"},
	))
	require.NoError(t, err)

	require.ErrorIs(t, waitHandle(t, h), ErrCancelled)
	assert.Equal(t, []string{"FLOW RUNNING", "NODE RUNNING(A)", "NODE SUCCESS(A)", "FLOW FAILED"}, rec.sequence())
	assert.Equal(t, int32(0), next.calls.Load())
}

func TestHandle_WaitTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := &fakeNode{
		meta: node.Meta{Name: "slow"},
		exec: func(context.Context, *node.Context) (*node.Result, error) {
			<-release
			return node.Success(nil), nil
		},
	}
	e := newTestEngine(nil, slow)

	h, err := e.Execute(context.Background(), 1, defOf(domain.FlowNode{NodeID: "A", Name: "slow"}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
	assert.Equal(t, domain.ExecStatusRunning, h.Status())

	close(release)
	e.Wait()
	assert.True(t, h.Finished())
	assert.NoError(t, h.Err())
}

func TestExecute_ConcurrentExecutionsAreIsolated(t *testing.T) {
	e := newTestEngine(nil, producer("a", "OUT_A"))
	def := defOf(domain.FlowNode{NodeID: "A", Name: "a"})

	h1, err := e.Execute(context.Background(), 1, def)
	require.NoError(t, err)
	h2, err := e.Execute(context.Background(), 1, def)
	require.NoError(t, err)

	e.Wait()
	assert.NotEqual(t, h1.ExecutionID(), h2.ExecutionID())
	assert.NotSame(t, h1.Context(), h2.Context())
}

// RunOnce Tests

func TestRunOnce_ReturnsContext(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec, producer("a", "OUT_A"), producer("b", "OUT_B"))

	fc, err := e.RunOnce(context.Background(), defOf(
		domain.FlowNode{NodeID: "A", Name: "a", NextNodeIDs: []string{"B"}},
		domain.FlowNode{NodeID: "B", Name: "b"},
	))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"OUT_A": "a", "OUT_B": "b"}, fc.Snapshot())
	assert.Equal(t, int64(0), fc.FlowID())

	// разовый запуск не пишет событий
	assert.Empty(t, rec.sequence())
}

func TestRunOnce_Failure(t *testing.T) {
	failing := &fakeNode{
		meta: node.Meta{Name: "failing"},
		exec: func(context.Context, *node.Context) (*node.Result, error) {
			return node.Failed("no space left"), nil
		},
	}
	e := newTestEngine(nil, failing)

	_, err := e.RunOnce(context.Background(), defOf(domain.FlowNode{NodeID: "A", Name: "failing"}))
	require.ErrorIs(t, err, ErrNodeFailed)
	assert.Equal(t, "node A (failing): no space left", err.Error())
}
